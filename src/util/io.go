package util

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Writer buffers output from worker go routines in a strings.Builder.
// When the Flush or Close method is called the buffer is emptied and sent to
// the assigned output writer through channel c.
type Writer struct {
	sb strings.Builder
	c  chan string
}

// -------------------
// ----- globals -----
// -------------------

var wc chan string // Write channel used for receiving data from worker go routines.
var cc chan error  // Close channel used by main go routine to signal the end of write operations.
var done chan error

// ---------------------
// ----- Functions -----
// ---------------------

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// WriteString writes the string s verbatim to the Writer's buffer.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// Label writes a one-line label with the given name. Labels are not indented.
func (w *Writer) Label(name string) {
	w.sb.WriteString(fmt.Sprintf("%s:\n", name))
}

// String returns the buffered contents of the Writer without flushing it.
func (w *Writer) String() string {
	return w.sb.String()
}

// Flush empties the Writer's buffer and sends the buffer data to the
// designated output writer over the Writer's channel.
func (w *Writer) Flush() {
	w.c <- w.sb.String()
	w.sb = strings.Builder{}
}

// Close flushes the Writer's buffer and then detaches the Writer from its channel.
func (w *Writer) Close() {
	w.Flush()
	w.c = nil
}

// NewWriter returns a new Writer to be used by worker go routines to write strings concurrently to the
// output buffer. Must not be called before the main go routine has called ListenWrite.
func NewWriter() Writer {
	return Writer{
		sb: strings.Builder{},
		c:  wc,
	}
}

// ReadSource reads linear IR source code from the file named by the Options structure, or from stdin
// when no source path was provided.
func ReadSource(opt Options) (string, error) {
	if len(opt.Src) > 0 {
		// Read from file.
		b, err := ioutil.ReadFile(opt.Src)
		return string(b), err
	}
	// Read stdin until EOF.
	b, err := ioutil.ReadAll(os.Stdin)
	return string(b), err
}

// ListenWrite listens for worker go routine outputs. The received data is written to either file
// if File pointer f is not nil or stdout if File pointer f is nil. The function loops until
// a termination signal is sent using the Close function.
func ListenWrite(t int, f *os.File) {
	wc = make(chan string, t)
	cc = make(chan error, 1) // Make buffered to catch Close before listener is invoked.
	done = make(chan error, 1)
	var w *bufio.Writer
	if f != nil {
		// Write output to file.
		w = bufio.NewWriter(f)
	} else {
		// Write output to stdout.
		w = bufio.NewWriter(os.Stdout)
	}

	// Listen for input and termination signal. On termination any writes still
	// buffered in the channel are drained before the listener stops.
	go func(wc chan string, cc chan error) {
		defer close(wc)
		defer close(cc)
		write := func(s string) {
			if _, err := w.WriteString(s); err != nil {
				Logf(LogError, "output write failed: %s", err)
			}
			if err := w.Flush(); err != nil {
				Logf(LogError, "output flush failed: %s", err)
			}
		}
		for {
			select {
			case s := <-wc:
				write(s)
			case <-cc:
				for {
					select {
					case s := <-wc:
						write(s)
					default:
						done <- nil
						return
					}
				}
			}
		}
	}(wc, cc)
}

// Close sends the termination signal to the write listener and waits for it to drain.
func Close() {
	cc <- nil
	<-done
}
