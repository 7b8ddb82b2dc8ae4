package ir

import (
	"fmt"
	"math"
	"sync"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Module defines a program that contains global variables and functions. Integer
// and floating point constants are interned in module scoped storage sets.
type Module struct {
	Name       string // Name of module. Not important.
	globals    []*GlobalVariable
	functions  []*Function
	funcMap    map[string]*Function
	icons      map[int32]*ConstInt
	fcons      map[uint32]*ConstFloat
	labelIndex int // Monotonic counter for module unique label names.
	sync.Mutex     // Mutex for synchronising access to the module during parallel execution.
}

// ---------------------
// ----- Constants -----
// ---------------------

// labelPrefix prefixes every module unique label name.
const labelPrefix = ".L"

// ---------------------
// ----- functions -----
// ---------------------

// CreateModule creates a new empty module with the given optional name.
func CreateModule(name string) *Module {
	m := Module{
		globals:   make([]*GlobalVariable, 0, 16),
		functions: make([]*Function, 0, 16),
		funcMap:   make(map[string]*Function, 16),
		icons:     make(map[int32]*ConstInt, 16),
		fcons:     make(map[uint32]*ConstFloat, 16),
	}
	if len(name) > 0 {
		m.Name = name
	} else {
		m.Name = "module"
	}
	return &m
}

// CreateGlobalVariable creates a global variable with the given initial value.
// Globals without an initial value are placed in the BSS section.
func (m *Module) CreateGlobalVariable(name string, typ Type, intVal int32, bss bool) *GlobalVariable {
	m.Lock()
	defer m.Unlock()
	g := &GlobalVariable{
		valueBase: newValueBase(name, typ),
		align:     4,
		intVal:    intVal,
		bss:       bss,
	}
	m.globals = append(m.globals, g)
	return g
}

// ConstInt returns the interned integer constant with value v.
func (m *Module) ConstInt(v int32) *ConstInt {
	m.Lock()
	defer m.Unlock()
	if c, ok := m.icons[v]; ok {
		return c
	}
	c := &ConstInt{
		valueBase: newValueBase(fmt.Sprintf("%d", v), TypeInt),
		val:       v,
	}
	m.icons[v] = c
	return c
}

// ConstFloat returns the interned floating point constant with value v.
func (m *Module) ConstFloat(v float32) *ConstFloat {
	m.Lock()
	defer m.Unlock()
	k := math.Float32bits(v)
	if c, ok := m.fcons[k]; ok {
		return c
	}
	c := &ConstFloat{
		valueBase: newValueBase(fmt.Sprintf("%g", v), TypeFloat),
		val:       v,
	}
	m.fcons[k] = c
	return c
}

// CreateFunction creates a new empty function with the given return type. The
// function entry instruction, return value variable and exit label are set up so
// the builder can append body instructions directly.
func (m *Module) CreateFunction(name string, rtyp Type) *Function {
	m.Lock()
	defer m.Unlock()
	f := &Function{
		module: m,
		name:   name,
		typ:    rtyp,
		params: make([]*FormalParam, 0, 8),
		locals: make([]*LocalVariable, 0, 8),
		insts:  make([]*Instruction, 0, 32),
	}
	f.Append(newInstruction(f, OpEntry, TypeVoid))
	f.exitLabel = f.NewLabel()
	if !rtyp.IsVoid() {
		f.retVal = f.NewLocalVar("%ret", rtyp)
	}
	m.functions = append(m.functions, f)
	m.funcMap[name] = f
	return f
}

// CreateBuiltin declares a builtin function with the given parameter types. A
// builtin has no body and is not compiled, but calls to it are lowered normally.
func (m *Module) CreateBuiltin(name string, rtyp Type, ptypes ...Type) *Function {
	m.Lock()
	defer m.Unlock()
	f := &Function{
		module:  m,
		name:    name,
		typ:     rtyp,
		builtin: true,
	}
	for i1, e1 := range ptypes {
		f.AddParam(fmt.Sprintf("%%p%d", i1), e1)
	}
	m.functions = append(m.functions, f)
	m.funcMap[name] = f
	return f
}

// Globals returns a slice of all global variables declared in Module m.
func (m *Module) Globals() []*GlobalVariable {
	return m.globals
}

// Functions returns a slice of all functions declared in Module m, in
// declaration order.
func (m *Module) Functions() []*Function {
	return m.functions
}

// GetFunction returns a named function of Module m, if it exists. If no function
// with the given name exists, <nil> is returned.
func (m *Module) GetFunction(name string) *Function {
	return m.funcMap[name]
}

// GetGlobal returns a named global variable of Module m, if it exists. If no
// global with the given name exists, <nil> is returned.
func (m *Module) GetGlobal(name string) *GlobalVariable {
	for _, e1 := range m.globals {
		if e1.name == name {
			return e1
		}
	}
	return nil
}

// NextLabelName returns a label name that is unique for the whole module. Label
// names must be program unique, not function unique, so the counter lives on the
// module.
func (m *Module) NextLabelName() string {
	m.Lock()
	defer m.Unlock()
	s := fmt.Sprintf("%s%d", labelPrefix, m.labelIndex)
	m.labelIndex++
	return s
}
