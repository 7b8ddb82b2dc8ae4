package ir

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Value defines an abstract three-address code operand. A Value holds either a physical
// register id or a base register and offset memory address once the register allocator has
// run; constants hold neither and are materialised on demand by the emitter.
type Value interface {
	Name() string                    // IR name of the Value.
	Type() Type                      // Data type of the Value.
	RegId() int32                    // Physical register id, or -1 if the Value is not register resident.
	SetRegId(int32)                  // Used by the register allocator and the call rewriter.
	MemoryAddr() (int32, int64, bool) // Base register id and signed offset. Returns false if no address is set.
	SetMemoryAddr(int32, int64)      // Binds the Value to a base register and offset.
}

// valueBase carries the location state shared by every Value kind.
type valueBase struct {
	name      string // IR name.
	typ       Type   // Data type.
	regId     int32  // Physical register id, -1 when not register resident.
	baseRegNo int32  // Base register id for memory addressing, -1 when no address is assigned.
	offset    int64  // Signed offset from the base register.
}

// ConstInt is an integer constant operand.
type ConstInt struct {
	valueBase
	val int32
}

// ConstFloat is a floating point constant operand.
type ConstFloat struct {
	valueBase
	val float32
}

// GlobalVariable is a module level variable living in the data or BSS section.
type GlobalVariable struct {
	valueBase
	align  int32 // Section alignment of the variable.
	intVal int32 // Initial value for variables in the data section.
	bss    bool  // Set true if the variable has no initial value and lives in BSS.
}

// LocalVariable is a function local variable.
type LocalVariable struct {
	valueBase
}

// FormalParam is a formal parameter of a function.
type FormalParam struct {
	valueBase
	index int // Position of the parameter in the parameter list.
}

// RegVariable is a Value pinned to a fixed physical register. The platform
// descriptor interns one per register.
type RegVariable struct {
	valueBase
}

// MemVariable is an anonymous memory resident Value used when passing arguments
// over the stack.
type MemVariable struct {
	valueBase
}

// -------------------
// ----- globals -----
// -------------------

// zeroReg holds the platform's zero register id while a code generator is live.
// When set, the integer constant 0 reports it as register id so instruction
// selection can use the zero register directly as an operand.
var zeroReg int32 = -1

// ---------------------
// ----- functions -----
// ---------------------

func newValueBase(name string, typ Type) valueBase {
	return valueBase{
		name:      name,
		typ:       typ,
		regId:     -1,
		baseRegNo: -1,
	}
}

func (v *valueBase) Name() string     { return v.name }
func (v *valueBase) Type() Type       { return v.typ }
func (v *valueBase) RegId() int32     { return v.regId }
func (v *valueBase) SetRegId(r int32) { v.regId = r }

// MemoryAddr returns the base register id and offset of a memory resident Value.
// The third return value is false if no base register has been assigned.
func (v *valueBase) MemoryAddr() (int32, int64, bool) {
	if v.baseRegNo == -1 {
		return -1, 0, false
	}
	return v.baseRegNo, v.offset, true
}

func (v *valueBase) SetMemoryAddr(base int32, offset int64) {
	v.baseRegNo = base
	v.offset = offset
}

// SetZeroReg binds the integer constant 0 to the platform's zero register id.
// Passing -1 unbinds it.
func SetZeroReg(no int32) {
	zeroReg = no
}

// RegId returns the zero register id for the constant 0 while a code generator
// has bound one, otherwise -1.
func (c *ConstInt) RegId() int32 {
	if c.val == 0 {
		return zeroReg
	}
	return -1
}

// Val returns the constant's integer value.
func (c *ConstInt) Val() int32 { return c.val }

// Val returns the constant's floating point value.
func (c *ConstFloat) Val() float32 { return c.val }

// NewRegVariable returns a Value pinned to physical register no.
func NewRegVariable(typ Type, name string, no int32) *RegVariable {
	r := &RegVariable{valueBase: newValueBase(name, typ)}
	r.regId = no
	return r
}

// Align returns the section alignment of the global variable.
func (g *GlobalVariable) Align() int32 { return g.align }

// IntVal returns the initial value of an initialised global variable.
func (g *GlobalVariable) IntVal() int32 { return g.intVal }

// InBSS returns true if the global variable lives in the BSS section.
func (g *GlobalVariable) InBSS() bool { return g.bss }

// Index returns the position of the formal parameter in the parameter list.
func (p *FormalParam) Index() int { return p.index }
