package value

// ObjKind tags the concrete type behind an Obj interface value, as an
// explicit enum alongside Go type switches. The bytecode file format
// (pkg/bytefile) does not write this tag; it has its own object tags.
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjFunction
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjArray
	ObjMap
	ObjModule
	ObjNative
	ObjNativeObject
)

// Obj is satisfied by every heap-allocated object kind. Marked/SetMarked
// and Next/SetNext implement the GC's intrusive header (spec §3.2): every
// heap object carries a mark bit and a link into the VM's global
// allocation list, walked by pkg/gc during sweep.
type Obj interface {
	ObjKind() ObjKind
	Marked() bool
	SetMarked(bool)
	Next() Obj
	SetNext(Obj)
}

// Header is embedded by every concrete object type to provide the common
// GC bookkeeping fields without repeating them on each struct.
type Header struct {
	marked bool
	next   Obj
}

func (h *Header) Marked() bool    { return h.marked }
func (h *Header) SetMarked(m bool) { h.marked = m }
func (h *Header) Next() Obj       { return h.next }
func (h *Header) SetNext(o Obj)   { h.next = o }

// String is an immutable, interned byte string. Interning means pointer
// identity implies content equality (spec §3.3); the canonical copy of
// any given byte sequence lives in the VM's string table (pkg/table).
type String struct {
	Header
	Chars []byte
	Hash  uint32
}

func (*String) ObjKind() ObjKind { return ObjString }

// FunctionKind distinguishes how a compiled function is invoked, which
// affects slot-0 binding (`this` for methods) and implicit-return
// behavior (initializers implicitly return `this`).
type FunctionKind uint8

const (
	FnScript FunctionKind = iota
	FnFunction
	FnMethod
	FnLambda
	FnInitializer
)

// Arity captures the parameter shape the compiler resolved: a fixed
// count, an additional count of optional parameters (defaulted to
// Absence when not supplied), and whether a trailing variadic parameter
// collects the remaining arguments into an Array.
type Arity struct {
	Fixed    int
	Optional int
	Variadic bool
}

// Function is the compiled, immutable representation of a `fun`
// declaration, method, or lambda: a bytecode chunk plus metadata the VM
// needs to set up a call frame. Function itself never closes over
// anything; a Closure pairs it with captured Upvalues.
type Function struct {
	Header
	Chunk        *Chunk
	Name         *String
	Arity        Arity
	UpvalueCount int
	Kind         FunctionKind
}

func (*Function) ObjKind() ObjKind { return ObjFunction }

// Upvalue is the indirection object representing a variable captured
// from an enclosing function. While Open, StackIndex names a live slot on
// the owning VM's value stack; once the enclosing frame returns, Close
// copies that slot's value into Closed and the upvalue stops referring to
// the stack at all (spec §3.3).
type Upvalue struct {
	Header
	Open       bool
	StackIndex int
	Closed     Value
	// NextOpen links open upvalues in a per-VM list ordered by descending
	// StackIndex, so closure creation can find-or-share an existing
	// upvalue for a given stack slot (spec §4.5).
	NextOpen *Upvalue
}

func (*Upvalue) ObjKind() ObjKind { return ObjUpvalue }

// Closure pairs a compiled Function with the upvalues it captured at
// creation time and the module it was defined in (modules own their own
// global namespace; a closure needs to know which one to resolve globals
// against after it has been passed around or imported elsewhere).
type Closure struct {
	Header
	Fn        *Function
	Upvalues  []*Upvalue
	Module    *Module
}

func (*Closure) ObjKind() ObjKind { return ObjClosure }

// Class is a first-class, mutable object: method bodies may be added
// after declaration is finished (spec allows nothing of the sort
// explicitly, but nothing forbids it either — methods are just table
// entries). INHERIT copies the superclass's methods into Methods, so
// neither method nor static-field lookup walks Super, and static fields
// are not inherited (spec §4.5 INHERIT).
type Class struct {
	Header
	Name         *String
	Methods      map[string]*Closure
	StaticFields map[string]Value
	Super        *Class
}

func (*Class) ObjKind() ObjKind { return ObjClass }

func NewClass(name *String) *Class {
	return &Class{Name: name, Methods: make(map[string]*Closure), StaticFields: make(map[string]Value)}
}

// Instance is a bag of fields plus a class pointer used for method
// lookup. Fields are created lazily on first SET_PROPERTY; reading an
// unset field is a PropertyError, not a nil.
type Instance struct {
	Header
	Class  *Class
	Fields map[string]Value
}

func (*Instance) ObjKind() ObjKind { return ObjInstance }

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: make(map[string]Value)}
}

// BoundMethod pairs a closure with the receiver it was looked up on, so
// that calling it later still has `this` available without re-walking
// the class hierarchy. PROPERTY_INVOKE (spec §4.5) exists specifically to
// let the VM skip allocating one of these when the call is immediate.
type BoundMethod struct {
	Header
	Receiver Value
	Method   *Closure
}

func (*BoundMethod) ObjKind() ObjKind { return ObjBoundMethod }

// Array is a mutable, heap-allocated, dynamically-sized sequence of
// Values. Backed by a Go slice; growth reuses Go's own amortized
// append, which the GC simply treats as "replace this object's buffer".
type Array struct {
	Header
	Elements []Value
}

func (*Array) ObjKind() ObjKind { return ObjArray }

// Map is the language-level hash map, backed by pkg/table.ValueMap so it
// can use value.Equal/value.HashValue rather than Go's built-in
// comparable map keys (which can't key on struct Value containing an Obj
// interface the way the language wants). Instances are keyed by
// identity: two instances of the same class are always distinct keys,
// and no script-defined `equal`/`hash` method is called.
type Map struct {
	Header
	Table ValueTable
}

func (*Map) ObjKind() ObjKind { return ObjMap }

// ValueTable is implemented by pkg/table.ValueMap. Declared here because
// Map must reference it without an import cycle (pkg/table imports
// pkg/value for Value/Hash/Equal).
type ValueTable interface {
	Get(key Value) (Value, bool)
	Set(key, val Value) bool
	Delete(key Value) bool
	Len() int
	Each(func(k, v Value) bool)
}

// Module represents one compiled-and-run source file. Its Globals table
// is both where top-level `var`/`const`/`fun`/`class` declarations land
// and what an `import`-ing module receives as the imported bindings
// (spec §4.5).
type Module struct {
	Header
	Path    *String
	Globals GlobalTable
	// PublicNames marks which global names this module exported via
	// `export` declarations; member access on the module (`mod.name`)
	// resolves only these.
	PublicNames map[string]bool
	// ConstNames marks globals that were declared `const`; writing to one
	// outside of its defining DEF_GLOBAL_CONST is a runtime error.
	ConstNames map[string]bool
}

func (*Module) ObjKind() ObjKind { return ObjModule }

// GlobalTable is implemented by pkg/table.Table. See ValueTable for why
// this indirection exists.
type GlobalTable interface {
	GetStr(name string) (Value, bool)
	SetStr(name string, val Value) bool
	Len() int
}

func NewModule(path *String) *Module {
	return &Module{
		Path:        path,
		PublicNames: make(map[string]bool),
		ConstNames:  make(map[string]bool),
	}
}

// NativeFn is the signature a host-provided builtin implements. It
// receives a VM handle as an opaque interface{} (pkg/vm.VM satisfies it)
// so pkg/value does not need to import pkg/vm, and the raw argument
// slice; it returns either a result or an error value already shaped as
// the language's exception protocol expects (pkg/vm wraps Go errors into
// instances of Error/TypeError/... before they reach here only when the
// native itself wants to raise one — a native may also return a Go error
// directly and let the VM translate it to a generic Error).
type NativeFn func(vmHandle interface{}, args []Value) (Value, error)

// Native wraps a host function exposed to script code. Arity of -1 means
// the native validates its own argument count (spec §6.4); the VM's CALL
// opcode only pre-checks arity when it is >= 0.
type Native struct {
	Header
	Name  *String
	Arity int
	Fn    NativeFn
}

func (*Native) ObjKind() ObjKind { return ObjNative }

// NativeObject is a small fixed-size inline value array tagged with a
// host-defined kind string, used to carry opaque iterator state (spec
// §3.2) without needing a full Instance/Class machinery for built-in
// iteration (e.g. iterating an Array or Map).
type NativeObject struct {
	Header
	NativeKind string
	Slots      [4]Value
}

func (*NativeObject) ObjKind() ObjKind { return ObjNativeObject }
