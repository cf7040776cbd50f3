// Package scriptif is the script-engine dependency contract from spec §6:
// the capabilities the core assumes of an embedded script engine (value
// stack, object/array construction, pcall, JSON, pinning, debug-attach).
// The real engine is an excluded collaborator; this package only defines
// the interface and the tagged value type the rest of the core programs
// against (Design Notes: "Dynamic-typed script values → a tagged sum
// type").
package scriptif

import "context"

// Kind tags a Value's dynamic type.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindUInt
	KindNum
	KindStr
	KindBuf
	KindArr
	KindObj
	KindRef // opaque reference to an engine-side object (service object, function, ...)
)

// Value is the tagged sum type standing in for a dynamic script value.
type Value struct {
	Kind Kind
	B    bool
	I    int64
	U    uint64
	N    float64
	S    string
	Buf  []byte
	Arr  []Value
	Obj  map[string]Value
	Ref  any
}

func Undefined() Value           { return Value{Kind: KindUndefined} }
func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, I: i} }
func UInt(u uint64) Value        { return Value{Kind: KindUInt, U: u} }
func Num(n float64) Value        { return Value{Kind: KindNum, N: n} }
func Str(s string) Value         { return Value{Kind: KindStr, S: s} }
func Buffer(b []byte) Value      { return Value{Kind: KindBuf, Buf: b} }
func Array(a []Value) Value      { return Value{Kind: KindArr, Arr: a} }
func Object(o map[string]Value) Value { return Value{Kind: KindObj, Obj: o} }
func Ref(v any) Value            { return Value{Kind: KindRef, Ref: v} }

// PinLease is a lease index from Pin, keeping a string/buffer's address
// stable for the duration of one loop iteration (spec §6).
type PinLease int

// PcallResult is the outcome of a protected call: a result code instead
// of a Go panic/throw, per spec §6's pcall contract.
type PcallResult struct {
	OK    bool
	Value Value
	Err   string // the thrown value's string form, when !OK
}

// DebugCallbacks is the callback set the engine invokes while a debugger
// is attached, per spec §6.
type DebugCallbacks struct {
	Read     func(buf []byte) int
	Write    func(buf []byte) int
	Peek     func() int
	Detached func()
	Cooperate func()
}

// InterfaceMember mirrors one entry of a script-side interfaceDefinition
// member list (spec §3).
type InterfaceMember struct {
	Kind     string // "method", "signal", "property"
	Name     string
	InArgs   []Arg
	OutArgs  []Arg
	Access   string // "R", "W", "RW" — properties only
	Signature string
}

// Arg is one named, typed argument of a method/signal member.
type Arg struct {
	Name      string
	Signature string
}

// InterfaceDef mirrors one entry of interfaceDefinition.
type InterfaceDef struct {
	Name    string
	Members []InterfaceMember
}

// ObjectDef mirrors one entry of objectDefinition.
type ObjectDef struct {
	Path        string
	Interfaces  []string
	Description string

	// Handlers is the service object's callback set, a KindObj value
	// holding the function Refs the script registered under the keys
	// "onMethodCall", "onPropGet", "onPropSet", and "onPropGetAll"
	// (spec §4.G). A zero Value (KindUndefined) means no callbacks are
	// registered and inbound calls to this object are rejected.
	Handlers Value
}

// WidgetDef mirrors one control-panel widget definition (spec §4.J).
type WidgetDef struct {
	Type      string // "label", "property", "action", "dialog", "container"
	Layout    []string
	Params    map[string]Value
	Index     int
	Value     Value
	Children  []WidgetDef
}

// Engine is the contract the core depends on, per spec §6.
type Engine interface {
	// Push/Pop primitives on the value stack.
	Push(v Value)
	Pop() Value

	// Property get/set by string key or array index on the given value.
	GetProp(obj Value, key string) Value
	SetProp(obj Value, key string, v Value)
	GetIndex(arr Value, idx int) Value
	SetIndex(arr Value, idx int, v Value)

	// Pcall invokes fn with args, returning a result code instead of
	// throwing.
	Pcall(ctx context.Context, fn Value, args []Value) PcallResult

	// RegisterFinalizer arms fn to run when v is garbage collected.
	RegisterFinalizer(v Value, fn func())

	// JSON encodes the given value, or decodes a string into a value.
	JSONEncode(v Value) (string, error)
	JSONDecode(s string) (Value, error)

	// Pin keeps a string/buffer's address stable for one loop iteration,
	// returning a lease to release it.
	Pin(v Value) PinLease
	Unpin(lease PinLease)

	// Compile/Eval entry point.
	Compile(src string, name string) (Value, error)
	Eval(ctx context.Context, src string, name string) PcallResult

	// Debug-attach entry point.
	DebugAttach(cb DebugCallbacks)
	DebugDetach()

	// Script-side object/interface/widget maps, read at startup by
	// internal/objtable and internal/panel.
	InterfaceDefinitions() []InterfaceDef
	ObjectDefinitions() []ObjectDef
	Widgets() []WidgetDef

	// Version string reported once to an attached debugger (spec §4.I).
	Version() string
}
