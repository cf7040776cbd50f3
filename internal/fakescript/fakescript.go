// Package fakescript is an in-memory test double implementing
// scriptif.Engine, for use by unit tests and cmd/ajcoresim in place of a
// real embedded script engine.
package fakescript

import (
	"context"
	"fmt"

	"github.com/alljoynjs/ajcore/internal/scriptif"
)

// Engine is a minimal scriptif.Engine double: a value stack, an
// interface/object/widget catalogue set by tests, and a pluggable Eval
// function so tests can simulate script behavior without a real VM.
type Engine struct {
	stack []scriptif.Value

	Ifaces  []scriptif.InterfaceDef
	Objects []scriptif.ObjectDef
	Widget  []scriptif.WidgetDef

	EvalFunc func(ctx context.Context, src, name string) scriptif.PcallResult

	finalizers map[any]func()
	pins       map[scriptif.PinLease]scriptif.Value
	nextLease  scriptif.PinLease

	debug scriptif.DebugCallbacks
}

// New builds an empty fake engine.
func New() *Engine {
	return &Engine{
		finalizers: make(map[any]func()),
		pins:       make(map[scriptif.PinLease]scriptif.Value),
	}
}

func (e *Engine) Push(v scriptif.Value) { e.stack = append(e.stack, v) }
func (e *Engine) Pop() scriptif.Value {
	if len(e.stack) == 0 {
		return scriptif.Undefined()
	}
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v
}

func (e *Engine) GetProp(obj scriptif.Value, key string) scriptif.Value {
	if obj.Kind != scriptif.KindObj {
		return scriptif.Undefined()
	}
	if v, ok := obj.Obj[key]; ok {
		return v
	}
	return scriptif.Undefined()
}

func (e *Engine) SetProp(obj scriptif.Value, key string, v scriptif.Value) {
	if obj.Kind == scriptif.KindObj {
		obj.Obj[key] = v
	}
}

func (e *Engine) GetIndex(arr scriptif.Value, idx int) scriptif.Value {
	if arr.Kind != scriptif.KindArr || idx < 0 || idx >= len(arr.Arr) {
		return scriptif.Undefined()
	}
	return arr.Arr[idx]
}

func (e *Engine) SetIndex(arr scriptif.Value, idx int, v scriptif.Value) {
	if arr.Kind == scriptif.KindArr && idx >= 0 && idx < len(arr.Arr) {
		arr.Arr[idx] = v
	}
}

func (e *Engine) Pcall(ctx context.Context, fn scriptif.Value, args []scriptif.Value) scriptif.PcallResult {
	if fn.Ref == nil {
		return scriptif.PcallResult{OK: false, Err: "fakescript: value is not callable"}
	}
	callable, ok := fn.Ref.(func(context.Context, []scriptif.Value) scriptif.PcallResult)
	if !ok {
		return scriptif.PcallResult{OK: false, Err: "fakescript: ref is not a callable func"}
	}
	return callable(ctx, args)
}

func (e *Engine) RegisterFinalizer(v scriptif.Value, fn func()) {
	if v.Ref != nil {
		e.finalizers[v.Ref] = fn
	}
}

// RunFinalizer simulates garbage collection of v, for tests.
func (e *Engine) RunFinalizer(v scriptif.Value) {
	if fn, ok := e.finalizers[v.Ref]; ok {
		fn()
		delete(e.finalizers, v.Ref)
	}
}

func (e *Engine) JSONEncode(v scriptif.Value) (string, error) {
	return fmt.Sprintf("%v", v), nil
}

func (e *Engine) JSONDecode(s string) (scriptif.Value, error) {
	return scriptif.Str(s), nil
}

func (e *Engine) Pin(v scriptif.Value) scriptif.PinLease {
	e.nextLease++
	e.pins[e.nextLease] = v
	return e.nextLease
}

func (e *Engine) Unpin(lease scriptif.PinLease) { delete(e.pins, lease) }

func (e *Engine) Compile(src, name string) (scriptif.Value, error) {
	return scriptif.Str(src), nil
}

func (e *Engine) Eval(ctx context.Context, src, name string) scriptif.PcallResult {
	if e.EvalFunc != nil {
		return e.EvalFunc(ctx, src, name)
	}
	return scriptif.PcallResult{OK: true, Value: scriptif.Undefined()}
}

func (e *Engine) DebugAttach(cb scriptif.DebugCallbacks) { e.debug = cb }
func (e *Engine) DebugDetach() {
	if e.debug.Detached != nil {
		e.debug.Detached()
	}
	e.debug = scriptif.DebugCallbacks{}
}

func (e *Engine) InterfaceDefinitions() []scriptif.InterfaceDef { return e.Ifaces }
func (e *Engine) ObjectDefinitions() []scriptif.ObjectDef       { return e.Objects }
func (e *Engine) Widgets() []scriptif.WidgetDef                 { return e.Widget }

func (e *Engine) Version() string { return "fakescript-1.0" }
