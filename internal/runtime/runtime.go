// Package runtime wires the core subsystems into the single struct Design
// Notes calls for in place of the original's global C state: heap, NVRAM,
// property store, timer wheel, object table, session manager, correlation
// table, console/debug service, control panel, bus loop, and the two
// external-collaborator handles (busif.Bus, scriptif.Engine).
package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/alljoynjs/ajcore/internal/busif"
	"github.com/alljoynjs/ajcore/internal/busloop"
	"github.com/alljoynjs/ajcore/internal/config"
	"github.com/alljoynjs/ajcore/internal/console"
	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/heap"
	"github.com/alljoynjs/ajcore/internal/logging"
	"github.com/alljoynjs/ajcore/internal/marshal"
	"github.com/alljoynjs/ajcore/internal/nvram"
	"github.com/alljoynjs/ajcore/internal/objtable"
	"github.com/alljoynjs/ajcore/internal/panel"
	"github.com/alljoynjs/ajcore/internal/propstore"
	"github.com/alljoynjs/ajcore/internal/scriptif"
	"github.com/alljoynjs/ajcore/internal/session"
	"github.com/alljoynjs/ajcore/internal/timer"
	"github.com/alljoynjs/ajcore/internal/watchdog"
)

// Runtime is the assembled AllJoyn.js core: every subsystem plus the two
// external collaborators (bus transport and script engine), per the
// Design Notes mapping "one global C state struct → one Runtime struct".
type Runtime struct {
	Config *config.Config

	Bus    busif.Bus
	Engine scriptif.Engine

	Heap    *heap.Arena
	NVRAM   *nvram.Store
	Props   *propstore.Store
	Timers  *timer.Wheel
	Objects *objtable.Table
	Panel   *panel.Tree

	Sessions    *session.Manager
	Correlation *marshal.Correlation
	Console     *console.Service
	Watchdog    *watchdog.Watchdog

	// FindDescriptors are the registered find-by-name interests (spec
	// §4.H) a FoundAdvertisedName signal is matched against.
	FindDescriptors []session.FindByNameDescriptor

	Loop *busloop.Loop

	deferredFactoryReset bool
	deferredOffboard     bool
}

// New assembles a Runtime from configuration and the two external
// collaborators. It opens NVRAM, builds the heap arena and property store,
// and builds the object/interface and control-panel tables from the
// engine's script-side definitions.
func New(cfg *config.Config, bus busif.Bus, engine scriptif.Engine, authSecret []byte) (*Runtime, error) {
	nv, err := nvram.Open(cfg.NVRAMPath)
	if err != nil {
		return nil, err
	}

	props, err := propstore.New(nv, bus.GUID(), cfg.Languages)
	if err != nil {
		nv.Close()
		return nil, err
	}

	table, err := objtable.Build(engine)
	if err != nil {
		nv.Close()
		return nil, err
	}

	r := &Runtime{
		Config:      cfg,
		Bus:         bus,
		Engine:      engine,
		Heap:        heap.Init(cfg.Buckets),
		NVRAM:       nv,
		Props:       props,
		Timers:      timer.New(),
		Objects:     table,
		Panel:       panel.Build(engine.Widgets()),
		Sessions:    session.New(),
		Correlation: marshal.NewCorrelation(),
	}

	if cfg.ConsoleEnabled {
		r.Console = console.New(nv, engine, cfg.MaxScriptLen, cfg.MaxEvalLen,
			float64(cfg.EvalRatePerSec), cfg.EvalRateBurst, authSecret)
	}

	r.Watchdog = watchdog.New(cfg.LinkTimeout, func() {
		logging.Error("runtime: watchdog fired during script callback")
	})

	r.Loop = busloop.New(bus, r.Timers, r.Watchdog, busloop.Hooks{
		PollSessions: func() {
			select {
			case <-r.Sessions.Updates():
			default:
			}
		},
		Locked: func() bool {
			if r.Console == nil {
				return false
			}
			return r.Console.Locked()
		},
	})
	r.installHandlers()

	return r, nil
}

// Close releases the runtime's held resources.
func (r *Runtime) Close() error {
	return r.NVRAM.Close()
}

// Run starts the message loop (spec §4.F) until ctx is done or a fatal
// error is returned.
func (r *Runtime) Run(ctx context.Context) error {
	return r.Loop.Run(ctx)
}

// installHandlers wires the dispatch table keyed by message class, per
// spec §4.F step 6's classification rules.
func (r *Runtime) installHandlers() {
	r.Loop.Handlers[busif.ClassAcceptSession] = r.handleAcceptSession
	r.Loop.Handlers[busif.ClassJoinReply] = r.handleJoinReply
	r.Loop.Handlers[busif.ClassSessionLost] = r.handleSessionLost
	r.Loop.Handlers[busif.ClassFoundAdvertisedName] = r.handleFoundAdvertisedName
	r.Loop.Handlers[busif.ClassAboutAnnounce] = r.handleAboutAnnounce
	if r.Console != nil {
		r.Loop.Handlers[busif.ClassConsole] = r.handleConsole
		r.Loop.Handlers[busif.ClassDebugger] = r.handleDebugger
	}
	r.Loop.Handlers[busif.ClassControlPanel] = r.handleControlPanel
	r.Loop.Handlers[busif.ClassScriptCall] = r.handleScriptCall
}

func (r *Runtime) handleAcceptSession(ctx context.Context, m *busif.Message) (func() error, error) {
	if m.Port == r.Config.ApplicationPort {
		return nil, r.Bus.AcceptSessionReply(m.Serial, true)
	}
	if r.Console != nil && m.Port != 0 {
		accept := r.Console.AcceptSession()
		return nil, r.Bus.AcceptSessionReply(m.Serial, accept)
	}
	return nil, r.Bus.AcceptSessionReply(m.Serial, false)
}

func (r *Runtime) handleJoinReply(ctx context.Context, m *busif.Message) (func() error, error) {
	success := !m.IsError
	r.Sessions.ResolveJoinReply(m.ReplySerial, m.SessionID, success, func(busName string, shape session.AnnouncedShape) {
		logging.Info("runtime: dispatching service object", "bus", busName, "path", shape.Path)
	})
	return nil, nil
}

func (r *Runtime) handleSessionLost(ctx context.Context, m *busif.Message) (func() error, error) {
	r.Sessions.SessionLost(m.Sender)
	if r.Console != nil {
		r.Console.SessionLost()
	}
	return nil, nil
}

func (r *Runtime) handleFoundAdvertisedName(ctx context.Context, m *busif.Message) (func() error, error) {
	for _, d := range r.FindDescriptors {
		if strings.HasPrefix(m.Sender, d.NamePrefix) {
			return nil, r.Sessions.ApplyFoundAdvertisedName(m.Sender, d, r.interestedIn, r.joinSession)
		}
	}
	return nil, nil
}

func (r *Runtime) handleAboutAnnounce(ctx context.Context, m *busif.Message) (func() error, error) {
	shapes, err := decodeAnnouncementShapes(m.Args)
	if err != nil {
		return nil, err
	}
	return nil, r.Sessions.ApplyAnnouncement(m.Sender, m.Port, shapes, r.interestedIn, r.joinSession)
}

// interestedIn reports whether this runtime's object table declares iface,
// i.e. whether a registered service object cares about a peer offering it
// (spec §4.H's "registered service callback" check).
func (r *Runtime) interestedIn(iface string) bool {
	for _, id := range r.Objects.Interfaces {
		if id.Name == iface {
			return true
		}
	}
	return false
}

func (r *Runtime) joinSession(busName string, port uint16) (uint32, error) {
	return r.Bus.JoinSession(busName, port)
}

// decodeAnnouncementShapes unpacks an About announcement payload
// (signature "a(oas)": an array of (path, interfaces[]) entries) into
// session.AnnouncedShape values, per spec §4.H.
func decodeAnnouncementShapes(raw []byte) ([]session.AnnouncedShape, error) {
	entries, err := marshal.FromWire(raw, "a(oas)")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	array := entries[0]
	shapes := make([]session.AnnouncedShape, 0, len(array.Arr))
	for _, entry := range array.Arr {
		if len(entry.Arr) != 2 {
			continue
		}
		path := entry.Arr[0].S
		ifaceVals := entry.Arr[1].Arr
		ifaces := make([]string, len(ifaceVals))
		for i, iv := range ifaceVals {
			ifaces[i] = iv.S
		}
		shapes = append(shapes, session.AnnouncedShape{Path: path, Interfaces: ifaces})
	}
	return shapes, nil
}

// scriptConsoleInterface is the console signal interface evalResult is
// emitted on (spec §4.I).
const scriptConsoleInterface = "org.allseen.scriptConsole"

func (r *Runtime) handleConsole(ctx context.Context, m *busif.Message) (func() error, error) {
	switch m.Member {
	case "eval":
		status, text := r.Console.Eval(ctx, string(m.Args))
		return nil, r.emitEvalResult(m, status, text)
	case "install":
		req, status := r.Console.Install(m.Sender, m.Args)
		if status != console.EvalOK {
			return nil, corerr.New(corerr.KindInvalid, "runtime.handleConsole.install")
		}
		if req != nil {
			return func() error { return nil }, nil
		}
		return nil, nil
	case "reset":
		r.Console.Reset()
		return nil, nil
	case "lockdown":
		return nil, r.Console.Lockdown()
	default:
		return nil, nil
	}
}

func (r *Runtime) handleDebugger(ctx context.Context, m *busif.Message) (func() error, error) {
	return nil, r.Console.DispatchCommand(m.Member)
}

// emitEvalResult sends the evalResult(status_code, text) signal back to
// the console session, per spec §4.I / scenario §8.2.
func (r *Runtime) emitEvalResult(m *busif.Message, status console.EvalStatus, text string) error {
	const sig = "ys"
	wire, err := marshal.ToWire([]scriptif.Value{scriptif.Int(int64(status)), scriptif.Str(text)}, sig)
	if err != nil {
		return err
	}
	if err := r.Bus.MarshalContainerArgsRaw(sig, wire); err != nil {
		return err
	}
	_, err = r.Bus.MarshalSignal(scriptConsoleInterface, "evalResult", m.Path, m.Sender, m.SessionID)
	return err
}

func (r *Runtime) handleControlPanel(ctx context.Context, m *busif.Message) (func() error, error) {
	if m.Member != "Set" {
		return nil, nil
	}
	args, err := marshal.FromWire(m.Args, m.Signature)
	if err != nil || len(args) == 0 {
		return nil, err
	}
	return nil, r.Panel.SetValue(m.Path, args[0], func(n *panel.Node, v scriptif.Value) {
		logging.Info("runtime: widget value changed", "path", n.Path)
	})
}

func (r *Runtime) handleScriptCall(ctx context.Context, m *busif.Message) (func() error, error) {
	iface := m.Interface
	member := m.Member
	memberType, err := r.Bus.GetMemberType(iface, member)
	if err != nil {
		return nil, err
	}
	switch memberType {
	case "method":
		return r.dispatchMethodCall(ctx, m)
	case "signal":
		return nil, nil
	case "property":
		return r.dispatchPropertyAccess(ctx, m)
	default:
		return nil, nil
	}
}

// scriptThrowErrorName is the default error name an inbound call's thrown
// script exception is reported under, per spec §4.G's "the bridge converts
// the throw to an error reply with a default error name".
const scriptThrowErrorName = "org.alljoyn.Bus.ScriptThrow"

// dispatchMethodCall invokes the target service object's onMethodCall
// handler with a message view and the decoded arguments, then replies
// with its return value (or an error reply if it threw), per spec §4.G.
func (r *Runtime) dispatchMethodCall(ctx context.Context, m *busif.Message) (func() error, error) {
	inSig, outSig, outCount, ok := r.memberSignatures(m.Interface, m.Member)
	if !ok {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.freedesktop.DBus.Error.UnknownMethod", "no such method")
	}
	args, err := marshal.FromWire(m.Args, inSig)
	if err != nil {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.alljoyn.Error.Marshal", err.Error())
	}
	handlers, ok := r.serviceHandlers(m.Path)
	if !ok {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.freedesktop.DBus.Error.UnknownObject", "no service object at path")
	}
	fn := r.Engine.GetProp(handlers, "onMethodCall")
	callArgs := append([]scriptif.Value{r.messageView(m)}, args...)
	result := r.Engine.Pcall(ctx, fn, callArgs)
	if !result.OK {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, scriptThrowErrorName, result.Err)
	}
	if outSig == "" {
		return nil, r.Bus.MarshalReply(m.Serial, m.Sender)
	}
	wire, err := marshal.ToWire(replyArgs(result.Value, outCount), outSig)
	if err != nil {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.alljoyn.Error.Marshal", err.Error())
	}
	if err := r.Bus.MarshalContainerArgsRaw(outSig, wire); err != nil {
		return nil, err
	}
	return nil, r.Bus.MarshalReply(m.Serial, m.Sender)
}

// dispatchPropertyAccess routes Get/Set on a registered object's property
// to its onPropGet/onPropSet handler, after checking the property's
// declared access mode, per spec §4.G.
func (r *Runtime) dispatchPropertyAccess(ctx context.Context, m *busif.Message) (func() error, error) {
	access := r.propertyAccess(m.Interface, m.Member)
	op := propAccessOp(m)
	if err := marshal.CheckAccess(access, op); err != nil {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.freedesktop.DBus.Error.AccessDenied", "property access denied")
	}
	handlers, ok := r.serviceHandlers(m.Path)
	if !ok {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.freedesktop.DBus.Error.UnknownObject", "no service object at path")
	}
	sig := r.propertySignature(m.Interface, m.Member)

	if op == "set" {
		args, err := marshal.FromWire(m.Args, sig)
		if err != nil || len(args) == 0 {
			return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.alljoyn.Error.Marshal", "bad property value")
		}
		fn := r.Engine.GetProp(handlers, "onPropSet")
		result := r.Engine.Pcall(ctx, fn, []scriptif.Value{scriptif.Str(m.Member), args[0]})
		if !result.OK {
			return nil, r.Bus.MarshalError(m.Serial, m.Sender, scriptThrowErrorName, result.Err)
		}
		return nil, r.Bus.MarshalReply(m.Serial, m.Sender)
	}

	fn := r.Engine.GetProp(handlers, "onPropGet")
	result := r.Engine.Pcall(ctx, fn, []scriptif.Value{scriptif.Str(m.Member)})
	if !result.OK {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, scriptThrowErrorName, result.Err)
	}
	wire, err := marshal.ToWire([]scriptif.Value{result.Value}, sig)
	if err != nil {
		return nil, r.Bus.MarshalError(m.Serial, m.Sender, "org.alljoyn.Error.Marshal", err.Error())
	}
	if err := r.Bus.MarshalContainerArgsRaw(sig, wire); err != nil {
		return nil, err
	}
	return nil, r.Bus.MarshalReply(m.Serial, m.Sender)
}

// propAccessOp infers get vs. set from whether the inbound call carries a
// value argument: the abstracted busif.Message has no separate Get/Set/
// GetAll member id the way the real org.freedesktop.DBus.Properties
// interface does, so a non-empty payload is treated as a Set (see
// DESIGN.md's note on this simplification).
func propAccessOp(m *busif.Message) string {
	if len(m.Args) > 0 {
		return "set"
	}
	return "get"
}

// propertyAccess looks up a property member's declared R|W|RW mode from
// the engine's interface definitions, per spec §4.G's inbound
// property-access rule.
func (r *Runtime) propertyAccess(iface, member string) marshal.Access {
	for _, d := range r.Engine.InterfaceDefinitions() {
		if d.Name != iface {
			continue
		}
		for _, mem := range d.Members {
			if mem.Kind == "property" && mem.Name == member {
				switch mem.Access {
				case "R":
					return marshal.AccessR
				case "W":
					return marshal.AccessW
				default:
					return marshal.AccessRW
				}
			}
		}
	}
	return marshal.AccessRW
}

// serviceHandlers finds the registered callback set for the service
// object at path, per spec §4.G.
func (r *Runtime) serviceHandlers(path string) (scriptif.Value, bool) {
	for _, od := range r.Engine.ObjectDefinitions() {
		if od.Path == path {
			return od.Handlers, od.Handlers.Kind != scriptif.KindUndefined
		}
	}
	return scriptif.Value{}, false
}

// messageView builds the sender/iface/member/path/sessionId view an
// onMethodCall/onPropGet/onPropSet handler is called with, per spec
// §4.G's "message view".
func (r *Runtime) messageView(m *busif.Message) scriptif.Value {
	return scriptif.Object(map[string]scriptif.Value{
		"sender":    scriptif.Str(m.Sender),
		"iface":     scriptif.Str(m.Interface),
		"member":    scriptif.Str(m.Member),
		"path":      scriptif.Str(m.Path),
		"sessionId": scriptif.UInt(uint64(m.SessionID)),
	})
}

// memberSignatures looks up a method/signal member's concatenated
// in/out wire signatures and out-argument count from the engine's
// interface definitions.
func (r *Runtime) memberSignatures(iface, member string) (inSig, outSig string, outCount int, ok bool) {
	for _, d := range r.Engine.InterfaceDefinitions() {
		if d.Name != iface {
			continue
		}
		for _, mem := range d.Members {
			if mem.Name != member {
				continue
			}
			for _, a := range mem.InArgs {
				inSig += a.Signature
			}
			for _, a := range mem.OutArgs {
				outSig += a.Signature
			}
			return inSig, outSig, len(mem.OutArgs), true
		}
	}
	return "", "", 0, false
}

// propertySignature looks up a property member's declared wire signature.
func (r *Runtime) propertySignature(iface, member string) string {
	for _, d := range r.Engine.InterfaceDefinitions() {
		if d.Name != iface {
			continue
		}
		for _, mem := range d.Members {
			if mem.Kind == "property" && mem.Name == member {
				return mem.Signature
			}
		}
	}
	return ""
}

// replyArgs unpacks a method handler's single PcallResult.Value into the
// reply argument list: when the member has more than one out-argument,
// the handler is expected to return them as an array in declaration
// order (Pcall only carries a single return value).
func replyArgs(v scriptif.Value, outCount int) []scriptif.Value {
	if outCount > 1 && v.Kind == scriptif.KindArr {
		return v.Arr
	}
	return []scriptif.Value{v}
}

// RequestFactoryReset queues the deferred factory_reset hook, run by the
// loop after the current message is closed (spec §4.F step 9).
func (r *Runtime) RequestFactoryReset() { r.deferredFactoryReset = true }

// RequestOffboard queues the deferred offboard hook.
func (r *Runtime) RequestOffboard() { r.deferredOffboard = true }

// DeadlineContext builds a context bounded by the given timeout, for
// operations that must not block the loop indefinitely.
func DeadlineContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}
