// Package fakebus is an in-memory test double implementing busif.Bus, for
// use by unit tests and cmd/ajcoresim in place of the real Thin-Client
// transport.
package fakebus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alljoynjs/ajcore/internal/busif"
	"github.com/alljoynjs/ajcore/internal/corerr"
)

// Bus is a queue-backed busif.Bus double. Tests enqueue inbound messages
// with Enqueue and inspect outbound calls via the recorded slices.
type Bus struct {
	mu       sync.Mutex
	inbound  []*busif.Message
	guid     string
	attached bool
	nextSerial uint32

	Objects    []busif.ObjectDesc
	Interfaces []busif.InterfaceDesc
	Announced  int
	Replies    []Reply
	Errors     []ErrorReply
	MethodCalls []MethodCall
	Signals     []Signal
	Containers  []ContainerArgs
}

// ContainerArgs records a MarshalContainerArgsRaw call, the staging step
// before a reply/signal is finalized.
type ContainerArgs struct {
	Sig string
	Raw []byte
}

// Reply records a MarshalReply call.
type Reply struct {
	ReplySerial uint32
	Dest        string
}

// ErrorReply records a MarshalError call.
type ErrorReply struct {
	ReplySerial uint32
	Dest, Name, Msg string
}

// MethodCall records a MarshalMethodCall call.
type MethodCall struct {
	Iface, Member, Path, Dest string
	SessionID                uint32
	Secure                    bool
	Serial                    uint32
}

// Signal records a MarshalSignal call.
type Signal struct {
	Iface, Member, Path, Dest string
	SessionID                uint32
	Serial                    uint32
}

// New builds an empty fake bus with the given GUID.
func New(guid string) *Bus {
	return &Bus{guid: guid}
}

// Enqueue makes m available to a future UnmarshalMsg call.
func (b *Bus) Enqueue(m *busif.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbound = append(b.inbound, m)
}

func (b *Bus) Attach(appName string) error { b.attached = true; return nil }
func (b *Bus) Detach() error               { b.attached = false; return nil }
func (b *Bus) GUID() string                { return b.guid }

func (b *Bus) BindSessionPort(port uint16) error             { return nil }
func (b *Bus) JoinSession(dest string, port uint16) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSerial++
	return b.nextSerial, nil
}
func (b *Bus) LeaveSession(sessionID uint32) error      { return nil }
func (b *Bus) AcceptSessionReply(serial uint32, accept bool) error { return nil }

func (b *Bus) AdvertiseName(name string) error          { return nil }
func (b *Bus) FindAdvertisedName(namePrefix string) error { return nil }

func (b *Bus) SetSignalRule(iface, member string) error { return nil }

func (b *Bus) AboutAnnounce() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Announced++
	return nil
}
func (b *Bus) AboutSetIcon(mimeType string, data []byte) error { return nil }
func (b *Bus) AboutRegisterPropGetter(fn func(filter string, langIdx int) map[string]string) {}

func (b *Bus) RegisterObjectList(objects []busif.ObjectDesc, interfaces []busif.InterfaceDesc) error {
	b.Objects = objects
	b.Interfaces = interfaces
	return nil
}

func (b *Bus) RegisterObjectListWithDescriptions(objects []busif.ObjectDesc, interfaces []busif.InterfaceDesc, describe func(path, lang string) string) error {
	return b.RegisterObjectList(objects, interfaces)
}

// UnmarshalMsg pops the next enqueued message, or returns a timeout
// CoreError at once if none is pending; it does not wait for timeout.
func (b *Bus) UnmarshalMsg(ctx context.Context, timeout time.Duration) (*busif.Message, error) {
	b.mu.Lock()
	if len(b.inbound) > 0 {
		m := b.inbound[0]
		b.inbound = b.inbound[1:]
		b.mu.Unlock()
		return m, nil
	}
	b.mu.Unlock()
	return nil, corerr.New(corerr.KindTimeout, "fakebus.UnmarshalMsg")
}

func (b *Bus) CloseMsg(m *busif.Message) {}

func (b *Bus) MarshalMethodCall(iface, member, path, dest string, sessionID uint32, secure bool) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSerial++
	b.MethodCalls = append(b.MethodCalls, MethodCall{iface, member, path, dest, sessionID, secure, b.nextSerial})
	return b.nextSerial, nil
}

func (b *Bus) MarshalSignal(iface, member, path, dest string, sessionID uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSerial++
	b.Signals = append(b.Signals, Signal{iface, member, path, dest, sessionID, b.nextSerial})
	return b.nextSerial, nil
}

func (b *Bus) MarshalReply(replySerial uint32, dest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Replies = append(b.Replies, Reply{replySerial, dest})
	return nil
}

func (b *Bus) MarshalError(replySerial uint32, dest, errName, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Errors = append(b.Errors, ErrorReply{replySerial, dest, errName, errMsg})
	return nil
}

func (b *Bus) MarshalContainerArgsRaw(sig string, raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Containers = append(b.Containers, ContainerArgs{Sig: sig, Raw: raw})
	return nil
}
func (b *Bus) UnmarshalContainerArgsRaw(sig string) ([]byte, error) { return nil, nil }
func (b *Bus) UnmarshalVariant() (string, []byte, error)            { return "", nil, nil }

func (b *Bus) DeliverMsg() error { return nil }

func (b *Bus) LookupMessageID(iface, member string) (int, error) {
	return 0, fmt.Errorf("fakebus: no message id table configured")
}

func (b *Bus) GetMemberType(iface, member string) (string, error) {
	return "", fmt.Errorf("fakebus: no member type table configured")
}
