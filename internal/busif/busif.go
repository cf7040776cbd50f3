// Package busif is the bus-layer dependency contract from spec §6: the
// AllJoyn Thin-Client transport and security functions the core assumes.
// The real transport (discovery, session join/accept, marshalling
// primitives, authentication) is an excluded collaborator; this package
// only defines the interface and the message/descriptor types the rest of
// the core programs against.
package busif

import (
	"context"
	"time"
)

// MessageClass is the loop's classification of an inbound message
// (spec §4.F step 6), keying the dispatch table Design Notes calls for.
type MessageClass int

const (
	ClassInfra MessageClass = iota // ping, probe, introspect, GUID, About data/icon, auth suite
	ClassAcceptSession
	ClassJoinReply
	ClassSessionLost
	ClassFoundAdvertisedName
	ClassAboutAnnounce
	ClassConsole
	ClassDebugger
	ClassControlPanel
	ClassScriptCall // method call / signal / property access routed to script
)

// Message is one unmarshalled bus message.
type Message struct {
	Class      MessageClass
	Serial     uint32
	ReplySerial uint32
	Sender     string
	Path       string
	Interface  string
	Member     string
	SessionID  uint32
	Port       uint16
	Signature  string
	Args       []byte // raw marshalled argument payload, decoded by internal/marshal
	IsMethodCall bool
	IsSignal   bool
	IsError    bool
	ErrorName  string
}

// InterfaceDesc is a wire-layer interface descriptor built from a script
// interfaceDefinition (spec §3/§4.E): a null-terminated member array with
// the interface name as entry 0.
type InterfaceDesc struct {
	Name    string
	Members []string // formatted per spec §3: "[?|!]name[ arg<sig]...[ arg>sig]..." or "@name[<|>|=]sig"
}

// ObjectDesc is a wire-layer registered object: a path plus its implemented
// interfaces, with the standard Properties interface appended by the
// builder (spec §4.E).
type ObjectDesc struct {
	Path        string
	Interfaces  []string
	Announced   bool
	Description string
}

// AnnouncementShape is one object entry of an About announcement
// (spec §3: "service shape {path, interfaces, dest, session}").
type AnnouncementShape struct {
	Path       string
	Interfaces []string
	Dest       string
	Session    uint32
}

// Bus is the contract the core depends on, per spec §6.
type Bus interface {
	Attach(appName string) error
	Detach() error
	GUID() string

	BindSessionPort(port uint16) error
	JoinSession(dest string, port uint16) (serial uint32, err error)
	LeaveSession(sessionID uint32) error
	AcceptSessionReply(serial uint32, accept bool) error

	AdvertiseName(name string) error
	FindAdvertisedName(namePrefix string) error

	SetSignalRule(iface, member string) error

	AboutAnnounce() error
	AboutSetIcon(mimeType string, data []byte) error
	AboutRegisterPropGetter(fn func(filter string, langIdx int) map[string]string)

	RegisterObjectList(objects []ObjectDesc, interfaces []InterfaceDesc) error
	RegisterObjectListWithDescriptions(objects []ObjectDesc, interfaces []InterfaceDesc, describe func(path, lang string) string) error

	UnmarshalMsg(ctx context.Context, timeout time.Duration) (*Message, error)
	CloseMsg(m *Message)

	MarshalMethodCall(iface, member, path, dest string, sessionID uint32, secure bool) (serial uint32, err error)
	MarshalSignal(iface, member, path, dest string, sessionID uint32) (serial uint32, err error)
	MarshalReply(replySerial uint32, dest string) error
	MarshalError(replySerial uint32, dest, errName, errMsg string) error

	MarshalContainerArgsRaw(sig string, raw []byte) error
	UnmarshalContainerArgsRaw(sig string) ([]byte, error)
	UnmarshalVariant() (sig string, raw []byte, err error)

	DeliverMsg() error

	LookupMessageID(iface, member string) (int, error)
	GetMemberType(iface, member string) (string, error) // "method" | "signal" | "property"
}
