// Package session is the peer/session manager from spec §4.H: it tracks
// announcements and join/accept lifecycle per bus-unique name, refcounts
// service objects against sessions, and drives onPeerDisconnected on loss.
package session

import (
	"sync"
)

// Status is a peer's authentication/session phase.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending       // JOIN_SESSION sent, awaiting reply
	StatusNoAuth        // session established, no authentication requested
	StatusAuthenticating
	StatusAuthenticated
)

// AnnouncedShape is one pending service-object shape drained from a peer's
// announcements list once its session is established, per spec §4.H.
type AnnouncedShape struct {
	Path       string
	Interfaces []string
}

// Peer is one bus-unique-name's tracked state.
type Peer struct {
	BusName       string
	SessionID     uint32
	Status        Status
	RefCount      int
	Announcements []AnnouncedShape
	SecurityArmed bool // enableSecurity callback registered; not re-armed across sessions
	SessionKey    []byte // derived by EnableSecurity, used to seal the authentication suite
	onAuthenticated func()
	onDisconnected  func()
}

// Manager is the peer directory: bus-unique name → Peer, guarded by an
// RWMutex per the teacher's PeerDirectory idiom, with a buffered
// update-notification channel for callers that want to wait for deltas.
type Manager struct {
	mu       sync.RWMutex
	peers    map[string]*Peer
	pendingJoins map[uint32]string // reply serial → bus name, for JoinSession replies
	updateCh chan struct{}
}

// New builds an empty session manager.
func New() *Manager {
	return &Manager{
		peers:        make(map[string]*Peer),
		pendingJoins: make(map[uint32]string),
		updateCh:     make(chan struct{}, 1),
	}
}

func (m *Manager) notify() {
	select {
	case m.updateCh <- struct{}{}:
	default:
	}
}

// Updates exposes the notification channel for callers that want to block
// until the directory changes.
func (m *Manager) Updates() <-chan struct{} { return m.updateCh }

func (m *Manager) getOrCreate(busName string) *Peer {
	p, ok := m.peers[busName]
	if !ok {
		p = &Peer{BusName: busName, Status: StatusUnknown}
		m.peers[busName] = p
	}
	return p
}

// InterestFunc reports whether any registered service callback exists for
// the given interface, so AboutAnnounce knows whether to pursue a session.
type InterestFunc func(iface string) bool

// JoinFunc issues a JOIN_SESSION toward an announcer and returns the reply
// serial the bus layer assigned it.
type JoinFunc func(busName string, port uint16) (serial uint32, err error)

// ApplyAnnouncement unpacks an About announcement into shapes, and for each
// shape with a registered interest, queues it and — if the peer has no
// session yet — issues JOIN_SESSION, per spec §4.H.
func (m *Manager) ApplyAnnouncement(busName string, port uint16, shapes []AnnouncedShape, interested InterestFunc, join JoinFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.getOrCreate(busName)
	var queued []AnnouncedShape
	for _, shape := range shapes {
		for _, iface := range shape.Interfaces {
			if interested(iface) {
				queued = append(queued, shape)
				break
			}
		}
	}
	if len(queued) == 0 {
		return nil
	}
	p.Announcements = append(p.Announcements, queued...)

	if p.Status == StatusUnknown {
		serial, err := join(busName, port)
		if err != nil {
			return err
		}
		p.Status = StatusPending
		m.pendingJoins[serial] = busName
	}
	m.notify()
	return nil
}

// ServiceObjectFunc is invoked once per drained announcement shape.
type ServiceObjectFunc func(busName string, shape AnnouncedShape)

// ResolveJoinReply handles a JOIN_SESSION reply: on success it sets the
// session id, drains queued announcements through dispatch, and sets the
// peer to no_auth; on failure it clears the pending state. Per spec §4.H.
func (m *Manager) ResolveJoinReply(serial uint32, sessionID uint32, success bool, dispatch ServiceObjectFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	busName, ok := m.pendingJoins[serial]
	if !ok {
		return
	}
	delete(m.pendingJoins, serial)
	p, ok := m.peers[busName]
	if !ok {
		return
	}
	if !success {
		p.Status = StatusUnknown
		p.Announcements = nil
		m.notify()
		return
	}
	p.SessionID = sessionID
	p.Status = StatusNoAuth
	pending := p.Announcements
	p.Announcements = nil
	m.mu.Unlock()
	for _, shape := range pending {
		dispatch(busName, shape)
	}
	m.mu.Lock()
	m.notify()
}

// FindByNameDescriptor is a registered find-by-name interest (spec §4.H:
// "FoundAdvertisedName synthesises an announcement from a registered
// find-by-name descriptor").
type FindByNameDescriptor struct {
	NamePrefix string
	Path       string
	Port       uint16
	Interfaces []string
}

// ApplyFoundAdvertisedName synthesizes an announcement shape from a
// matching descriptor and reuses ApplyAnnouncement's path.
func (m *Manager) ApplyFoundAdvertisedName(busName string, d FindByNameDescriptor, interested InterestFunc, join JoinFunc) error {
	shape := AnnouncedShape{Path: d.Path, Interfaces: d.Interfaces}
	return m.ApplyAnnouncement(busName, d.Port, []AnnouncedShape{shape}, interested, join)
}

// EnableSecurity arms authentication for a service object's peer. The
// callback is invoked once on authenticated and is not re-armed on
// subsequent sessions unless ResetSecurity is called first, per spec §4.H. A
// session key is derived from passphrase via Argon2id and kept on the
// peer so the authentication suite's subsequent traffic can be sealed
// with SealAuthPayload/OpenAuthPayload.
func (m *Manager) EnableSecurity(busName, passphrase string, onAuthenticated func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.getOrCreate(busName)
	if p.SecurityArmed {
		return nil
	}
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	p.SessionKey = DeriveSessionKey(passphrase, salt)
	p.SecurityArmed = true
	p.Status = StatusAuthenticating
	p.onAuthenticated = onAuthenticated
	return nil
}

// Authenticated marks a peer authenticated and fires its armed callback.
func (m *Manager) Authenticated(busName string) {
	m.mu.Lock()
	p, ok := m.peers[busName]
	if !ok {
		m.mu.Unlock()
		return
	}
	p.Status = StatusAuthenticated
	cb := p.onAuthenticated
	p.onAuthenticated = nil
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// ResetSecurity clears the armed flag so EnableSecurity may re-arm on a
// future session.
func (m *Manager) ResetSecurity(busName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[busName]; ok {
		p.SecurityArmed = false
		p.onAuthenticated = nil
		p.SessionKey = nil
	}
}

// OnDisconnected registers the callback invoked when the peer's session is
// lost, per spec §4.H.
func (m *Manager) OnDisconnected(busName string, cb func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(busName).onDisconnected = cb
}

// Retain increments a peer's service-object refcount (service-object
// creation, per spec §4.H).
func (m *Manager) Retain(busName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(busName).RefCount++
}

// Release decrements the refcount; at zero it removes the peer record,
// mirroring what the finalizer path does in the original runtime.
func (m *Manager) Release(busName string, leaveSession func(sessionID uint32) error) error {
	m.mu.Lock()
	p, ok := m.peers[busName]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	p.RefCount--
	if p.RefCount > 0 {
		m.mu.Unlock()
		return nil
	}
	sessionID := p.SessionID
	delete(m.peers, busName)
	m.mu.Unlock()
	if sessionID != 0 && leaveSession != nil {
		return leaveSession(sessionID)
	}
	return nil
}

// SessionLost removes the peer record and fires onPeerDisconnected, per
// spec §4.H.
func (m *Manager) SessionLost(busName string) {
	m.mu.Lock()
	p, ok := m.peers[busName]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.peers, busName)
	cb := p.onDisconnected
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Find returns a copy-free read view of a peer, or nil.
func (m *Manager) Find(busName string) *Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[busName]
}

// Len reports the number of tracked peers, for tests and diagnostics.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}
