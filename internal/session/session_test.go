package session

import "testing"

func TestApplyAnnouncementIgnoresUninterestingShapes(t *testing.T) {
	m := New()
	joined := false
	err := m.ApplyAnnouncement("bus.a", 100, []AnnouncedShape{{Path: "/x", Interfaces: []string{"com.example.Unwanted"}}},
		func(iface string) bool { return false },
		func(busName string, port uint16) (uint32, error) { joined = true; return 1, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if joined {
		t.Fatalf("expected no join for uninteresting shapes")
	}
	if m.Len() != 0 {
		t.Fatalf("expected no peer record created")
	}
}

func TestApplyAnnouncementJoinsAndDrainsOnSuccess(t *testing.T) {
	m := New()
	var joinedSerial uint32 = 42
	err := m.ApplyAnnouncement("bus.a", 100, []AnnouncedShape{{Path: "/light", Interfaces: []string{"com.example.Light"}}},
		func(iface string) bool { return iface == "com.example.Light" },
		func(busName string, port uint16) (uint32, error) { return joinedSerial, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := m.Find("bus.a"); p == nil || p.Status != StatusPending {
		t.Fatalf("expected pending peer, got %+v", p)
	}

	var dispatched []AnnouncedShape
	m.ResolveJoinReply(joinedSerial, 7, true, func(busName string, shape AnnouncedShape) {
		dispatched = append(dispatched, shape)
	})
	p := m.Find("bus.a")
	if p == nil || p.Status != StatusNoAuth || p.SessionID != 7 {
		t.Fatalf("expected no_auth peer with session 7, got %+v", p)
	}
	if len(dispatched) != 1 || dispatched[0].Path != "/light" {
		t.Fatalf("expected drained dispatch, got %v", dispatched)
	}
}

func TestResolveJoinReplyFailureClearsPending(t *testing.T) {
	m := New()
	m.ApplyAnnouncement("bus.a", 100, []AnnouncedShape{{Path: "/x", Interfaces: []string{"com.example.I"}}},
		func(string) bool { return true },
		func(string, uint16) (uint32, error) { return 9, nil })
	m.ResolveJoinReply(9, 0, false, func(string, AnnouncedShape) {})
	p := m.Find("bus.a")
	if p == nil || p.Status != StatusUnknown {
		t.Fatalf("expected reverted to unknown status, got %+v", p)
	}
}

func TestEnableSecurityIsNotReArmedAcrossSessions(t *testing.T) {
	m := New()
	calls := 0
	if err := m.EnableSecurity("bus.a", "shared-secret", func() { calls++ }); err != nil {
		t.Fatalf("EnableSecurity: %v", err)
	}
	if err := m.EnableSecurity("bus.a", "shared-secret", func() { calls += 100 }); err != nil {
		t.Fatalf("EnableSecurity: %v", err)
	} // second call should be ignored, already armed
	m.Authenticated("bus.a")
	if calls != 1 {
		t.Fatalf("expected exactly one authenticated callback invocation, got %d", calls)
	}
}

func TestEnableSecurityDerivesSessionKey(t *testing.T) {
	m := New()
	if err := m.EnableSecurity("bus.a", "shared-secret", nil); err != nil {
		t.Fatalf("EnableSecurity: %v", err)
	}
	p := m.Find("bus.a")
	if p == nil || len(p.SessionKey) != argonKeyLen {
		t.Fatalf("expected a derived session key of length %d, got %+v", argonKeyLen, p)
	}

	sealed, err := SealAuthPayload(p.SessionKey, []byte("auth-suite-hello"))
	if err != nil {
		t.Fatalf("SealAuthPayload: %v", err)
	}
	opened, err := OpenAuthPayload(p.SessionKey, sealed)
	if err != nil {
		t.Fatalf("OpenAuthPayload: %v", err)
	}
	if string(opened) != "auth-suite-hello" {
		t.Fatalf("expected round-tripped payload, got %q", opened)
	}

	m.ResetSecurity("bus.a")
	if p.SessionKey != nil {
		t.Fatalf("expected ResetSecurity to clear the session key")
	}
}

func TestRetainReleaseRemovesPeerAtZero(t *testing.T) {
	m := New()
	m.Retain("bus.a")
	m.Retain("bus.a")
	left := false
	m.Release("bus.a", func(sessionID uint32) error { left = true; return nil })
	if m.Find("bus.a") == nil {
		t.Fatalf("expected peer to still exist after one release of two retains")
	}
	m.Release("bus.a", func(sessionID uint32) error { left = true; return nil })
	if m.Find("bus.a") != nil {
		t.Fatalf("expected peer removed at refcount zero")
	}
	_ = left
}

func TestSessionLostFiresDisconnectCallback(t *testing.T) {
	m := New()
	m.Retain("bus.a")
	fired := false
	m.OnDisconnected("bus.a", func() { fired = true })
	m.SessionLost("bus.a")
	if !fired {
		t.Fatalf("expected onPeerDisconnected to fire")
	}
	if m.Find("bus.a") != nil {
		t.Fatalf("expected peer removed on session loss")
	}
}
