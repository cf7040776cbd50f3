package busloop

import (
	"context"
	"testing"
	"time"

	"github.com/alljoynjs/ajcore/internal/busif"
	"github.com/alljoynjs/ajcore/internal/fakebus"
	"github.com/alljoynjs/ajcore/internal/timer"
	"github.com/alljoynjs/ajcore/internal/watchdog"
)

func TestDispatchRoutesToRegisteredHandlerAndRunsDeferredOp(t *testing.T) {
	bus := fakebus.New("test-guid")
	bus.Enqueue(&busif.Message{Class: busif.ClassScriptCall, Member: "ping"})

	w := watchdog.New(time.Second, func() {})
	l := New(bus, timer.New(), w, Hooks{})

	gotOp := false
	l.Handlers[busif.ClassScriptCall] = func(ctx context.Context, m *busif.Message) (func() error, error) {
		return func() error { gotOp = true; return nil }, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotOp {
		t.Fatalf("expected deferred operation hook to run")
	}
}

func TestUnregisteredClassIsIgnoredWithoutError(t *testing.T) {
	bus := fakebus.New("test-guid")
	bus.Enqueue(&busif.Message{Class: busif.ClassInfra})

	w := watchdog.New(time.Second, func() {})
	l := New(bus, timer.New(), w, Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAnnouncementEmittedOnlyWhenUnlockedAndPending(t *testing.T) {
	bus := fakebus.New("test-guid")
	w := watchdog.New(time.Second, func() {})

	emitted := 0
	l := New(bus, timer.New(), w, Hooks{
		Locked:              func() bool { return false },
		AnnouncementPending: func() bool { return emitted == 0 },
		EmitAnnouncement:    func() error { emitted++; return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitted != 1 {
		t.Fatalf("expected exactly one announcement emission, got %d", emitted)
	}
}
