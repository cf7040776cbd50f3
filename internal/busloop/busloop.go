// Package busloop is the message loop from spec §4.F: the nine-step
// per-iteration cycle that drives timers, I/O triggers, deferred session
// work, About announcements, message classification/dispatch, and the
// deferred-operation hook, grounded on the teacher's daemon run-loop shape.
package busloop

import (
	"context"
	"time"

	"github.com/alljoynjs/ajcore/internal/busif"
	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/logging"
	"github.com/alljoynjs/ajcore/internal/timer"
	"github.com/alljoynjs/ajcore/internal/watchdog"
)

// Handler processes one classified message. A non-nil DeferredOp return
// requests the loop run that hook after the message is closed (spec §4.F
// step 9: factory_reset/offboard).
type Handler func(ctx context.Context, m *busif.Message) (deferredOp func() error, err error)

// Hooks bundles the per-iteration side work the loop performs outside
// message dispatch (spec §4.F steps 2-4).
type Hooks struct {
	// PollIO services pending I/O triggers and external module poll hooks.
	PollIO func()
	// PollSessions services pending session work, e.g. deferred dispatch
	// for peers that just finished authenticating.
	PollSessions func()
	// Locked reports whether the device is in a lockdown state that
	// suppresses About announcements.
	Locked func() bool
	// AnnouncementPending reports a queued About announcement awaiting
	// emission, and EmitAnnouncement sends it.
	AnnouncementPending func() bool
	EmitAnnouncement    func() error
}

// Loop is the bus message loop.
type Loop struct {
	Bus      busif.Bus
	Timers   *timer.Wheel
	Watchdog *watchdog.Watchdog
	Hooks    Hooks
	Handlers map[busif.MessageClass]Handler
}

// New builds a Loop with the given dependencies. Handlers is keyed by
// message class (spec §4.F step 6's classification table); callers install
// one entry per class they support.
func New(bus busif.Bus, timers *timer.Wheel, wd *watchdog.Watchdog, hooks Hooks) *Loop {
	return &Loop{
		Bus:      bus,
		Timers:   timers,
		Watchdog: wd,
		Hooks:    hooks,
		Handlers: make(map[busif.MessageClass]Handler),
	}
}

// Run executes the loop until a fatal error is returned or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Step 1: run_timers updates next_deadline.
		now := time.Now()
		deadlineMs := l.Timers.RunTimers(float64(now.Sub(lastTick)) / float64(time.Millisecond))
		lastTick = now

		// Step 2: service pending I/O triggers and module poll hooks.
		if l.Hooks.PollIO != nil {
			l.Hooks.PollIO()
		}

		// Step 3: service pending session work.
		if l.Hooks.PollSessions != nil {
			l.Hooks.PollSessions()
		}

		// Step 4: emit any queued About announcement, if unlocked.
		if l.Hooks.Locked != nil && !l.Hooks.Locked() &&
			l.Hooks.AnnouncementPending != nil && l.Hooks.AnnouncementPending() {
			if err := l.Hooks.EmitAnnouncement(); err != nil {
				logging.Warn("busloop: emit announcement failed", "err", err)
			}
		}

		// Step 5: unmarshal one message, bounded by next_deadline.
		timeout := deadlineTimeout(deadlineMs)
		msg, err := l.Bus.UnmarshalMsg(ctx, timeout)
		if err != nil {
			if corerr.Is(err, corerr.KindTimeout) {
				continue
			}
			if corerr.Fatal(err) {
				return err
			}
			logging.Warn("busloop: unmarshal error", "err", err)
			continue
		}
		if msg == nil {
			continue // interrupted
		}

		// Steps 6-7: classify, dispatch, close.
		deferredOp, dispatchErr := l.dispatch(ctx, msg)
		l.Bus.CloseMsg(msg)

		// Step 8: translate errors.
		if dispatchErr != nil {
			if corerr.Fatal(dispatchErr) {
				return dispatchErr
			}
			logging.Warn("busloop: dispatch error", "err", dispatchErr)
		}

		// Step 9: run the deferred-operation hook, if any.
		if deferredOp != nil {
			if err := deferredOp(); err != nil {
				logging.Warn("busloop: deferred operation failed", "err", err)
			}
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, msg *busif.Message) (func() error, error) {
	h, ok := l.Handlers[msg.Class]
	if !ok {
		return nil, nil
	}
	l.Watchdog.Arm()
	defer l.Watchdog.Disarm()
	return h(ctx, msg)
}

// deadlineTimeout converts a timer-wheel deadline (ms, or -1 sentinel for
// "no timers") into a context timeout: the sentinel blocks indefinitely.
func deadlineTimeout(deadlineMs float64) time.Duration {
	if deadlineMs < 0 {
		return -1
	}
	return time.Duration(deadlineMs) * time.Millisecond
}
