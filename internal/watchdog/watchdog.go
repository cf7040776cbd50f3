// Package watchdog implements the per-callback watchdog timer from spec
// §4.F: armed before each dispatched message handler and cleared afterward.
// If it fires first, it records that in Fired and calls the owner's onFire
// callback; the runtime's callback logs an error. The handler that is
// running is not interrupted and no console report is sent.
package watchdog

import (
	"sync/atomic"
	"time"
)

// Watchdog guards a single in-flight script callback.
type Watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
	onFire  func()
}

// New builds a Watchdog with the given timeout and fire callback.
func New(timeout time.Duration, onFire func()) *Watchdog {
	return &Watchdog{timeout: timeout, onFire: onFire}
}

// Arm starts the timer before invoking a script callback. Calling Arm
// while already armed is a programming error in the caller — the loop
// only ever has one callback in flight at a time (spec §5).
func (w *Watchdog) Arm() {
	w.fired.Store(false)
	w.timer = time.AfterFunc(w.timeout, func() {
		w.fired.Store(true)
		if w.onFire != nil {
			w.onFire()
		}
	})
}

// Disarm clears the timer after the callback returns normally.
func (w *Watchdog) Disarm() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Fired reports whether the watchdog tripped during the last armed
// interval.
func (w *Watchdog) Fired() bool { return w.fired.Load() }
