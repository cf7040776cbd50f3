// Package timer implements the timer wheel from spec §4.D: one-shot and
// interval entries scanned each loop tick, plus (see cron_schedule.go) a
// calendar-based facility grounded on the teacher's cron parser.
package timer

import "math"

// ID encodes (slot_index, salt) per spec §3, so a stale id from a reused
// slot cannot accidentally match.
type ID uint64

func makeID(slot int, salt uint32) ID {
	return ID(uint64(slot)<<32 | uint64(salt))
}

func (id ID) slot() int    { return int(id >> 32) }
func (id ID) salt() uint32 { return uint32(id) }

// Callback is invoked when a timer fires.
type Callback func()

type entry struct {
	interval  float64 // >0 periodic, <0 one-shot (negative of the ms given, -1 for a delay <= 0), 0 means the slot is free
	countdown float64
	callback  Callback
	salt      uint32
}

// Wheel is the timer table. Not safe for concurrent use — per spec §5 it
// runs only on the loop thread.
type Wheel struct {
	entries []entry
	nextSalt uint32
}

// New creates an empty Wheel.
func New() *Wheel {
	return &Wheel{}
}

func (w *Wheel) allocSlot() int {
	for i := range w.entries {
		if w.entries[i].interval == 0 && w.entries[i].callback == nil {
			return i
		}
	}
	w.entries = append(w.entries, entry{})
	return len(w.entries) - 1
}

func (w *Wheel) nextSaltValue() uint32 {
	w.nextSalt++
	return w.nextSalt
}

// SetTimeout schedules a one-shot callback after ms milliseconds.
func (w *Wheel) SetTimeout(cb Callback, ms float64) ID {
	slot := w.allocSlot()
	salt := w.nextSaltValue()
	w.entries[slot] = entry{interval: oneShotInterval(ms), countdown: ms, callback: cb, salt: salt}
	return makeID(slot, salt)
}

// oneShotInterval is the negative interval marking a one-shot entry. A
// delay of zero or less still gets a non-zero marker, since interval 0
// means the slot is free.
func oneShotInterval(ms float64) float64 {
	if ms <= 0 {
		return -1
	}
	return -ms
}

// SetInterval schedules a periodic callback every ms milliseconds.
func (w *Wheel) SetInterval(cb Callback, ms float64) ID {
	slot := w.allocSlot()
	salt := w.nextSaltValue()
	w.entries[slot] = entry{interval: ms, countdown: ms, callback: cb, salt: salt}
	return makeID(slot, salt)
}

func (w *Wheel) lookup(id ID) (int, bool) {
	slot := id.slot()
	if slot < 0 || slot >= len(w.entries) {
		return 0, false
	}
	e := &w.entries[slot]
	if e.callback == nil || e.interval == 0 {
		return 0, false
	}
	if e.salt != id.salt() {
		return 0, false
	}
	return slot, true
}

// ClearTimeout/ClearInterval zero the entry's interval (the slot becomes
// reusable) and drop the callback reference. Clearing an id that refers to
// an already-fired one-shot, or any unknown id, is a no-op.
func (w *Wheel) ClearTimeout(id ID)  { w.clear(id) }
func (w *Wheel) ClearInterval(id ID) { w.clear(id) }

func (w *Wheel) clear(id ID) {
	slot, ok := w.lookup(id)
	if !ok {
		return
	}
	w.entries[slot] = entry{}
}

// ResetTimeout/ResetInterval update interval/countdown and force deadline
// recomputation (handled by the caller re-reading NextDeadline).
func (w *Wheel) ResetTimeout(id ID, ms float64) bool {
	return w.reset(id, oneShotInterval(ms), ms)
}

func (w *Wheel) ResetInterval(id ID, ms float64) bool {
	return w.reset(id, ms, ms)
}

func (w *Wheel) reset(id ID, interval, countdown float64) bool {
	slot, ok := w.lookup(id)
	if !ok {
		return false
	}
	w.entries[slot].interval = interval
	w.entries[slot].countdown = countdown
	return true
}

// RunTimers subtracts elapsedMs from every active countdown and fires any
// entry whose countdown has reached zero or below. Firing order is
// slot-index order for equal deadlines, per spec §4.D's ordering rule.
// It returns the next deadline in milliseconds, or -1 (the sentinel) if no
// entry is live — matching invariant 2 in spec §8.
func (w *Wheel) RunTimers(elapsedMs float64) float64 {
	for i := range w.entries {
		e := &w.entries[i]
		if e.interval == 0 || e.callback == nil {
			continue
		}
		e.countdown -= elapsedMs
	}

	// Fire in slot-index order; a callback may itself clear/reset other
	// entries, so re-check e.interval==0 before firing.
	for i := range w.entries {
		e := &w.entries[i]
		if e.interval == 0 || e.callback == nil {
			continue
		}
		if e.countdown > 0 {
			continue
		}
		cb := e.callback
		periodic := e.interval > 0
		interval := e.interval
		cb()
		// Re-fetch: the callback may have cleared/reset this slot itself.
		e = &w.entries[i]
		if e.callback == nil || e.interval == 0 {
			continue
		}
		if periodic {
			e.countdown = interval
		} else {
			*e = entry{}
		}
	}

	return w.NextDeadline()
}

// NextDeadline returns the minimum countdown among live entries, or -1 if
// none exist.
func (w *Wheel) NextDeadline() float64 {
	min := math.Inf(1)
	found := false
	for i := range w.entries {
		e := &w.entries[i]
		if e.interval == 0 || e.callback == nil {
			continue
		}
		if e.countdown < min {
			min = e.countdown
			found = true
		}
	}
	if !found {
		return -1
	}
	if min < 0 {
		min = 0
	}
	return min
}

// Len reports the number of live entries, for tests and diagnostics.
func (w *Wheel) Len() int {
	n := 0
	for i := range w.entries {
		if w.entries[i].interval != 0 && w.entries[i].callback != nil {
			n++
		}
	}
	return n
}
