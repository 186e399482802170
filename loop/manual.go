package loop

import (
	"context"
	"slices"
	"time"
)

// Manual is a deterministic Scheduler driven by the caller: time only moves
// on Advance and queued work only runs on RunPending, Advance or Settle.
// It must be used from a single goroutine.
type Manual struct {
	now      time.Time
	queue    []func()
	timers   []*manualTimer
	awaiting []awaitEntry
	seq      int
}

type manualTimer struct {
	m   *Manual
	due time.Time
	seq int
	fn  func()
}

type awaitEntry struct {
	done <-chan struct{}
	fn   func()
}

// NewManual returns a Manual whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time { return m.now }

func (m *Manual) Post(fn func()) { m.queue = append(m.queue, fn) }

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{m: m, due: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	i := slices.Index(t.m.timers, t)
	if i < 0 {
		return false
	}
	t.m.timers = slices.Delete(t.m.timers, i, i+1)
	return true
}

func (m *Manual) Await(done <-chan struct{}, fn func()) {
	m.awaiting = append(m.awaiting, awaitEntry{done: done, fn: fn})
}

// Pending reports the number of armed timers.
func (m *Manual) Pending() int { return len(m.timers) }

// RunPending runs queued work and completed awaits until nothing is ready.
// Timers do not fire.
func (m *Manual) RunPending() {
	for {
		m.collectAwaits()
		if len(m.queue) == 0 {
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

func (m *Manual) collectAwaits() {
	kept := m.awaiting[:0]
	var ready []func()
	for _, a := range m.awaiting {
		select {
		case <-a.done:
			ready = append(ready, a.fn)
		default:
			kept = append(kept, a)
		}
	}
	m.awaiting = kept
	m.queue = append(m.queue, ready...)
}

// Advance moves the clock forward by d, firing due timers in order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		m.RunPending()
		t := m.earliest()
		if t == nil || t.due.After(target) {
			break
		}
		t.Stop()
		m.now = t.due
		t.fn()
	}
	m.now = target
	m.RunPending()
}

func (m *Manual) earliest() *manualTimer {
	var best *manualTimer
	for _, t := range m.timers {
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

// Settle waits in real time for every awaited completion, running queued
// work as results arrive. It returns ctx.Err() if ctx ends first.
func (m *Manual) Settle(ctx context.Context) error {
	for {
		m.RunPending()
		if len(m.awaiting) == 0 {
			return nil
		}
		select {
		case <-m.awaiting[0].done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
