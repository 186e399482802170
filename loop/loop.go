// Package loop provides the single logical thread the outline runs on:
// posted tasks, timers and awaited completions all execute serially.
package loop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a pending AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Scheduler runs functions on one goroutine.
type Scheduler interface {
	Now() time.Time
	// Post queues fn to run after the current task.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Await runs fn on the loop once done is closed.
	Await(done <-chan struct{}, fn func())
}

// Loop is the production Scheduler. Post, AfterFunc and Await are safe to
// call from any goroutine; queued functions run on the goroutine calling Run.
type Loop struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// New creates a Loop. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{logger: logger, wake: make(chan struct{}, 1)}
}

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (lt *loopTimer) Stop() bool {
	if lt.stopped.Swap(true) {
		return false
	}
	lt.t.Stop()
	return true
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return lt
}

func (l *Loop) Await(done <-chan struct{}, fn func()) {
	go func() {
		<-done
		l.Post(fn)
	}()
}

// Run executes queued functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.run(fn)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked", "panic", r)
		}
	}()
	fn()
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
