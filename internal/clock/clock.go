// Package clock provides the monotonic clock and timer service every shade
// component schedules its work on.
package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a scheduled callback. Stop prevents any future run of it.
type Timer interface {
	Stop()
}

// Clock is a monotonic time source able to schedule callbacks.
type Clock interface {
	// Now returns the time elapsed since the clock was created.
	Now() time.Duration
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

// Loop is the production Clock. Timer callbacks and posted work are executed
// one at a time on the goroutine calling Run.
type Loop struct {
	start time.Time

	mu     sync.Mutex
	queue  []func()
	wakeup chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		start:  time.Now(),
		wakeup: make(chan struct{}, 1),
	}
}

func (l *Loop) Now() time.Duration {
	return time.Since(l.start)
}

// Post schedules f to run on the loop. It never blocks and is safe to call
// from any goroutine, including the loop itself.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// Run executes posted work until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wakeup:
		}

		for {
			f := l.next()
			if f == nil {
				break
			}
			f()
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil
	}
	f := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return f
}

func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{loop: l, f: f}
	t.arm(d)
	return t
}

func (l *Loop) Every(d time.Duration, f func()) Timer {
	t := &loopTimer{loop: l, f: f, period: d}
	t.arm(d)
	return t
}

type loopTimer struct {
	loop    *Loop
	f       func()
	period  time.Duration
	stopped atomic.Bool

	mu sync.Mutex
	t  *time.Timer
}

func (t *loopTimer) arm(d time.Duration) {
	t.mu.Lock()
	t.t = time.AfterFunc(d, func() { t.loop.Post(t.fire) })
	t.mu.Unlock()
}

func (t *loopTimer) fire() {
	if t.stopped.Load() {
		return
	}
	if t.period > 0 {
		t.arm(t.period)
	}
	t.f()
}

func (t *loopTimer) Stop() {
	t.stopped.Store(true)

	t.mu.Lock()
	if t.t != nil {
		t.t.Stop()
	}
	t.mu.Unlock()
}
