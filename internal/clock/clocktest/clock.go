// Package clocktest provides a manually advanced clock.Clock for tests.
package clocktest

import (
	"sort"
	"time"

	"github.com/jkaflik/shade2mqtt/internal/clock"
)

// Clock only moves when Advance is called. Due callbacks run synchronously
// on the calling goroutine in deadline order.
type Clock struct {
	now    time.Duration
	seq    int
	timers []*timer
}

func New() *Clock {
	return &Clock{}
}

func (c *Clock) Now() time.Duration {
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return c.add(d, 0, f)
}

func (c *Clock) Every(d time.Duration, f func()) clock.Timer {
	if d <= 0 {
		d = time.Nanosecond
	}
	return c.add(d, d, f)
}

// Pending returns the number of armed timers.
func (c *Clock) Pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running every callback that falls due.
func (c *Clock) Advance(d time.Duration) {
	end := c.now + d
	for {
		t := c.nextDue(end)
		if t == nil {
			break
		}
		c.now = t.deadline
		if t.period > 0 {
			t.deadline += t.period
			c.seq++
			t.seq = c.seq
		} else {
			t.stopped = true
		}
		t.f()
		c.compact()
	}
	c.now = end
}

func (c *Clock) add(d, period time.Duration, f func()) *timer {
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &timer{deadline: c.now + d, period: period, f: f, seq: c.seq}
	c.timers = append(c.timers, t)
	return t
}

func (c *Clock) nextDue(end time.Duration) *timer {
	var due []*timer
	for _, t := range c.timers {
		if !t.stopped && t.deadline <= end {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline != due[j].deadline {
			return due[i].deadline < due[j].deadline
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

func (c *Clock) compact() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
}

type timer struct {
	deadline time.Duration
	period   time.Duration
	seq      int
	stopped  bool
	f        func()
}

func (t *timer) Stop() {
	t.stopped = true
}
