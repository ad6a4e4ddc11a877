// Package update rate limits state change notifications towards the
// accessory layers.
package update

import (
	"time"

	"github.com/jkaflik/shade2mqtt/internal/clock"
	"github.com/sirupsen/logrus"
)

type request struct {
	id        string
	onGranted func()
}

// Scheduler grants at most one update slot per interval. Pending requests
// sharing an id are coalesced: only the newest is kept.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	log      logrus.FieldLogger

	pending   []request
	available bool
}

func NewScheduler(c clock.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{
		clock:     c,
		interval:  interval,
		log:       logrus.WithField("component", "update"),
		available: true,
	}
}

func (s *Scheduler) SetLogger(log logrus.FieldLogger) {
	s.log = log
}

// Request asks for a slot; onGranted runs once the slot is granted.
func (s *Scheduler) Request(id string, onGranted func()) {
	s.remove(id)
	r := request{id: id, onGranted: onGranted}

	if s.available {
		s.log.Debugf("%s: slot requested", id)
		s.grant(r)
		return
	}

	s.pending = append(s.pending, r)
	s.log.Debugf("%s: slot queued at [%d]", id, len(s.pending)-1)
}

// Len returns the number of requests waiting for a slot.
func (s *Scheduler) Len() int {
	return len(s.pending)
}

func (s *Scheduler) remove(id string) {
	kept := s.pending[:0]
	for _, r := range s.pending {
		if r.id != id {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = request{}
	}
	s.pending = kept
}

func (s *Scheduler) grant(r request) {
	if s.interval > 0 {
		s.available = false
		s.clock.AfterFunc(s.interval, s.onInterval)
	} else {
		s.available = true
	}

	r.onGranted()
	s.log.Debugf("%s: slot granted, %d remaining", r.id, len(s.pending))
}

func (s *Scheduler) onInterval() {
	if len(s.pending) == 0 {
		s.available = true
		return
	}

	next := s.pending[0]
	s.pending = s.pending[1:]
	s.grant(next)
}
