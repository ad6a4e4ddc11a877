// Package transmit serializes and paces commands to the shade transmitter.
package transmit

import (
	"strings"
	"time"

	"github.com/jkaflik/shade2mqtt/internal/clock"
	"github.com/sirupsen/logrus"
)

// ReadyToken is emitted by the transmitter once it accepts the next command.
const ReadyToken = "!!READY!!"

// Link is the outbound side of the transmitter connection.
type Link interface {
	WriteLine(line string) error
}

// Request is a queued command. OnSent may be nil.
type Request struct {
	Command string
	Channel int
	OnSent  func()
}

// Queue is a FIFO dispatcher allowing a single in-flight command. The line
// is released by a ready line from the transmitter or after wait elapses.
type Queue struct {
	clock clock.Clock
	link  Link
	wait  time.Duration
	log   logrus.FieldLogger

	pending  []Request
	inFlight bool
	timeout  clock.Timer
}

func NewQueue(c clock.Clock, link Link, wait time.Duration) *Queue {
	return &Queue{
		clock: c,
		link:  link,
		wait:  wait,
		log:   logrus.WithField("component", "xmit"),
	}
}

func (q *Queue) SetLogger(log logrus.FieldLogger) {
	q.log = log
}

// Enqueue dispatches the command right away when the line is idle.
func (q *Queue) Enqueue(command string, channel int, onSent func()) {
	r := Request{Command: command, Channel: channel, OnSent: onSent}
	if !q.inFlight {
		q.dispatch(r)
		return
	}

	q.pending = append(q.pending, r)
	q.log.Debugf("ch %d: queued at [%d]", channel, len(q.pending)-1)
}

// Len returns the number of commands waiting behind the in-flight one.
func (q *Queue) Len() int {
	return len(q.pending)
}

func (q *Queue) InFlight() bool {
	return q.inFlight
}

// HandleLine consumes one inbound transmitter line.
func (q *Queue) HandleLine(line string) {
	q.log.Debugf("|----transmitter----| %s", line)
	if strings.Contains(line, ReadyToken) {
		q.Ready()
	}
}

// Ready releases the line early. Without a command in flight it is a no-op.
func (q *Queue) Ready() {
	if !q.inFlight {
		q.log.Debug("ready without command in flight, ignored")
		return
	}
	if q.timeout != nil {
		q.timeout.Stop()
		q.timeout = nil
	}

	q.release()
}

func (q *Queue) dispatch(r Request) {
	q.inFlight = true
	q.timeout = q.clock.AfterFunc(q.wait, q.onTimeout)

	if err := q.link.WriteLine(r.Command); err != nil {
		q.log.Errorf("ch %d: transmit %s failed: %s", r.Channel, r.Command, err)
	} else {
		q.log.Debugf("ch %d: xmit %s", r.Channel, r.Command)
	}

	if r.OnSent != nil {
		r.OnSent()
	}
}

func (q *Queue) onTimeout() {
	q.timeout = nil
	q.log.Debug("xmit timeout")
	q.release()
}

func (q *Queue) release() {
	if len(q.pending) == 0 {
		q.inFlight = false
		return
	}

	next := q.pending[0]
	q.pending = q.pending[1:]
	q.dispatch(next)
}
