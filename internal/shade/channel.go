package shade

import (
	"time"

	"github.com/jkaflik/shade2mqtt/internal/calibrator"
	"github.com/jkaflik/shade2mqtt/internal/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transmitter queues a command line for the shade transmitter.
type Transmitter interface {
	Enqueue(command string, channel int, onSent func())
}

// Notifier hands out rate limited update slots.
type Notifier interface {
	Request(id string, onGranted func())
}

// TargetStore persists target positions across restarts.
type TargetStore interface {
	SaveTarget(id string, target int) error
}

// Indicator mirrors the motion state on auxiliary outputs.
type Indicator interface {
	Show(state MotionState) error
}

// Services are the process wide collaborators shared by every channel.
type Services struct {
	Clock       clock.Clock
	Transmitter Transmitter
	Updates     Notifier
	Store       TargetStore

	Debounce            time.Duration
	CalibrationDepth    int
	CalibrationAveraged bool
}

// Channel estimates the position of a shade without feedback by ticking a
// timer while the shade is believed to move. All methods must be called from
// the clock's execution context.
type Channel struct {
	cfg        Config
	svc        Services
	coord      *Coordinator
	calibrator *calibrator.Calibrator
	indicator  Indicator
	handlers   []UpdateHandler
	log        logrus.FieldLogger

	position int
	target   int
	state    MotionState
	silent   bool

	// awaiting is set while a movement command waits in the transmit queue.
	awaiting   bool
	generation int

	tickInterval  time.Duration
	debounceTimer clock.Timer
	tickTimer     clock.Timer
}

func NewChannel(cfg Config, svc Services) *Channel {
	travel := cfg.TravelTime()
	c := &Channel{
		cfg:        cfg,
		svc:        svc,
		calibrator: calibrator.New(svc.Clock, travel, svc.CalibrationDepth, svc.CalibrationAveraged),
		log:        logrus.WithField("component", "shade"),
		position:   FullOpenPosition,
		target:     FullOpenPosition,
		state:      Stopped,
	}

	c.tickInterval = travel / 100
	if c.tickInterval < time.Millisecond {
		c.tickInterval = time.Millisecond
	}

	return c
}

func (c *Channel) SetLogger(log logrus.FieldLogger) {
	c.log = log
}

func (c *Channel) SetIndicator(i Indicator) {
	c.indicator = i
}

func (c *Channel) ID() string {
	return c.cfg.ID
}

func (c *Channel) Name() string {
	return c.cfg.Name
}

func (c *Channel) Number() int {
	return c.cfg.Number
}

func (c *Channel) Role() Role {
	return c.cfg.Role()
}

func (c *Channel) IsGroup() bool {
	return c.cfg.Role() == RoleGroup
}

func (c *Channel) Enabled() bool {
	return c.cfg.Enabled
}

func (c *Channel) Position() int {
	return c.position
}

func (c *Channel) Target() int {
	return c.target
}

func (c *Channel) State() MotionState {
	return c.state
}

func (c *Channel) Silent() bool {
	return c.silent
}

func (c *Channel) TickInterval() time.Duration {
	return c.tickInterval
}

// Busy reports whether the channel moves or waits for its command to be sent.
func (c *Channel) Busy() bool {
	return c.state != Stopped || c.awaiting
}

func (c *Channel) OnUpdate(h UpdateHandler) {
	c.handlers = append(c.handlers, h)
}

// Restore initializes the channel from a persisted target, assuming the
// shade did not move while the process was down.
func (c *Channel) Restore(target int) {
	c.target = clamp(target)
	c.position = c.target
	c.state = Stopped
	c.log.Infof("%s: position restored to %d", c.cfg.Name, c.position)
}

// SetTarget stores the new target and (re)arms the debounce timer. Only the
// last target set within the debounce window is acted on.
func (c *Channel) SetTarget(position int) error {
	if !c.cfg.Enabled && !c.IsGroup() {
		return errors.Wrapf(ErrDisabled, "%s", c.cfg.Name)
	}

	c.target = clamp(position)
	c.log.Infof("%s: set target to %d", c.cfg.Name, c.target)
	c.persist()
	c.publish(TargetPosition)

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = c.svc.Clock.AfterFunc(c.svc.Debounce, c.onDebounceExpired)

	return nil
}

// Stop halts the shade where it is believed to be.
func (c *Channel) Stop() error {
	c.log.Infof("%s: stop", c.cfg.Name)
	return c.SetTarget(c.position)
}

func (c *Channel) onDebounceExpired() {
	c.debounceTimer = nil

	if !c.cfg.Enabled {
		c.log.Warnf("%s: disabled, stopped in place at %d", c.cfg.Name, c.position)
		c.target = c.position
		c.persist()
		c.publish(TargetPosition)
		return
	}

	if c.IsGroup() {
		// Full open/close is a broadcast code moving every shade, so members
		// follow silently. Anything in between is sent per member instead.
		target, silent := c.target, interior(c.target)
		c.silent = silent
		c.executeSetTarget()
		if c.coord != nil {
			c.coord.SetGroupTarget(target, !silent)
		}
		return
	}

	c.silent = false
	c.executeSetTarget()
	if c.coord != nil {
		c.coord.MemberTargetChanged()
	}
}

// setGroupTarget is how the coordinator drives a member on behalf of the group.
func (c *Channel) setGroupTarget(position int, silent bool) {
	if c.IsGroup() {
		c.log.Errorf("%s: group target applied to the group itself, ignored", c.cfg.Name)
		return
	}

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}

	c.target = clamp(position)
	c.silent = silent
	c.persist()
	c.publish(TargetPosition)
	c.executeSetTarget()
}

func (c *Channel) executeSetTarget() {
	c.generation++
	c.awaiting = false

	switch c.direction() {
	case Closing:
		c.move(Closing, c.cfg.CloseCommand)
	case Opening:
		c.move(Opening, c.cfg.OpenCommand)
	default:
		c.halt()
	}
}

// direction is the motion the current target calls for.
func (c *Channel) direction() MotionState {
	switch {
	case c.target == FullClosePosition:
		// the real position is unknown, so the close code is always sent
		return Closing
	case c.target == FullOpenPosition:
		return Opening
	case c.target == c.position:
		return Stopped
	case c.target > c.position:
		return Opening
	default:
		return Closing
	}
}

func (c *Channel) move(state MotionState, command string) {
	if c.silent {
		c.log.Debugf("%s: silent %s towards %d", c.cfg.Name, state, c.target)
		c.startMoving(state)
		return
	}

	generation := c.generation
	c.awaiting = true
	c.svc.Transmitter.Enqueue(command, c.cfg.Number, func() {
		if generation != c.generation {
			c.log.Debugf("%s: superseded %s command sent", c.cfg.Name, state)
			return
		}
		c.awaiting = false
		c.startMoving(state)

		// the previous run may have moved past the target while queued
		if c.direction() != state {
			c.log.Infof("%s: %s sent at %d, target %d needs a new command", c.cfg.Name, state, c.position, c.target)
			c.executeSetTarget()
		}
	})
}

func (c *Channel) halt() {
	if c.tickTimer != nil {
		c.stopMoving()
		return
	}

	if interior(c.position) && !c.silent {
		c.transmitStop()
	}
	c.silent = false
	c.state = Stopped
	c.publish(PositionState)
}

func (c *Channel) startMoving(state MotionState) {
	c.state = state
	c.calibrator.ReportStart(c.position)

	if c.tickTimer != nil {
		c.tickTimer.Stop()
	}
	c.tickTimer = c.svc.Clock.Every(c.tickInterval, c.tick)

	c.showIndicator()
	c.publish(PositionState)
	c.log.Infof("%s: %s from %d towards %d (tick %s)", c.cfg.Name, state, c.position, c.target, c.tickInterval)
}

func (c *Channel) tick() {
	switch c.state {
	case Opening:
		if c.position >= FullOpenPosition {
			c.stopMoving()
			return
		}
		c.position++
	case Closing:
		if c.position <= FullClosePosition {
			c.stopMoving()
			return
		}
		c.position--
	default:
		c.stopMoving()
		return
	}

	if c.position != clamp(c.position) {
		c.log.Warnf("%s: position %d out of range, corrected", c.cfg.Name, c.position)
		c.position = clamp(c.position)
		c.stopMoving()
		return
	}

	c.log.Debugf("%s: tick %s at %d", c.cfg.Name, c.state, c.position)
	c.publish(CurrentPosition)

	if c.silent && c.peerStopped() {
		c.log.Infof("%s: peer stopped, silent run ends at %d", c.cfg.Name, c.position)
		c.stopMoving()
		if c.IsGroup() && c.coord != nil {
			c.coord.MemberTargetChanged()
		}
		return
	}

	// a run superseded by a queued command keeps going until that command is sent
	if !interior(c.position) || (c.position == c.target && !c.awaiting) {
		c.stopMoving()
	}
}

func (c *Channel) peerStopped() bool {
	if c.coord == nil {
		return false
	}
	if c.IsGroup() {
		return c.coord.MembersStopped()
	}
	return c.coord.GroupStopped()
}

func (c *Channel) stopMoving() {
	if c.awaiting {
		c.endSupersededRun()
		return
	}

	wasSilent := c.silent

	c.stopTicking()

	c.state = Stopped
	c.target = c.position
	c.silent = false
	c.persist()

	c.publish(TargetPosition)
	c.publish(PositionState)
	c.publish(CurrentPosition)
	c.showIndicator()

	if interior(c.position) && !wasSilent {
		c.transmitStop()
	}
	c.log.Infof("%s: stopped at %d", c.cfg.Name, c.position)

	if !c.IsGroup() && c.coord != nil {
		c.coord.MemberTargetChanged()
	}
}

// endSupersededRun ends a run whose successor command still waits in the
// transmit queue. The pending target is kept and no stop code is sent.
func (c *Channel) endSupersededRun() {
	c.stopTicking()
	c.state = Stopped

	c.publish(PositionState)
	c.publish(CurrentPosition)
	c.showIndicator()
	c.log.Infof("%s: superseded run ended at %d, target %d pending", c.cfg.Name, c.position, c.target)
}

func (c *Channel) stopTicking() {
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}

	if ratio, ok := c.calibrator.ReportEnd(c.position); ok {
		c.tickInterval = c.calibrator.Adjust(c.tickInterval)
		c.log.Debugf("%s: calibration ratio %.3f, tick interval %s", c.cfg.Name, ratio, c.tickInterval)
	}
}

// mirror snaps an idle channel to a position derived from its peers.
func (c *Channel) mirror(position int) {
	position = clamp(position)
	if position == c.position && position == c.target {
		return
	}

	c.log.Debugf("%s: mirrored to %d", c.cfg.Name, position)
	c.position = position
	c.target = position
	c.persist()
	c.publish(TargetPosition)
	c.publish(CurrentPosition)
}

func (c *Channel) transmitStop() {
	c.svc.Transmitter.Enqueue(c.cfg.StopCommand, c.cfg.Number, nil)
}

func (c *Channel) persist() {
	if c.svc.Store == nil {
		return
	}
	if err := c.svc.Store.SaveTarget(c.cfg.ID, c.target); err != nil {
		c.log.Errorf("%s: target persist failed: %s", c.cfg.Name, err)
	}
}

func (c *Channel) showIndicator() {
	if c.indicator == nil {
		return
	}
	if err := c.indicator.Show(c.state); err != nil {
		c.log.Errorf("%s: indicator update failed: %s", c.cfg.Name, err)
	}
}

func (c *Channel) publish(characteristic Characteristic) {
	if c.svc.Updates == nil {
		c.notify(characteristic)
		return
	}

	c.svc.Updates.Request(c.cfg.ID+"/"+characteristic.String(), func() {
		c.notify(characteristic)
	})
}

func (c *Channel) notify(characteristic Characteristic) {
	var value int
	switch characteristic {
	case CurrentPosition:
		value = c.position
	case TargetPosition:
		value = c.target
	case PositionState:
		value = int(c.state)
	}

	for _, h := range c.handlers {
		h(characteristic, value)
	}
}
