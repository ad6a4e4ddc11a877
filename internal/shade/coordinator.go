package shade

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FallbackGroupPosition is reported for the group while an average over its
// members is undefined.
const FallbackGroupPosition = 50

// Coordinator is the channel registry. It keeps the group channel
// representative of its members and fans group commands out to them.
type Coordinator struct {
	channels map[string]*Channel
	order    []string
	groupID  string
	driving  bool
	log      logrus.FieldLogger
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		channels: map[string]*Channel{},
		log:      logrus.WithField("component", "group"),
	}
}

func (c *Coordinator) SetLogger(log logrus.FieldLogger) {
	c.log = log
}

// Add registers a channel. At most one group channel may be registered.
func (c *Coordinator) Add(ch *Channel) error {
	if _, found := c.channels[ch.ID()]; found {
		return errors.Wrapf(ErrDuplicateChannel, "%s (%s)", ch.Name(), ch.ID())
	}
	if ch.IsGroup() {
		if c.groupID != "" {
			return errors.Wrapf(ErrSecondGroup, "%s and %s", c.channels[c.groupID].Name(), ch.Name())
		}
		c.groupID = ch.ID()
	}

	c.channels[ch.ID()] = ch
	c.order = append(c.order, ch.ID())
	ch.coord = c

	return nil
}

func (c *Coordinator) Channel(id string) (*Channel, bool) {
	ch, found := c.channels[id]
	return ch, found
}

// Channels returns every channel in registration order.
func (c *Coordinator) Channels() []*Channel {
	channels := make([]*Channel, 0, len(c.order))
	for _, id := range c.order {
		channels = append(channels, c.channels[id])
	}
	return channels
}

func (c *Coordinator) Group() (*Channel, bool) {
	if c.groupID == "" {
		return nil, false
	}
	return c.channels[c.groupID], true
}

// Members returns every non-group channel in registration order.
func (c *Coordinator) Members() []*Channel {
	members := make([]*Channel, 0, len(c.order))
	for _, id := range c.order {
		if id != c.groupID {
			members = append(members, c.channels[id])
		}
	}
	return members
}

// MirroredPosition is the floored average of the members' current positions.
func (c *Coordinator) MirroredPosition() int {
	members := c.Members()
	if len(members) < 2 {
		return FallbackGroupPosition
	}

	sum := 0
	for _, m := range members {
		sum += m.Position()
	}

	return sum / len(members)
}

// MemberTargetChanged refreshes the group's mirrored state after a member
// was commanded or stopped. The group is left alone while it runs its own
// transmitted movement or waits for its debounce to expire.
func (c *Coordinator) MemberTargetChanged() {
	g, found := c.Group()
	if !found || c.driving || g.debounceTimer != nil {
		return
	}

	if g.Busy() {
		if !g.Silent() {
			c.log.Debugf("%s: on a transmitted run, not mirrored", g.Name())
			return
		}
		if !c.MembersStopped() {
			return
		}
		g.stopMoving()
	}

	g.mirror(c.MirroredPosition())
}

// SetGroupTarget drives every enabled member towards position on behalf of
// the group channel.
func (c *Coordinator) SetGroupTarget(position int, silent bool) {
	c.driving = true
	defer func() { c.driving = false }()

	for _, m := range c.Members() {
		if !m.Enabled() {
			c.log.Debugf("%s: disabled, not driven by group", m.Name())
			continue
		}
		m.setGroupTarget(position, silent)
	}
}

// MembersStopped reports whether no member moves or waits to move.
func (c *Coordinator) MembersStopped() bool {
	for _, m := range c.Members() {
		if m.Busy() {
			return false
		}
	}
	return true
}

// GroupStopped reports whether the group channel is idle. Without a group
// channel it is never considered stopped.
func (c *Coordinator) GroupStopped() bool {
	g, found := c.Group()
	if !found {
		return false
	}
	return !g.Busy()
}
