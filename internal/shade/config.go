package shade

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var idNamespace = uuid.MustParse("4f3c1b2e-8d7a-5e6f-9a0b-1c2d3e4f5a6b")

// ChannelID derives a stable id from the codes addressing a channel.
func ChannelID(fixedCode, channelCode string) string {
	return uuid.NewSHA1(idNamespace, []byte(fixedCode+channelCode)).String()
}

// Role separates physical shades from the single group channel.
type Role int

const (
	RoleMember Role = iota
	RoleGroup
)

func (r Role) String() string {
	if r == RoleGroup {
		return "group"
	}
	return "member"
}

type Config struct {
	ID     string
	Name   string
	Number int
	Code   string
	Group  bool

	Enabled       bool
	MaxTravelTime time.Duration
	TickFudge     float64

	OpenCommand  string
	CloseCommand string
	StopCommand  string
}

func (c Config) Role() Role {
	if c.Group {
		return RoleGroup
	}
	return RoleMember
}

// TravelTime is the full travel time corrected by the tick fudge factor.
func (c Config) TravelTime() time.Duration {
	fudge := c.TickFudge
	if fudge <= 0 {
		fudge = 1
	}

	return time.Duration(float64(c.MaxTravelTime) * fudge)
}

func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("shade name is required")
	}
	if c.ID == "" {
		return errors.Errorf("%s: shade id is required", c.Name)
	}
	if c.MaxTravelTime <= 0 {
		return errors.Errorf("%s: max travel time must be positive, got %s", c.Name, c.MaxTravelTime)
	}
	if c.TickFudge < 0 {
		return errors.Errorf("%s: tick fudge must not be negative, got %f", c.Name, c.TickFudge)
	}

	return nil
}
