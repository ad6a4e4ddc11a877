package shade

import (
	"github.com/pkg/errors"
)

const (
	ShadeOpenState    = "open"
	ShadeClosedState  = "closed"
	ShadeOpeningState = "opening"
	ShadeClosingState = "closing"
)

const (
	FullClosePosition = 0
	FullOpenPosition  = 100
)

var (
	ErrDisabled         = errors.New("shade is disabled")
	ErrDuplicateChannel = errors.New("duplicate shade channel")
	ErrSecondGroup      = errors.New("only one group shade is allowed")
)

// MotionState values match the HomeKit PositionState characteristic.
type MotionState int

const (
	Closing MotionState = iota
	Opening
	Stopped
)

func (s MotionState) String() string {
	switch s {
	case Closing:
		return ShadeClosingState
	case Opening:
		return ShadeOpeningState
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StateName reports the four-state open/closed/opening/closing view of a shade.
func StateName(state MotionState, position int) string {
	switch state {
	case Opening:
		return ShadeOpeningState
	case Closing:
		return ShadeClosingState
	}
	if position == FullClosePosition {
		return ShadeClosedState
	}
	return ShadeOpenState
}

// Characteristic names a published shade value.
type Characteristic int

const (
	CurrentPosition Characteristic = iota
	TargetPosition
	PositionState
)

func (c Characteristic) String() string {
	switch c {
	case CurrentPosition:
		return "position"
	case TargetPosition:
		return "target"
	case PositionState:
		return "state"
	default:
		return "unknown"
	}
}

type UpdateHandler func(characteristic Characteristic, value int)

type Shade interface {
	ID() string
	Name() string

	Position() int
	Target() int
	State() MotionState

	OnUpdate(h UpdateHandler)

	SetTarget(position int) error
	Stop() error
}

func clamp(position int) int {
	if position < FullClosePosition {
		return FullClosePosition
	}
	if position > FullOpenPosition {
		return FullOpenPosition
	}
	return position
}

func interior(position int) bool {
	return position > FullClosePosition && position < FullOpenPosition
}
