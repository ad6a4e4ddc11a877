package indicator

import (
	"github.com/jkaflik/shade2mqtt/internal/shade"
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
)

type SetPin interface {
	High() error
	Low() error
}

type Mcp23017Pin struct {
	device *mcp23017.Device
	pin    uint8
}

func NewMcp23017Pin(device *mcp23017.Device, pin uint8) (p *Mcp23017Pin, err error) {
	p = &Mcp23017Pin{device: device, pin: pin}
	err = p.device.PinMode(pin, mcp23017.OUTPUT)
	return p, err
}

func (m *Mcp23017Pin) High() error {
	return m.device.DigitalWrite(m.pin, mcp23017.HIGH)
}

func (m *Mcp23017Pin) Low() error {
	return m.device.DigitalWrite(m.pin, mcp23017.LOW)
}

// Pair lights one output per direction while the shade is believed to move.
// Outputs are active low unless NormalClosed is set.
type Pair struct {
	Name         string
	Opening      SetPin
	Closing      SetPin
	NormalClosed bool
}

// Show releases the inactive direction before driving the active one, so
// both outputs are never enabled at once.
func (p *Pair) Show(state shade.MotionState) error {
	switch state {
	case shade.Opening:
		if err := p.disable(p.Closing); err != nil {
			return errors.Wrapf(err, "%s: closing indicator", p.Name)
		}
		return errors.Wrapf(p.enable(p.Opening), "%s: opening indicator", p.Name)
	case shade.Closing:
		if err := p.disable(p.Opening); err != nil {
			return errors.Wrapf(err, "%s: opening indicator", p.Name)
		}
		return errors.Wrapf(p.enable(p.Closing), "%s: closing indicator", p.Name)
	}

	if err := p.disable(p.Opening); err != nil {
		return errors.Wrapf(err, "%s: opening indicator", p.Name)
	}
	return errors.Wrapf(p.disable(p.Closing), "%s: closing indicator", p.Name)
}

func (p *Pair) enable(pin SetPin) error {
	if !p.NormalClosed {
		return pin.Low()
	}

	return pin.High()
}

func (p *Pair) disable(pin SetPin) error {
	if !p.NormalClosed {
		return pin.High()
	}

	return pin.Low()
}

// Dumb only logs, for installations without indicator outputs.
type Dumb struct {
	Name string
}

func (d *Dumb) Show(state shade.MotionState) error {
	logrus.Debugf("%s: dumb indicator %s", d.Name, state)
	return nil
}
