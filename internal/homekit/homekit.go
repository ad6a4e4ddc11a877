// Package homekit exposes shades as HomeKit window coverings.
package homekit

import (
	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
	"github.com/jkaflik/shade2mqtt/internal/shade"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	manufacturer = "Dooya"
	model        = "Shades"
)

// Executor runs work on the goroutine owning the shades.
type Executor interface {
	Post(f func())
}

type WindowCovering struct {
	*accessory.Accessory
	Covering *service.WindowCovering

	shade shade.Shade
	exec  Executor
}

// NewWindowCovering binds a shade to a WindowCovering accessory. id must be
// stable across restarts and unique within the bridge.
func NewWindowCovering(s shade.Shade, id uint64, exec Executor) *WindowCovering {
	info := accessory.Info{
		ID:           id,
		Name:         s.Name(),
		SerialNumber: s.ID(),
		Manufacturer: manufacturer,
		Model:        model,
	}

	w := &WindowCovering{shade: s, exec: exec}
	w.Accessory = accessory.New(info, accessory.TypeWindowCovering)
	w.Covering = service.NewWindowCovering()
	w.AddService(w.Covering.Service)

	w.Covering.CurrentPosition.SetValue(s.Position())
	w.Covering.TargetPosition.SetValue(s.Target())
	w.Covering.PositionState.SetValue(positionState(s.State()))

	w.Covering.TargetPosition.OnValueRemoteUpdate(w.onRemoteTarget)
	s.OnUpdate(w.onShadeUpdate)

	return w
}

func (w *WindowCovering) onRemoteTarget(position int) {
	logrus.Debugf("%s: HomeKit target %d", w.shade.Name(), position)
	w.exec.Post(func() {
		if err := w.shade.SetTarget(position); err != nil {
			logrus.Error(err)
		}
	})
}

func (w *WindowCovering) onShadeUpdate(c shade.Characteristic, value int) {
	switch c {
	case shade.CurrentPosition:
		w.Covering.CurrentPosition.SetValue(value)
	case shade.TargetPosition:
		w.Covering.TargetPosition.SetValue(value)
	case shade.PositionState:
		w.Covering.PositionState.SetValue(positionState(shade.MotionState(value)))
	}
}

func positionState(s shade.MotionState) int {
	switch s {
	case shade.Closing:
		return characteristic.PositionStateDecreasing
	case shade.Opening:
		return characteristic.PositionStateIncreasing
	default:
		return characteristic.PositionStateStopped
	}
}

type Config struct {
	Name        string
	Pin         string
	Port        string
	StoragePath string
}

// Server publishes a bridge accessory with every window covering behind it.
type Server struct {
	transport hc.Transport
}

func NewServer(cfg Config, coverings []*WindowCovering) (*Server, error) {
	bridge := accessory.NewBridge(accessory.Info{
		Name:         cfg.Name,
		Manufacturer: manufacturer,
		Model:        "Bridge",
	})

	accessories := make([]*accessory.Accessory, 0, len(coverings))
	for _, w := range coverings {
		accessories = append(accessories, w.Accessory)
	}

	t, err := hc.NewIPTransport(hc.Config{
		Pin:         cfg.Pin,
		Port:        cfg.Port,
		StoragePath: cfg.StoragePath,
	}, bridge.Accessory, accessories...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: HomeKit transport", cfg.Name)
	}

	return &Server{transport: t}, nil
}

// Start blocks serving HomeKit controllers until Stop is called.
func (s *Server) Start() {
	logrus.Info("HomeKit bridge started")
	s.transport.Start()
}

func (s *Server) Stop() {
	<-s.transport.Stop()
	logrus.Info("HomeKit bridge stopped")
}
