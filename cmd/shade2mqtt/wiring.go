package main

import (
	"context"

	"github.com/jkaflik/shade2mqtt/internal/clock"
	"github.com/jkaflik/shade2mqtt/internal/indicator"
	"github.com/jkaflik/shade2mqtt/internal/link"
	"github.com/jkaflik/shade2mqtt/internal/persistence"
	"github.com/jkaflik/shade2mqtt/internal/shade"
	"github.com/jkaflik/shade2mqtt/internal/transmit"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
)

// debug_flags bits
const (
	debugUpdate uint = 1 << iota
	debugXmit
	debugLink
	debugShade
)

// componentLogger raises a component to debug level when its debug flag is
// set, independently of log_level.
func componentLogger(component string, flag uint) logrus.FieldLogger {
	std := logrus.StandardLogger()
	if Cfg.DebugFlags&flag == 0 || std.GetLevel() >= logrus.DebugLevel {
		return std.WithField("component", component)
	}

	l := logrus.New()
	l.SetFormatter(std.Formatter)
	l.SetOutput(std.Out)
	l.SetLevel(logrus.DebugLevel)

	return l.WithField("component", component)
}

func linkFromConfig(ctx context.Context, loop *clock.Loop, onLine func(line string)) (transmit.Link, func()) {
	if Cfg.Serial.Kind == "dumb" {
		return &link.Dumb{Name: "transmitter", Post: loop.Post, OnLine: onLine}, func() {}
	}

	if Cfg.Serial.Kind != "serial" {
		logrus.Fatalf("%s is not supported serial kind", Cfg.Serial.Kind)
	}

	s, err := link.Open(Cfg.Serial.Port, Cfg.Serial.Baud)
	if err != nil {
		logrus.Fatal(err)
	}
	s.SetLogger(componentLogger("link", debugLink))

	go func() {
		err := s.ReadLines(func(line string) {
			loop.Post(func() { onLine(line) })
		})
		if err != nil && ctx.Err() == nil {
			logrus.Errorf("transmitter link lost: %s", err)
		}
	}()

	return s, func() {
		if err := s.Close(); err != nil {
			logrus.Errorf("%s: close failed: %s", Cfg.Serial.Port, err)
		}
	}
}

func channelsFromConfig(ctx context.Context, coord *shade.Coordinator, svc shade.Services, store *persistence.FileStore) []*shade.Channel {
	log := componentLogger("shade", debugShade)

	var channels []*shade.Channel
	for _, s := range Cfg.Shades {
		cfg := shadeConfig(&Cfg, s)
		ch := shade.NewChannel(cfg, svc)
		ch.SetLogger(log)

		if target, found := store.Target(cfg.ID); found {
			ch.Restore(target)
		}
		if i := indicatorFromConfig(ctx, s); i != nil {
			ch.SetIndicator(i)
		}

		if err := coord.Add(ch); err != nil {
			logrus.Fatal(err)
		}
		logrus.Infof("%s: %s channel %d ready", cfg.Name, cfg.Role(), cfg.Number)

		channels = append(channels, ch)
	}

	return channels
}

func indicatorFromConfig(ctx context.Context, s cfgShade) shade.Indicator {
	switch s.Indicator.Kind {
	case "":
		return nil
	case "dumb":
		return &indicator.Dumb{Name: s.Name}
	case "mcp23017":
		device := mcp23017DeviceFromConfigByID(ctx, s.Indicator.Mcp23017)

		opening, err := indicator.NewMcp23017Pin(device, s.Indicator.OpeningPin)
		if err != nil {
			logrus.Fatal(err)
		}
		closing, err := indicator.NewMcp23017Pin(device, s.Indicator.ClosingPin)
		if err != nil {
			logrus.Fatal(err)
		}

		p := &indicator.Pair{
			Name:         s.Name,
			Opening:      opening,
			Closing:      closing,
			NormalClosed: s.Indicator.NormalClosed,
		}
		if err := p.Show(shade.Stopped); err != nil {
			logrus.Error(err)
		}
		return p
	}

	logrus.Fatalf("%s is not supported indicator kind", s.Indicator.Kind)
	return nil
}

var mcpDevices = map[int]*mcp23017.Device{}

func mcp23017DeviceFromConfigByID(ctx context.Context, id int) *mcp23017.Device {
	if Cfg.Drivers.Mcp23017 == nil {
		logrus.Fatal("drivers.mcp23017 not defined")
	}

	cfg, found := Cfg.Drivers.Mcp23017[id]
	if !found {
		logrus.Fatalf("%d is not valid defined drivers.mcp23017", id)
		return nil
	}

	dev := mcpDevices[id]
	if dev == nil {
		bus := cfg.Bus
		if bus == 0 {
			bus = 1
		}

		var err error
		dev, err = mcp23017.Open(bus, cfg.DeviceNumber)
		if err != nil {
			logrus.Fatal(err)
		}
		go func() {
			<-ctx.Done()
			if err := dev.Close(); err != nil {
				logrus.Errorf("mcp23017: close failed %s", err)
				return
			}

			logrus.Infof("mcp23017: close")
		}()
		if err := dev.Reset(); err != nil {
			logrus.Fatal(err)
		}

		mcpDevices[id] = dev
	}

	return dev
}
