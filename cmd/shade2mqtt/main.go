package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shade2mqtt/internal/clock"
	"github.com/jkaflik/shade2mqtt/internal/homekit"
	"github.com/jkaflik/shade2mqtt/internal/mqtt"
	"github.com/jkaflik/shade2mqtt/internal/persistence"
	"github.com/jkaflik/shade2mqtt/internal/shade"
	"github.com/jkaflik/shade2mqtt/internal/transmit"
	"github.com/jkaflik/shade2mqtt/internal/update"
	"github.com/sirupsen/logrus"
)

type shadeBridge struct {
	bridge   *mqtt.Bridge
	metadata map[string]interface{}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := loadConfig(&Cfg, *configPath); err != nil {
		logrus.Fatal(err)
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	loop := clock.NewLoop()

	store := persistence.NewFileStore(Cfg.StatePath)
	if err := store.Load(); err != nil {
		logrus.Errorf("persisted targets ignored: %s", err)
	}

	var queue *transmit.Queue
	txLink, closeLink := linkFromConfig(ctx, loop, func(line string) { queue.HandleLine(line) })
	queue = transmit.NewQueue(loop, txLink, Cfg.Timing.XmitWait)
	queue.SetLogger(componentLogger("xmit", debugXmit))

	updates := update.NewScheduler(loop, Cfg.Timing.UpdateWait)
	updates.SetLogger(componentLogger("update", debugUpdate))

	coord := shade.NewCoordinator()
	coord.SetLogger(componentLogger("group", debugShade))

	channels := channelsFromConfig(ctx, coord, shade.Services{
		Clock:               loop,
		Transmitter:         queue,
		Updates:             updates,
		Store:               store,
		Debounce:            Cfg.Timing.Debounce,
		CalibrationDepth:    Cfg.Calibration.Depth,
		CalibrationAveraged: Cfg.Calibration.Averaged,
	}, store)

	var bridges []shadeBridge
	opts := pahoOptsFromConfig()
	opts.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		subscribe(m, bridges)
		loop.Post(func() {
			for _, b := range bridges {
				b.bridge.PublishAll()
			}
		})
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(opts)
	for i, ch := range channels {
		bridges = append(bridges, shadeBridge{
			bridge:   mqtt.NewBridge(m, ch, loop),
			metadata: shadeMetadata(Cfg.Shades[i], ch),
		})
	}

	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	var hk *homekit.Server
	if Cfg.HomeKit.Enabled {
		hk = homekitFromConfig(channels, loop)
		go hk.Start()
	}

	if Cfg.Transmitter.Config.Enabled {
		line := Cfg.Transmitter.Config.Line()
		loop.Post(func() {
			logrus.Infof("transmitter config %s", line)
			queue.Enqueue(line, 0, nil)
		})
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		oscall := <-c
		logrus.Infof("system call: %+v", oscall)
		cancel()
	}()

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logrus.Error(err)
	}

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime.String())

	for _, b := range bridges {
		if err := b.bridge.Unsubscribe(); err != nil {
			logrus.Error(err)
		}
	}
	m.Disconnect(uint(cleanupTime.Milliseconds()))

	if hk != nil {
		hk.Stop()
	}
	closeLink()
}

func subscribe(m paho.Client, bridges []shadeBridge) {
	for _, b := range bridges {
		if Cfg.HASS.Enabled {
			entity := mqtt.NewHACoverFromMQTTBridge(b.bridge)
			if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, entity); err != nil {
				logrus.Error(err)
			}
		}

		if err := b.bridge.SetMetadata(b.metadata); err != nil {
			logrus.Error(err)
		}

		if err := b.bridge.Subscribe(); err != nil {
			logrus.Error(err)
		}
	}
}

func shadeMetadata(cfg cfgShade, ch *shade.Channel) map[string]interface{} {
	metadata := map[string]interface{}{}
	for k, v := range cfg.Metadata {
		metadata[k] = v
	}

	metadata["id"] = ch.ID()
	metadata["channel"] = ch.Number()
	metadata["channel_code"] = cfg.ChannelCode
	metadata["role"] = ch.Role().String()
	metadata["enabled"] = ch.Enabled()
	metadata["max_travel_time"] = cfg.MaxTravelTime.String()

	return metadata
}

func homekitFromConfig(channels []*shade.Channel, loop *clock.Loop) *homekit.Server {
	coverings := make([]*homekit.WindowCovering, 0, len(channels))
	for i, ch := range channels {
		// the bridge accessory holds id 1
		coverings = append(coverings, homekit.NewWindowCovering(ch, uint64(i+2), loop))
	}

	server, err := homekit.NewServer(homekit.Config{
		Name:        Cfg.HomeKit.Name,
		Pin:         Cfg.HomeKit.Pin,
		Port:        Cfg.HomeKit.Port,
		StoragePath: Cfg.HomeKit.StoragePath,
	}, coverings)
	if err != nil {
		logrus.Fatal(err)
	}

	return server
}
