package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shade2mqtt/internal/shade"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	mqttOpenCmd  = "open"
	mqttCloseCmd = "close"
	mqttStopCmd  = "stop"
)

const publishTimeout = time.Second

// Client is the part of the paho client used by the bridge.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Executor runs work on the goroutine owning the shades.
type Executor interface {
	Post(f func())
}

type Bridge struct {
	mqtt  Client
	shade shade.Shade
	exec  Executor

	StateTopic    string
	PositionTopic string
	TargetTopic   string
	MetadataTopic string

	CommandTopic        string
	PositionChangeTopic string
}

func NewBridge(client Client, s shade.Shade, exec Executor) *Bridge {
	bridge := &Bridge{mqtt: client, shade: s, exec: exec}
	bridge.StateTopic = fmt.Sprintf("shade2mqtt/%s/state", s.Name())
	bridge.PositionTopic = fmt.Sprintf("shade2mqtt/%s/position", s.Name())
	bridge.TargetTopic = fmt.Sprintf("shade2mqtt/%s/target", s.Name())
	bridge.MetadataTopic = fmt.Sprintf("shade2mqtt/%s/metadata", s.Name())
	bridge.CommandTopic = fmt.Sprintf("shade2mqtt/%s/set", s.Name())
	bridge.PositionChangeTopic = fmt.Sprintf("shade2mqtt/%s/position/set", s.Name())

	s.OnUpdate(bridge.onShadeUpdateHandler())

	return bridge
}

func (b *Bridge) SetMetadata(value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if token := b.mqtt.Publish(b.MetadataTopic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT metadata publish failed", b.shade.Name())
	}

	return nil
}

// PublishAll publishes the complete shade state, used after (re)connecting.
func (b *Bridge) PublishAll() {
	b.publish(b.StateTopic, shade.StateName(b.shade.State(), b.shade.Position()))
	b.publish(b.PositionTopic, strconv.Itoa(b.shade.Position()))
	b.publish(b.TargetTopic, strconv.Itoa(b.shade.Target()))
}

func (b *Bridge) Subscribe() error {
	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommandHandler()); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.shade.Name())
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.shade.Name())
	if token := b.mqtt.Subscribe(b.PositionChangeTopic, 0, b.onPositionChangeHandler()); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT position change topic subscription failed", b.shade.Name())
	}
	logrus.Infof("%s: MQTT position change topic subscribed", b.shade.Name())

	return nil
}

func (b *Bridge) Unsubscribe() error {
	if token := b.mqtt.Unsubscribe(b.PositionChangeTopic, b.CommandTopic); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT topics unsubscribe failed", b.shade.Name())
	}
	return nil
}

func (b *Bridge) onShadeUpdateHandler() shade.UpdateHandler {
	return func(characteristic shade.Characteristic, value int) {
		switch characteristic {
		case shade.PositionState:
			b.publish(b.StateTopic, shade.StateName(shade.MotionState(value), b.shade.Position()))
		case shade.CurrentPosition:
			b.publish(b.PositionTopic, strconv.Itoa(value))
			if b.shade.State() == shade.Stopped {
				b.publish(b.StateTopic, shade.StateName(shade.Stopped, value))
			}
		case shade.TargetPosition:
			b.publish(b.TargetTopic, strconv.Itoa(value))
		}
	}
}

// publish runs on the shade loop, so it never waits longer than
// publishTimeout for the broker.
func (b *Bridge) publish(topic string, payload string) {
	token := b.mqtt.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		logrus.Warnf("%s: MQTT publish to %s timed out", b.shade.Name(), topic)
		return
	}
	if token.Error() != nil {
		logrus.Errorf("%s: MQTT publish to %s failed: %s", b.shade.Name(), topic, token.Error())
	}
}

func (b *Bridge) onCommandHandler() mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		cmd := strings.TrimSpace(string(msg.Payload()))
		switch cmd {
		case mqttOpenCmd:
			b.exec.Post(func() { b.setTarget(shade.FullOpenPosition) })
		case mqttCloseCmd:
			b.exec.Post(func() { b.setTarget(shade.FullClosePosition) })
		case mqttStopCmd:
			b.exec.Post(func() {
				if err := b.shade.Stop(); err != nil {
					logrus.Error(err)
				}
			})
		default:
			logrus.Errorf("%s: MQTT unsupported %s command received", b.shade.Name(), cmd)
		}
	}
}

func (b *Bridge) onPositionChangeHandler() mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		pos, err := strconv.Atoi(strings.TrimSpace(string(msg.Payload())))
		if err != nil {
			logrus.Errorf("%s: MQTT invalid position %q: %s", b.shade.Name(), msg.Payload(), err)
			return
		}
		b.exec.Post(func() { b.setTarget(pos) })
	}
}

func (b *Bridge) setTarget(position int) {
	if err := b.shade.SetTarget(position); err != nil {
		logrus.Error(err)
	}
}
