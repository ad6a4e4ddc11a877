package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/jkaflik/shade2mqtt/internal/shade"
	"github.com/pkg/errors"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	AvailabilityTopic string `json:"avty_t,omitempty"`
	UniqueID          string `json:"uniq_id,omitempty"`
	Name              string `json:"name,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

type haCover struct {
	haEntity
	StateTopic       string `json:"stat_t"`
	CommandTopic     string `json:"cmd_t"`
	PositionTopic    string `json:"pos_t"`
	SetPositionTopic string `json:"set_pos_t"`
	PositionOpen     int    `json:"pos_open"`
	PositionClosed   int    `json:"pos_clsd"`
	PayloadOpen      string `json:"pl_open"`
	PayloadStop      string `json:"pl_stop"`
	PayloadClose     string `json:"pl_cls"`
	StateOpen        string `json:"stat_open"`
	StateOpening     string `json:"stat_opening"`
	StateClosed      string `json:"stat_clsd"`
	StateClosing     string `json:"stat_closing"`
}

func NewHACoverFromMQTTBridge(bridge *Bridge) haCover {
	return haCover{
		haEntity: haEntity{
			UniqueID:    bridge.shade.ID(),
			Name:        bridge.shade.Name(),
			DeviceClass: "shade",

			Device: haDevice{
				Identifiers:  []string{"shade2mqtt", bridge.shade.ID()},
				Manufacturer: "Dooya",
				Model:        "Shades",
				Name:         bridge.shade.Name(),
				SWVersion:    "shade2mqtt",
			},
		},
		StateTopic:       bridge.StateTopic,
		CommandTopic:     bridge.CommandTopic,
		PositionTopic:    bridge.PositionTopic,
		SetPositionTopic: bridge.PositionChangeTopic,
		PositionOpen:     shade.FullOpenPosition,
		PositionClosed:   shade.FullClosePosition,
		PayloadOpen:      mqttOpenCmd,
		PayloadStop:      mqttStopCmd,
		PayloadClose:     mqttCloseCmd,
		StateOpen:        shade.ShadeOpenState,
		StateOpening:     shade.ShadeOpeningState,
		StateClosed:      shade.ShadeClosedState,
		StateClosing:     shade.ShadeClosingState,
	}
}

func HADiscoveryTopic(homeAssistantDiscoveryTopicPrefix string, haCover haCover) string {
	return fmt.Sprintf("%s/cover/shade2mqtt/%s/config", homeAssistantDiscoveryTopicPrefix, haCover.UniqueID)
}

func PublishHAAutoDiscovery(client Client, homeAssistantDiscoveryTopicPrefix string, haCover haCover) error {
	payload, err := json.Marshal(haCover)
	if err != nil {
		return err
	}

	if token := client.Publish(HADiscoveryTopic(homeAssistantDiscoveryTopicPrefix, haCover), 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: HA discovery publish failed", haCover.Name)
	}

	return nil
}
