package main

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shade2mqtt/internal/shade"
	"github.com/jkaflik/shade2mqtt/internal/transmit"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type cfgIndicator struct {
	Kind string `yaml:"kind"`

	Mcp23017     int   `yaml:"mcp23017"`
	OpeningPin   uint8 `yaml:"opening_pin"`
	ClosingPin   uint8 `yaml:"closing_pin"`
	NormalClosed bool  `yaml:"normal_closed"`
}

type cfgShade struct {
	Name        string `yaml:"name"`
	Channel     int    `yaml:"channel"`
	ChannelCode string `yaml:"channel_code"`
	Group       bool   `yaml:"group"`
	Enabled     *bool  `yaml:"enabled"`

	MaxTravelTime time.Duration `yaml:"max_travel_time"`
	TickFudge     float64       `yaml:"tick_fudge"`

	Metadata  map[string]interface{} `yaml:"metadata"`
	Indicator cfgIndicator           `yaml:"indicator"`
}

func (c cfgShade) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type cfgSerial struct {
	Kind string `yaml:"kind" default:"serial" env:"KIND"`
	Port string `yaml:"port" default:"/dev/ttyUSB0" env:"PORT"`
	Baud int    `yaml:"baud" default:"115200" env:"BAUD"`
}

type cfgTransmitter struct {
	FixedCode string `yaml:"fixed_code" env:"FIXED_CODE"`

	Open  transmit.Codes `yaml:"open"`
	Close transmit.Codes `yaml:"close"`
	Stop  transmit.Codes `yaml:"stop"`

	Config transmit.TransmitterConfig `yaml:"config"`
}

type cfgTiming struct {
	Debounce   time.Duration `yaml:"debounce" default:"1s" env:"DEBOUNCE"`
	XmitWait   time.Duration `yaml:"xmit_wait" default:"500ms" env:"XMIT_WAIT"`
	UpdateWait time.Duration `yaml:"update_wait" default:"100ms" env:"UPDATE_WAIT"`
}

type cfgCalibration struct {
	Depth    int  `yaml:"depth" default:"5" env:"DEPTH"`
	Averaged bool `yaml:"averaged" env:"AVERAGED"`
}

type cfgMcp23017 struct {
	Bus          uint8 `yaml:"bus"`
	DeviceNumber uint8 `yaml:"device_number"`
}

type cfgDrivers struct {
	Mcp23017 map[int]cfgMcp23017 `yaml:"mcp23017"`
}

type cfgMQTT struct {
	ClientID string `yaml:"client_id" default:"shade2mqtt" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type cfgHomeKit struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Name        string `yaml:"name" default:"shade2mqtt" env:"NAME"`
	Pin         string `yaml:"pin" default:"00102003" env:"PIN"`
	Port        string `yaml:"port" env:"PORT"`
	StoragePath string `yaml:"storage_path" default:"homekit" env:"STORAGE_PATH"`
}

type config struct {
	LogLevel   string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`
	DebugFlags uint   `yaml:"debug_flags" env:"DEBUG_FLAGS"`
	StatePath  string `yaml:"state_path" default:"state.json" env:"STATE_PATH"`

	Serial      cfgSerial      `yaml:"serial" env:"SERIAL"`
	Transmitter cfgTransmitter `yaml:"transmitter" env:"TRANSMITTER"`
	Timing      cfgTiming      `yaml:"timing" env:"TIMING"`
	Calibration cfgCalibration `yaml:"calibration" env:"CALIBRATION"`

	MQTT    cfgMQTT    `yaml:"mqtt" env:"MQTT"`
	HASS    cfgHASS    `yaml:"hass" env:"HASS"`
	HomeKit cfgHomeKit `yaml:"homekit" env:"HOMEKIT"`

	Shades []cfgShade `yaml:"shades"`

	Drivers cfgDrivers `yaml:"drivers"`
}

var Cfg config

func newConfigLoader(dst *config) *aconfig.Loader {
	return aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: "S2M",
		SkipFlags: true,
		SkipFiles: true,
	})
}

// loadConfig applies defaults and environment overrides, then the YAML file
// on top. A missing file leaves the defaults in place.
func loadConfig(dst *config, filename string) error {
	if err := newConfigLoader(dst).Load(); err != nil {
		return errors.Wrap(err, "config defaults")
	}

	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "%s: config open failed", filename)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(dst); err != nil {
		return errors.Wrapf(err, "%s: config decode failed", filename)
	}

	return validateConfig(dst)
}

func validateConfig(c *config) error {
	groups := 0
	codes := map[string]string{}

	for _, s := range c.Shades {
		if s.Group {
			groups++
		}
		if groups > 1 {
			return errors.Wrapf(shade.ErrSecondGroup, "%s", s.Name)
		}
		if other, found := codes[s.ChannelCode]; found {
			return errors.Wrapf(shade.ErrDuplicateChannel, "%s and %s share channel code %q", other, s.Name, s.ChannelCode)
		}
		codes[s.ChannelCode] = s.Name

		if err := shadeConfig(c, s).Validate(); err != nil {
			return err
		}
	}

	return nil
}

// shadeConfig resolves a configured shade into its channel configuration.
func shadeConfig(c *config, s cfgShade) shade.Config {
	fixed := c.Transmitter.FixedCode

	return shade.Config{
		ID:            shade.ChannelID(fixed, s.ChannelCode),
		Name:          s.Name,
		Number:        s.Channel,
		Code:          s.ChannelCode,
		Group:         s.Group,
		Enabled:       s.enabled(),
		MaxTravelTime: s.MaxTravelTime,
		TickFudge:     s.TickFudge,
		OpenCommand:   transmit.BuildCommand(fixed, s.ChannelCode, c.Transmitter.Open),
		CloseCommand:  transmit.BuildCommand(fixed, s.ChannelCode, c.Transmitter.Close),
		StopCommand:   transmit.BuildCommand(fixed, s.ChannelCode, c.Transmitter.Stop),
	}
}

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)
}
