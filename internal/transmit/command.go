package transmit

import (
	"fmt"
	"strings"
)

// Codes is one open/close/stop code configuration: whitespace separated
// fragments, each sent Repeat times.
type Codes struct {
	Code   string `yaml:"code"`
	Repeat int    `yaml:"repeat" default:"1"`
}

// BuildCommand assembles the command line for one channel, e.g.
// "+<fixed><channel><fragment>" for every fragment repetition.
func BuildCommand(fixedCode, channelCode string, codes Codes) string {
	repeat := codes.Repeat
	if repeat < 1 {
		repeat = 1
	}

	var b strings.Builder
	for _, fragment := range strings.Fields(codes.Code) {
		for i := 0; i < repeat; i++ {
			b.WriteString("+")
			b.WriteString(fixedCode)
			b.WriteString(channelCode)
			b.WriteString(fragment)
		}
	}

	return b.String()
}

// TransmitterConfig holds the pulse timings the transmitter firmware encodes
// codes with.
type TransmitterConfig struct {
	Enabled bool `yaml:"enabled"`

	ZeroOn        int `yaml:"zero_on"`
	ZeroOff       int `yaml:"zero_off"`
	OneOn         int `yaml:"one_on"`
	OneOff        int `yaml:"one_off"`
	StartOfRowOn  int `yaml:"start_of_row_on"`
	StartOfRowOff int `yaml:"start_of_row_off"`
	EndOfRowOff   int `yaml:"end_of_row_off"`
	EndOfMsgOff   int `yaml:"end_of_msg_off"`
	DataPin       int `yaml:"data_pin"`
}

// Line returns the set-up line understood by the transmitter.
func (c TransmitterConfig) Line() string {
	return fmt.Sprintf("!%d,%d,%d,%d,%d,%d,%d,%d,%d",
		c.ZeroOn,
		c.ZeroOff,
		c.OneOn,
		c.OneOff,
		c.StartOfRowOn,
		c.StartOfRowOff,
		c.EndOfRowOff,
		c.EndOfMsgOff,
		c.DataPin,
	)
}
