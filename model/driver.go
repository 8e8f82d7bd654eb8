package model

import "github.com/pkg/errors"

// Driver holds the pins of a single dual H-bridge (L293D) chip.
type Driver struct {
	// Unique ID of the driver
	ID string `json:"id" yaml:"id"`
	// Enable pin of channel 0
	Enable1 Pin `json:"enable1" yaml:"enable1"`
	// Enable pin of channel 1
	Enable2 Pin `json:"enable2" yaml:"enable2"`
	// Input A of channel 0
	In1 Pin `json:"in1" yaml:"in1"`
	// Input B of channel 0
	In2 Pin `json:"in2" yaml:"in2"`
	// Input A of channel 1
	In3 Pin `json:"in3" yaml:"in3"`
	// Input B of channel 1
	In4 Pin `json:"in4" yaml:"in4"`
}

const (
	PinNameEnable1 = "enable1"
	PinNameEnable2 = "enable2"
	PinNameIn1     = "in1"
	PinNameIn2     = "in2"
	PinNameIn3     = "in3"
	PinNameIn4     = "in4"
)

// Pins returns all pins of the driver by name.
func (d Driver) Pins() map[string]Pin {
	return map[string]Pin{
		PinNameEnable1: d.Enable1,
		PinNameEnable2: d.Enable2,
		PinNameIn1:     d.In1,
		PinNameIn2:     d.In2,
		PinNameIn3:     d.In3,
		PinNameIn4:     d.In4,
	}
}

// ChannelPins returns the enable, input A and input B pin of the given channel.
func (d Driver) ChannelPins(channel int) (enable, a, b Pin, err error) {
	switch channel {
	case 0:
		return d.Enable1, d.In1, d.In2, nil
	case 1:
		return d.Enable2, d.In3, d.In4, nil
	default:
		return Pin{}, Pin{}, Pin{}, errors.Wrapf(ValidationError, "invalid channel %d in driver '%s', valid values are 0 and 1", channel, d.ID)
	}
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (d Driver) Validate() error {
	if d.ID == "" {
		return errors.Wrap(ValidationError, "ID is empty")
	}
	used := make(map[string]string)
	for name, p := range d.Pins() {
		if err := p.Validate(); err != nil {
			return errors.Wrapf(ValidationError, "Error in pin '%s' of '%s': %s", name, d.ID, err.Error())
		}
		key := p.String()
		if other, found := used[key]; found {
			return errors.Wrapf(ValidationError, "Pin %s used by '%s' and '%s' in driver '%s'", key, other, name, d.ID)
		}
		used[key] = name
	}
	return nil
}
