package model

import "github.com/pkg/errors"

// HWDevice holds configuration data for a specif hardward device.
// Typically a hardware device provides a set of GPIO pins.
type HWDevice struct {
	// Unique identifier of the device (instance)
	ID string `json:"id" yaml:"id"`
	// Address is used to identify the device.
	// For mqtt-gpio devices this is the topic prefix.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Type of the device
	Type HWDeviceType `json:"type" yaml:"type"`
}

// HWDeviceType identifies a type of devices
type HWDeviceType string

const (
	// Local GPIO pins of the host
	HWDeviceTypeGPIO HWDeviceType = "gpio"
	// Virtual GPIO pins controlled through MQTT
	HWDeviceTypeMQTTGPIO HWDeviceType = "mqtt-gpio"
)

// Validate the given type, returning nil on ok,
// or an error upon validation issues.
func (t HWDeviceType) Validate() error {
	switch t {
	case HWDeviceTypeGPIO, HWDeviceTypeMQTTGPIO:
		return nil
	default:
		return errors.Wrapf(ValidationError, "invalid device type '%s'", string(t))
	}
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (d HWDevice) Validate() error {
	if d.ID == "" {
		return errors.Wrap(ValidationError, "ID is empty")
	}
	if err := d.Type.Validate(); err != nil {
		return errors.Wrapf(ValidationError, "Error in Type of '%s': %s", d.ID, err.Error())
	}
	return nil
}
