package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// Pin identifies a connection pin of a hardware device.
type Pin struct {
	// Unique identifier of the device that contains this pin.
	DeviceID string `json:"device" yaml:"device"`
	// Pin number (1...)
	Pin int `json:"pin" yaml:"pin"`
	// If set, the logical active level is electrically low.
	ActiveLow bool `json:"activeLow,omitempty" yaml:"activeLow,omitempty"`
}

// String returns a human readable form of the pin.
func (p Pin) String() string {
	return fmt.Sprintf("%s/%d", p.DeviceID, p.Pin)
}

// Validate the given pin, returning nil on ok,
// or an error upon validation issues.
func (p Pin) Validate() error {
	if p.DeviceID == "" {
		return errors.Wrap(ValidationError, "device is empty")
	}
	if p.Pin < 1 {
		return errors.Wrapf(ValidationError, "pin %d of '%s' is out of range", p.Pin, p.DeviceID)
	}
	return nil
}
