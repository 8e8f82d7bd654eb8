package model

import "github.com/pkg/errors"

// Motor holds the configuration of a single DC motor
// connected to a channel of a driver.
type Motor struct {
	// Unique ID of the motor
	ID string `json:"id" yaml:"id"`
	// ID of the driver the motor is connected to
	Driver string `json:"driver" yaml:"driver"`
	// Channel of the driver (0|1)
	Channel int `json:"channel" yaml:"channel"`
	// If set, the motor is wired with reversed polarity
	Reversed bool `json:"reversed,omitempty" yaml:"reversed,omitempty"`
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (m Motor) Validate() error {
	if m.ID == "" {
		return errors.Wrap(ValidationError, "ID is empty")
	}
	if m.Driver == "" {
		return errors.Wrapf(ValidationError, "Driver of '%s' is empty", m.ID)
	}
	if m.Channel < 0 || m.Channel > 1 {
		return errors.Wrapf(ValidationError, "Channel %d of '%s' is invalid, valid values are 0 and 1", m.Channel, m.ID)
	}
	return nil
}
