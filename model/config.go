package model

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// LocalConfiguration holds the configuration of a single motor worker.
type LocalConfiguration struct {
	// List of devices attached to the worker
	Devices []HWDevice `json:"devices,omitempty" yaml:"devices,omitempty"`
	// List of motor drivers
	Drivers []Driver `json:"drivers,omitempty" yaml:"drivers,omitempty"`
	// List of motors controlled by the worker
	Motors []Motor `json:"motors,omitempty" yaml:"motors,omitempty"`
}

// LoadConfiguration reads and validates the configuration in the YAML
// file with given path.
func LoadConfiguration(path string) (LocalConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LocalConfiguration{}, errors.Wrapf(err, "Failed to read '%s'", path)
	}
	return ParseConfiguration(data)
}

// ParseConfiguration parses and validates the given YAML encoded configuration.
func ParseConfiguration(data []byte) (LocalConfiguration, error) {
	var c LocalConfiguration
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return LocalConfiguration{}, errors.Wrapf(ValidationError, "Failed to parse configuration: %s", err.Error())
	}
	if err := c.Validate(); err != nil {
		return LocalConfiguration{}, maskAny(err)
	}
	return c, nil
}

// DeviceByID returns the device with given ID.
// Return false if not found.
func (c LocalConfiguration) DeviceByID(id string) (HWDevice, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return HWDevice{}, false
}

// DriverByID returns the driver with given ID.
// Return false if not found.
func (c LocalConfiguration) DriverByID(id string) (Driver, bool) {
	for _, d := range c.Drivers {
		if d.ID == id {
			return d, true
		}
	}
	return Driver{}, false
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c LocalConfiguration) Validate() error {
	ids := make(map[string]struct{})
	unique := func(kind, id string) error {
		if _, found := ids[kind+"/"+id]; found {
			return errors.Wrapf(ValidationError, "Duplicate %s '%s'", kind, id)
		}
		ids[kind+"/"+id] = struct{}{}
		return nil
	}
	for _, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return maskAny(err)
		}
		if err := unique("device", d.ID); err != nil {
			return err
		}
	}
	pinUsers := make(map[string]string)
	for _, d := range c.Drivers {
		if err := d.Validate(); err != nil {
			return maskAny(err)
		}
		if err := unique("driver", d.ID); err != nil {
			return err
		}
		for pinName, p := range d.Pins() {
			if _, found := c.DeviceByID(p.DeviceID); !found {
				return errors.Wrapf(ValidationError, "Device '%s' not found in pin '%s' in driver '%s'", p.DeviceID, pinName, d.ID)
			}
			if other, found := pinUsers[p.String()]; found {
				return errors.Wrapf(ValidationError, "Pin %s used by driver '%s' and '%s'", p, other, d.ID)
			}
			pinUsers[p.String()] = d.ID
		}
	}
	channels := make(map[Motor]string)
	for _, m := range c.Motors {
		if err := m.Validate(); err != nil {
			return maskAny(err)
		}
		if err := unique("motor", m.ID); err != nil {
			return err
		}
		if _, found := c.DriverByID(m.Driver); !found {
			return errors.Wrapf(ValidationError, "Driver '%s' not found in motor '%s'", m.Driver, m.ID)
		}
		key := Motor{Driver: m.Driver, Channel: m.Channel}
		if other, found := channels[key]; found {
			return errors.Wrapf(ValidationError, "Channel %d of driver '%s' used by motor '%s' and '%s'", m.Channel, m.Driver, other, m.ID)
		}
		channels[key] = m.ID
	}
	return nil
}
