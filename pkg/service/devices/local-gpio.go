// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package devices

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

type localGPIO struct {
	mutex    sync.Mutex
	onActive func()
	config   model.HWDevice
	api      bridge.API
	outputs  []bridge.OutputPin
	// Initial values of outputs, restored on Close
	initial []bool
}

// newLocalGPIO creates a GPIO instance for a GPIO locally on the worker
func newLocalGPIO(config model.HWDevice, api bridge.API, onActive func()) (GPIO, error) {
	if config.Type != model.HWDeviceTypeGPIO {
		return nil, errors.Wrapf(model.ValidationError, "Invalid device type '%s'", string(config.Type))
	}
	return &localGPIO{
		onActive: onActive,
		config:   config,
		api:      api,
	}, nil
}

// ID returns the unique identifier of the device.
func (d *localGPIO) ID() string {
	return d.config.ID
}

// Configure is called once to put the device in the desired state.
func (d *localGPIO) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	d.outputs = make([]bridge.OutputPin, d.PinCount())
	d.initial = make([]bool, d.PinCount())
	return nil
}

// Close brings the device back to a safe state.
func (d *localGPIO) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	for i, p := range d.outputs {
		if p != nil {
			p.Write(d.initial[i])
		}
	}
	d.outputs = nil
	d.initial = nil
	return nil
}

// PinCount returns the number of pins of the device
func (d *localGPIO) PinCount() uint {
	return uint(d.api.PinCount())
}

// ConfigureOutput configures the pin at given index (1...) as output
// with given initial value.
func (d *localGPIO) ConfigureOutput(ctx context.Context, pin int, initialValue bool) error {
	if pin < 1 || uint(pin) > d.PinCount() {
		return errors.Wrapf(InvalidPinError, "pin %d of '%s'", pin, d.config.ID)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.outputs == nil {
		return errors.Wrapf(NotConfiguredError, "device '%s'", d.config.ID)
	}
	d.onActive()
	p, err := d.api.Output(pin, false, initialValue)
	if err != nil {
		return maskAny(err)
	}
	d.outputs[pin-1] = p
	d.initial[pin-1] = initialValue
	return nil
}

// Set the pin at given index (1...) to the given value
func (d *localGPIO) Set(ctx context.Context, pin int, value bool) error {
	if pin < 1 || uint(pin) > d.PinCount() {
		return errors.Wrapf(InvalidPinError, "pin %d of '%s'", pin, d.config.ID)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()

	index := pin - 1
	if index < len(d.outputs) {
		if f := d.outputs[index]; f != nil {
			d.onActive()
			return f.Write(value)
		}
	}
	return errors.Wrapf(NotConfiguredError, "pin %d of '%s'", pin, d.config.ID)
}
