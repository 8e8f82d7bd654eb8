// Copyright 2017 Ewout Prangsma
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

package bridge

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	virtualPinCount = 64
)

// VirtualBridge implements the bridge with in-memory pins.
// It is used for a virtual motor worker and for testing.
type VirtualBridge struct {
	mutex sync.Mutex
	pins  map[int]*virtualPin
	// Errors to return from Write, by pin number
	failures map[int]error
}

type virtualPin struct {
	bridge    *VirtualBridge
	number    int
	activeLow bool
	// Electrical level
	level  bool
	writes int
}

// NewVirtualBridge implements the bridge for a virtual motor worker.
func NewVirtualBridge() *VirtualBridge {
	return &VirtualBridge{
		pins:     make(map[int]*virtualPin),
		failures: make(map[int]error),
	}
}

// Returns number of local pins
func (p *VirtualBridge) PinCount() int {
	return virtualPinCount
}

// Output initializes a GPIO output pin with the given pin number
// and initial logical value.
func (p *VirtualBridge) Output(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error) {
	if pinNumber < 1 || pinNumber > virtualPinCount {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pinNumber)
	}
	p.mutex.Lock()
	pin, found := p.pins[pinNumber]
	if !found {
		pin = &virtualPin{bridge: p, number: pinNumber}
		p.pins[pinNumber] = pin
	}
	pin.activeLow = activeLow
	p.mutex.Unlock()
	if err := pin.Write(initialValue); err != nil {
		return nil, err
	}
	return newMeteredPin(pinNumber, pin), nil
}

// Level returns the electrical level of the pin with given number.
// Returns false if the pin has not been initialized as output.
func (p *VirtualBridge) Level(pinNumber int) (level bool, configured bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if pin, found := p.pins[pinNumber]; found {
		return pin.level, true
	}
	return false, false
}

// Writes returns the number of successful writes to the pin with given number.
func (p *VirtualBridge) Writes(pinNumber int) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if pin, found := p.pins[pinNumber]; found {
		return pin.writes
	}
	return 0
}

// SetFailure causes all writes to the pin with given number to fail
// with the given error. Pass nil to clear the failure.
func (p *VirtualBridge) SetFailure(pinNumber int, err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err == nil {
		delete(p.failures, pinNumber)
	} else {
		p.failures[pinNumber] = err
	}
}

// Turn Green status led on/off
func (p *VirtualBridge) SetGreenLED(on bool) error {
	return nil
}

// Turn Red status led on/off
func (p *VirtualBridge) SetRedLED(on bool) error {
	return nil
}

// Blink Green status led with given duration between on/off
func (p *VirtualBridge) BlinkGreenLED(delay time.Duration) error {
	return nil
}

// Blink Red status led with given duration between on/off
func (p *VirtualBridge) BlinkRedLED(delay time.Duration) error {
	return nil
}

func (p *VirtualBridge) Close() error {
	return nil
}

// Write the logical value of the pin.
func (vp *virtualPin) Write(value bool) error {
	vp.bridge.mutex.Lock()
	defer vp.bridge.mutex.Unlock()
	if err := vp.bridge.failures[vp.number]; err != nil {
		return err
	}
	vp.level = value != vp.activeLow
	vp.writes++
	return nil
}
