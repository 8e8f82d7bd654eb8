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

package hbridge

import (
	"github.com/pkg/errors"
)

const (
	// ChannelCount is the number of motor channels of a single chip.
	ChannelCount = 2
)

// Controller owns the digital lines of a single dual H-bridge chip.
// It is immutable after construction and must outlive all channels
// that refer to it.
type Controller struct {
	id     string
	enable [ChannelCount]Line
	// channel -> {A, B}
	inputs [ChannelCount][2]Line
}

// NewController creates a controller for the given lines.
// All six lines must be set and distinct.
func NewController(id string, enable [ChannelCount]Line, inputs [ChannelCount][2]Line) (*Controller, error) {
	seen := make(map[string]int)
	check := func(l Line, channel int) error {
		if l == nil {
			return errors.Wrapf(InvalidLinesError, "missing line for channel %d of '%s'", channel, id)
		}
		if prev, found := seen[l.Name()]; found {
			return errors.Wrapf(InvalidLinesError, "line '%s' used by channel %d and %d of '%s'", l.Name(), prev, channel, id)
		}
		seen[l.Name()] = channel
		return nil
	}
	for ch := 0; ch < ChannelCount; ch++ {
		if err := check(enable[ch], ch); err != nil {
			return nil, err
		}
		for _, l := range inputs[ch] {
			if err := check(l, ch); err != nil {
				return nil, err
			}
		}
	}
	return &Controller{
		id:     id,
		enable: enable,
		inputs: inputs,
	}, nil
}

// ID returns the identifier of the controller.
func (c *Controller) ID() string {
	return c.id
}

// Resolve returns the enable line and the A/B input lines of the given channel.
func (c *Controller) Resolve(channel int) (enable, a, b Line, err error) {
	if channel < 0 || channel >= ChannelCount {
		return nil, nil, nil, errors.Wrapf(InvalidChannelError, "channel %d of '%s', valid values are 0 and 1", channel, c.id)
	}
	return c.enable[channel], c.inputs[channel][0], c.inputs[channel][1], nil
}
