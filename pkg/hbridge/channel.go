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
	"context"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
)

// Channel controls a single motor through one channel of a Controller.
//
// Channel is not safe for concurrent use; callers must serialize
// operations on the same channel.
type Channel struct {
	controller *Controller
	index      int
	reversed   bool
	// Last logical direction applied by SetDirection (true=forward)
	direction bool
	// Last power state applied by Enable/Disable
	enabled bool
}

// NewChannel creates a channel for the given index of the given controller.
// The controller is referenced, not owned.
func NewChannel(controller *Controller, index int, reversed bool) (*Channel, error) {
	if controller == nil {
		return nil, errors.Wrapf(InvalidChannelError, "channel %d has no controller", index)
	}
	if _, _, _, err := controller.Resolve(index); err != nil {
		return nil, err
	}
	return &Channel{
		controller: controller,
		index:      index,
		reversed:   reversed,
		direction:  true,
	}, nil
}

// Index returns the channel index in the controller.
func (c *Channel) Index() int { return c.index }

// Reversed returns true when the motor wiring is reversed.
func (c *Channel) Reversed() bool { return c.reversed }

// Direction returns the cached logical direction (true=forward).
func (c *Channel) Direction() bool { return c.direction }

// Enabled returns the last successfully applied power state.
func (c *Channel) Enabled() bool { return c.enabled }

// Enable sets the enable line of this channel to its active level.
func (c *Channel) Enable(ctx context.Context) error {
	return c.setEnabled(ctx, true)
}

// Disable sets the enable line of this channel to its inactive level.
// The input lines are not changed.
func (c *Channel) Disable(ctx context.Context) error {
	return c.setEnabled(ctx, false)
}

// SetSpeed drives the motor in the cached direction when speed > 0,
// and stops driving it when speed == 0.
// Any non-zero speed results in full drive.
func (c *Channel) SetSpeed(ctx context.Context, speed uint8) error {
	a, b := false, false
	if speed > 0 {
		a, b = c.inputLevels(c.direction)
	}
	return c.setInputs(ctx, a, b)
}

// SetDirection drives the input lines for the given logical direction
// (true=forward), regardless of speed or power state.
// The cached direction is only updated when both lines were set.
func (c *Channel) SetDirection(ctx context.Context, direction bool) error {
	a, b := c.inputLevels(direction)
	if err := c.setInputs(ctx, a, b); err != nil {
		return err
	}
	c.direction = direction
	return nil
}

func (c *Channel) setEnabled(ctx context.Context, value bool) error {
	enable, _, _, err := c.controller.Resolve(c.index)
	if err != nil {
		return err
	}
	if err := enable.Set(ctx, value); err != nil {
		return maskAny(&LineError{Lines: []string{enable.Name()}, Err: err})
	}
	c.enabled = value
	return nil
}

// inputLevels returns the levels of input A & B that drive the motor
// in the given logical direction.
func (c *Channel) inputLevels(direction bool) (bool, bool) {
	effective := direction != c.reversed
	return effective, !effective
}

// setInputs sets both input lines. Both lines are always set, even
// when the first one fails.
func (c *Channel) setInputs(ctx context.Context, a, b bool) error {
	_, lineA, lineB, err := c.controller.Resolve(c.index)
	if err != nil {
		return err
	}
	var ae aerr.AggregateError
	var failed []string
	if err := lineA.Set(ctx, a); err != nil {
		ae.Add(err)
		failed = append(failed, lineA.Name())
	}
	if err := lineB.Set(ctx, b); err != nil {
		ae.Add(err)
		failed = append(failed, lineB.Name())
	}
	if ae.IsEmpty() {
		return nil
	}
	return maskAny(&LineError{Lines: failed, Err: ae.AsError()})
}
