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

package motors

import (
	"context"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/hbridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
)

var (
	_ hbridge.Line = &devicePin{}
)

// devicePin is a single output pin of a GPIO device, used as a line
// of an H-bridge controller.
type devicePin struct {
	device devices.GPIO
	pin    model.Pin
}

// Name of the line, used in errors and logs.
func (p *devicePin) Name() string {
	return p.pin.String()
}

// Set the line to the given logical level.
func (p *devicePin) Set(ctx context.Context, value bool) error {
	return p.device.Set(ctx, p.pin.Pin, p.pinValue(value))
}

// configure the pin as output at the inactive level.
func (p *devicePin) configure(ctx context.Context) error {
	return p.device.ConfigureOutput(ctx, p.pin.Pin, p.pinValue(false))
}

func (p *devicePin) pinValue(value bool) bool {
	if p.pin.ActiveLow {
		return !value
	}
	return value
}
