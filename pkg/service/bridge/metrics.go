// Copyright 2023 Ewout Prangsma
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
	"strconv"

	"github.com/binkynet/MotorWorker/pkg/metrics"
)

const (
	subSystem = "bridge"
)

var (
	// Total number of times OutputPin.Write is called
	outputWriteCounters = metrics.MustRegisterCounterVec(subSystem,
		"output_write_total",
		"Total number of times OutputPin.Write is called",
		"pin")
	// Total number of times OutputPin.Write failed
	outputWriteErrorCounters = metrics.MustRegisterCounterVec(subSystem,
		"output_write_error_total",
		"Total number of times OutputPin.Write failed",
		"pin")
)

// meteredPin counts writes of an output pin.
type meteredPin struct {
	pin   OutputPin
	label string
}

func newMeteredPin(pinNumber int, pin OutputPin) OutputPin {
	return &meteredPin{pin: pin, label: strconv.Itoa(pinNumber)}
}

func (p *meteredPin) Write(value bool) error {
	outputWriteCounters.WithLabelValues(p.label).Inc()
	if err := p.pin.Write(value); err != nil {
		outputWriteErrorCounters.WithLabelValues(p.label).Inc()
		return err
	}
	return nil
}
