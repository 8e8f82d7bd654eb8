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
	"github.com/binkynet/MotorWorker/pkg/metrics"
)

const (
	subSystem = "motors"
)

var (
	// Number of motors in the configuration
	motorsCreatedTotal = metrics.MustRegisterGauge(subSystem,
		"motors_created_total",
		"Number of motors in the configuration")

	// Number of configured motors
	motorsConfiguredTotal = metrics.MustRegisterGauge(subSystem,
		"motors_configured_total",
		"Number of configured motors")

	// Motor commands
	motorCommandsTotal = metrics.MustRegisterCounterVec(subSystem,
		"commands_total",
		"Number of motor commands",
		"id", "command")
	motorCommandErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"command_errors_total",
		"Number of failed motor commands",
		"id", "command")

	// Actual motor state
	motorEnabledGauge = metrics.MustRegisterGaugeVec(subSystem,
		"enabled",
		"Power state of motor (0=disabled, 1=enabled)",
		"id")
	motorSpeedGauge = metrics.MustRegisterGaugeVec(subSystem,
		"speed",
		"Last commanded speed of motor (0..255)",
		"id")
	motorDirectionGauge = metrics.MustRegisterGaugeVec(subSystem,
		"direction",
		"Cached direction of motor (0=reverse, 1=forward)",
		"id")
)
