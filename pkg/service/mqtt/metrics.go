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

package mqtt

import (
	"github.com/binkynet/MotorWorker/pkg/metrics"
)

const (
	subSystem = "mqtt"
)

var (
	// Total number of received command messages
	commandMessagesTotal = metrics.MustRegisterCounterVec(subSystem,
		"command_messages_total",
		"Total number of received motor command messages",
		"command")
	// Total number of rejected command messages
	commandMessageErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"command_message_errors_total",
		"Total number of motor command messages that could not be applied",
		"command")
	// Total number of published state messages
	stateMessagesTotal = metrics.MustRegisterCounter(subSystem,
		"state_messages_total",
		"Total number of published motor state messages")
	// Total number of state messages that could not be published
	stateMessageErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"state_message_errors_total",
		"Total number of motor state messages that could not be published")
)
