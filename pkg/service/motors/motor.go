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
	"sync"

	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/hbridge"
)

// Status of a single motor.
type Status struct {
	// ID of the motor
	ID string `json:"id"`
	// ID of the driver
	Driver string `json:"driver"`
	// Channel of the driver
	Channel int `json:"channel"`
	// Wiring of the motor is reversed
	Reversed bool `json:"reversed"`
	// Set when the motor is ready to accept commands
	Configured bool `json:"configured"`
	// Last applied power state
	Enabled bool `json:"enabled"`
	// Cached logical direction
	Forward bool `json:"forward"`
	// Last commanded speed
	Speed uint8 `json:"speed"`
	// Error of the last failing command (if any)
	LastError string `json:"lastError,omitempty"`
}

type motor struct {
	mutex   sync.Mutex
	log     zerolog.Logger
	config  model.Motor
	lines   [3]*devicePin
	channel *hbridge.Channel
	// Set when configure succeeded
	configured bool
	speed      uint8
	lastErr    error
}

// configure puts the lines of the motor in output mode and brings the
// motor into its initial state (disabled, stopped, forward).
// The mutex must be held when calling this function.
func (m *motor) configure(ctx context.Context) error {
	for _, l := range m.lines {
		if err := l.configure(ctx); err != nil {
			m.log.Error().Err(err).Str("line", l.Name()).Msg("Failed to configure line as output")
			return err
		}
	}
	if err := m.channel.Disable(ctx); err != nil {
		m.log.Error().Err(err).Msg("Error initially disabling motor")
		return err
	}
	if err := m.channel.SetSpeed(ctx, 0); err != nil {
		m.log.Error().Err(err).Msg("Error initially stopping motor")
		return err
	}
	m.speed = 0
	if err := m.channel.SetDirection(ctx, true); err != nil {
		m.log.Error().Err(err).Msg("Error setting initial direction")
		return err
	}
	m.configured = true
	m.updateMetrics()
	return nil
}

// status returns the current status of the motor.
// The mutex must be held when calling this function.
func (m *motor) status() Status {
	s := Status{
		ID:       m.config.ID,
		Driver:   m.config.Driver,
		Channel:  m.config.Channel,
		Reversed: m.config.Reversed,
		Forward:  true,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	if m.configured {
		s.Configured = true
		s.Enabled = m.channel.Enabled()
		s.Forward = m.channel.Direction()
		s.Speed = m.speed
	}
	return s
}

// updateMetrics publishes the state of the motor into metrics.
// The mutex must be held when calling this function.
func (m *motor) updateMetrics() {
	id := m.config.ID
	motorEnabledGauge.WithLabelValues(id).Set(boolToFloat(m.channel.Enabled()))
	motorSpeedGauge.WithLabelValues(id).Set(float64(m.speed))
	motorDirectionGauge.WithLabelValues(id).Set(boolToFloat(m.channel.Direction()))
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
