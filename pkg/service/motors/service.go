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
	"sort"
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/mattn/go-pubsub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/hbridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
)

// Service contains the API that is exposed by the motor service.
type Service interface {
	// Configure is called once to put all motors in their initial state.
	Configure(ctx context.Context) error
	// Close brings all motors back to a safe state.
	Close(ctx context.Context) error
	// MotorIDs returns the sorted IDs of all motors.
	MotorIDs() []string
	// Status returns the status of the motor with given ID.
	Status(id string) (Status, error)

	// Enable the motor with given ID.
	Enable(ctx context.Context, id string) error
	// Disable the motor with given ID.
	Disable(ctx context.Context, id string) error
	// SetSpeed of the motor with given ID.
	SetSpeed(ctx context.Context, id string, speed uint8) error
	// SetDirection of the motor with given ID (true=forward).
	SetDirection(ctx context.Context, id string, forward bool) error

	// SubscribeStatus registers a callback that is called with the
	// status of a motor after every command.
	// Call the returned function to unsubscribe.
	SubscribeStatus(cb func(Status)) context.CancelFunc
}

type service struct {
	log         zerolog.Logger
	config      model.LocalConfiguration
	devService  devices.Service
	mutex       sync.Mutex
	controllers map[string]*hbridge.Controller
	driverPins  map[string]map[string]*devicePin
	motors      map[string]*motor
	statuses    *pubsub.PubSub
}

// NewService creates a new motor service for the given configuration.
// Motors are created during Configure.
func NewService(config model.LocalConfiguration, devService devices.Service, log zerolog.Logger) (Service, error) {
	if err := config.Validate(); err != nil {
		return nil, maskAny(err)
	}
	s := &service{
		log:         log.With().Str("component", "motor-service").Logger(),
		config:      config,
		devService:  devService,
		controllers: make(map[string]*hbridge.Controller),
		driverPins:  make(map[string]map[string]*devicePin),
		motors:      make(map[string]*motor),
		statuses:    pubsub.New(),
	}
	for _, mc := range config.Motors {
		s.motors[mc.ID] = &motor{
			log:    s.log.With().Str("motor-id", mc.ID).Logger(),
			config: mc,
		}
	}
	motorsCreatedTotal.Set(float64(len(s.motors)))
	return s, nil
}

// Configure is called once to put all motors in their initial state.
// Motors that fail to configure are left unconfigured and do not
// accept commands.
func (s *service) Configure(ctx context.Context) error {
	var ae aerr.AggregateError
	configured := 0
	for _, id := range s.MotorIDs() {
		m := s.motors[id]
		log := m.log
		log.Debug().Msg("configuring motor...")
		if err := s.configureMotor(ctx, m); err != nil {
			log.Error().Err(err).Msg("Failed to configure motor")
			ae.Add(errors.Wrapf(err, "motor '%s'", id))
		} else {
			configured++
			log.Info().
				Str("driver", m.config.Driver).
				Int("channel", m.config.Channel).
				Bool("reversed", m.config.Reversed).
				Msg("Initialization complete")
		}
	}
	s.log.Info().Int("count", configured).Msg("Configured motors")
	motorsConfiguredTotal.Set(float64(configured))
	return ae.AsError()
}

func (s *service) configureMotor(ctx context.Context, m *motor) (err error) {
	defer func() {
		if err != nil {
			m.mutex.Lock()
			m.lastErr = err
			m.mutex.Unlock()
		}
	}()
	ctrl, err := s.getController(m.config.Driver)
	if err != nil {
		return err
	}
	ch, err := hbridge.NewChannel(ctrl, m.config.Channel, m.config.Reversed)
	if err != nil {
		return err
	}
	drv, _ := s.config.DriverByID(m.config.Driver)
	enPin, aPin, bPin, err := drv.ChannelPins(m.config.Channel)
	if err != nil {
		return err
	}
	pins := s.driverPins[ctrl.ID()]

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.channel = ch
	m.lines = [3]*devicePin{pins[enPin.String()], pins[aPin.String()], pins[bPin.String()]}
	return m.configure(ctx)
}

// getController returns the controller of the driver with given ID,
// creating it when needed.
func (s *service) getController(driverID string) (*hbridge.Controller, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if ctrl, found := s.controllers[driverID]; found {
		return ctrl, nil
	}
	drv, found := s.config.DriverByID(driverID)
	if !found {
		return nil, errors.Wrapf(NotFoundError, "driver '%s'", driverID)
	}
	pins := make(map[string]*devicePin)
	line := func(p model.Pin) (*devicePin, error) {
		dev, found := s.devService.DeviceByID(p.DeviceID)
		if !found {
			return nil, errors.Wrapf(NotConfiguredError, "device '%s' of pin %s in driver '%s'", p.DeviceID, p, driverID)
		}
		gpio, ok := dev.(devices.GPIO)
		if !ok {
			return nil, errors.Wrapf(model.ValidationError, "device '%s' in driver '%s' is not a GPIO", p.DeviceID, driverID)
		}
		if uint(p.Pin) > gpio.PinCount() {
			return nil, errors.Wrapf(model.ValidationError, "pin %s in driver '%s' is out of range [1..%d]", p, driverID, gpio.PinCount())
		}
		dp := &devicePin{device: gpio, pin: p}
		pins[p.String()] = dp
		return dp, nil
	}
	var enable [hbridge.ChannelCount]hbridge.Line
	var inputs [hbridge.ChannelCount][2]hbridge.Line
	for ch := 0; ch < hbridge.ChannelCount; ch++ {
		enPin, aPin, bPin, err := drv.ChannelPins(ch)
		if err != nil {
			return nil, err
		}
		en, err := line(enPin)
		if err != nil {
			return nil, err
		}
		a, err := line(aPin)
		if err != nil {
			return nil, err
		}
		b, err := line(bPin)
		if err != nil {
			return nil, err
		}
		enable[ch] = en
		inputs[ch] = [2]hbridge.Line{a, b}
	}
	ctrl, err := hbridge.NewController(driverID, enable, inputs)
	if err != nil {
		return nil, err
	}
	s.controllers[driverID] = ctrl
	s.driverPins[driverID] = pins
	return ctrl, nil
}

// Close brings all motors back to a safe state.
func (s *service) Close(ctx context.Context) error {
	var ae aerr.AggregateError
	for _, id := range s.MotorIDs() {
		m := s.motors[id]
		m.mutex.Lock()
		if m.configured {
			if err := m.channel.SetSpeed(ctx, 0); err != nil {
				m.log.Warn().Err(err).Msg("Failed to stop motor")
				ae.Add(err)
			} else {
				m.speed = 0
			}
			if err := m.channel.Disable(ctx); err != nil {
				m.log.Warn().Err(err).Msg("Failed to disable motor")
				ae.Add(err)
			}
			m.updateMetrics()
		}
		m.mutex.Unlock()
	}
	return ae.AsError()
}

// MotorIDs returns the sorted IDs of all motors.
func (s *service) MotorIDs() []string {
	ids := lo.Keys(s.motors)
	sort.Strings(ids)
	return ids
}

// Status returns the status of the motor with given ID.
func (s *service) Status(id string) (Status, error) {
	m, found := s.motors[id]
	if !found {
		return Status{}, errors.Wrapf(NotFoundError, "motor '%s'", id)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.status(), nil
}

// Enable the motor with given ID.
func (s *service) Enable(ctx context.Context, id string) error {
	return s.command(ctx, id, "enable", func(m *motor) error {
		return m.channel.Enable(ctx)
	})
}

// Disable the motor with given ID.
func (s *service) Disable(ctx context.Context, id string) error {
	return s.command(ctx, id, "disable", func(m *motor) error {
		return m.channel.Disable(ctx)
	})
}

// SetSpeed of the motor with given ID.
func (s *service) SetSpeed(ctx context.Context, id string, speed uint8) error {
	return s.command(ctx, id, "speed", func(m *motor) error {
		if err := m.channel.SetSpeed(ctx, speed); err != nil {
			return err
		}
		m.speed = speed
		return nil
	})
}

// SetDirection of the motor with given ID (true=forward).
func (s *service) SetDirection(ctx context.Context, id string, forward bool) error {
	return s.command(ctx, id, "direction", func(m *motor) error {
		return m.channel.SetDirection(ctx, forward)
	})
}

// command runs the given operation on the motor with given ID,
// holding its mutex.
func (s *service) command(ctx context.Context, id, name string, op func(m *motor) error) error {
	m, found := s.motors[id]
	if !found {
		return errors.Wrapf(NotFoundError, "motor '%s'", id)
	}
	m.mutex.Lock()
	if !m.configured {
		m.mutex.Unlock()
		return errors.Wrapf(NotConfiguredError, "motor '%s'", id)
	}
	motorCommandsTotal.WithLabelValues(id, name).Inc()
	err := op(m)
	if err != nil {
		motorCommandErrorsTotal.WithLabelValues(id, name).Inc()
		m.log.Warn().Err(err).Str("command", name).Msg("Motor command failed")
	} else {
		m.log.Debug().Str("command", name).Msg("Motor command applied")
	}
	m.lastErr = err
	m.updateMetrics()
	status := m.status()
	m.mutex.Unlock()

	s.statuses.Pub(status)
	return err
}

// SubscribeStatus registers a callback that is called with the
// status of a motor after every command.
func (s *service) SubscribeStatus(cb func(Status)) context.CancelFunc {
	wcb := func(x Status) {
		cb(x)
	}
	s.statuses.Sub(wcb)
	return func() {
		s.statuses.Leave(wcb)
	}
}
