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
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/pkg/service/devices"
	"github.com/binkynet/MotorWorker/pkg/service/motors"
)

const (
	commandEnable    = "enable"
	commandSpeed     = "speed"
	commandDirection = "direction"

	publishTimeout              = time.Millisecond * 500
	defaultConnectRetryInterval = time.Second * 5
	commandTimeout              = time.Second * 2
)

// Config of the MQTT bridge.
type Config struct {
	// Address (host:port) of the MQTT broker
	BrokerAddress string
	// ID of the worker, used for the client ID & default topic prefix
	ModuleID string
	// Prefix of all topics. Defaults to /binky/<moduleID>/
	TopicPrefix string
	// Time between connection attempts. Defaults to 5s
	ConnectRetryInterval time.Duration
}

// Service contains the API exposed by the MQTT bridge.
type Service interface {
	// Run the bridge until the given context is canceled.
	Run(ctx context.Context) error
	// Publish a raw payload into the topic with given name.
	// The name is relative to the topic prefix.
	Publish(ctx context.Context, topic string, payload []byte) error
}

type service struct {
	Config
	log    zerolog.Logger
	motors motors.Service

	mutex  sync.Mutex
	client mqttapi.Client
}

// NewService creates a bridge that applies motor commands received
// through MQTT and publishes the state of motors.
func NewService(config Config, motorService motors.Service, log zerolog.Logger) (Service, error) {
	if config.BrokerAddress == "" {
		return nil, errors.Wrap(InvalidConfigError, "BrokerAddress is empty")
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = devices.DefaultMQTTTopicPrefix(config.ModuleID)
	}
	config.TopicPrefix = strings.TrimSuffix(config.TopicPrefix, "/") + "/"
	if config.ConnectRetryInterval == 0 {
		config.ConnectRetryInterval = defaultConnectRetryInterval
	}
	return &service{
		Config: config,
		log:    log.With().Str("component", "mqtt").Logger(),
		motors: motorService,
	}, nil
}

// commandTopicFilter returns the topic filter that matches all
// motor command topics.
func (s *service) commandTopicFilter() string {
	return s.TopicPrefix + "motor/+/+/command"
}

// stateTopic returns the topic that the state of the motor with
// given ID is published in.
func (s *service) stateTopic(id string) string {
	return fmt.Sprintf("%smotor/%s/state", s.TopicPrefix, id)
}

// Run the bridge until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	filter := s.commandTopicFilter()
	log := s.log.With().Str("topic", filter).Logger()

	opts := devices.DefaultMQTTClientOptions(s.BrokerAddress, s.ModuleID+"-motors")
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		log.Debug().Msg("Connected to MQTT")
		if token := c.Subscribe(filter, 1, s.onMessage); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Msg("Failed to subscribe to motor commands")
			c.Disconnect(500)
			return
		}
		log.Debug().Msg("Subscribed to motor commands")
		go s.publishAll()
	})

	client := mqttapi.NewClient(opts)
	s.mutex.Lock()
	s.client = client
	s.mutex.Unlock()
	defer func() {
		s.mutex.Lock()
		s.client = nil
		s.mutex.Unlock()
	}()

	// Keep trying to connect until the context ends.
	for {
		log.Debug().Msg("Connecting to MQTT...")
		token := client.Connect()
		select {
		case <-token.Done():
		case <-ctx.Done():
			return nil
		}
		err := token.Error()
		if err == nil {
			break
		}
		log.Warn().Err(err).
			Dur("retry-interval", s.ConnectRetryInterval).
			Msg("Failed to connect to MQTT")
		select {
		case <-time.After(s.ConnectRetryInterval):
		case <-ctx.Done():
			return nil
		}
	}

	cancel := s.motors.SubscribeStatus(func(st motors.Status) {
		if err := s.publishStatus(st); err != nil {
			s.log.Warn().Err(err).Str("motor-id", st.ID).Msg("Failed to publish motor state")
		}
	})
	defer cancel()

	<-ctx.Done()

	client.Disconnect(250)
	return nil
}

// publishAll publishes the state of all motors.
func (s *service) publishAll() {
	for _, id := range s.motors.MotorIDs() {
		st, err := s.motors.Status(id)
		if err != nil {
			continue
		}
		if err := s.publishStatus(st); err != nil {
			s.log.Warn().Err(err).Str("motor-id", id).Msg("Failed to publish motor state")
		}
	}
}

// publishStatus publishes the given motor status as retained JSON message.
func (s *service) publishStatus(st motors.Status) error {
	s.mutex.Lock()
	client := s.client
	s.mutex.Unlock()
	if client == nil {
		return errors.Wrapf(NotConnectedError, "publish state of '%s'", st.ID)
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return maskAny(err)
	}
	topic := s.stateTopic(st.ID)
	token := client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		stateMessageErrorsTotal.Inc()
		return errors.Wrapf(TimeoutError, "publish to '%s'", topic)
	}
	if err := token.Error(); err != nil {
		stateMessageErrorsTotal.Inc()
		return errors.Wrapf(err, "publish to '%s' failed", topic)
	}
	stateMessagesTotal.Inc()
	return nil
}

// Publish a raw payload into the topic with given name.
// The name is relative to the topic prefix.
func (s *service) Publish(ctx context.Context, topic string, payload []byte) error {
	s.mutex.Lock()
	client := s.client
	s.mutex.Unlock()
	if client == nil {
		return errors.Wrapf(NotConnectedError, "publish to '%s'", topic)
	}
	topic = s.TopicPrefix + topic
	token := client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		return maskAny(token.Error())
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return errors.Wrapf(TimeoutError, "publish to '%s'", topic)
	}
}

// Receive command messages
func (s *service) onMessage(client mqttapi.Client, msg mqttapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	topic := msg.Topic()
	payload := strings.TrimSpace(string(msg.Payload()))
	log := s.log.With().
		Str("topic", topic).
		Str("payload", payload).
		Logger()
	log.Debug().Msg("received motor command")
	if err := s.handleMessage(ctx, topic, payload); err != nil {
		log.Warn().Err(err).Msg("Failed to apply motor command")
	}
}

// handleMessage applies the command in the given message.
func (s *service) handleMessage(ctx context.Context, topic, payload string) error {
	id, command, err := s.parseCommandTopic(topic)
	if err != nil {
		return err
	}
	commandMessagesTotal.WithLabelValues(command).Inc()
	if err := s.applyCommand(ctx, id, command, payload); err != nil {
		commandMessageErrorsTotal.WithLabelValues(command).Inc()
		return err
	}
	return nil
}

func (s *service) applyCommand(ctx context.Context, id, command, payload string) error {
	switch command {
	case commandEnable:
		enabled, err := devices.ParseBool(payload)
		if err != nil {
			return errors.Wrapf(InvalidPayloadError, "%s: %s", command, err)
		}
		if enabled {
			return s.motors.Enable(ctx, id)
		}
		return s.motors.Disable(ctx, id)
	case commandSpeed:
		speed, err := strconv.ParseUint(payload, 10, 8)
		if err != nil {
			return errors.Wrapf(InvalidPayloadError, "%s: expected 0..255, got '%s'", command, payload)
		}
		return s.motors.SetSpeed(ctx, id, uint8(speed))
	case commandDirection:
		forward, err := parseDirection(payload)
		if err != nil {
			return errors.Wrapf(InvalidPayloadError, "%s: %s", command, err)
		}
		return s.motors.SetDirection(ctx, id, forward)
	default:
		return errors.Wrapf(InvalidTopicError, "unknown command '%s'", command)
	}
}

// parseCommandTopic splits a command topic into motor ID & command.
func (s *service) parseCommandTopic(topic string) (id, command string, err error) {
	if !strings.HasPrefix(topic, s.TopicPrefix) {
		return "", "", errors.Wrapf(InvalidTopicError, "'%s' does not start with '%s'", topic, s.TopicPrefix)
	}
	parts := strings.Split(strings.TrimPrefix(topic, s.TopicPrefix), "/")
	if len(parts) != 4 || parts[0] != "motor" || parts[1] == "" || parts[3] != "command" {
		return "", "", errors.Wrapf(InvalidTopicError, "'%s' is not a motor command topic", topic)
	}
	return parts[1], parts[2], nil
}

// parseDirection parses a direction payload (true=forward).
func parseDirection(str string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "forward", "fwd":
		return true, nil
	case "reverse", "rev", "backward":
		return false, nil
	}
	return devices.ParseBool(str)
}
