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

package devices

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/model"
)

type mqttGPIO struct {
	log               zerolog.Logger
	mutex             sync.Mutex
	onActive          func()
	id                string
	topicPrefix       string
	mqttClientID      string
	mqttBrokerAddress string

	outputs       []bool
	client        mqttapi.Client
	commandTopics map[int]string
}

const (
	mqttPinCount       = 256
	mqttPublishTimeout = time.Millisecond * 200
)

// newMQTTGPIO creates a virtual MQTT gpio device with given config.
func newMQTTGPIO(log zerolog.Logger, config model.HWDevice, onActive func(), moduleID, mqttBrokerAddress string) (GPIO, error) {
	if config.Type != model.HWDeviceTypeMQTTGPIO {
		return nil, errors.Wrapf(model.ValidationError, "Invalid device type '%s'", string(config.Type))
	}
	topicPrefix := config.Address
	if topicPrefix == "" {
		topicPrefix = DefaultMQTTTopicPrefix(moduleID) + config.ID
	}
	topicPrefix = strings.TrimSuffix(topicPrefix, "/") + "/"
	gpio := &mqttGPIO{
		log:               log.With().Str("device-id", config.ID).Logger(),
		onActive:          onActive,
		id:                config.ID,
		topicPrefix:       topicPrefix,
		mqttClientID:      fmt.Sprintf("%s-%s", moduleID, config.ID),
		mqttBrokerAddress: mqttBrokerAddress,
		outputs:           make([]bool, mqttPinCount),
		commandTopics:     make(map[int]string),
	}
	for pin := 1; uint(pin) <= gpio.PinCount(); pin++ {
		gpio.commandTopics[pin] = fmt.Sprintf("%spin%d/command", topicPrefix, pin)
	}
	return gpio, nil
}

// DefaultMQTTTopicPrefix returns the default MQTT topic prefix for the
// worker with given module ID.
func DefaultMQTTTopicPrefix(moduleID string) string {
	return strings.ToLower(fmt.Sprintf("/binky/%s/", moduleID))
}

// DefaultMQTTClientOptions returns the MQTT client options used by all
// MQTT clients of the worker.
func DefaultMQTTClientOptions(mqttBrokerAddress, clientID string) *mqttapi.ClientOptions {
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + mqttBrokerAddress).
		SetClientID(clientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	return opts
}

// ID returns the unique identifier of the device.
func (d *mqttGPIO) ID() string {
	return d.id
}

// Configure is called once to put the device in the desired state.
func (d *mqttGPIO) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// Prepare MQTT client options
	opts := DefaultMQTTClientOptions(d.mqttBrokerAddress, d.mqttClientID)
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		d.log.Debug().Msg("Connected to MQTT")
		d.onActive()
	})

	// Connect client
	client := mqttapi.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "failed to connect to mqtt")
	}
	d.client = client
	return nil
}

// Close brings the device back to a safe state.
func (d *mqttGPIO) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.client != nil {
		d.client.Disconnect(250)
		d.client = nil
	}

	// Restore all to defaults
	for i := range d.outputs {
		d.outputs[i] = false
	}
	d.onActive()
	return nil
}

// PinCount returns the number of pins of the device
func (d *mqttGPIO) PinCount() uint {
	return mqttPinCount
}

// ConfigureOutput configures the pin at given index (1...) as output
// with given initial value.
func (d *mqttGPIO) ConfigureOutput(ctx context.Context, pin int, initialValue bool) error {
	if pin < 1 || uint(pin) > d.PinCount() {
		return errors.Wrapf(InvalidPinError, "pin %d of '%s'", pin, d.id)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.outputs[pin-1] = true
	return d.publish(pin, initialValue)
}

// Set the pin at given index (1...) to the given value
func (d *mqttGPIO) Set(ctx context.Context, pin int, value bool) error {
	if pin < 1 || uint(pin) > d.PinCount() {
		return errors.Wrapf(InvalidPinError, "pin %d of '%s'", pin, d.id)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.outputs[pin-1] {
		return errors.Wrapf(NotConfiguredError, "pin %d of '%s'", pin, d.id)
	}
	return d.publish(pin, value)
}

// publish the command for the given pin.
// The mutex must be held when calling this function.
func (d *mqttGPIO) publish(pin int, value bool) error {
	if d.client == nil {
		return errors.Wrapf(NotConnectedError, "device '%s'", d.id)
	}
	topic := d.commandTopics[pin]
	payload := formatBool(value)
	retain := true
	token := d.client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		mqttPublishTimeoutsTotal.WithLabelValues(d.id).Inc()
		d.log.Error().
			Str("topic", topic).
			Str("payload", payload).
			Msg("failed to deliver MQTT command in time")
		return errors.Wrapf(TimeoutError, "publish to '%s'", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish to '%s' failed", topic)
	}
	d.onActive()
	return nil
}

// ParseBool parses a string into a bool
func ParseBool(str string) (bool, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	switch str {
	case "1", "t", "true", "on", "yes":
		return true, nil
	case "0", "f", "false", "off", "no":
		return false, nil
	}
	return false, errors.Errorf("invalid bool value '%s'", str)
}

// format a bool as string
func formatBool(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
