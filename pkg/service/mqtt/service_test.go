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
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
	"github.com/binkynet/MotorWorker/pkg/service/motors"
)

func newTestBridge(t *testing.T) (*service, motors.Service, *bridge.VirtualBridge) {
	t.Helper()
	ctx := context.Background()
	pin := func(n int) model.Pin { return model.Pin{DeviceID: "gpio", Pin: n} }
	conf := model.LocalConfiguration{
		Devices: []model.HWDevice{{ID: "gpio", Type: model.HWDeviceTypeGPIO}},
		Drivers: []model.Driver{{
			ID:      "l293d",
			Enable1: pin(1),
			In1:     pin(2),
			In2:     pin(3),
			Enable2: pin(4),
			In3:     pin(5),
			In4:     pin(6),
		}},
		Motors: []model.Motor{{ID: "m1", Driver: "l293d", Channel: 0}},
	}
	br := bridge.NewVirtualBridge()
	devService, err := devices.NewService("test", "", conf.Devices, br, zerolog.Nop())
	if err != nil {
		t.Fatalf("devices.NewService failed: %v", err)
	}
	if err := devService.Configure(ctx); err != nil {
		t.Fatalf("devices.Configure failed: %v", err)
	}
	motorService, err := motors.NewService(conf, devService, zerolog.Nop())
	if err != nil {
		t.Fatalf("motors.NewService failed: %v", err)
	}
	if err := motorService.Configure(ctx); err != nil {
		t.Fatalf("motors.Configure failed: %v", err)
	}
	s, err := NewService(Config{BrokerAddress: "localhost:1883", ModuleID: "Worker1"}, motorService, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s.(*service), motorService, br
}

func TestTopics(t *testing.T) {
	s, _, _ := newTestBridge(t)
	if f := s.commandTopicFilter(); f != "/binky/worker1/motor/+/+/command" {
		t.Errorf("unexpected command topic filter '%s'", f)
	}
	if topic := s.stateTopic("m1"); topic != "/binky/worker1/motor/m1/state" {
		t.Errorf("unexpected state topic '%s'", topic)
	}
}

func TestParseCommandTopic(t *testing.T) {
	s, _, _ := newTestBridge(t)
	tests := []struct {
		Topic   string
		ID      string
		Command string
		Valid   bool
	}{
		{"/binky/worker1/motor/m1/speed/command", "m1", "speed", true},
		{"/binky/worker1/motor/m2/enable/command", "m2", "enable", true},
		{"/binky/other/motor/m1/speed/command", "", "", false},
		{"/binky/worker1/motor/m1/speed", "", "", false},
		{"/binky/worker1/motor//speed/command", "", "", false},
		{"/binky/worker1/servo/m1/speed/command", "", "", false},
	}
	for _, test := range tests {
		id, command, err := s.parseCommandTopic(test.Topic)
		if test.Valid {
			if err != nil {
				t.Errorf("%s: unexpected error %v", test.Topic, err)
			} else if id != test.ID || command != test.Command {
				t.Errorf("%s: expected %s/%s, got %s/%s", test.Topic, test.ID, test.Command, id, command)
			}
		} else if !IsInvalidTopic(err) {
			t.Errorf("%s: expected invalid topic, got %v", test.Topic, err)
		}
	}
}

func TestParseDirection(t *testing.T) {
	tests := map[string]bool{"forward": true, "FWD": true, "reverse": false, "backward": false, "1": true, "off": false}
	for input, expected := range tests {
		v, err := parseDirection(input)
		if err != nil {
			t.Errorf("parseDirection(%q) failed: %v", input, err)
		} else if v != expected {
			t.Errorf("parseDirection(%q): expected %v, got %v", input, expected, v)
		}
	}
	if _, err := parseDirection("sideways"); err == nil {
		t.Error("expected error for 'sideways'")
	}
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	s, motorService, br := newTestBridge(t)
	prefix := "/binky/worker1/motor/m1/"

	if err := s.handleMessage(ctx, prefix+"enable/command", "ON"); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if err := s.handleMessage(ctx, prefix+"speed/command", "200"); err != nil {
		t.Fatalf("speed failed: %v", err)
	}
	if err := s.handleMessage(ctx, prefix+"direction/command", "reverse"); err != nil {
		t.Fatalf("direction failed: %v", err)
	}
	st, err := motorService.Status("m1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Enabled || st.Forward || st.Speed != 200 {
		t.Errorf("unexpected status %+v", st)
	}
	for pin, expected := range map[int]bool{1: true, 2: false, 3: true} {
		if level, _ := br.Level(pin); level != expected {
			t.Errorf("pin %d: expected %v, got %v", pin, expected, level)
		}
	}

	if err := s.handleMessage(ctx, prefix+"enable/command", "OFF"); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if level, _ := br.Level(1); level {
		t.Error("expected enable line to be inactive")
	}
}

func TestHandleMessageErrors(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestBridge(t)
	prefix := "/binky/worker1/motor/m1/"

	if err := s.handleMessage(ctx, prefix+"speed/command", "256"); !IsInvalidPayload(err) {
		t.Errorf("expected invalid payload, got %v", err)
	}
	if err := s.handleMessage(ctx, prefix+"speed/command", "-1"); !IsInvalidPayload(err) {
		t.Errorf("expected invalid payload, got %v", err)
	}
	if err := s.handleMessage(ctx, prefix+"enable/command", "maybe"); !IsInvalidPayload(err) {
		t.Errorf("expected invalid payload, got %v", err)
	}
	if err := s.handleMessage(ctx, prefix+"brake/command", "1"); !IsInvalidTopic(err) {
		t.Errorf("expected invalid topic, got %v", err)
	}
	if err := s.handleMessage(ctx, "/binky/worker1/motor/unknown/speed/command", "1"); !motors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPublishStatusNotConnected(t *testing.T) {
	s, motorService, _ := newTestBridge(t)
	st, _ := motorService.Status("m1")
	if err := s.publishStatus(st); !IsNotConnected(err) {
		t.Errorf("expected not connected, got %v", err)
	}
}

func TestNewServiceWithoutBroker(t *testing.T) {
	if _, err := NewService(Config{ModuleID: "w"}, nil, zerolog.Nop()); !IsInvalidConfig(err) {
		t.Errorf("expected invalid config, got %v", err)
	}
}

func TestPublishNotConnected(t *testing.T) {
	s, _, _ := newTestBridge(t)
	if err := s.Publish(context.Background(), "logs", []byte("{}")); !IsNotConnected(err) {
		t.Errorf("expected not connected, got %v", err)
	}
}

func TestRunWithUnreachableBroker(t *testing.T) {
	_, motorService, _ := newTestBridge(t)
	s, err := NewService(Config{
		BrokerAddress:        "127.0.0.1:1",
		ModuleID:             "worker1",
		ConnectRetryInterval: 10 * time.Millisecond,
	}, motorService, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if ctx.Err() == nil {
			t.Fatalf("Run returned before the context was canceled: %v", err)
		}
		if err != nil {
			t.Errorf("expected Run to end without error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not end after the context was canceled")
	}

	// Motors remain usable
	if err := motorService.Enable(context.Background(), "m1"); err != nil {
		t.Errorf("Enable failed: %v", err)
	}
}
