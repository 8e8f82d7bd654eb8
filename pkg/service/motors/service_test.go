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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/hbridge"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
)

func testConfig() model.LocalConfiguration {
	pin := func(n int) model.Pin { return model.Pin{DeviceID: "gpio", Pin: n} }
	in4 := pin(6)
	in4.ActiveLow = true
	return model.LocalConfiguration{
		Devices: []model.HWDevice{{ID: "gpio", Type: model.HWDeviceTypeGPIO}},
		Drivers: []model.Driver{{
			ID:      "l293d",
			Enable1: pin(1),
			In1:     pin(2),
			In2:     pin(3),
			Enable2: pin(4),
			In3:     pin(5),
			In4:     in4,
		}},
		Motors: []model.Motor{
			{ID: "left", Driver: "l293d", Channel: 0},
			{ID: "right", Driver: "l293d", Channel: 1, Reversed: true},
		},
	}
}

func newTestService(t *testing.T, conf model.LocalConfiguration) (Service, *bridge.VirtualBridge) {
	t.Helper()
	ctx := context.Background()
	br := bridge.NewVirtualBridge()
	devService, err := devices.NewService("test", "", conf.Devices, br, zerolog.Nop())
	if err != nil {
		t.Fatalf("devices.NewService failed: %v", err)
	}
	if err := devService.Configure(ctx); err != nil {
		t.Fatalf("devices.Configure failed: %v", err)
	}
	s, err := NewService(conf, devService, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s, br
}

func expectLevels(t *testing.T, br *bridge.VirtualBridge, expected map[int]bool) {
	t.Helper()
	for pin, exp := range expected {
		level, configured := br.Level(pin)
		if !configured {
			t.Errorf("pin %d is not configured", pin)
		} else if level != exp {
			t.Errorf("pin %d: expected %v, got %v", pin, exp, level)
		}
	}
}

func TestConfigureInitialState(t *testing.T) {
	s, br := newTestService(t, testConfig())
	if err := s.Configure(context.Background()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	// left: disabled, forward (A=1, B=0)
	// right: disabled, reversed wiring so A=0, B=1 where in4 is active low
	expectLevels(t, br, map[int]bool{1: false, 2: true, 3: false, 4: false, 5: false, 6: false})

	for _, id := range []string{"left", "right"} {
		st, err := s.Status(id)
		if err != nil {
			t.Fatalf("Status(%s) failed: %v", id, err)
		}
		if !st.Configured || st.Enabled || !st.Forward || st.Speed != 0 || st.LastError != "" {
			t.Errorf("unexpected initial status of %s: %+v", id, st)
		}
	}
}

func TestMotorIDs(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	ids := s.MotorIDs()
	if len(ids) != 2 || ids[0] != "left" || ids[1] != "right" {
		t.Errorf("expected [left right], got %v", ids)
	}
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	s, br := newTestService(t, testConfig())
	if err := s.Configure(ctx); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if err := s.Enable(ctx, "left"); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if err := s.SetSpeed(ctx, "left", 100); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	expectLevels(t, br, map[int]bool{1: true, 2: true, 3: false})

	if err := s.SetDirection(ctx, "left", false); err != nil {
		t.Fatalf("SetDirection failed: %v", err)
	}
	expectLevels(t, br, map[int]bool{1: true, 2: false, 3: true})

	if err := s.SetSpeed(ctx, "left", 0); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	expectLevels(t, br, map[int]bool{1: true, 2: false, 3: false})

	st, _ := s.Status("left")
	if !st.Enabled || st.Forward || st.Speed != 0 {
		t.Errorf("unexpected status: %+v", st)
	}

	if err := s.Disable(ctx, "left"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	expectLevels(t, br, map[int]bool{1: false})

	// Reversed motor, in4 active low
	if err := s.SetSpeed(ctx, "right", 1); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	expectLevels(t, br, map[int]bool{5: false, 6: false})
	if err := s.SetDirection(ctx, "right", false); err != nil {
		t.Fatalf("SetDirection failed: %v", err)
	}
	expectLevels(t, br, map[int]bool{5: true, 6: true})
}

func TestUnknownMotor(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, testConfig())
	if err := s.Configure(ctx); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := s.Status("middle"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := s.Enable(ctx, "middle"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := s.SetSpeed(ctx, "middle", 1); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	if err := s.Enable(context.Background(), "left"); !IsNotConfigured(err) {
		t.Errorf("expected not configured, got %v", err)
	}
	st, err := s.Status("left")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Configured {
		t.Error("expected motor to be unconfigured")
	}
}

func TestConfigureFailure(t *testing.T) {
	ctx := context.Background()
	s, br := newTestService(t, testConfig())
	injected := errors.New("injected")
	br.SetFailure(4, injected)
	err := s.Configure(ctx)
	if err == nil {
		t.Fatal("expected Configure to fail")
	}
	if st, _ := s.Status("left"); !st.Configured {
		t.Error("expected left to be configured")
	}
	st, _ := s.Status("right")
	if st.Configured || st.LastError == "" {
		t.Errorf("expected right to be unconfigured with error, got %+v", st)
	}
	if err := s.SetSpeed(ctx, "right", 1); !IsNotConfigured(err) {
		t.Errorf("expected not configured, got %v", err)
	}
}

func TestConfigureInvalidDriverPin(t *testing.T) {
	ctx := context.Background()
	conf := testConfig()
	conf.Drivers[0].In3.Pin = 100
	s, _ := newTestService(t, conf)
	if err := s.Configure(ctx); err == nil {
		t.Fatal("expected Configure to fail")
	}
	for _, id := range s.MotorIDs() {
		st, err := s.Status(id)
		if err != nil {
			t.Fatalf("Status(%s) failed: %v", id, err)
		}
		if st.Configured {
			t.Errorf("expected %s to be unconfigured", id)
		}
		if !strings.Contains(st.LastError, "out of range") {
			t.Errorf("expected %s to report its configuration error, got '%s'", id, st.LastError)
		}
	}
}

func TestConfigureUnconfiguredDevice(t *testing.T) {
	ctx := context.Background()
	conf := testConfig()
	br := bridge.NewVirtualBridge()
	devService, err := devices.NewService("test", "", conf.Devices, br, zerolog.Nop())
	if err != nil {
		t.Fatalf("devices.NewService failed: %v", err)
	}
	// Devices are not configured
	s, err := NewService(conf, devService, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if err := s.Configure(ctx); err == nil {
		t.Fatal("expected Configure to fail")
	}
	st, _ := s.Status("left")
	if st.Configured || st.LastError == "" {
		t.Errorf("expected left to be unconfigured with error, got %+v", st)
	}
}

func TestCommandIOFailure(t *testing.T) {
	ctx := context.Background()
	s, br := newTestService(t, testConfig())
	if err := s.Configure(ctx); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	injected := errors.New("injected")
	br.SetFailure(3, injected)

	err := s.SetDirection(ctx, "left", false)
	if !hbridge.IsIOFailure(err) {
		t.Fatalf("expected IO failure, got %v", err)
	}
	if !errors.Is(err, injected) {
		t.Errorf("expected injected error to be reachable, got %v", err)
	}
	// Line A is still written
	expectLevels(t, br, map[int]bool{2: false})

	st, _ := s.Status("left")
	if !st.Forward {
		t.Error("expected direction to remain forward after failure")
	}
	if st.LastError == "" {
		t.Error("expected last error to be set")
	}

	br.SetFailure(3, nil)
	if err := s.SetDirection(ctx, "left", false); err != nil {
		t.Fatalf("SetDirection failed: %v", err)
	}
	st, _ = s.Status("left")
	if st.Forward || st.LastError != "" {
		t.Errorf("unexpected status after recovery: %+v", st)
	}
}

func TestSubscribeStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, testConfig())
	if err := s.Configure(ctx); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	statuses := make(chan Status, 8)
	cancel := s.SubscribeStatus(func(st Status) {
		statuses <- st
	})
	defer cancel()

	if err := s.SetSpeed(ctx, "right", 42); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	select {
	case st := <-statuses:
		if st.ID != "right" || st.Speed != 42 {
			t.Errorf("unexpected status: %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("no status received")
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s, br := newTestService(t, testConfig())
	if err := s.Configure(ctx); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	for _, id := range s.MotorIDs() {
		if err := s.Enable(ctx, id); err != nil {
			t.Fatalf("Enable failed: %v", err)
		}
		if err := s.SetSpeed(ctx, id, 255); err != nil {
			t.Fatalf("SetSpeed failed: %v", err)
		}
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	expectLevels(t, br, map[int]bool{1: false, 2: false, 3: false, 4: false, 5: false, 6: true})
	for _, id := range s.MotorIDs() {
		st, _ := s.Status(id)
		if st.Enabled || st.Speed != 0 {
			t.Errorf("expected %s to be stopped, got %+v", id, st)
		}
	}
}

func TestNewServiceInvalidConfig(t *testing.T) {
	conf := testConfig()
	conf.Motors[1].Channel = 0
	br := bridge.NewVirtualBridge()
	devService, err := devices.NewService("test", "", conf.Devices, br, zerolog.Nop())
	if err != nil {
		t.Fatalf("devices.NewService failed: %v", err)
	}
	if _, err := NewService(conf, devService, zerolog.Nop()); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
