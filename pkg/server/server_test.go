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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
	"github.com/binkynet/MotorWorker/pkg/service/motors"
)

func newTestServer(t *testing.T) (http.Handler, *bridge.VirtualBridge) {
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
		Motors: []model.Motor{
			{ID: "a", Driver: "l293d", Channel: 0},
			{ID: "b", Driver: "l293d", Channel: 1},
		},
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
	s, err := New(Config{ProgramVersion: "test"}, zerolog.Nop(), nil, devService, motorService)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s.newRouter(), br
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) motors.Status {
	t.Helper()
	var st motors.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	return st
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if resp.Status != "OK" || resp.Version != "test" || resp.Uptime == "" {
		t.Errorf("unexpected health response %+v", resp)
	}
	if len(resp.ConfiguredDevices) != 1 || resp.ConfiguredDevices[0] != "gpio" || len(resp.UnconfiguredDevices) != 0 {
		t.Errorf("unexpected device lists %+v", resp)
	}
}

func TestHealthUnconfiguredDevices(t *testing.T) {
	devs := []model.HWDevice{{ID: "gpio", Type: model.HWDeviceTypeGPIO}}
	devService, err := devices.NewService("test", "", devs, bridge.NewVirtualBridge(), zerolog.Nop())
	if err != nil {
		t.Fatalf("devices.NewService failed: %v", err)
	}
	motorService, err := motors.NewService(model.LocalConfiguration{Devices: devs}, devService, zerolog.Nop())
	if err != nil {
		t.Fatalf("motors.NewService failed: %v", err)
	}
	s, err := New(Config{}, zerolog.Nop(), nil, devService, motorService)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rec := do(t, s.newRouter(), http.MethodGet, "/health", "")
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if resp.Status != "DEGRADED" {
		t.Errorf("expected DEGRADED, got %s", resp.Status)
	}
	if len(resp.UnconfiguredDevices) != 1 || resp.UnconfiguredDevices[0] != "gpio" {
		t.Errorf("expected [gpio] unconfigured, got %v", resp.UnconfiguredDevices)
	}
}

func TestListMotors(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/motors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []motors.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestGetMotor(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/motors/b", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if st := decodeStatus(t, rec); st.ID != "b" || st.Channel != 1 || !st.Configured {
		t.Errorf("unexpected status %+v", st)
	}
	if rec := do(t, h, http.MethodGet, "/motors/zz", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMotorCommands(t *testing.T) {
	h, br := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/motors/a/enable", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("enable: expected 200, got %d", rec.Code)
	}
	if st := decodeStatus(t, rec); !st.Enabled {
		t.Errorf("expected enabled, got %+v", st)
	}

	rec = do(t, h, http.MethodPut, "/motors/a/speed", `{"speed": 128}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("speed: expected 200, got %d", rec.Code)
	}
	if st := decodeStatus(t, rec); st.Speed != 128 {
		t.Errorf("expected speed 128, got %+v", st)
	}

	rec = do(t, h, http.MethodPut, "/motors/a/direction", `{"forward": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("direction: expected 200, got %d", rec.Code)
	}
	if st := decodeStatus(t, rec); st.Forward {
		t.Errorf("expected reverse, got %+v", st)
	}
	for pin, expected := range map[int]bool{1: true, 2: false, 3: true} {
		if level, _ := br.Level(pin); level != expected {
			t.Errorf("pin %d: expected %v, got %v", pin, expected, level)
		}
	}

	rec = do(t, h, http.MethodPost, "/motors/a/disable", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", rec.Code)
	}
	if st := decodeStatus(t, rec); st.Enabled {
		t.Errorf("expected disabled, got %+v", st)
	}
}

func TestBadRequests(t *testing.T) {
	h, _ := newTestServer(t)
	tests := []struct {
		Path string
		Body string
	}{
		{"/motors/a/speed", `{"speed": 256}`},
		{"/motors/a/speed", `{"speed": -1}`},
		{"/motors/a/speed", `{}`},
		{"/motors/a/speed", `{"speed": "fast"}`},
		{"/motors/a/direction", `{}`},
		{"/motors/a/direction", `not json`},
	}
	for _, test := range tests {
		if rec := do(t, h, http.MethodPut, test.Path, test.Body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", test.Path, test.Body, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodPut, "/motors/zz/speed", `{"speed": 1}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestIOFailure(t *testing.T) {
	h, br := newTestServer(t)
	br.SetFailure(2, errors.New("injected"))
	if rec := do(t, h, http.MethodPut, "/motors/a/speed", `{"speed": 1}`); rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}
