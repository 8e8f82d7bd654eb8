// Copyright 2017 Ewout Prangsma
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
	"errors"
	"testing"
)

func TestVirtualBridgeOutput(t *testing.T) {
	b := NewVirtualBridge()
	if _, err := b.Output(0, false, false); err == nil {
		t.Error("expected pin 0 to be rejected")
	}
	if _, err := b.Output(virtualPinCount+1, false, false); err == nil {
		t.Error("expected pin out of range to be rejected")
	}

	pin, err := b.Output(4, false, true)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if level, configured := b.Level(4); !configured || !level {
		t.Errorf("expected pin 4 high, got level=%v configured=%v", level, configured)
	}
	if err := pin.Write(false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if level, _ := b.Level(4); level {
		t.Error("expected pin 4 low")
	}
	if b.Writes(4) != 2 {
		t.Errorf("expected 2 writes, got %d", b.Writes(4))
	}
	if _, configured := b.Level(5); configured {
		t.Error("pin 5 must not be configured")
	}
}

func TestVirtualBridgeActiveLow(t *testing.T) {
	b := NewVirtualBridge()
	pin, err := b.Output(7, true, false)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if level, _ := b.Level(7); !level {
		t.Error("inactive active-low pin must be electrically high")
	}
	if err := pin.Write(true); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if level, _ := b.Level(7); level {
		t.Error("active active-low pin must be electrically low")
	}
}

func TestVirtualBridgeFailure(t *testing.T) {
	b := NewVirtualBridge()
	pin, err := b.Output(3, false, false)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	injected := errors.New("injected")
	b.SetFailure(3, injected)
	if err := pin.Write(true); err != injected {
		t.Errorf("expected injected error, got %v", err)
	}
	if level, _ := b.Level(3); level {
		t.Error("failed write must not change the level")
	}
	b.SetFailure(3, nil)
	if err := pin.Write(true); err != nil {
		t.Errorf("expected write to succeed, got %v", err)
	}
}

func TestVirtualBridgeInvalidPin(t *testing.T) {
	b := NewVirtualBridge()
	for _, pin := range []int{0, -1, b.PinCount() + 1} {
		if _, err := b.Output(pin, false, false); !IsInvalidPin(err) {
			t.Errorf("pin %d: expected invalid pin, got %v", pin, err)
		}
	}
}
