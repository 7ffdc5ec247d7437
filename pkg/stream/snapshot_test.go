// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"bytes"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/provisioner/pkg/flasher"
)

func TestFromState(t *testing.T) {
	started := time.Date(2025, 7, 1, 8, 30, 0, 0, time.UTC)
	st := flasher.State{
		Status:    flasher.Status{Code: flasher.Flashing, Message: "Flashing CC01-25070001..."},
		Busy:      true,
		Logs:      "Starting flash\nSSID: CC01-25070001",
		LogTotal:  2,
		SessionID: "3f8a",
		Serial:    "CC01-25070001",
		StartedAt: started,
	}

	s := FromState(st)
	if s.Code != "flashing" || !s.Busy || s.Logs != st.Logs || s.LogTotal != 2 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.StartedAt != started.UnixMilli() || s.FinishedAt != 0 {
		t.Errorf("times = %d, %d", s.StartedAt, s.FinishedAt)
	}
	if !s.Started().Equal(started) {
		t.Errorf("Started = %v", s.Started())
	}
	if s.Terminal() {
		t.Error("flashing snapshot reported terminal")
	}
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"ready", Snapshot{Code: "ready", Message: flasher.MsgReady}},
		{"failed", Snapshot{Code: "failed", Message: "Failed flashing X. Retry.", Logs: "a\nb", LastError: "runtime", FinishedAt: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.snap)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tt.snap {
				t.Errorf("got %+v, want %+v", got, tt.snap)
			}
		})
	}
}

func TestEncode_IntegerKeys(t *testing.T) {
	data, err := Encode(Snapshot{Code: "success", Message: "ok"})
	if err != nil {
		t.Fatal(err)
	}

	var m map[int]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		t.Fatalf("frame is not an int-keyed map: %v", err)
	}
	if m[0] != "success" || m[1] != "ok" {
		t.Errorf("map = %v", m)
	}
	if _, ok := m[4]; ok {
		t.Error("empty session id should be omitted")
	}

	again, _ := Encode(Snapshot{Code: "success", Message: "ok"})
	if !bytes.Equal(data, again) {
		t.Error("encoding is not deterministic")
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Error("empty frame accepted")
	}
	if _, err := Decode([]byte{0xFF, 0x00}); err == nil {
		t.Error("garbage accepted")
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		snap      Snapshot
		terminal  bool
		succeeded bool
	}{
		{Snapshot{Code: "ready"}, false, false},
		{Snapshot{Code: "flashing", Busy: true}, false, false},
		{Snapshot{Code: "success"}, true, true},
		{Snapshot{Code: "failed"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.snap.Code, func(t *testing.T) {
			if tt.snap.Terminal() != tt.terminal || tt.snap.Succeeded() != tt.succeeded {
				t.Errorf("Terminal=%v Succeeded=%v", tt.snap.Terminal(), tt.snap.Succeeded())
			}
		})
	}
}
