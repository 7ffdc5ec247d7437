// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package stream defines the CBOR frames pushed to WebSocket clients each
// time the flash state changes.
//
// A frame is a CBOR map with small integer keys so it stays compact when the
// log is short:
//
//	0: status code (text)
//	1: status message (text)
//	2: busy (bool)
//	3: logs (text, lines joined with "\n")
//	4: session id (text)
//	5: serial (text)
//	6: started at (unix ms, 0 if never)
//	7: finished at (unix ms, 0 while running)
//	8: failure category (text)
//	9: log lines written this session, including scrolled-out ones (uint)
package stream

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/provisioner/pkg/flasher"
)

// Snapshot is one state frame.
type Snapshot struct {
	Code       string `cbor:"0,keyasint"`
	Message    string `cbor:"1,keyasint"`
	Busy       bool   `cbor:"2,keyasint"`
	Logs       string `cbor:"3,keyasint"`
	SessionID  string `cbor:"4,keyasint,omitempty"`
	Serial     string `cbor:"5,keyasint,omitempty"`
	StartedAt  int64  `cbor:"6,keyasint,omitempty"`
	FinishedAt int64  `cbor:"7,keyasint,omitempty"`
	LastError  string `cbor:"8,keyasint,omitempty"`
	LogTotal   int64  `cbor:"9,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("stream: cbor encoder: %v", err))
	}
}

// FromState converts an orchestrator state to a frame.
func FromState(st flasher.State) Snapshot {
	return Snapshot{
		Code:       string(st.Status.Code),
		Message:    st.Status.Message,
		Busy:       st.Busy,
		Logs:       st.Logs,
		SessionID:  st.SessionID,
		Serial:     st.Serial,
		StartedAt:  unixMilli(st.StartedAt),
		FinishedAt: unixMilli(st.FinishedAt),
		LastError:  st.LastError,
		LogTotal:   int64(st.LogTotal),
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Encode returns the deterministic CBOR encoding of s.
func Encode(s Snapshot) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a frame.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(data) == 0 {
		return s, fmt.Errorf("empty CBOR frame")
	}
	if err := cbor.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return s, nil
}

// Terminal reports whether the session in s has finished.
func (s Snapshot) Terminal() bool {
	return !s.Busy && (s.Code == string(flasher.Success) || s.Code == string(flasher.Failed))
}

// Succeeded reports whether the session in s finished successfully.
func (s Snapshot) Succeeded() bool {
	return !s.Busy && s.Code == string(flasher.Success)
}

// Started returns the start time, or the zero time.
func (s Snapshot) Started() time.Time {
	if s.StartedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.StartedAt)
}
