// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Thermoquad/provisioner/pkg/stream"
)

func TestNewLines(t *testing.T) {
	tests := []struct {
		name string
		prev []string
		cur  []string
		want []string
	}{
		{"first frame", nil, []string{"a", "b"}, []string{"a", "b"}},
		{"appended", []string{"a", "b"}, []string{"a", "b", "c"}, []string{"c"}},
		{"unchanged", []string{"a", "b"}, []string{"a", "b"}, []string{}},
		{"scrolled", []string{"a", "b", "c"}, []string{"b", "c", "d"}, []string{"d"}},
		{"repeated lines", []string{"x", "x"}, []string{"x", "x", "y"}, []string{"y"}},
		{"no overlap", []string{"a"}, []string{"b", "c"}, []string{"b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newLines(tt.prev, tt.cur)
			if len(got) != len(tt.want) || !equalLines(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountedLines(t *testing.T) {
	tests := []struct {
		name  string
		cur   []string
		total int64
		seen  int64
		want  []string
	}{
		{"first frame", []string{"a", "b"}, 2, 0, []string{"a", "b"}},
		{"appended", []string{"a", "b", "c"}, 3, 2, []string{"c"}},
		{"unchanged", []string{"a", "b"}, 2, 2, nil},
		{"repeat at capacity", []string{"x", "x", "x"}, 4, 3, []string{"x"}},
		{"missed lines", []string{"d", "e"}, 9, 3, []string{"d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := countedLines(tt.cur, tt.total, tt.seen)
			if len(got) != len(tt.want) || !equalLines(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type scriptedSource struct {
	snaps []stream.Snapshot
}

func (s *scriptedSource) Next() (stream.Snapshot, error) {
	if len(s.snaps) == 0 {
		return stream.Snapshot{}, io.EOF
	}
	snap := s.snaps[0]
	s.snaps = s.snaps[1:]
	return snap, nil
}

func TestFollow(t *testing.T) {
	src := &scriptedSource{snaps: []stream.Snapshot{
		{Code: "success", SessionID: "old", Logs: "old line"},
		{Code: "flashing", Busy: true, SessionID: "new", Logs: "Starting flash\nSSID: CC01-0001"},
		{Code: "flashing", Busy: true, SessionID: "new", Logs: "Starting flash\nSSID: CC01-0001\nwriting"},
		{Code: "success", SessionID: "new", Message: "Successfully flashed CC01-0001.", Logs: "Starting flash\nSSID: CC01-0001\nwriting\nFlash completed successfully."},
		{Code: "ready", SessionID: "later"},
	}}

	var out strings.Builder
	final, err := follow(src, "old", &out)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if !final.Succeeded() || final.SessionID != "new" {
		t.Errorf("final = %+v", final)
	}

	want := "Starting flash\nSSID: CC01-0001\nwriting\nFlash completed successfully.\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestFollow_StreamError(t *testing.T) {
	src := &scriptedSource{snaps: []stream.Snapshot{
		{Code: "flashing", Busy: true, SessionID: "s1", Logs: "a"},
	}}
	_, err := follow(src, "", io.Discard)
	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestFollow_RepeatedLinesAtCapacity(t *testing.T) {
	src := &scriptedSource{snaps: []stream.Snapshot{
		{Code: "flashing", Busy: true, SessionID: "s1", Logs: "x\nx\nx", LogTotal: 3},
		{Code: "flashing", Busy: true, SessionID: "s1", Logs: "x\nx\nx", LogTotal: 4},
		{Code: "success", SessionID: "s1", Logs: "x\nx\ndone", LogTotal: 5},
	}}

	var out strings.Builder
	if _, err := follow(src, "", &out); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if want := "x\nx\nx\nx\ndone\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
