// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flashlog keeps the most recent lines of flashing-tool output for
// display to the operator.
package flashlog

import (
	"regexp"
	"strings"
	"sync"
)

// DefaultMaxLines is the number of lines kept when New is given a
// non-positive capacity.
const DefaultMaxLines = 600

// CSI escape sequences: ESC [ params intermediates final
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Sanitize removes carriage returns and ANSI CSI sequences from line.
func Sanitize(line string) string {
	line = strings.ReplaceAll(line, "\r", "")
	if strings.IndexByte(line, 0x1b) < 0 {
		return line
	}
	return ansiEscape.ReplaceAllString(line, "")
}

// Buffer is an append-only list of sanitized lines bounded to a fixed
// capacity. When full, the oldest lines are dropped first.
type Buffer struct {
	mu    sync.Mutex
	max   int
	lines []string
	// lines stored since the last Reset, including dropped ones
	total int
}

// New creates a buffer holding at most max lines.
func New(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Buffer{max: max, lines: make([]string, 0, 64)}
}

// Max returns the buffer capacity.
func (b *Buffer) Max() int {
	return b.max
}

// Reset replaces the contents with lines. Seed lines are stored as given.
func (b *Buffer) Reset(lines ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines[:0:0], lines...)
	b.total = len(lines)
	b.trim()
}

// Append sanitizes line and adds it to the end of the buffer.
func (b *Buffer) Append(line string) {
	line = Sanitize(line)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	b.total++
	b.trim()
}

// trim drops lines from the front until the buffer fits. Caller holds mu.
func (b *Buffer) trim() {
	if over := len(b.lines) - b.max; over > 0 {
		// Copy down instead of reslicing so the backing array does not grow
		// without bound over a long flash.
		n := copy(b.lines, b.lines[over:])
		clear(b.lines[n:])
		b.lines = b.lines[:n]
	}
}

// Snapshot returns the lines joined with newlines.
func (b *Buffer) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

// Contents returns Snapshot together with the number of lines stored since
// the last Reset. Readers can compare totals to find lines they have not
// seen even when the text of the log repeats.
func (b *Buffer) Contents() (string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n"), b.total
}

// Lines returns a copy of the current lines.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len returns the current number of lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
