// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flasher

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Process is a running flashing tool.
type Process interface {
	// Output is the merged stdout and stderr stream. It reaches EOF once the
	// process and any children holding the pipe have exited.
	Output() io.Reader
	// Wait blocks until exit. A nonzero exit is reported through the code
	// with a nil error.
	Wait() (int, error)
}

// Runner starts processes.
type Runner interface {
	Start(cmd Command) (Process, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Start implements Runner.
func (ExecRunner) Start(c Command) (Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child owns its copy of the write end now
	pw.Close()

	return &execProcess{cmd: cmd, out: pr}, nil
}

type execProcess struct {
	cmd *exec.Cmd
	out *os.File
}

func (p *execProcess) Output() io.Reader {
	return p.out
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.out.Close()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Longer output lines are split into chunks of this size
const maxLineBytes = 1 << 20

// readLines sends each line of r to lines and closes it at EOF. Lines end at
// "\n", "\r\n" or a bare "\r" so progress bars show up as separate lines. A
// line longer than maxLineBytes arrives as several lines.
func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanAnyNewline)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	if scanner.Err() != nil {
		// Read error. Keep draining so the tool never blocks on a full pipe
		io.Copy(io.Discard, r)
	}
}

func scanAnyNewline(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF || len(data) >= maxLineBytes {
			return i + 1, data[:i], nil
		}
		// Need the next byte to tell "\r" from "\r\n"
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	if len(data) >= maxLineBytes {
		// Buffer is full; hand out a chunk instead of failing with ErrTooLong
		return maxLineBytes, data[:maxLineBytes], nil
	}
	return 0, nil, nil
}
