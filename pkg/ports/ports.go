// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ports lists the serial devices a controller may be attached to.
package ports

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// The auto entry lets the flashing tool pick the port itself.
const (
	AutoPath  = "auto"
	AutoLabel = "Auto-detect"
)

// Port is one selectable device.
type Port struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Auto is the sentinel entry listed first.
var Auto = Port{Path: AutoPath, Label: AutoLabel}

// Provider lists candidate ports. The first entry is always Auto.
type Provider interface {
	List() []Port
}

// SerialProvider enumerates the ports on this machine.
type SerialProvider struct {
	GOOS   string
	Logger *zap.Logger

	// Detailed and Plain default to the go.bug.st/serial enumerators.
	Detailed func() ([]*enumerator.PortDetails, error)
	Plain    func() ([]string, error)
}

// NewSerialProvider returns a provider for the running platform.
func NewSerialProvider(logger *zap.Logger) *SerialProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialProvider{GOOS: runtime.GOOS, Logger: logger}
}

// List implements Provider. Enumeration failures are logged and yield only
// the Auto entry.
func (p *SerialProvider) List() []Port {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	detailed := p.Detailed
	if detailed == nil {
		detailed = enumerator.GetDetailedPortsList
	}
	plain := p.Plain
	if plain == nil {
		plain = serial.GetPortsList
	}

	var found []Port
	details, err := detailed()
	if err == nil {
		for _, d := range details {
			if d == nil {
				continue
			}
			found = append(found, Port{Path: d.Name, Label: describe(d)})
		}
	} else {
		logger.Debug("detailed port enumeration failed", zap.Error(err))
		names, err := plain()
		if err != nil {
			logger.Warn("port enumeration failed", zap.Error(err))
			return []Port{Auto}
		}
		for _, name := range names {
			found = append(found, Port{Path: name, Label: name})
		}
	}

	return withAuto(filter(p.GOOS, found))
}

func describe(d *enumerator.PortDetails) string {
	if !d.IsUSB {
		return d.Name
	}
	var parts []string
	if d.Product != "" {
		parts = append(parts, d.Product)
	}
	if d.VID != "" || d.PID != "" {
		parts = append(parts, fmt.Sprintf("%s:%s", strings.ToUpper(d.VID), strings.ToUpper(d.PID)))
	}
	if len(parts) == 0 {
		return d.Name
	}
	return fmt.Sprintf("%s (%s)", d.Name, strings.Join(parts, " "))
}

// filter drops duplicates and, on macOS, the tty.* twins of cu.* devices.
// USB adapters sort before built-in ports.
func filter(goos string, in []Port) []Port {
	seen := make(map[string]bool, len(in))
	out := make([]Port, 0, len(in))
	for _, port := range in {
		if port.Path == "" || strings.EqualFold(port.Path, AutoPath) || seen[port.Path] {
			continue
		}
		if goos == "darwin" && !strings.HasPrefix(port.Path, "/dev/cu.") {
			continue
		}
		seen[port.Path] = true
		out = append(out, port)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Path), rank(out[j].Path)
		if ri != rj {
			return ri < rj
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// rank orders likely flashing adapters first.
func rank(path string) int {
	for _, prefix := range []string{
		"/dev/ttyUSB", "/dev/ttyACM",
		"/dev/cu.usbserial", "/dev/cu.SLAB_USB", "/dev/cu.usbmodem", "/dev/cu.wchusbserial",
	} {
		if strings.HasPrefix(path, prefix) {
			return 0
		}
	}
	return 1
}

func withAuto(found []Port) []Port {
	return append([]Port{Auto}, found...)
}

// Static is a fixed Provider.
type Static []Port

// List implements Provider.
func (s Static) List() []Port {
	return withAuto(filter("", s))
}
