// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flasher

import (
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/provisioner/pkg/flashlog"
)

// Config holds the orchestrator collaborators.
type Config struct {
	Logger      *zap.Logger
	Runner      Runner
	MaxLogLines int
	Notifier    Notifier
	Metrics     *Metrics
	Now         func() time.Time
}

func defaultConfig() Config {
	return Config{
		Logger:      zap.NewNop(),
		Runner:      ExecRunner{},
		MaxLogLines: flashlog.DefaultMaxLines,
		Now:         time.Now,
	}
}

// Option configures an Orchestrator.
type Option func(*Config)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithRunner replaces the process runner.
//
// Example:
//
//	o := flasher.New(builder, flasher.WithRunner(fakeRunner))
func WithRunner(r Runner) Option {
	return func(c *Config) {
		c.Runner = r
	}
}

// WithMaxLogLines sets the log buffer capacity.
func WithMaxLogLines(n int) Option {
	return func(c *Config) {
		c.MaxLogLines = n
	}
}

// WithNotifier publishes start and finish events.
func WithNotifier(n Notifier) Option {
	return func(c *Config) {
		c.Notifier = n
	}
}

// WithMetrics records flash metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}
