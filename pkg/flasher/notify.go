// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flasher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event types
const (
	EventStarted  = "flash.started"
	EventFinished = "flash.finished"
)

// DefaultSubject is the NATS subject flash events are published on.
const DefaultSubject = "provisioner.flash"

// Event describes a flash session transition. It never carries the
// password.
type Event struct {
	Type         string    `json:"type"`
	SessionID    string    `json:"session"`
	Batch        int       `json:"batch"`
	SerialNumber int       `json:"serial_number"`
	Serial       string    `json:"serial"`
	SSID         string    `json:"ssid"`
	Port         string    `json:"port,omitempty"`
	Result       string    `json:"result,omitempty"`
	Category     string    `json:"category,omitempty"`
	Message      string    `json:"message,omitempty"`
	Time         time.Time `json:"time"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
}

// Notifier receives flash events. Errors are logged and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NATSNotifier publishes events as JSON to a NATS subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

// NewNATSNotifier connects to url and keeps reconnecting in the background.
func NewNATSNotifier(url, subject string, logger *zap.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subject == "" {
		subject = DefaultSubject
	}
	opts := []nats.Option{
		nats.Name("provisioner"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return &NATSNotifier{nc: nc, subject: subject}, nil
}

// Notify implements Notifier.
func (n *NATSNotifier) Notify(ctx context.Context, ev Event) error {
	if n.nc == nil || n.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject, data)
}

// Close flushes pending events and closes the connection.
func (n *NATSNotifier) Close() {
	if n.nc != nil {
		n.nc.Drain()
		n.nc.Close()
	}
}
