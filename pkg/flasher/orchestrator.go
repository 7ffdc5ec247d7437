// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flasher runs the external flashing tool for one device at a time
// and records its progress for the operator.
//
// An Orchestrator moves through ready, flashing, then success or failed. A
// new Start from success or failed begins another session. At most one
// flashing process is alive at any time and a running flash cannot be
// cancelled.
package flasher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thermoquad/provisioner/pkg/flashlog"
	"github.com/Thermoquad/provisioner/pkg/identity"
)

// StatusCode is the orchestrator state.
type StatusCode string

const (
	Ready    StatusCode = "ready"
	Flashing StatusCode = "flashing"
	Success  StatusCode = "success"
	Failed   StatusCode = "failed"
)

// Operator-facing messages
const (
	MsgReady       = "Ready to flash"
	MsgInProgress  = "Flash already in progress."
	MsgStarted     = "Flash started."
	MsgLogSuccess  = "Flash completed successfully."
	MsgLogFailure  = "Flash failed. Check above logs."
	portAutoDetect = "auto"
)

// Status is the current state with a human-readable message.
type Status struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message"`
}

// State is a point-in-time copy of the orchestrator.
type State struct {
	Status Status
	Busy   bool
	Logs   string
	// LogTotal counts every log line of the session, including lines that
	// scrolled out of Logs.
	LogTotal   int
	SessionID  string
	Serial     string
	StartedAt  time.Time
	FinishedAt time.Time
	// LastError is CategoryLaunch or CategoryRuntime after a failed session.
	LastError string
}

// Terminal reports whether the last session has finished.
func (s State) Terminal() bool {
	return !s.Busy && (s.Status.Code == Success || s.Status.Code == Failed)
}

// Resolver resolves operator input into a device identity.
type Resolver interface {
	Resolve(f *identity.Formatter, req identity.Request) (identity.DeviceIdentity, error)
}

type session struct {
	id       string
	identity identity.DeviceIdentity
	port     string
	started  time.Time
}

// Orchestrator owns the single flash slot, its status and its log.
type Orchestrator struct {
	builder CommandBuilder
	cfg     Config
	log     *flashlog.Buffer

	mu         sync.Mutex
	busy       bool
	status     Status
	sessionID  string
	serial     string
	startedAt  time.Time
	finishedAt time.Time
	lastError  string

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int

	wg sync.WaitGroup
}

// New creates an idle orchestrator.
func New(builder CommandBuilder, opts ...Option) *Orchestrator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{
		builder: builder,
		cfg:     cfg,
		log:     flashlog.New(cfg.MaxLogLines),
		status:  Status{Code: Ready, Message: MsgReady},
		subs:    make(map[int]chan struct{}),
	}
}

// StartRequest resolves req and starts a flash. Resolution errors are
// returned as the rejection message.
func (o *Orchestrator) StartRequest(r Resolver, f *identity.Formatter, req identity.Request, port string) (bool, string) {
	id, err := r.Resolve(f, req)
	if err != nil {
		return false, err.Error()
	}
	return o.Start(id, port)
}

// Start begins flashing id. It returns immediately; progress is visible
// through State. A blank port or "auto" lets the tool choose.
func (o *Orchestrator) Start(id identity.DeviceIdentity, port string) (bool, string) {
	port = strings.TrimSpace(port)
	if strings.EqualFold(port, portAutoDetect) {
		port = ""
	}

	seed := []string{id.Summary(), "SSID: " + id.SSID}
	if port != "" {
		seed = append(seed, "Port: "+port)
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		o.cfg.Metrics.onReject()
		o.cfg.Logger.Info("flash rejected, already in progress", zap.String("serial", id.Serial))
		return false, MsgInProgress
	}
	s := session{
		id:       uuid.NewString(),
		identity: id,
		port:     port,
		started:  o.cfg.Now(),
	}
	o.busy = true
	o.status = Status{Code: Flashing, Message: "Flashing " + id.Serial + "..."}
	o.sessionID = s.id
	o.serial = id.Serial
	o.startedAt = s.started
	o.finishedAt = time.Time{}
	o.lastError = ""
	o.log.Reset(seed...)
	// The busy gauge follows o.busy under the same lock
	o.cfg.Metrics.onStart()
	o.wg.Add(1)
	o.mu.Unlock()

	o.cfg.Logger.Info("flash started",
		zap.String("session", s.id),
		zap.String("serial", id.Serial),
		zap.String("port", port))
	o.changed()

	go o.run(s)
	return true, MsgStarted
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	logs, total := o.log.Contents()
	return State{
		Status:     o.status,
		Busy:       o.busy,
		Logs:       logs,
		LogTotal:   total,
		SessionID:  o.sessionID,
		Serial:     o.serial,
		StartedAt:  o.startedAt,
		FinishedAt: o.finishedAt,
		LastError:  o.lastError,
	}
}

// Wait blocks until no flash is running.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Subscribe returns a channel that receives a value after state changes.
// Bursts of changes are coalesced. Call cancel to unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, id)
			o.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (o *Orchestrator) changed() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (o *Orchestrator) appendLog(line string) {
	o.log.Append(line)
	o.changed()
}

func (o *Orchestrator) run(s session) {
	defer o.wg.Done()

	o.notify(s, Event{Type: EventStarted, Time: s.started})
	err := o.execute(s)
	o.finish(s, err)
}

// execute runs the tool to completion, streaming its output into the log.
func (o *Orchestrator) execute(s session) error {
	cmd, err := o.builder.Build(s.identity.Serial, s.identity.Password, s.port)
	if err != nil {
		var launchErr *LaunchError
		if !errors.As(err, &launchErr) {
			err = &LaunchError{Err: err}
		}
		return err
	}

	o.appendLog("Command: " + Redact(cmd, s.identity.Password))

	proc, err := o.cfg.Runner.Start(cmd)
	if err != nil {
		return &LaunchError{Op: "start", Err: err}
	}

	lines := make(chan string, 64)
	go readLines(proc.Output(), lines)
	for line := range lines {
		o.appendLog(strings.TrimRight(line, " \t"))
	}

	code, err := proc.Wait()
	if err != nil {
		return &ExitError{Code: code, Err: err}
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// finish applies the terminal status and the final log lines in one
// critical section.
func (o *Orchestrator) finish(s session, err error) {
	now := o.cfg.Now()
	serial := s.identity.Serial

	ev := Event{Type: EventFinished, Time: now, DurationMS: now.Sub(s.started).Milliseconds()}

	o.mu.Lock()
	o.busy = false
	o.finishedAt = now
	if err == nil {
		o.status = Status{Code: Success, Message: "Successfully flashed " + serial + "."}
		o.log.Append(MsgLogSuccess)
	} else {
		o.status = Status{Code: Failed, Message: "Failed flashing " + serial + ". Retry."}
		var launchErr *LaunchError
		if errors.As(err, &launchErr) {
			o.lastError = CategoryLaunch
			o.log.Append(launchErr.logLine())
		} else {
			o.lastError = CategoryRuntime
			o.log.Append(err.Error())
		}
		o.log.Append(MsgLogFailure)
		ev.Category = o.lastError
	}
	code := o.status.Code
	ev.Result = string(code)
	ev.Message = o.status.Message
	o.cfg.Metrics.onFinish(code, now.Sub(s.started))
	o.mu.Unlock()

	if err != nil {
		o.cfg.Logger.Warn("flash failed",
			zap.String("session", s.id),
			zap.String("serial", serial),
			zap.String("category", ev.Category),
			zap.Error(err))
	} else {
		o.cfg.Logger.Info("flash succeeded",
			zap.String("session", s.id),
			zap.String("serial", serial),
			zap.Duration("elapsed", now.Sub(s.started)))
	}
	o.notify(s, ev)
	o.changed()
}

func (o *Orchestrator) notify(s session, ev Event) {
	if o.cfg.Notifier == nil {
		return
	}
	ev.SessionID = s.id
	ev.Batch = s.identity.Batch
	ev.SerialNumber = s.identity.SerialNumber
	ev.Serial = s.identity.Serial
	ev.SSID = s.identity.SSID
	ev.Port = s.port

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.cfg.Notifier.Notify(ctx, ev); err != nil {
		o.cfg.Logger.Warn("flash event not published", zap.String("type", ev.Type), zap.Error(err))
	}
}
