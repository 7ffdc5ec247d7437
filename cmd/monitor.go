// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running server in a terminal UI",
	Long: `Follow the flash state of a running serve instance.

Shows the current status, the unit being flashed and the live flash log. The
connection is re-established automatically if the server restarts.`,
	Example: `  provisioner monitor --url http://127.0.0.1:8080`,
	RunE:    runMonitor,
}

func init() {
	addServerFlags(monitorCmd)
	rootCmd.AddCommand(monitorCmd)
}

// streamManager keeps a state stream open and forwards snapshots to the TUI.
type streamManager struct {
	base       *url.URL
	skipVerify bool
	p          *tea.Program
	ctx        context.Context
}

func runMonitor(cmd *cobra.Command, args []string) error {
	base, err := parseServerURL(serverURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := newMonitorModel(base.String())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	sm := &streamManager{base: base, skipVerify: noSSLVerify, p: p, ctx: ctx}
	go sm.run()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// run connects, reads until the stream drops, then reconnects with
// exponential backoff until the context ends.
func (sm *streamManager) run() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		st, err := openStream(sm.ctx, sm.base, sm.skipVerify)
		if err == nil {
			backoff = time.Second
			sm.p.Send(streamUpMsg{})
			err = sm.read(st)
		}
		if sm.ctx.Err() != nil {
			return
		}
		sm.p.Send(streamDownMsg{err: err})

		select {
		case <-sm.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (sm *streamManager) read(st *StateStream) error {
	defer st.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-sm.ctx.Done():
			st.Close()
		case <-stop:
		}
	}()

	for {
		snap, err := st.Next()
		if err != nil {
			return err
		}
		sm.p.Send(snapshotMsg{snap: snap})
	}
}
