// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/provisioner/pkg/stream"
)

// Exit codes for flash
const (
	exitFlashFailed = 1
	exitConnection  = 2
)

var (
	flashBatch  int
	flashSerial int
	flashYear   int
	flashMonth  int
	flashPort   string
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Start a flash on a running server and follow it",
	Long: `Ask a running serve instance to flash one unit, then stream its log until the
flash finishes.

Exit status is 0 when the flash succeeds, 1 when it fails or is rejected, and 2
when the server cannot be reached or the stream drops.`,
	Example: `  provisioner flash --url http://127.0.0.1:8080 --batch 1 --year 25 --month 7 --serial 1
  provisioner flash --url 127.0.0.1:8080 --batch 1 --serial 3 --port /dev/ttyUSB0`,
	RunE: runFlash,
}

func init() {
	addServerFlags(flashCmd)
	flashCmd.Flags().IntVar(&flashBatch, "batch", 0, "Batch number")
	flashCmd.Flags().IntVar(&flashSerial, "serial", 0, "Serial within the batch (1-100)")
	flashCmd.Flags().IntVar(&flashYear, "year", 0, "Build year (two digits)")
	flashCmd.Flags().IntVar(&flashMonth, "month", 0, "Build month")
	flashCmd.Flags().StringVarP(&flashPort, "port", "p", "auto", "Serial port, or auto")
	flashCmd.MarkFlagRequired("batch")
	flashCmd.MarkFlagRequired("serial")
	rootCmd.AddCommand(flashCmd)
}

func flashForm(cmd *cobra.Command) url.Values {
	form := url.Values{
		"batch":  {strconv.Itoa(flashBatch)},
		"serial": {strconv.Itoa(flashSerial)},
		"port":   {flashPort},
	}
	if cmd.Flags().Changed("year") {
		form.Set("year", strconv.Itoa(flashYear))
	}
	if cmd.Flags().Changed("month") {
		form.Set("month", strconv.Itoa(flashMonth))
	}
	return form
}

func runFlash(cmd *cobra.Command, args []string) error {
	base, err := parseServerURL(serverURL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe before starting so no state change is missed
	st, err := openStream(ctx, base, noSSLVerify)
	if err != nil {
		return &ExitError{Code: exitConnection, Err: err}
	}
	defer st.Close()
	go func() {
		<-ctx.Done()
		st.Close()
	}()

	initial, err := st.Next()
	if err != nil {
		return &ExitError{Code: exitConnection, Err: fmt.Errorf("failed to read initial state: %w", err)}
	}

	if err := startFlash(ctx, httpClient(base, noSSLVerify), base, flashForm(cmd)); err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return &ExitError{Code: exitFlashFailed, Err: err}
		}
		return &ExitError{Code: exitConnection, Err: err}
	}

	final, err := follow(st, initial.SessionID, cmd.OutOrStdout())
	if err != nil {
		if ctx.Err() != nil {
			return &ExitError{Code: exitConnection, Err: errors.New("interrupted; the flash keeps running on the server")}
		}
		return &ExitError{Code: exitConnection, Err: fmt.Errorf("lost connection to server: %w", err)}
	}

	fmt.Fprintln(cmd.OutOrStdout(), final.Message)
	if !final.Succeeded() {
		return &ExitError{Code: exitFlashFailed}
	}
	return nil
}

// snapshotSource yields state snapshots.
type snapshotSource interface {
	Next() (stream.Snapshot, error)
}

// follow prints log lines of the first session other than previous until
// that session reaches a terminal state, and returns its last snapshot.
func follow(src snapshotSource, previous string, w io.Writer) (stream.Snapshot, error) {
	var (
		session   string
		seen      []string
		seenTotal int64
	)
	for {
		snap, err := src.Next()
		if err != nil {
			return stream.Snapshot{}, err
		}
		if snap.SessionID == "" || snap.SessionID == previous {
			continue
		}
		if snap.SessionID != session {
			session = snap.SessionID
			seen = nil
			seenTotal = 0
		}

		lines := splitLogs(snap.Logs)
		fresh := countedLines(lines, snap.LogTotal, seenTotal)
		if snap.LogTotal == 0 {
			// Server without line counts
			fresh = newLines(seen, lines)
		}
		for _, line := range fresh {
			fmt.Fprintln(w, line)
		}
		seen = lines
		seenTotal = snap.LogTotal

		if snap.Terminal() {
			return snap, nil
		}
	}
}

func splitLogs(logs string) []string {
	if logs == "" {
		return nil
	}
	return strings.Split(logs, "\n")
}

// countedLines returns the last total-seen lines of cur. Lines that scrolled
// out before they could be shown are skipped.
func countedLines(cur []string, total, seen int64) []string {
	n := total - seen
	if n <= 0 {
		return nil
	}
	if n > int64(len(cur)) {
		n = int64(len(cur))
	}
	return cur[len(cur)-int(n):]
}

// newLines returns the lines of cur that follow the longest suffix of prev
// found at the start of cur. The log is bounded, so old lines may have
// scrolled off the front of cur.
func newLines(prev, cur []string) []string {
	for j := 0; j < len(prev); j++ {
		tail := prev[j:]
		if len(tail) > len(cur) {
			continue
		}
		if equalLines(tail, cur[:len(tail)]) {
			return cur[len(tail):]
		}
	}
	return cur
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ snapshotSource = (*StateStream)(nil)
