// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/provisioner/pkg/ports"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate serial ports",
	Long: `List the serial ports a controller may be attached to, in the order the
web UI offers them. "auto" lets the flashing script pick the port itself.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	printPorts(cmd.OutOrStdout(), ports.NewSerialProvider(zap.NewNop()))
	return nil
}

func printPorts(w io.Writer, p ports.Provider) {
	for _, port := range p.List() {
		if port.Label == port.Path {
			fmt.Fprintf(w, "%s\n", port.Path)
			continue
		}
		fmt.Fprintf(w, "%-24s %s\n", port.Path, port.Label)
	}
}
