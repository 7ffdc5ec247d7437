// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/provisioner/pkg/config"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Controller factory provisioning tool",
	Long: `Provisioner - Factory provisioning for Thermoquad controllers.

Derives each unit's identifier, SSID and Wi-Fi password from its batch, build
date and serial number, then drives the platform flashing script and reports
progress to the operator.

Commands:
  serve     Run the operator web UI and flash orchestrator
  lookup    Print the identity of one unit
  payload   Generate or inspect factory configuration images
  ports     List candidate serial ports
  flash     Start a flash on a running server and follow it
  monitor   Watch a running server in a terminal UI

Settings are read from an optional YAML file (--config or PROVISIONER_CONFIG),
then PROVISIONER_* environment variables, then command-line flags.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

// loadConfig reads the config file named by --config or PROVISIONER_CONFIG
// and applies the global log flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if env, ok := os.LookupEnv(config.EnvConfig); ok {
			path = env
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// resolvePaths anchors relative paths in cfg to the binary's directory.
func resolvePaths(cfg *config.Config) error {
	dir, err := config.ExecutableDir()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	cfg.Resolve(dir)
	return nil
}
