// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flasher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/alessio/shellescape"
)

// Script names looked up in ScriptBuilder.Dir
const (
	ShellScript      = "flash_main_hub.sh"
	PowerShellScript = "flash_main_hub.ps1"
)

// MaskToken replaces the password when a command line is shown to the
// operator.
const MaskToken = "******"

// Command is one invocation of the external flashing tool.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// Argv returns the full argument vector including the executable.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Path)
	return append(argv, c.Args...)
}

// CommandBuilder turns a device identity into a tool invocation. An empty
// port lets the tool pick one.
type CommandBuilder interface {
	Build(serial, password, port string) (Command, error)
}

// ScriptBuilder invokes the bundled flash_main_hub scripts with the platform
// shell.
type ScriptBuilder struct {
	Dir  string
	GOOS string

	// LookPath and Stat default to exec.LookPath and os.Stat.
	LookPath func(file string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

// NewScriptBuilder returns a builder for the running platform.
func NewScriptBuilder(dir string) *ScriptBuilder {
	return &ScriptBuilder{Dir: dir, GOOS: runtime.GOOS}
}

// Build implements CommandBuilder. Every error is a *LaunchError.
func (b *ScriptBuilder) Build(serial, password, port string) (Command, error) {
	lookPath := b.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	stat := b.Stat
	if stat == nil {
		stat = os.Stat
	}

	switch b.GOOS {
	case "darwin", "linux":
		script := filepath.Join(b.Dir, ShellScript)
		if _, err := stat(script); err != nil {
			return Command{}, &LaunchError{Err: fmt.Errorf("%s script not found: %s", scriptLabel(b.GOOS), script)}
		}
		shell, err := lookPath("bash")
		if err != nil {
			shell = "/bin/bash"
		}
		args := []string{script, "--serial", serial, "--password", password}
		if port != "" {
			args = append(args, "--port", port)
		}
		return Command{Path: shell, Args: args, Dir: b.Dir}, nil

	case "windows":
		script := filepath.Join(b.Dir, PowerShellScript)
		if _, err := stat(script); err != nil {
			return Command{}, &LaunchError{Err: fmt.Errorf("%s script not found: %s", scriptLabel(b.GOOS), script)}
		}
		shell, err := findPowerShell(lookPath)
		if err != nil {
			return Command{}, &LaunchError{Err: err}
		}
		args := []string{
			"-NoLogo", "-NoProfile", "-ExecutionPolicy", "Bypass",
			"-File", script,
			"-Serial", serial,
			"-Password", password,
		}
		if port != "" {
			args = append(args, "-Port", port)
		}
		return Command{Path: shell, Args: args, Dir: b.Dir}, nil

	default:
		return Command{}, &LaunchError{Err: fmt.Errorf("Unsupported operating system: %s", b.GOOS)}
	}
}

func findPowerShell(lookPath func(string) (string, error)) (string, error) {
	for _, candidate := range []string{"pwsh", "powershell"} {
		if path, err := lookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", errors.New("Neither pwsh nor powershell was found on PATH.")
}

func scriptLabel(goos string) string {
	switch goos {
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	case "windows":
		return "PowerShell"
	}
	return goos
}

// Redact renders cmd as a shell-quoted line with every argument equal to
// secret replaced by MaskToken.
func Redact(cmd Command, secret string) string {
	argv := cmd.Argv()
	for i, arg := range argv {
		if secret != "" && arg == secret {
			argv[i] = MaskToken
		}
	}
	return shellescape.QuoteCommand(argv)
}
