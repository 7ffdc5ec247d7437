// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/provisioner/pkg/identity"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Listen != "127.0.0.1:0" || cfg.MaxLogLines != 600 || !cfg.OpenBrowser {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provisioner.yaml")
	data := `
listen: 127.0.0.1:8080
variant: simple
ssid_prefix: Thermoquad-
max_log_lines: 200
shutdown_timeout: 30s
nats:
  url: nats://localhost:4222
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvListen, "0.0.0.0:9000")
	t.Setenv(EnvMaxLogLines, "300")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"env overrides file", cfg.Listen, "0.0.0.0:9000"},
		{"env overrides file int", cfg.MaxLogLines, 300},
		{"file overrides default", cfg.Variant, "simple"},
		{"file prefix", cfg.SSIDPrefix, "Thermoquad-"},
		{"file duration", cfg.ShutdownTimeout, 30 * time.Second},
		{"nested file value", cfg.NATS.URL, "nats://localhost:4222"},
		{"nested default kept", cfg.NATS.Subject, "provisioner.flash"},
		{"log level", cfg.Log.Level, "debug"},
		{"log format default", cfg.Log.Format, "console"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("listen: x\nbogus: 1\n"), 0o644)
	if _, err := Load(unknown); err == nil {
		t.Error("unknown key accepted")
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, nil, 0o644)
	if _, err := Load(empty); err != nil {
		t.Errorf("empty file rejected: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envFrom(map[string]string{
		EnvPasswords:       " /data/passwords.csv ",
		EnvOpenBrowser:     "false",
		EnvShutdownTimeout: "1m",
		EnvLogFormat:       "json",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.PasswordsPath != "/data/passwords.csv" || cfg.OpenBrowser || cfg.ShutdownTimeout != time.Minute || cfg.Log.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}

	for _, key := range []string{EnvMaxLogLines, EnvOpenBrowser, EnvShutdownTimeout} {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envFrom(map[string]string{key: "not-valid"}))
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("error = %v, want mention of %s", err, key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = " " }},
		{"bad variant", func(c *Config) { c.Variant = "quarterly" }},
		{"zero log lines", func(c *Config) { c.MaxLogLines = 0 }},
		{"negative timeout", func(c *Config) { c.ShutdownTimeout = -time.Second }},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"nats without subject", func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.Subject = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolve(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "opt", "provisioner")

	cfg := Default()
	cfg.Resolve(base)
	if cfg.PasswordsPath != filepath.Join(base, "passwords.csv") {
		t.Errorf("PasswordsPath = %q", cfg.PasswordsPath)
	}
	if cfg.ScriptDir != base {
		t.Errorf("ScriptDir = %q", cfg.ScriptDir)
	}

	abs := filepath.Join(string(filepath.Separator), "srv", "pw.csv")
	cfg = Default()
	cfg.PasswordsPath = abs
	cfg.ScriptDir = "scripts"
	cfg.Resolve(base)
	if cfg.PasswordsPath != abs {
		t.Errorf("absolute path changed to %q", cfg.PasswordsPath)
	}
	if cfg.ScriptDir != filepath.Join(base, "scripts") {
		t.Errorf("ScriptDir = %q", cfg.ScriptDir)
	}
}

func TestFormatter(t *testing.T) {
	cfg := Default()
	cfg.Variant = "simple"
	cfg.SSIDPrefix = "Thermoquad-"
	f, err := cfg.Formatter()
	if err != nil {
		t.Fatal(err)
	}
	if f.Variant != identity.Simple || f.SSIDPrefix != "Thermoquad-" {
		t.Errorf("formatter = %+v", f)
	}
}
