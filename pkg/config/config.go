// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads provisioner settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// PROVISIONER_* environment variables. Command-line flags are applied last
// by the cmd package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/provisioner/pkg/flasher"
	"github.com/Thermoquad/provisioner/pkg/flashlog"
	"github.com/Thermoquad/provisioner/pkg/identity"
)

// Environment variables
const (
	EnvConfig          = "PROVISIONER_CONFIG"
	EnvListen          = "PROVISIONER_LISTEN"
	EnvPasswords       = "PROVISIONER_PASSWORDS"
	EnvScripts         = "PROVISIONER_SCRIPTS"
	EnvVariant         = "PROVISIONER_VARIANT"
	EnvSSIDPrefix      = "PROVISIONER_SSID_PREFIX"
	EnvMaxLogLines     = "PROVISIONER_MAX_LOG_LINES"
	EnvOpenBrowser     = "PROVISIONER_OPEN_BROWSER"
	EnvShutdownTimeout = "PROVISIONER_SHUTDOWN_TIMEOUT"
	EnvNATSURL         = "PROVISIONER_NATS_URL"
	EnvNATSSubject     = "PROVISIONER_NATS_SUBJECT"
	EnvLogLevel        = "PROVISIONER_LOG_LEVEL"
	EnvLogFormat       = "PROVISIONER_LOG_FORMAT"
)

// Defaults
const (
	DefaultListen          = "127.0.0.1:0"
	DefaultPasswordsFile   = "passwords.csv"
	DefaultShutdownTimeout = 10 * time.Minute
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
)

// Config is the complete provisioner configuration.
type Config struct {
	// Listen is the HTTP address for serve. Port 0 picks a free port.
	Listen string `yaml:"listen"`

	// PasswordsPath is the CSV password table. Relative paths and the empty
	// default resolve against the base directory.
	PasswordsPath string `yaml:"passwords"`

	// ScriptDir holds flash_main_hub.sh and flash_main_hub.ps1.
	ScriptDir string `yaml:"scripts"`

	// Variant is "date" or "simple".
	Variant    string `yaml:"variant"`
	SSIDPrefix string `yaml:"ssid_prefix"`

	MaxLogLines int  `yaml:"max_log_lines"`
	OpenBrowser bool `yaml:"open_browser"`

	// ShutdownTimeout bounds how long serve waits for a running flash on
	// SIGINT or SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	NATS NATSConfig `yaml:"nats"`
	Log  LogConfig  `yaml:"log"`
}

// NATSConfig configures flash event publishing. Empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:          DefaultListen,
		Variant:         identity.DateStamped.String(),
		MaxLogLines:     flashlog.DefaultMaxLines,
		OpenBrowser:     true,
		ShutdownTimeout: DefaultShutdownTimeout,
		NATS:            NATSConfig{Subject: flasher.DefaultSubject},
		Log:             LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads path over the defaults and applies the environment. An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML data onto c. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvListen, &c.Listen)
	str(EnvPasswords, &c.PasswordsPath)
	str(EnvScripts, &c.ScriptDir)
	str(EnvVariant, &c.Variant)
	str(EnvSSIDPrefix, &c.SSIDPrefix)
	str(EnvNATSURL, &c.NATS.URL)
	str(EnvNATSSubject, &c.NATS.Subject)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)

	if v, ok := lookup(EnvMaxLogLines); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not an integer", EnvMaxLogLines, v)
		}
		c.MaxLogLines = n
	}
	if v, ok := lookup(EnvOpenBrowser); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not a boolean", EnvOpenBrowser, v)
		}
		c.OpenBrowser = b
	}
	if v, ok := lookup(EnvShutdownTimeout); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not a duration", EnvShutdownTimeout, v)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

// Resolve fills path defaults relative to baseDir.
func (c *Config) Resolve(baseDir string) {
	if c.PasswordsPath == "" {
		c.PasswordsPath = DefaultPasswordsFile
	}
	if !filepath.IsAbs(c.PasswordsPath) {
		c.PasswordsPath = filepath.Join(baseDir, c.PasswordsPath)
	}
	if c.ScriptDir == "" {
		c.ScriptDir = baseDir
	} else if !filepath.IsAbs(c.ScriptDir) {
		c.ScriptDir = filepath.Join(baseDir, c.ScriptDir)
	}
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("invalid listen address: must not be empty")
	}
	if _, err := identity.ParseVariant(c.Variant); err != nil {
		return err
	}
	if c.MaxLogLines <= 0 {
		return fmt.Errorf("invalid max_log_lines: must be > 0")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown_timeout: must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: use debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q: use console or json", c.Log.Format)
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("invalid nats.subject: required when nats.url is set")
	}
	return nil
}

// Formatter builds the identifier formatter for the configured variant.
func (c Config) Formatter() (*identity.Formatter, error) {
	v, err := identity.ParseVariant(c.Variant)
	if err != nil {
		return nil, err
	}
	f := identity.NewFormatter(v)
	f.SSIDPrefix = c.SSIDPrefix
	return f, nil
}

// ExecutableDir returns the directory of the running binary, the default
// home of passwords.csv and the flashing scripts.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
