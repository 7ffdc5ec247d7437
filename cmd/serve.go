// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/provisioner/pkg/config"
	"github.com/Thermoquad/provisioner/pkg/flasher"
	"github.com/Thermoquad/provisioner/pkg/ports"
	"github.com/Thermoquad/provisioner/pkg/registry"
	"github.com/Thermoquad/provisioner/pkg/server"
)

var (
	serveListen    string
	servePasswords string
	serveScripts   string
	serveVariant   string
	serveNATSURL   string
	serveOpen      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator web UI",
	Long: `Serve the operator web UI and run flashes on request.

The password table (passwords.csv) and the flashing scripts are looked up next
to the binary unless configured otherwise. The listen address defaults to a
random local port, printed at startup, and the browser is opened on it.

Only one flash runs at a time. On SIGINT or SIGTERM the server stops accepting
requests and waits for a running flash to finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "HTTP listen address (default 127.0.0.1:0)")
	serveCmd.Flags().StringVar(&servePasswords, "passwords", "", "Password CSV file")
	serveCmd.Flags().StringVar(&serveScripts, "scripts", "", "Directory holding the flashing scripts")
	serveCmd.Flags().StringVar(&serveVariant, "variant", "", "Identifier variant (date, simple)")
	serveCmd.Flags().StringVar(&serveNATSURL, "nats-url", "", "Publish flash events to this NATS server")
	serveCmd.Flags().BoolVar(&serveOpen, "open", true, "Open the UI in the default browser")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overlays explicitly set serve flags onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = serveListen
	}
	if flags.Changed("passwords") {
		cfg.PasswordsPath = servePasswords
	}
	if flags.Changed("scripts") {
		cfg.ScriptDir = serveScripts
	}
	if flags.Changed("variant") {
		cfg.Variant = serveVariant
	}
	if flags.Changed("nats-url") {
		cfg.NATS.URL = serveNATSURL
	}
	if flags.Changed("open") {
		cfg.OpenBrowser = serveOpen
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := resolvePaths(&cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	formatter, err := cfg.Formatter()
	if err != nil {
		return err
	}

	passwords, err := registry.Load(cfg.PasswordsPath)
	if err != nil {
		logger.Error("failed to load password table", zap.String("path", cfg.PasswordsPath), zap.Error(err))
		return err
	}
	logger.Info("password table loaded",
		zap.String("path", passwords.Source()),
		zap.Int("entries", passwords.Len()))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []flasher.Option{
		flasher.WithLogger(logger.Named("flasher")),
		flasher.WithMaxLogLines(cfg.MaxLogLines),
		flasher.WithMetrics(flasher.NewMetrics(promReg)),
	}
	if cfg.NATS.URL != "" {
		notifier, err := flasher.NewNATSNotifier(cfg.NATS.URL, cfg.NATS.Subject, logger.Named("nats"))
		if err != nil {
			logger.Error("failed to connect to NATS", zap.String("url", cfg.NATS.URL), zap.Error(err))
			return err
		}
		defer notifier.Close()
		opts = append(opts, flasher.WithNotifier(notifier))
	}

	orch := flasher.New(flasher.NewScriptBuilder(cfg.ScriptDir), opts...)

	srv := server.New(server.Config{
		Orchestrator:    orch,
		Resolver:        passwords,
		Formatter:       formatter,
		Ports:           ports.NewSerialProvider(logger.Named("ports")),
		Logger:          logger.Named("http"),
		Metrics:         promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	url := listenURL(ln.Addr())

	fmt.Printf("Controller flasher listening on %s\n", url)
	fmt.Printf("Scripts: %s\n", cfg.ScriptDir)
	fmt.Printf("Press Ctrl+C to exit\n\n")
	logger.Info("server started",
		zap.String("url", url),
		zap.String("variant", formatter.Variant.String()))

	if cfg.OpenBrowser {
		if err := browser.OpenURL(url); err != nil {
			logger.Warn("failed to open browser", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx, ln)
}

// listenURL turns a bound address into the URL printed for the operator.
// Wildcard hosts are shown as localhost.
func listenURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String() + "/"
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
