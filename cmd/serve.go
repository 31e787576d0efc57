package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tarot-oracle/internal/config"
	"tarot-oracle/internal/gateway"
	"tarot-oracle/internal/observability"
	"tarot-oracle/internal/server"
)

const serveUsage = `Usage:
  tarot-oracle serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (defaults plus environment when omitted)
  --port   int      Override server port from configuration`

const telemetryFlushTimeout = 5 * time.Second

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	shutdownTelemetry, err := observability.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	client, err := gateway.New(cfg.LLM)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, client)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
