package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/command"
	"github.com/hackplate/hackplate-cli/internal/config"
	"github.com/hackplate/hackplate-cli/internal/logger"
	"github.com/hackplate/hackplate-cli/internal/metrics"
	"github.com/hackplate/hackplate-cli/internal/output"
	"github.com/hackplate/hackplate-cli/internal/session"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "Config file (env: HACKPLATE_CONFIG)")
		apiBase  = flag.String("api-base", "", "Backend base URL (env: HACKPLATE_API_BASE_URL)")
		token    = flag.String("token", "", "Bearer token (env: HACKPLATE_AUTH_TOKEN)")
		outFmt   = flag.String("output", "json", "Output format: json|yaml|text")
		logLevel = flag.String("log-level", "", "Log level: debug|info|warn|error")
	)
	flag.Usage = func() { command.Usage(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		command.Usage(os.Stderr)
		os.Exit(2)
	}

	path := strings.TrimSpace(*cfgPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("HACKPLATE_CONFIG"))
	}
	if path == "" {
		path = config.DefaultPath()
	}
	envOnly := false
	if raw := os.Getenv("HACKPLATE_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(path, envOnly)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if v := strings.TrimSpace(*apiBase); v != "" {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(*token); v != "" {
		cfg.Auth.Token = v
	}
	if v := strings.TrimSpace(*logLevel); v != "" {
		cfg.Log.Level = v
	}
	format, err := output.Parse(*outFmt)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
	}
	sess, err := session.Open(cfg, log, rec)
	if err != nil {
		log.Error("session open failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = sess.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = session.WithSession(ctx, sess)

	c := &command.Context{
		Config:  cfg,
		Session: sess,
		Logger:  log,
		Metrics: rec,
		Output:  format,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if err := command.Dispatch(ctx, c, args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if hint := command.Hint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		stop()
		_ = sess.Close()
		_ = log.Sync()
		os.Exit(1)
	}
}
