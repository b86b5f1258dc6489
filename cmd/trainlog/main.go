package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"trainlog/internal/config"
	"trainlog/internal/logging"
)

var CLI struct {
	Version  kong.VersionFlag
	Env      string `help:"Path of the .env file. The real environment wins over it." type:"path" default:".env"`
	LogLevel string `help:"Overrides LOG_LEVEL." name:"log-level"`

	Serve           ServeCmd           `cmd:"" help:"Run the HTTP API." default:"1"`
	Sync            SyncCmd            `cmd:"" help:"Pull new FitnessSyncer activities into the log."`
	StravaSync      StravaSyncCmd      `cmd:"" name:"strava-sync" help:"Pull new Strava activities into the log."`
	Weekly          WeeklyCmd          `cmd:"" help:"Recompute weekly progress metrics."`
	ExchangeCode    ExchangeCodeCmd    `cmd:"" name:"exchange-code" help:"Trade an authorization code for provider tokens."`
	StravaSubscribe StravaSubscribeCmd `cmd:"" name:"strava-subscribe" help:"Register the Strava push subscription."`
	Token           TokenCmd           `cmd:"" help:"Mint an API bearer token."`
}

// runContext is bound into every command's Run method.
type runContext struct {
	Ctx    context.Context
	Config config.Config
	Logger *log.Logger
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("trainlog"),
		kong.Description("Personal endurance training log"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg, err := config.Load(CLI.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}

	logger, closer, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		JSON:   cfg.LogJSON,
		Prefix: "trainlog",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = kctx.Run(&runContext{Ctx: ctx, Config: cfg, Logger: logger})
	stop()
	if err != nil {
		logger.Error("command failed", "command", kctx.Command(), "err", err)
		_ = closer.Close()
		os.Exit(1)
	}
	_ = closer.Close()
}
