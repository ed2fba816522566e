package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"
	"github.com/vreid/janken/internal/pkg/api"
	"github.com/vreid/janken/internal/pkg/common"
	"github.com/vreid/janken/internal/pkg/config"
	"github.com/vreid/janken/internal/pkg/custody"
	"github.com/vreid/janken/internal/pkg/escrow"
	"github.com/vreid/janken/internal/pkg/events"
	"github.com/vreid/janken/internal/pkg/registry"
	"github.com/vreid/janken/internal/pkg/scorer"
	"github.com/vreid/janken/internal/pkg/verifier"

	"github.com/urfave/cli/v3"
)

const (
	shutdownTimeout = 10 * time.Second
	eventBuffer     = 256
)

type JankenService struct {
	EchoService   *common.EchoService   `do:""`
	LoggerService *common.LoggerService `do:""`

	APIService    *api.APIService       `do:""`
	ScorerService *scorer.ScorerService `do:""`
}

//nolint:cyclop
func resolveConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()

	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}

		cfg = loaded
	}

	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	if cmd.IsSet("data-dir") {
		cfg.DataDir = cmd.String("data-dir")
	}

	if cmd.IsSet("reveal-window") {
		cfg.RevealWindow = config.Duration{Duration: cmd.Duration("reveal-window")}
	}

	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}

	if cmd.IsSet("verifier") {
		cfg.Verifier.Kind = cmd.String("verifier")
	}

	if cmd.IsSet("verifier-secret") {
		cfg.Verifier.Secret = cmd.String("verifier-secret")
	}

	if cmd.IsSet("verifier-url") {
		cfg.Verifier.URL = cmd.String("verifier-url")
	}

	if cmd.IsSet("verifier-cache-size") {
		cfg.Verifier.CacheSize = cmd.Int("verifier-cache-size")
	}

	if cmd.IsSet("valkey-addr") {
		cfg.Valkey.Addr = cmd.String("valkey-addr")
	}

	if cmd.IsSet("valkey-channel") {
		cfg.Valkey.Channel = cmd.String("valkey-channel")
	}

	return cfg, cfg.Validate()
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	i := do.New()

	do.ProvideNamedValue(i, "port", cfg.Port)
	do.ProvideNamedValue(i, "data-dir", cfg.DataDir)
	do.ProvideNamedValue(i, "reveal-window", cfg.RevealWindow.Duration)
	do.ProvideNamedValue(i, "log-level", cfg.LogLevel)

	do.ProvideNamedValue(i, "verifier", cfg.Verifier.Kind)
	do.ProvideNamedValue(i, "verifier-secret", cfg.Verifier.Secret)
	do.ProvideNamedValue(i, "verifier-url", cfg.Verifier.URL)
	do.ProvideNamedValue(i, "verifier-cache-size", cfg.Verifier.CacheSize)

	do.ProvideNamedValue(i, "valkey-addr", cfg.Valkey.Addr)
	do.ProvideNamedValue(i, "valkey-channel", cfg.Valkey.Channel)

	eventChannel := make(chan events.Event, eventBuffer)

	do.ProvideNamedValue(i, "event-sink", events.ChanSink(eventChannel))
	do.ProvideNamedValue(i, "event-source", (<-chan events.Event)(eventChannel))

	do.Provide(i, common.NewLoggerService)
	do.Provide(i, common.NewClockService)
	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, common.NewEchoService)

	do.Provide(i, custody.NewLedgerService)
	do.Provide(i, registry.NewRegistryService)
	do.Provide(i, verifier.NewVerifierService)
	do.Provide(i, events.NewEventsService)
	do.Provide(i, escrow.NewEscrowService)
	do.Provide(i, api.NewAPIService)
	do.Provide(i, scorer.NewScorerService)

	do.Provide(i, do.InvokeStruct[JankenService])

	jankenService, err := do.Invoke[JankenService](i)
	if err != nil {
		return fmt.Errorf("failed to create janken service: %w", err)
	}

	defer i.Shutdown()

	jankenService.ScorerService.Start()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := jankenService.EchoService.Shutdown(shutdownCtx)
		if err != nil {
			jankenService.LoggerService.Logger.Sugar().Errorw("shutdown failed", "error", err)
		}
	}()

	//nolint:wrapcheck
	return jankenService.EchoService.Start()
}

func main() {
	defaults := config.Default()

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "janken",
		Usage: "commit-reveal rock-paper-scissors wagering service",
		Commands: []*cli.Command{
			{
				Name: "server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Sources: cli.EnvVars("JANKEN_CONFIG"),
					},
					&cli.IntFlag{
						Name:    "port",
						Value:   defaults.Port,
						Sources: cli.EnvVars("JANKEN_PORT"),
					},
					&cli.StringFlag{
						Name:    "data-dir",
						Value:   defaults.DataDir,
						Sources: cli.EnvVars("JANKEN_DATA_DIR"),
					},
					&cli.DurationFlag{
						Name:    "reveal-window",
						Value:   defaults.RevealWindow.Duration,
						Sources: cli.EnvVars("JANKEN_REVEAL_WINDOW"),
					},
					&cli.StringFlag{
						Name:    "log-level",
						Value:   defaults.LogLevel,
						Sources: cli.EnvVars("JANKEN_LOG_LEVEL"),
					},
					&cli.StringFlag{
						Name:    "verifier",
						Value:   defaults.Verifier.Kind,
						Usage:   "accept-all, hmac or remote",
						Sources: cli.EnvVars("JANKEN_VERIFIER"),
					},
					&cli.StringFlag{
						Name:    "verifier-secret",
						Sources: cli.EnvVars("JANKEN_VERIFIER_SECRET"),
					},
					&cli.StringFlag{
						Name:    "verifier-url",
						Sources: cli.EnvVars("JANKEN_VERIFIER_URL"),
					},
					&cli.IntFlag{
						Name:    "verifier-cache-size",
						Value:   defaults.Verifier.CacheSize,
						Sources: cli.EnvVars("JANKEN_VERIFIER_CACHE_SIZE"),
					},
					&cli.StringFlag{
						Name:    "valkey-addr",
						Sources: cli.EnvVars("JANKEN_VALKEY_ADDR"),
					},
					&cli.StringFlag{
						Name:    "valkey-channel",
						Value:   defaults.Valkey.Channel,
						Sources: cli.EnvVars("JANKEN_VALKEY_CHANNEL"),
					},
				},
				Action: runServer,
			},
			commitCommand(),
			revealProofCommand(),
		},
		DefaultCommand: "server",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
