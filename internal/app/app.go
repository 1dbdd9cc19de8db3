// Package app assembles the order gateway: configuration, the backend API
// client, the verification state machine, and the Telegram transport.
package app

import (
	"context"
	"fmt"
	"time"

	coreconfig "ordergate/core/config"
	"ordergate/core/logger"
	coretelegram "ordergate/core/telegram"
	"ordergate/core/telegram/commands"
	"ordergate/internal/backend"
	"ordergate/internal/gateway"
	"ordergate/internal/jobs/sweep"
	"ordergate/internal/verify"

	tele "gopkg.in/telebot.v4"
)

// Config carries the loaded core configuration into bootstrap.
type Config struct {
	core *coreconfig.Config
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return c.core
}

// LoadConfig reads and validates the gateway configuration file.
func LoadConfig(path string) (*Config, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &Config{core: cfg}, nil
}

// App holds the wired gateway components for the lifetime of the process.
type App struct {
	cfg      *coreconfig.Config
	backend  *backend.Client
	verifier *verify.Service
	gateway  *gateway.Gateway
	sweep    *sweep.Job
}

// New bootstraps the application from configuration. The logger must be
// usable before any component logs, so it is initialized first.
func New(cfg *Config) (*App, error) {
	core := cfg.CoreConfig()
	if core == nil {
		return nil, fmt.Errorf("app: missing core configuration")
	}
	if err := logger.InitLogger(core); err != nil {
		return nil, fmt.Errorf("app: logger init failed: %w", err)
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL: core.Backend.APIURL,
		APIKey:  core.Backend.APIKey,
		Timeout: time.Duration(core.Backend.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("app: backend client: %w", err)
	}

	store := verify.NewStore()
	verifier := verify.NewService(store, client, verify.Options{
		CodeTTL: time.Duration(core.Verification.CodeTTLMinutes) * time.Minute,
	})

	a := &App{
		cfg:      core,
		backend:  client,
		verifier: verifier,
		gateway:  gateway.New(verifier, gateway.NewRouter(client)),
	}

	if interval := time.Duration(core.Verification.SweepIntervalMinutes) * time.Minute; interval > 0 {
		a.sweep = sweep.New(verifier, interval)
	}
	return a, nil
}

// TelegramRunOptions builds the bot runtime wiring: registry, middleware
// chain, routes, and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Start verification",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleCommand,
		Description: "Show available commands",
	})
	reg.RegisterCommand("/order", commands.Command{
		Handler:     a.handleCommand,
		Description: "Check order status",
	})

	opts := coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes:      a.routes(reg),
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			if a.sweep != nil {
				go a.sweep.Run(ctx)
			}
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			a.verifier.Close()
			return nil
		},
	}
	return opts, nil
}

func (a *App) routes(reg *coretelegram.Registry) []coretelegram.Route {
	routes := []coretelegram.Route{
		{Endpoint: tele.OnText, Handler: a.handleText},
	}
	for name, cmd := range reg.Commands() {
		routes = append(routes, coretelegram.Route{Endpoint: name, Handler: cmd.Handler})
	}
	return routes
}
