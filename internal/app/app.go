// Package app wires configuration into the running components shared by the
// server and the CLI.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/example/mediaflow/internal/agents"
	"github.com/example/mediaflow/internal/config"
	"github.com/example/mediaflow/internal/engine"
	"github.com/example/mediaflow/internal/orchestrator"
	"github.com/example/mediaflow/internal/providers/llm"
	"github.com/example/mediaflow/internal/tools"
)

type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	LLM          llm.Client
	Tools        *tools.Registry
	Executor     *engine.Executor
	Planner      agents.Planner
	Verifier     agents.Verifier
	Orchestrator *orchestrator.Orchestrator

	closers []io.Closer
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	a.LLM = llm.New(ctx, cfg.LLMClientConfig())
	if c, ok := a.LLM.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.Tools = cfg.BuildRegistry(a.LLM)

	runner := &engine.StepRunner{
		Tools:           a.Tools,
		Requirements:    cfg.Requirements(),
		Poller:          &engine.Poller{Logger: logger},
		Policies:        cfg.Policies(),
		MaxStatusErrors: cfg.Engine.MaxStatusErrors,
		Logger:          logger,
	}
	a.Executor = &engine.Executor{Runner: runner, Logger: logger}

	a.Planner = &agents.MockPlanner{}
	if strings.EqualFold(cfg.Planner.Provider, "llm") {
		a.Planner = &agents.LLMPlanner{Client: a.LLM, Fallback: &agents.MockPlanner{}, Logger: logger}
	}
	a.Verifier = &agents.PlanVerifier{
		Tools: func(tool string) bool {
			_, ok := a.Tools.Get(tool)
			return ok
		},
		Requirements: runner.Requirements,
	}

	var observers []orchestrator.Observer
	if cfg.Redis.Addr != "" {
		m, err := orchestrator.NewRedisMirror(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ChannelPrefix, cfg.Redis.TTL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		m.Logger = logger
		m.MaxEvents = cfg.Redis.MaxEvents
		observers = append(observers, m)
		a.closers = append(a.closers, m)
	}
	a.Orchestrator = orchestrator.New(a.Planner, a.Verifier, a.Executor, observers...)
	a.Orchestrator.Logger = logger
	a.Orchestrator.Retention = cfg.Server.RunRetention

	logger.Info("components ready", "tools", a.Tools.Tools(), "planner", cfg.Planner.Provider, "redis_mirror", cfg.Redis.Addr != "")
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
