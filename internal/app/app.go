// Package app contains the core application logic: the App struct, its
// configuration, and the run lifecycle, decoupled from any specific
// entrypoint like the CLI.
package app

import (
	"errors"
	"io"
	"log/slog"

	"github.com/laebshade/pants/internal/builtin"
	"github.com/laebshade/pants/internal/engine"
)

// Config holds all the configuration an App instance needs to run.
type Config struct {
	// RootPath is the build root containing BUILD.hcl files.
	RootPath string
	// Goals are the requested goal names.
	Goals []string
	// Addresses are the requested root target addresses.
	Addresses []string

	LogFormat string
	LogLevel  string
	Workers   int
	// DryRun prints the linearized execution plan without running it.
	DryRun bool
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.RootPath == "" {
		return nil, errors.New("RootPath is a required configuration field and cannot be empty")
	}
	if len(cfg.Goals) == 0 {
		return nil, errors.New("at least one goal is required")
	}
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("at least one root address is required")
	}
	return &cfg, nil
}

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	planners *engine.Planners
}

// New constructs the application: an isolated logger and a planner registry
// populated from the given modules (the built-in module when none are
// supplied).
func New(outW io.Writer, cfg *Config, modules ...engine.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	planners := engine.NewPlanners()
	if len(modules) == 0 {
		modules = []engine.Module{builtin.Module{}}
	}
	for _, mod := range modules {
		mod.Register(planners)
	}
	logger.Debug("All modules registered.", "count", len(modules), "goals", planners.Goals())

	return &App{outW: outW, logger: logger, config: cfg, planners: planners}
}

// Planners returns the application's registry. Primarily for testing.
func (a *App) Planners() *engine.Planners {
	return a.planners
}
