package main

import (
	"fmt"
	"log"
	"os"

	"silexa/mcp-supervisor/internal/config"
	"silexa/mcp-supervisor/internal/integrator"
	"silexa/mcp-supervisor/internal/jobengine"
	"silexa/mcp-supervisor/internal/layout"
	"silexa/mcp-supervisor/internal/registry"
	"silexa/mcp-supervisor/internal/supervisor"
)

// app bundles the components every subcommand needs, wired once from cfg.
// newApp starts the job reaper and log-rotation schedulers; supervised
// processes start only when a subcommand such as serve starts them.
type app struct {
	cfg        config.Config
	logger     *log.Logger
	layout     layout.Layout
	store      *registry.Store
	integrator *integrator.Integrator
	jobs       *jobengine.Manager
	supervisor *supervisor.Supervisor
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("supervisord: %w", err)
	}

	logger := log.New(os.Stderr, "[supervisord] ", log.LstdFlags)

	l := layout.New(cfg.DataDir)
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisord: %w", err)
	}

	store, err := registry.Open(l.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("supervisord: %w", err)
	}

	intg := integrator.New(l, store)
	jobs := jobengine.NewManager(intg)
	sup := supervisor.New(store, l)

	return &app{
		cfg:        cfg,
		logger:     logger,
		layout:     l,
		store:      store,
		integrator: intg,
		jobs:       jobs,
		supervisor: sup,
	}, nil
}

func (a *app) close() {
	a.jobs.Close()
}
