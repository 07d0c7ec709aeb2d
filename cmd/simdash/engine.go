package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/nvandessel/simdash/internal/config"
	"github.com/nvandessel/simdash/internal/logging"
	"github.com/nvandessel/simdash/internal/series"
	"github.com/nvandessel/simdash/internal/session"
	"github.com/nvandessel/simdash/internal/simcache"
	"github.com/nvandessel/simdash/internal/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// newSimulator builds the simulator from config. Tests replace it.
var newSimulator = func(cfg config.SimulationConfig) (simulation.Simulator, error) {
	return simulation.NewExec(simulation.ExecConfig{
		Command: cfg.Command,
		Args:    cfg.Args,
		Timeout: cfg.Timeout,
	})
}

// loadConfig loads the --config file when given, else the default locations,
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.SimdashConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.SimdashConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
		if err == nil && cfg.Logging.Dir == "" {
			cfg.Logging.Dir = config.DefaultDir()
		}
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// engine is the cache, session manager and loggers shared by one process.
type engine struct {
	cfg      *config.SimdashConfig
	logger   *slog.Logger
	events   *logging.EventLogger
	cache    *simcache.Cache
	sessions *session.Manager
}

// newEngine wires the engine from cfg. Operational logs go to logOut; cache
// metrics are registered on reg when it is non-nil.
func newEngine(cfg *config.SimdashConfig, logOut io.Writer, reg prometheus.Registerer) (*engine, error) {
	sim, err := newSimulator(cfg.Simulation)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulator: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging.Level, logOut)
	events := logging.NewEventLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if events != nil {
		logger.Debug("event logging enabled", "path", events.Path())
	}

	opts := []simcache.Option{
		simcache.WithTTL(cfg.Cache.TTL),
		simcache.WithLogger(logger),
	}
	if reg != nil {
		opts = append(opts, simcache.WithRegisterer(reg))
	}
	cache := simcache.New(sim, opts...)

	sessCfg := session.Config{
		Series: series.Options{
			AxisKey:  cfg.Series.AxisKey,
			CellsKey: cfg.Series.CellsKey,
		},
		ExcludedKeys: cfg.Series.ExcludedKeys,
		DefaultKey:   cfg.Series.DefaultKey,
	}

	return &engine{
		cfg:      cfg,
		logger:   logger,
		events:   events,
		cache:    cache,
		sessions: session.NewManager(cache, sessCfg, logger, events),
	}, nil
}

// Close flushes the event log.
func (e *engine) Close() {
	e.events.Close()
}
