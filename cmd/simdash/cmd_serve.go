package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nvandessel/simdash/internal/ratelimit"
	"github.com/nvandessel/simdash/internal/visualization"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// Dashboard runs per session: 10 per minute, burst 3.
const (
	serveRunsPerMinute = 10
	serveRunBurst      = 3
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Long: `Start a local HTTP server with the simulation dashboard.

Each browser tab gets its own session; sessions share the result cache, so
identical inputs only run the simulation once per cache lifetime.

Examples:
  simdash serve                       # Free port, opens the browser
  simdash serve --addr :8080 --no-open`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}
			if noOpen, _ := cmd.Flags().GetBool("no-open"); noOpen {
				cfg.Server.OpenBrowser = false
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			eng, err := newEngine(cfg, cmd.ErrOrStderr(), reg)
			if err != nil {
				return err
			}
			defer eng.Close()

			srv := visualization.NewServer(eng.sessions, visualization.Options{
				Addr:        cfg.Server.Addr,
				ExportDir:   cfg.Export.Dir,
				SessionIdle: cfg.Server.SessionIdle,
				Gatherer:    reg,
				RunLimiter:  ratelimit.PerMinute(serveRunsPerMinute, serveRunBurst),
				Logger:      eng.logger,
			})
			return runDashboard(cmd, cmd.Context(), srv, cfg.Server.OpenBrowser)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, localhost:0)")
	cmd.Flags().Bool("no-open", false, "Do not open the dashboard in a browser")

	return cmd
}

// runDashboard starts srv and blocks until Ctrl-C.
func runDashboard(cmd *cobra.Command, ctx context.Context, srv *visualization.Server, openBrowser bool) error {
	srvCtx, stop := withSignals(ctx)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			break
		}
		select {
		case err := <-errCh:
			return fmt.Errorf("server failed to start: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Dashboard running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if openBrowser {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	return <-errCh
}
