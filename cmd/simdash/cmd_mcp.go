package main

import (
	"fmt"

	"github.com/nvandessel/simdash/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run as an MCP server over stdio",
		Long: `Run simdash as a Model Context Protocol server on stdin/stdout.

Tools run the simulation, select series and cells, build the accumulation
table and export it. Every tool call is appended to audit.jsonl in the
logging directory. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// stdout carries the protocol.
			eng, err := newEngine(cfg, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:      "simdash",
				Version:   version,
				Sessions:  eng.sessions,
				ExportDir: cfg.Export.Dir,
				AuditDir:  cfg.Logging.Dir,
				Logger:    eng.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			ctx, stop := withSignals(cmd.Context())
			defer stop()
			return server.Run(ctx)
		},
	}
}
