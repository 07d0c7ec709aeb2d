package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/simdash/internal/chart"
	"github.com/nvandessel/simdash/internal/logging"
	"github.com/nvandessel/simdash/internal/ratelimit"
	"github.com/nvandessel/simdash/internal/session"
)

// Server wraps the MCP SDK server around one simdash session.
type Server struct {
	server       *sdk.Server
	sessions     *session.Manager
	session      *session.Session
	exportDir    string
	chart        chart.Options
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "simdash")
	Version string // Server version

	// Sessions supplies the engine session and the shared result cache.
	Sessions *session.Manager

	// ExportDir bounds simdash_export paths. Empty disables file exports.
	ExportDir string

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Chart  chart.Options
	Logger *slog.Logger
}

// NewServer creates a new MCP server with simdash tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("failed to create server: no session manager")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	chartOpts := cfg.Chart
	if chartOpts.Width <= 0 || chartOpts.Height <= 0 {
		chartOpts = chart.DefaultOptions()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	var audit *AuditLogger
	if cfg.AuditDir != "" {
		audit = NewAuditLogger(cfg.AuditDir)
	}

	s := &Server{
		server:       mcpServer,
		sessions:     cfg.Sessions,
		session:      cfg.Sessions.Create(),
		exportDir:    cfg.ExportDir,
		chart:        chartOpts,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  audit,
		logger:       logger,
	}

	if err := s.registerTools(); err != nil {
		audit.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		audit.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "session", s.session.ID())
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()
	return err
}

// Close releases the session and the audit log.
func (s *Server) Close() error {
	s.sessions.Remove(s.session.ID())
	return s.auditLogger.Close()
}
