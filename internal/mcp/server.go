// Package mcp exposes the engine over the Model Context Protocol.
//
// This is the conversational ingress: agents declare intent, check actions,
// and record evidence through these tools. All enforcement lives in the
// engine; the tools translate and instrument.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/engine"
	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

// Server exposes engine operations as MCP tools over stdio.
type Server struct {
	mcp     *mcp.Server
	engine  *engine.Engine
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "gatehouse")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gatehouse",
		Version: "1.0.0",
	}
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg *Config, eng *engine.Engine, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		engine:  eng,
		metrics: NewMetrics(logger),
		logger:  logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves the stdio transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	s.registerRoutingTools()
	s.registerChecklistTools()
	s.registerFindingTools()
	s.logger.Debug(context.Background(), "tools registered", zap.Int("count", 9))
}
