package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/internal/service"
	"github.com/Zereker/vectorstore/pkg/log"
)

// Server exposes the vector service as MCP tools.
type Server struct {
	logger  *slog.Logger
	mcp     *mcp.Server
	handler *Handler
	name    string
	version string
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Name    string
	Version string
}

// NewServer creates a new MCP server
func NewServer(svc *service.Service, config ServerConfig) *Server {
	s := &Server{
		logger:  log.Logger("mcp"),
		handler: NewHandler(svc),
		name:    config.Name,
		version: config.Version,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    config.Name,
			Version: config.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// RunStdio serves over stdin/stdout until the client disconnects or ctx ends.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("starting stdio server", "name", s.name, "version", s.version)
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves a single session on t.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "mcp server")
	}
	return nil
}
