// Package mcpserver exposes part building, export and generation as Model
// Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/parts"
)

// ModelStore allocates, confirms and lists exported model files.
type ModelStore interface {
	parts.Store
	List() ([]model.GeneratedModel, error)
}

// Generator runs the code-generation pipeline.
type Generator interface {
	Generate(ctx context.Context, request string) model.GenerationResult
}

// Config names the server and sets the default export format.
type Config struct {
	Name    string
	Version string
	Format  string
}

// Deps are the collaborators behind the tools. Generator may be nil, in
// which case generate_model reports that generation is not configured.
type Deps struct {
	Registry  *Registry
	Models    ModelStore
	Generator Generator
}

// Server wraps an MCP server with the CAD tools registered.
type Server struct {
	cfg       Config
	deps      Deps
	mcpServer *server.MCPServer
}

// New creates a Server and registers every tool.
func New(cfg Config, deps Deps) *Server {
	if cfg.Name == "" {
		cfg.Name = "genx3d"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Format == "" {
		cfg.Format = "STEP"
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: server.NewMCPServer(cfg.Name, cfg.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Build boxes, cylinders and flanges by dimension, export them as STEP or STL, or generate a part from a text description."),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// Serve speaks MCP over the given streams until ctx is cancelled or the input
// closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	zap.L().Info("mcp: serving on stdio", zap.String("name", s.cfg.Name), zap.Int("tools", len(s.mcpServer.ListTools())))
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}
