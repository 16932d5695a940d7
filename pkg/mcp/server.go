// Package mcp exposes job status and bucket trees to agents over the Model
// Context Protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

// Deps are the services the tools read from.
type Deps struct {
	Jobs         services.JobService
	Analyses     services.AnalysisService
	HealthChecks map[string]tools.HealthCheck
}

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server with tool-call auditing attached.
func NewServer(name, version string, logger *zap.Logger) *Server {
	audit := NewAuditLogger(logger)
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(audit.Hooks()),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// NewBucketerServer creates a server with every bucketer tool registered.
func NewBucketerServer(version string, deps Deps, logger *zap.Logger) *Server {
	s := NewServer("ekaya-bucketer", version, logger)
	tools.RegisterHealthTool(s.mcp, version, deps.HealthChecks)
	if deps.Jobs != nil {
		tools.RegisterJobTools(s.mcp, deps.Jobs)
	}
	if deps.Analyses != nil {
		tools.RegisterBucketTools(s.mcp, deps.Analyses)
	}
	return s
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer wraps the server in the streamable HTTP
// transport. The caller mounts it on /mcp.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool adds a tool outside the standard set.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
