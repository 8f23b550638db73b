package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Service Service
	// UserID is the identity every tool call acts as. The surrounding
	// auth layer resolves it before the server starts.
	UserID  string
	Version string
	Logger  *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "docqa", Version: version}, nil)
	h := &handlers{svc: cfg.Service, userID: cfg.UserID, logger: logger}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question from the user's uploaded documents. Returns the answer and up to three source excerpts.",
	}, h.ask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the user's uploaded documents, newest first.",
	}, h.list)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete one of the user's documents and its search index.",
	}, h.delete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_history",
		Description: "Return the user's most recent questions and answers, newest first.",
	}, h.history)

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// HTTPHandler serves the MCP server over Streamable HTTP. Stateless disables
// session management, which suits a tool-only server behind a load balancer.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}
