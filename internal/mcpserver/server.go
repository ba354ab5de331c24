// Package mcpserver exposes the stock-price pipeline as Model Context
// Protocol tools for assistant clients.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/nl2sql"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/pipeline"
)

const (
	ServerName    = "TechFin Stock Prices"
	ServerVersion = "1.0.0"

	ToolAsk       = "ask_stock_prices"
	ToolTranslate = "translate_stock_question"
)

// Asker is satisfied by *pipeline.Pipeline.
type Asker interface {
	Run(ctx context.Context, request string, progress pipeline.Progress) pipeline.Reply
}

// NewServer builds the MCP server without starting it.
func NewServer(asker Asker, translator nl2sql.Translator, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithLogging(),
	)

	h := &toolHandler{asker: asker, translator: translator, logger: logger}

	s.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a natural-language question about 2024 technology stock prices with a chart and a short analysis."),
		mcp.WithString("question", mcp.Description("Question in natural language, e.g. 'Покажи график цен Apple за март'."), mcp.Required()),
	), h.handleAsk)

	s.AddTool(mcp.NewTool(ToolTranslate,
		mcp.WithDescription("Translate a natural-language question about 2024 technology stock prices into the SQL the bot would run."),
		mcp.WithString("question", mcp.Description("Question in natural language."), mcp.Required()),
	), h.handleTranslate)

	return s
}

// ServeStdio blocks serving MCP over stdin and stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
