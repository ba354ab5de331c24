package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/nl2sql"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
)

type toolHandler struct {
	asker      Asker
	translator nl2sql.Translator
	logger     *slog.Logger
}

func (h *toolHandler) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.asker == nil {
		return mcp.NewToolResultError("question answering is not configured"), nil
	}
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	ctx = observability.ContextWithTraceID(ctx, observability.NewTraceID())
	reply := h.asker.Run(ctx, question, nil)
	h.logger.InfoContext(ctx, "mcp ask completed", "trace_id", reply.TraceID, "state", reply.State, "error_kind", reply.Kind)

	if reply.Aborted() {
		return mcp.NewToolResultError(reply.Text), nil
	}
	if len(reply.Image) == 0 {
		return mcp.NewToolResultText(reply.Text), nil
	}
	return mcp.NewToolResultImage(reply.Text, base64.StdEncoding.EncodeToString(reply.Image), "image/png"), nil
}

func (h *toolHandler) handleTranslate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.translator == nil {
		return mcp.NewToolResultError("query translation is not configured"), nil
	}
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	result, err := h.translator.Translate(ctx, question)
	if err != nil {
		h.logger.WarnContext(ctx, "mcp translate failed", "error", err)
		return mcp.NewToolResultError(nl2sql.UserMessage(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n-- provider=%s model=%s", result.SQL, result.Provider, result.Model)), nil
}
