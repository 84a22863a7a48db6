// Package mcpadapter exposes document Q&A and status lookups as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	ToolRAGSearch      = "rag_search"
	ToolRAGChat        = "rag_chat"
	ToolDocumentStatus = "document_status"
)

type Server struct {
	qa      ports.DocumentQA
	docs    ports.DocumentReader
	logger  *zap.Logger
	version string
}

func New(qa ports.DocumentQA, docs ports.DocumentReader, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if version == "" {
		version = "dev"
	}
	return &Server{qa: qa, docs: docs, logger: logger.Named("mcp"), version: version}
}

// MCPServer registers the tools on a fresh protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("document-intelligence", s.version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool(ToolRAGSearch,
		mcp.WithDescription("Answer a single question from indexed document content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithString("ocrId", mcp.Description("Restrict retrieval to one document")),
	), s.ragSearch)

	srv.AddTool(mcp.NewTool(ToolRAGChat,
		mcp.WithDescription("Continue a conversation about a document using retrieved context."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Latest user question")),
		mcp.WithString("ocrId", mcp.Description("Restrict retrieval to one document")),
		mcp.WithArray("history",
			mcp.Description("Previous turns as {role, content} objects"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
			}),
		),
	), s.ragChat)

	srv.AddTool(mcp.NewTool(ToolDocumentStatus,
		mcp.WithDescription("Report processing status of an analyzed document."),
		mcp.WithString("ocrId", mcp.Required(), mcp.Description("Document id")),
	), s.documentStatus)

	return srv
}

func (s *Server) ragSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.qa.Search(ctx, req.GetString("ocrId", ""), query)
	if err != nil {
		return s.toolError(ToolRAGSearch, err), nil
	}
	return jsonResult(answer)
}

func (s *Server) ragChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	turns, err := chatHistory(req.GetArguments()["history"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.qa.Chat(ctx, req.GetString("ocrId", ""), question, turns)
	if err != nil {
		return s.toolError(ToolRAGChat, err), nil
	}
	return jsonResult(answer)
}

func (s *Server) documentStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("ocrId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.docs.GetStatus(ctx, id)
	if err != nil {
		return s.toolError(ToolDocumentStatus, err), nil
	}
	return jsonResult(view)
}

// toolError reports failures inside the tool result so the client model can
// see them; internal details stay in the log.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	if msg, ok := domain.PublicMessage(err); ok {
		return mcp.NewToolResultError(msg)
	}
	s.logger.Error("mcp_tool_failed", zap.String("tool", tool), zap.Error(err))
	return mcp.NewToolResultError(tool + " failed")
}

func chatHistory(raw any) ([]domain.ChatTurn, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	var turns []domain.ChatTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("history must be a list of {role, content} objects")
	}
	return turns, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
