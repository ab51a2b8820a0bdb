package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sabitax/sabitax/internal/agent"
	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/retrieval"
)

// MCPRetriever abstracts corpus search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Agent         ChatAgent
	Conversations *conversation.Store
	Retriever     MCPRetriever
}

// NewMCPServer creates an MCP server exposing the tax assistant to MCP
// clients: asking questions, searching the corpus directly, and reading
// session history.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sabitax",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("sabitax: conversational assistant over Nigerian tax legislation with cited answers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_tax_question",
			mcp.WithDescription("Ask a question about Nigerian tax law and get a cited answer grounded in the legislation corpus."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session ID for conversation continuity; a new session is created when omitted")),
			mcp.WithString("role", mcp.Description("Answer persona: tax_lawyer, taxpayer, or company (default taxpayer)")),
		),
		mcpAskTaxQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("search_tax_corpus",
			mcp.WithDescription("Semantically search the tax legislation corpus and return matching passages with citations."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of passages (default 4)")),
		),
		mcpSearchCorpus(deps),
	)

	s.AddTool(
		mcp.NewTool("session_history",
			mcp.WithDescription("Return the ordered conversation history of a session."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		),
		mcpSessionHistory(deps),
	)

	return s
}

func mcpAskTaxQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		role := agent.ParseRole(req.GetString("role", ""))

		result, err := deps.Agent.Chat(ctx, sessionID, question, role)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"response":       result.Response,
			"session_id":     sessionID,
			"sources":        result.Sources,
			"used_retrieval": result.UsedRetrieval,
			"language":       result.Language,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchCorpus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 4)
		if limit <= 0 {
			limit = 4
		}
		if limit > 20 {
			limit = 20
		}

		records, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(records) == 0 {
			return mcpText("[]"), nil
		}

		type passageResult struct {
			Section    string  `json:"section"`
			Act        string  `json:"act"`
			SourceFile string  `json:"source_file"`
			Page       int     `json:"page"`
			Locator    string  `json:"locator"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}

		results := make([]passageResult, len(records))
		for i, rec := range records {
			results[i] = passageResult{
				Section:    rec.Section,
				Act:        rec.Act,
				SourceFile: rec.SourceFile,
				Page:       rec.Page,
				Locator:    fmt.Sprintf("%s#page=%d", rec.SourceFile, rec.Page),
				Text:       rec.Text,
				Score:      rec.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSessionHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		history, err := deps.Conversations.History(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load history: %v", err)), nil
		}
		if history == nil {
			history = []conversation.Turn{}
		}

		b, err := json.Marshal(history)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
