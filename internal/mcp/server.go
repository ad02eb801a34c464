// Package mcp exposes the suggestion engine to other local assistants
// over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/suggest"
)

// Server wraps the suggestion engine behind a single MCP tool.
type Server struct {
	engine *suggest.Engine
	server *mcp.Server
}

// NewServer builds the MCP server and registers the draft_replies tool.
func NewServer(engine *suggest.Engine) *Server {
	s := &Server{engine: engine}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "quill",
		Version: "0.1.0",
	}, nil)

	s.registerDraftTool()
	return s
}

const draftToolDescription = "Draft short reply suggestions for an ongoing conversation. " +
	"Pass the recent messages as plain text, one per line with the newest last. " +
	"Returns a JSON array of suggested replies."

func (s *Server) registerDraftTool() {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"context": map[string]any{
				"type":        "string",
				"description": "Recent conversation messages, one per line, newest last",
			},
			"count": map[string]any{
				"type":        "integer",
				"description": "How many replies to draft (1-5)",
			},
		},
		"required": []string{"context"},
	}

	s.server.AddTool(&mcp.Tool{
		Name:        "draft_replies",
		Description: draftToolDescription,
		InputSchema: schema,
	}, s.handleDraftReplies)
}

type draftArgs struct {
	Context string `json:"context"`
	Count   int    `json:"count"`
}

func (s *Server) handleDraftReplies(ctx context.Context, req *mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	// Recover so a parser or provider panic cannot kill the transport
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("[mcp] panic in draft_replies: %v", r)
			result = toolError(fmt.Sprintf("tool panicked: %v", r))
			err = nil
		}
	}()

	var args draftArgs
	inputJSON := json.RawMessage(req.Params.Arguments)
	if len(inputJSON) > 0 {
		if jsonErr := json.Unmarshal(inputJSON, &args); jsonErr != nil {
			return toolError(fmt.Sprintf("invalid arguments: %v", jsonErr)), nil
		}
	}

	text, isError := s.draft(ctx, args)
	if isError {
		return toolError(text), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil
}

// draft runs the engine for a tool call and renders the JSON payload.
func (s *Server) draft(ctx context.Context, args draftArgs) (string, bool) {
	if s.engine == nil {
		return "no suggestion provider configured", true
	}

	replies := s.engine.Generate(ctx, args.Context)
	if args.Count > 0 && args.Count < len(replies) {
		replies = replies[:args.Count]
	}

	payload, _ := json.Marshal(replies)
	logging.Debugf("[mcp] draft_replies returned %d suggestions", len(replies))
	return string(payload), false
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// Handler returns the streamable HTTP handler the host API mounts at /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return s.server
		},
		nil,
	)
}
