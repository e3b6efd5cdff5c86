// Package mcp exposes the query pipeline over the Model Context
// Protocol so MCP-capable clients (editors, agents) can search the case
// study corpus as a tool.
//
// The server registers a single tool, query_case_studies. Progress
// events are meaningless over a request/response protocol, so the tool
// discards them and returns only the terminal payload: the complete
// event as JSON text content, or an error result when the pipeline
// reports a failure.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docket0/docket/internal/pipeline"
	"github.com/docket0/docket/internal/session"
)

// toolQueryCaseStudies is the name clients call the tool by.
const toolQueryCaseStudies = "query_case_studies"

// QueryRunner runs one query end to end, streaming encoded events to
// sink. *pipeline.Pipeline satisfies it.
type QueryRunner interface {
	Run(ctx context.Context, userQuery, requestedSession string, sink pipeline.Sink)
}

// Config holds MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Pipeline QueryRunner
	Logger   *slog.Logger
}

// Server wraps the MCP SDK server around the query pipeline.
type Server struct {
	mcpServer *mcp.Server
	pipeline  QueryRunner
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the query tool registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		pipeline: cfg.Pipeline,
		logger:   logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport. Blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// QueryInput defines the input schema for the query_case_studies tool.
type QueryInput struct {
	Query     string `json:"query" jsonschema:"The question to answer from the cloud case study corpus"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Session identifier returned by a previous call; omit to start a new conversation"`
}

func (s *Server) registerTools() error {
	inputSchema, err := jsonschema.For[QueryInput](nil)
	if err != nil {
		return fmt.Errorf("schema for query tool: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: toolQueryCaseStudies,
		Description: "Answer a question about cloud adoption case studies using retrieval-augmented generation. " +
			"Returns the answer, the supporting citations, and a session_id; " +
			"pass the session_id back in follow-up calls to continue the conversation.",
		InputSchema: inputSchema,
	}, s.runQuery)

	return nil
}

// runQuery handles the query_case_studies MCP tool call.
func (s *Server) runQuery(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return errorResult("query cannot be empty"), nil, nil
	}

	requested := in.SessionID
	if requested == "" {
		requested = session.FirstTime
	}

	// Keep only the terminal line; the pipeline emits it last.
	var terminal []byte
	sink := func(line []byte) error {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &envelope); err == nil && envelope.Type == pipeline.EventProcessingStep {
			return nil
		}
		terminal = append(terminal[:0], line...)
		return nil
	}

	s.pipeline.Run(ctx, query, requested, sink)

	if terminal == nil {
		return nil, nil, fmt.Errorf("pipeline produced no terminal event")
	}

	var event struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if err := json.Unmarshal(terminal, &event); err != nil {
		return nil, nil, fmt.Errorf("decoding terminal event: %w", err)
	}

	if event.Type == pipeline.EventError {
		text := event.Message
		if event.Detail != nil {
			text += fmt.Sprintf(": %v", event.Detail)
		}
		s.logger.Warn("query tool returned error", "message", event.Message)
		return errorResult(text), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(terminal)}},
	}, nil, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
