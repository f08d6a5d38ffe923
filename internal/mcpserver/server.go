// Package mcpserver exposes Meridian query submission as MCP tools, so
// agent hosts can run analyses through the same orchestration layer the
// CLI uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nvoss/meridian/internal/projectstore"
	"github.com/nvoss/meridian/internal/query"
	"github.com/nvoss/meridian/internal/stream"
)

// Submitter abstracts the query orchestrator for the MCP layer.
type Submitter interface {
	Submit(ctx context.Context, scopeID string, req query.Request) (*query.Handle, error)
	SubmitFollowup(ctx context.Context, parentQueryID string, req query.Request) (*query.Handle, error)
	FetchFullResult(ctx context.Context, queryID, originalQueryText string) (*stream.StatusEvent, error)
	SubmitApprovalFeedback(ctx context.Context, queryID, userMessage string) error
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Orchestrator Submitter
	Store        projectstore.Store
	// WaitTimeout bounds how long submit_query waits for a terminal
	// event before returning the query id for later polling.
	WaitTimeout time.Duration
}

// New creates an MCP server with all Meridian tools and resources
// registered.
func New(deps Deps) *server.MCPServer {
	if deps.WaitTimeout <= 0 {
		deps.WaitTimeout = 5 * time.Minute
	}

	s := server.NewMCPServer(
		"meridian",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Meridian — multi-agent business analysis over project documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_query",
			mcp.WithDescription("Submit a business analysis query under a project and wait for the result."),
			mcp.WithString("project_id", mcp.Description("Project to run the query under"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The business question to analyze"), mcp.Required()),
		),
		toolSubmitQuery(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_followup",
			mcp.WithDescription("Ask a follow-up question against a completed query and wait for the result."),
			mcp.WithString("query_id", mcp.Description("Query id of the analysis being followed up"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The follow-up question"), mcp.Required()),
		),
		toolSubmitFollowup(deps),
	)

	s.AddTool(
		mcp.NewTool("fetch_result",
			mcp.WithDescription("Fetch the stored full result of a completed or failed query."),
			mcp.WithString("query_id", mcp.Description("Query id to fetch"), mcp.Required()),
		),
		toolFetchResult(deps),
	)

	s.AddTool(
		mcp.NewTool("approve",
			mcp.WithDescription("Send approval feedback for a query that is waiting on human review."),
			mcp.WithString("query_id", mcp.Description("Query id awaiting approval"), mcp.Required()),
			mcp.WithString("message", mcp.Description("Free-text feedback, e.g. \"approved\" or change requests"), mcp.Required()),
		),
		toolApprove(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"meridian://projects",
			"Projects",
			mcp.WithResourceDescription("All known analysis projects as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		resourceProjects(deps),
	)

	return s
}

func toolSubmitQuery(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return toolError("project_id is required"), nil
		}
		queryText, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}

		handle, err := deps.Orchestrator.Submit(ctx, projectID, query.Request{QueryText: queryText})
		if err != nil {
			return toolError(fmt.Sprintf("submission failed: %v", err)), nil
		}
		return awaitResult(ctx, deps, handle)
	}
}

func toolSubmitFollowup(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := req.RequireString("query_id")
		if err != nil {
			return toolError("query_id is required"), nil
		}
		queryText, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}

		handle, err := deps.Orchestrator.SubmitFollowup(ctx, queryID, query.Request{QueryText: queryText})
		if err != nil {
			return toolError(fmt.Sprintf("follow-up failed: %v", err)), nil
		}
		return awaitResult(ctx, deps, handle)
	}
}

// awaitResult drains the handle's channel until a terminal event or the
// wait timeout. On timeout the query keeps running server-side; the
// caller gets the id to poll with fetch_result.
func awaitResult(ctx context.Context, deps Deps, handle *query.Handle) (*mcp.CallToolResult, error) {
	defer handle.Channel.Close()

	timer := time.NewTimer(deps.WaitTimeout)
	defer timer.Stop()

	var last *stream.StatusEvent
	for {
		select {
		case ev, ok := <-handle.Channel.Events():
			if !ok {
				if err := handle.Channel.Err(); err != nil {
					return toolError(fmt.Sprintf("stream for query %s broke: %v", handle.QueryID, err)), nil
				}
				if last == nil {
					return toolError(fmt.Sprintf("stream for query %s ended without events", handle.QueryID)), nil
				}
				return eventResult(*last)
			}
			last = &ev
			if ev.Status.Terminal() {
				return eventResult(ev)
			}
		case <-timer.C:
			return toolText(fmt.Sprintf(`{"query_id": %q, "status": "processing", "note": "still running, poll with fetch_result"}`, handle.QueryID)), nil
		case <-ctx.Done():
			return toolError(fmt.Sprintf("canceled while waiting on query %s: %v", handle.QueryID, ctx.Err())), nil
		}
	}
}

func toolFetchResult(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := req.RequireString("query_id")
		if err != nil {
			return toolError("query_id is required"), nil
		}

		result, err := deps.Orchestrator.FetchFullResult(ctx, queryID, "")
		if err != nil {
			return toolError(fmt.Sprintf("fetch failed: %v", err)), nil
		}
		return eventResult(*result)
	}
}

func toolApprove(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := req.RequireString("query_id")
		if err != nil {
			return toolError("query_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return toolError("message is required"), nil
		}

		if err := deps.Orchestrator.SubmitApprovalFeedback(ctx, queryID, message); err != nil {
			return toolError(fmt.Sprintf("approval failed: %v", err)), nil
		}
		return toolText(fmt.Sprintf("Feedback recorded for query %s", queryID)), nil
	}
}

func resourceProjects(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		projects, err := deps.Store.ListProjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}

		b, err := json.Marshal(projects)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal projects: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func eventResult(ev stream.StatusEvent) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return toolError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	if ev.Status == stream.StatusFailed {
		return toolError(string(b)), nil
	}
	return toolText(string(b)), nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
