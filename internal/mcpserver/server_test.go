package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nvoss/meridian/internal/apierr"
	"github.com/nvoss/meridian/internal/projectstore"
	"github.com/nvoss/meridian/internal/query"
	"github.com/nvoss/meridian/internal/stream"
)

// --- mocks ---

type mockSubmitter struct {
	events      []stream.StatusEvent
	submitErr   error
	result      *stream.StatusEvent
	fetchErr    error
	approveErr  error
	lastScope   string
	lastParent  string
	lastQuery   string
	lastApprove string
}

func (m *mockSubmitter) handle(queryID string) *query.Handle {
	ch := stream.NewMemoryChannel(8)
	go func() {
		for _, ev := range m.events {
			ch.Push(ev)
		}
		ch.Close()
	}()
	return &query.Handle{QueryID: queryID, EntryID: "entry-1", Channel: ch}
}

func (m *mockSubmitter) Submit(_ context.Context, scopeID string, req query.Request) (*query.Handle, error) {
	m.lastScope, m.lastQuery = scopeID, req.QueryText
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.handle("q-1"), nil
}

func (m *mockSubmitter) SubmitFollowup(_ context.Context, parentQueryID string, req query.Request) (*query.Handle, error) {
	m.lastParent, m.lastQuery = parentQueryID, req.QueryText
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.handle("q-2"), nil
}

func (m *mockSubmitter) FetchFullResult(_ context.Context, queryID, _ string) (*stream.StatusEvent, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.result, nil
}

func (m *mockSubmitter) SubmitApprovalFeedback(_ context.Context, queryID, userMessage string) error {
	m.lastApprove = userMessage
	return m.approveErr
}

type mockStore struct {
	projectstore.Store
	projects []projectstore.Project
	err      error
}

func (m *mockStore) ListProjects(context.Context) ([]projectstore.Project, error) {
	return m.projects, m.err
}

// --- helpers ---

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

// --- tests ---

func TestSubmitQuery_WaitsForTerminalEvent(t *testing.T) {
	sub := &mockSubmitter{
		events: []stream.StatusEvent{
			{QueryID: "q-1", Status: stream.StatusProcessing, Progress: 40},
			{QueryID: "q-1", Status: stream.StatusCompleted, Progress: 100, Result: json.RawMessage(`{"sections": []}`)},
		},
	}
	deps := Deps{Orchestrator: sub, WaitTimeout: time.Second}

	result, err := toolSubmitQuery(deps)(context.Background(), callRequest("submit_query", map[string]any{
		"project_id": "p-1",
		"query":      "Why did churn spike?",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	if sub.lastScope != "p-1" || sub.lastQuery != "Why did churn spike?" {
		t.Errorf("submitted scope=%q query=%q", sub.lastScope, sub.lastQuery)
	}

	var ev stream.StatusEvent
	if err := json.Unmarshal([]byte(resultText(t, result)), &ev); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if ev.Status != stream.StatusCompleted || ev.Progress != 100 {
		t.Errorf("event = %+v", ev)
	}
}

func TestSubmitQuery_MissingArgs(t *testing.T) {
	deps := Deps{Orchestrator: &mockSubmitter{}}

	result, _ := toolSubmitQuery(deps)(context.Background(), callRequest("submit_query", map[string]any{
		"project_id": "p-1",
	}))
	if !result.IsError {
		t.Fatal("missing query accepted")
	}
}

func TestSubmitQuery_SubmissionError(t *testing.T) {
	sub := &mockSubmitter{
		submitErr: &apierr.ParsedError{Type: apierr.TypeValidation, Code: "non_business_query", Message: "nope"},
	}
	deps := Deps{Orchestrator: sub}

	result, _ := toolSubmitQuery(deps)(context.Background(), callRequest("submit_query", map[string]any{
		"project_id": "p-1",
		"query":      "tell me a joke",
	}))
	if !result.IsError {
		t.Fatal("submission error not surfaced")
	}
	if !strings.Contains(resultText(t, result), "non_business_query") {
		t.Errorf("error text = %q", resultText(t, result))
	}
}

func TestSubmitQuery_FailedRunIsToolError(t *testing.T) {
	sub := &mockSubmitter{
		events: []stream.StatusEvent{
			{QueryID: "q-1", Status: stream.StatusFailed, Progress: 100, Message: "did not converge"},
		},
	}
	deps := Deps{Orchestrator: sub, WaitTimeout: time.Second}

	result, _ := toolSubmitQuery(deps)(context.Background(), callRequest("submit_query", map[string]any{
		"project_id": "p-1",
		"query":      "doomed",
	}))
	if !result.IsError {
		t.Fatal("failed run reported as success")
	}
	if !strings.Contains(resultText(t, result), "did not converge") {
		t.Errorf("error text = %q", resultText(t, result))
	}
}

func TestSubmitQuery_TimeoutReturnsQueryID(t *testing.T) {
	// No events ever arrive; only Close after a while.
	sub := &mockSubmitter{}
	deps := Deps{Orchestrator: sub, WaitTimeout: 20 * time.Millisecond}

	ch := stream.NewMemoryChannel(8)
	t.Cleanup(func() { ch.Close() })
	subSlow := &slowSubmitter{ch: ch}

	result, _ := toolSubmitQuery(Deps{Orchestrator: subSlow, WaitTimeout: deps.WaitTimeout})(
		context.Background(), callRequest("submit_query", map[string]any{
			"project_id": "p-1",
			"query":      "long running analysis",
		}))
	if result.IsError {
		t.Fatalf("timeout treated as error: %s", resultText(t, result))
	}
	if !strings.Contains(resultText(t, result), "q-slow") {
		t.Errorf("timeout text missing query id: %q", resultText(t, result))
	}
}

type slowSubmitter struct {
	mockSubmitter
	ch *stream.MemoryChannel
}

func (s *slowSubmitter) Submit(context.Context, string, query.Request) (*query.Handle, error) {
	return &query.Handle{QueryID: "q-slow", Channel: s.ch}, nil
}

func TestSubmitFollowup(t *testing.T) {
	sub := &mockSubmitter{
		events: []stream.StatusEvent{
			{QueryID: "q-2", Status: stream.StatusCompleted, Progress: 100},
		},
	}
	deps := Deps{Orchestrator: sub, WaitTimeout: time.Second}

	result, _ := toolSubmitFollowup(deps)(context.Background(), callRequest("submit_followup", map[string]any{
		"query_id": "q-1",
		"query":    "and by region?",
	}))
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	if sub.lastParent != "q-1" {
		t.Errorf("parent = %q", sub.lastParent)
	}
}

func TestFetchResult(t *testing.T) {
	sub := &mockSubmitter{
		result: &stream.StatusEvent{QueryID: "q-1", Status: stream.StatusCompleted, Progress: 100},
	}
	result, _ := toolFetchResult(Deps{Orchestrator: sub})(context.Background(), callRequest("fetch_result", map[string]any{
		"query_id": "q-1",
	}))
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var ev stream.StatusEvent
	if err := json.Unmarshal([]byte(resultText(t, result)), &ev); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if ev.QueryID != "q-1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestApprove(t *testing.T) {
	sub := &mockSubmitter{}
	result, _ := toolApprove(Deps{Orchestrator: sub})(context.Background(), callRequest("approve", map[string]any{
		"query_id": "q-1",
		"message":  "approved, proceed",
	}))
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	if sub.lastApprove != "approved, proceed" {
		t.Errorf("message = %q", sub.lastApprove)
	}
}

func TestResourceProjects(t *testing.T) {
	store := &mockStore{projects: []projectstore.Project{
		{ID: "p-1", Name: "Acme Q3"},
		{ID: "p-2", Name: "Pricing study"},
	}}
	contents, err := resourceProjects(Deps{Store: store})(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "meridian://projects"},
	})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents type %T", contents[0])
	}
	var projects []projectstore.Project
	if err := json.Unmarshal([]byte(tc.Text), &projects); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if len(projects) != 2 || projects[1].Name != "Pricing study" {
		t.Errorf("projects = %+v", projects)
	}
}
