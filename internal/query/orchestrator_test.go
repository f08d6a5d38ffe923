package query

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nvoss/meridian/internal/apierr"
	"github.com/nvoss/meridian/internal/ingest"
	"github.com/nvoss/meridian/internal/session"
	"github.com/nvoss/meridian/internal/stream"
)

// fakeClient serves canned JSON per path and records calls.
type fakeClient struct {
	responses map[string]string // path → JSON body
	errs      map[string]error
	getCalls  []string
	postCalls []string
	lastBody  any
}

func newFakeClient() *fakeClient {
	return &fakeClient{responses: map[string]string{}, errs: map[string]error{}}
}

func (c *fakeClient) GetJSON(ctx context.Context, path string, out any) error {
	c.getCalls = append(c.getCalls, path)
	return c.respond(path, out)
}

func (c *fakeClient) PostJSON(ctx context.Context, path string, body, out any) error {
	c.postCalls = append(c.postCalls, path)
	c.lastBody = body
	return c.respond(path, out)
}

func (c *fakeClient) respond(path string, out any) error {
	if err := c.errs[path]; err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	body, ok := c.responses[path]
	if !ok {
		return &apierr.ParsedError{Type: apierr.TypeUnknown, Code: "http_error", Message: "no canned response for " + path, StatusCode: 404}
	}
	return json.Unmarshal([]byte(body), out)
}

type fakeIngester struct {
	failed []string
	err    error
	calls  int
	scope  string
	files  []ingest.File
}

func (f *fakeIngester) Ingest(ctx context.Context, scopeID string, files []ingest.File) ([]string, error) {
	f.calls++
	f.scope = scopeID
	f.files = files
	return f.failed, f.err
}

type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestOrchestrator(client *fakeClient, ing *fakeIngester, clock *fakeClock) (*Orchestrator, *stream.MemoryChannel) {
	ch := stream.NewMemoryChannel(4)
	sess := session.NewWithClock(clock.now, clock.sleep)
	o := New(client, sess, ing, stream.NewMemoryFactory(ch), nil)
	return o, ch
}

func TestSubmit_ReturnsHandleWithChannel(t *testing.T) {
	client := newFakeClient()
	client.responses["/projects/p-1/queries"] = `{"query_id": "q-1", "entry_id": "e-1"}`
	o, ch := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	h, err := o.Submit(context.Background(), "p-1", Request{QueryText: "why did revenue dip in Q3?"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.QueryID != "q-1" || h.EntryID != "e-1" {
		t.Errorf("handle = %+v", h)
	}
	if h.Channel != stream.Channel(ch) {
		t.Error("handle channel is not the factory's channel")
	}
	if h.FailedFiles != nil {
		t.Errorf("FailedFiles = %v, want nil", h.FailedFiles)
	}
}

func TestSubmit_EmptyQuery(t *testing.T) {
	o, _ := newTestOrchestrator(newFakeClient(), &fakeIngester{}, newFakeClock())

	_, err := o.Submit(context.Background(), "p-1", Request{})
	var pe *apierr.ParsedError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *apierr.ParsedError", err)
	}
	if pe.Type != apierr.TypeValidation || pe.Code != "empty_query" {
		t.Errorf("parsed error = %+v", pe)
	}
}

func TestSubmit_BackendErrorSurfacesAsParsedError(t *testing.T) {
	client := newFakeClient()
	client.errs["/projects/p-1/queries"] = &apierr.ParsedError{
		Type: apierr.TypeValidation, Code: "non_business_query", StatusCode: 400,
	}
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	_, err := o.Submit(context.Background(), "p-1", Request{QueryText: "tell me a joke"})
	var pe *apierr.ParsedError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *apierr.ParsedError", err)
	}
	if pe.Code != "non_business_query" {
		t.Errorf("Code = %q", pe.Code)
	}
}

func TestSubmitWithFiles_PartialFailureStillSubmits(t *testing.T) {
	client := newFakeClient()
	client.responses["/projects/p-1/queries"] = `{"query_id": "q-1", "entry_id": "e-1"}`
	ing := &fakeIngester{failed: []string{"file2.csv"}}
	o, _ := newTestOrchestrator(client, ing, newFakeClock())

	batch := []ingest.File{
		{Name: "file1.csv", Data: []byte("a")},
		{Name: "file2.csv", Data: []byte("b")},
		{Name: "file3.csv", Data: []byte("c")},
	}
	h, err := o.SubmitWithFiles(context.Background(), "p-1", Request{QueryText: "analyze these"}, batch)
	if err != nil {
		t.Fatalf("SubmitWithFiles: %v", err)
	}
	if !reflect.DeepEqual(h.FailedFiles, []string{"file2.csv"}) {
		t.Errorf("FailedFiles = %v", h.FailedFiles)
	}
	if h.QueryID != "q-1" || h.EntryID != "e-1" {
		t.Errorf("handle ids = %q/%q", h.QueryID, h.EntryID)
	}
	if h.Channel == nil {
		t.Error("no channel opened despite failed attachments")
	}
	if ing.calls != 1 || ing.scope != "p-1" {
		t.Errorf("ingester calls = %d scope = %q", ing.calls, ing.scope)
	}
}

func TestSubmitWithFiles_SystemicIngestFailureAborts(t *testing.T) {
	client := newFakeClient()
	ing := &fakeIngester{err: errors.New("no transport client configured")}
	o, _ := newTestOrchestrator(client, ing, newFakeClock())

	_, err := o.SubmitWithFiles(context.Background(), "p-1", Request{QueryText: "x"}, nil)
	if err == nil {
		t.Fatal("SubmitWithFiles returned nil error")
	}
	if len(client.postCalls) != 0 {
		t.Errorf("query was submitted after systemic ingest failure: %v", client.postCalls)
	}
}

func TestSubmitFollowup(t *testing.T) {
	client := newFakeClient()
	client.responses["/queries/q-1/followup"] = `{"queryId": "q-2", "entryId": "e-2"}`
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	h, err := o.SubmitFollowup(context.Background(), "q-1", Request{QueryText: "expand on point 2"})
	if err != nil {
		t.Fatalf("SubmitFollowup: %v", err)
	}
	if h.QueryID != "q-2" {
		t.Errorf("QueryID = %q, want new server-side id", h.QueryID)
	}
	body, ok := client.lastBody.(submitBody)
	if !ok {
		t.Fatalf("body is %T", client.lastBody)
	}
	if !body.IsFollowup {
		t.Error("IsFollowup not forced on follow-up submission")
	}
}

func TestSubmitSync(t *testing.T) {
	client := newFakeClient()
	client.responses["/queries"] = `{"query_id": "q-5", "entry_id": "e-5"}`
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	h, err := o.SubmitSync(context.Background(), "p-1", "replay this", "Acme Q3", []string{"q3.csv"})
	if err != nil {
		t.Fatalf("SubmitSync: %v", err)
	}
	if h.QueryID != "q-5" {
		t.Errorf("QueryID = %q", h.QueryID)
	}
	body := client.lastBody.(syncBody)
	if body.ProjectID != "p-1" || body.ProjectName != "Acme Q3" || len(body.UploadedFiles) != 1 {
		t.Errorf("sync body = %+v", body)
	}
}

func TestRefresh_PicksTarget(t *testing.T) {
	client := newFakeClient()
	client.responses["/projects/p-1/refresh"] = `{"results": [
		{"query_id": "q-1", "entry_id": "e-1"},
		{"query_id": "q-2", "entry_id": "e-2"}
	]}`
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	h, err := o.Refresh(context.Background(), "p-1", "q-2")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if h.QueryID != "q-2" || h.EntryID != "e-2" {
		t.Errorf("handle = %+v", h)
	}
}

func TestRefresh_FallsBackToFirst(t *testing.T) {
	client := newFakeClient()
	client.responses["/projects/p-1/refresh"] = `{"results": [{"query_id": "q-1", "entry_id": "e-1"}]}`
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	h, err := o.Refresh(context.Background(), "p-1", "q-404")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if h.QueryID != "q-1" {
		t.Errorf("QueryID = %q, want fallback to first", h.QueryID)
	}
}

func TestRefresh_NoResults(t *testing.T) {
	client := newFakeClient()
	client.responses["/projects/p-1/refresh"] = `{"results": []}`
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	_, err := o.Refresh(context.Background(), "p-1", "")
	var pe *apierr.ParsedError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *apierr.ParsedError", err)
	}
}

func TestFetchFullResult_CachesTerminalFailure(t *testing.T) {
	client := newFakeClient()
	client.responses["/queries/q-1/full-result"] = `{"query_id": "q-1", "status": "failed", "message": "analysis failed"}`
	clock := newFakeClock()
	o, _ := newTestOrchestrator(client, &fakeIngester{}, clock)

	first, err := o.FetchFullResult(context.Background(), "q-1", "")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.Status != stream.StatusFailed {
		t.Fatalf("first status = %q", first.Status)
	}

	// 10s later: served from cache, no second network call.
	clock.t = clock.t.Add(10 * time.Second)
	second, err := o.FetchFullResult(context.Background(), "q-1", "")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(client.getCalls) != 1 {
		t.Errorf("network calls = %d, want 1 (cache hit)", len(client.getCalls))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached result differs:\n  first  = %+v\n  second = %+v", first, second)
	}

	// 61s after caching: cache miss, new network call.
	clock.t = clock.t.Add(51 * time.Second)
	if _, err := o.FetchFullResult(context.Background(), "q-1", ""); err != nil {
		t.Fatalf("third fetch: %v", err)
	}
	if len(client.getCalls) != 2 {
		t.Errorf("network calls = %d, want 2 after TTL expiry", len(client.getCalls))
	}
}

func TestFetchFullResult_RateLimited(t *testing.T) {
	client := newFakeClient()
	client.responses["/queries/q-1/full-result"] = `{"query_id": "q-1", "status": "completed"}`
	clock := newFakeClock()
	o, _ := newTestOrchestrator(client, &fakeIngester{}, clock)

	if _, err := o.FetchFullResult(context.Background(), "q-1", ""); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	clock.t = clock.t.Add(200 * time.Millisecond)
	if _, err := o.FetchFullResult(context.Background(), "q-1", ""); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if len(clock.slept) != 1 || clock.slept[0] != 800*time.Millisecond {
		t.Errorf("slept %v, want single 800ms wait", clock.slept)
	}
	if len(client.getCalls) != 2 {
		t.Errorf("network calls = %d, want 2 (completed results are not cached)", len(client.getCalls))
	}
}

func TestFetchFullResult_AttachesOriginalQuery(t *testing.T) {
	client := newFakeClient()
	client.errs["/queries/q-1/full-result"] = &apierr.ParsedError{
		Type: apierr.TypeServer, Code: "server_error", StatusCode: 500, Retryable: true,
	}
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	_, err := o.FetchFullResult(context.Background(), "q-1", "why did churn rise?")
	var pe *apierr.ParsedError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T", err)
	}
	if pe.OriginalQuery != "why did churn rise?" {
		t.Errorf("OriginalQuery = %q", pe.OriginalQuery)
	}
}

func TestSubmitApprovalFeedback(t *testing.T) {
	client := newFakeClient()
	o, _ := newTestOrchestrator(client, &fakeIngester{}, newFakeClock())

	if err := o.SubmitApprovalFeedback(context.Background(), "q-1", "looks good, proceed"); err != nil {
		t.Fatalf("SubmitApprovalFeedback: %v", err)
	}
	if len(client.postCalls) != 1 || client.postCalls[0] != "/queries/q-1/approve" {
		t.Errorf("postCalls = %v", client.postCalls)
	}

	err := o.SubmitApprovalFeedback(context.Background(), "q-1", "")
	var pe *apierr.ParsedError
	if !errors.As(err, &pe) || pe.Type != apierr.TypeValidation {
		t.Errorf("empty feedback error = %v", err)
	}
}
