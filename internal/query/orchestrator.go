// Package query coordinates query submission against the Meridian
// analysis backend: file ingestion, the submission call itself, the
// follow-up/refresh/sync variants, and the push channel a caller
// listens on for progress.
//
// Every operation either returns a Handle or fails with a
// *apierr.ParsedError, so callers branch on the error taxonomy without
// knowing transport details.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvoss/meridian/internal/apierr"
	"github.com/nvoss/meridian/internal/ingest"
	"github.com/nvoss/meridian/internal/session"
	"github.com/nvoss/meridian/internal/stream"
	"github.com/nvoss/meridian/internal/transport"
)

// Client is the slice of the transport client the orchestrator needs.
type Client interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
}

// Ingester runs the best-effort file ingestion ahead of a submission.
type Ingester interface {
	Ingest(ctx context.Context, scopeID string, files []ingest.File) ([]string, error)
}

// Orchestrator is the facade for query interactions. One Orchestrator
// serves many concurrent queries; each gets its own id and channel.
type Orchestrator struct {
	client      Client
	session     *session.Session
	pipeline    Ingester
	openChannel stream.Factory
	logger      *slog.Logger
}

// New creates an Orchestrator. The channel factory is injectable so
// tests can substitute an in-memory channel for real server push.
func New(client Client, sess *session.Session, pipeline Ingester, openChannel stream.Factory, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:      client,
		session:     sess,
		pipeline:    pipeline,
		openChannel: openChannel,
		logger:      logger,
	}
}

// Submit sends a plain query, with no attachments, under a project
// scope and opens its push channel.
func (o *Orchestrator) Submit(ctx context.Context, scopeID string, req Request) (*Handle, error) {
	if req.QueryText == "" {
		return nil, emptyQueryError()
	}

	var resp transport.SubmitResponse
	if err := o.client.PostJSON(ctx, fmt.Sprintf("/projects/%s/queries", scopeID), req.wire(), &resp); err != nil {
		return nil, normalized(err)
	}
	return o.attach(ctx, resp, nil)
}

// SubmitWithFiles ingests the attachments first (best-effort), then
// submits the query. Attachment failures never block the submission;
// they come back on the handle's FailedFiles.
func (o *Orchestrator) SubmitWithFiles(ctx context.Context, scopeID string, req Request, files []ingest.File) (*Handle, error) {
	if req.QueryText == "" {
		return nil, emptyQueryError()
	}

	failed, err := o.pipeline.Ingest(ctx, scopeID, files)
	if err != nil {
		return nil, normalized(err)
	}
	if len(failed) > 0 {
		o.logger.Warn("some attachments failed to ingest, submitting query anyway",
			"scope_id", scopeID, "failed_files", failed)
	}

	handle, err := o.Submit(ctx, scopeID, req)
	if err != nil {
		return nil, err
	}
	handle.FailedFiles = failed
	return handle, nil
}

// SubmitFollowup submits a follow-up against an existing query id. The
// backend assigns a fresh query id for the follow-up's own lifecycle.
func (o *Orchestrator) SubmitFollowup(ctx context.Context, parentQueryID string, req Request) (*Handle, error) {
	if req.QueryText == "" {
		return nil, emptyQueryError()
	}
	req.IsFollowup = true

	var resp transport.SubmitResponse
	if err := o.client.PostJSON(ctx, fmt.Sprintf("/queries/%s/followup", parentQueryID), req.wire(), &resp); err != nil {
		return nil, normalized(err)
	}
	return o.attach(ctx, resp, nil)
}

// SubmitFollowupWithFiles is SubmitWithFiles composed over a follow-up.
func (o *Orchestrator) SubmitFollowupWithFiles(ctx context.Context, scopeID, parentQueryID string, req Request, files []ingest.File) (*Handle, error) {
	if req.QueryText == "" {
		return nil, emptyQueryError()
	}

	failed, err := o.pipeline.Ingest(ctx, scopeID, files)
	if err != nil {
		return nil, normalized(err)
	}
	if len(failed) > 0 {
		o.logger.Warn("some attachments failed to ingest, submitting follow-up anyway",
			"scope_id", scopeID, "failed_files", failed)
	}

	handle, err := o.SubmitFollowup(ctx, parentQueryID, req)
	if err != nil {
		return nil, err
	}
	handle.FailedFiles = failed
	return handle, nil
}

// SubmitSync re-issues an initial query with explicit context, used for
// idempotent replays after the client lost local state.
func (o *Orchestrator) SubmitSync(ctx context.Context, scopeID, queryText, scopeName string, uploadedFiles []string) (*Handle, error) {
	if queryText == "" {
		return nil, emptyQueryError()
	}

	body := syncBody{
		Query:         queryText,
		ProjectID:     scopeID,
		ProjectName:   scopeName,
		UploadedFiles: uploadedFiles,
	}
	var resp transport.SubmitResponse
	if err := o.client.PostJSON(ctx, "/queries", body, &resp); err != nil {
		return nil, normalized(err)
	}
	return o.attach(ctx, resp, nil)
}

// Refresh asks the backend to recompute prior queries under the scope
// and re-attaches a channel to the result matching targetQueryID. When
// the target is absent it falls back to the first result and logs a
// warning.
func (o *Orchestrator) Refresh(ctx context.Context, scopeID, targetQueryID string) (*Handle, error) {
	var resp transport.RefreshResponse
	if err := o.client.PostJSON(ctx, fmt.Sprintf("/projects/%s/refresh", scopeID), nil, &resp); err != nil {
		return nil, normalized(err)
	}
	if len(resp.Results) == 0 {
		return nil, apierr.Parse(fmt.Errorf("refresh returned no results for scope %s", scopeID), nil)
	}

	chosen := resp.Results[0]
	if targetQueryID != "" {
		found := false
		for _, res := range resp.Results {
			if res.QueryID == targetQueryID {
				chosen = res
				found = true
				break
			}
		}
		if !found {
			o.logger.Warn("refresh target not in results, falling back to first",
				"scope_id", scopeID, "target_query_id", targetQueryID,
				"first_query_id", chosen.QueryID)
		}
	}

	// A refreshed query is a deliberate retry: stale failure-cache
	// state must not mask it.
	o.session.Forget(chosen.QueryID)

	return o.attach(ctx, transport.SubmitResponse{QueryID: chosen.QueryID, EntryID: chosen.EntryID}, nil)
}

// FetchFullResult returns the stored full result for a completed or
// failed query. Terminal failed results are cached for a minute so UI
// re-renders don't retry a permanently failed query forever, and all
// fetches for one query id are spaced at least a second apart.
func (o *Orchestrator) FetchFullResult(ctx context.Context, queryID, originalQueryText string) (*stream.StatusEvent, error) {
	if cached, ok := o.session.CachedFailure(queryID); ok {
		o.logger.Debug("serving failed result from cache", "query_id", queryID)
		return &cached, nil
	}

	if err := o.session.Throttle(ctx, queryID); err != nil {
		return nil, normalized(err)
	}

	var result stream.StatusEvent
	if err := o.client.GetJSON(ctx, fmt.Sprintf("/queries/%s/full-result", queryID), &result); err != nil {
		return nil, withOriginalQuery(normalized(err), originalQueryText)
	}
	if result.QueryID == "" {
		result.QueryID = queryID
	}

	if result.Status == stream.StatusFailed {
		o.session.CacheFailure(queryID, result)
	}
	return &result, nil
}

// SubmitApprovalFeedback posts free-text feedback against a query
// awaiting human approval. Interpreting approval intent is the
// backend's job.
func (o *Orchestrator) SubmitApprovalFeedback(ctx context.Context, queryID, userMessage string) error {
	if userMessage == "" {
		return &apierr.ParsedError{
			Type:        apierr.TypeValidation,
			Code:        "empty_query",
			Message:     "approval feedback must not be empty",
			UserMessage: "Please enter a message before submitting.",
			Retryable:   false,
			StatusCode:  400,
		}
	}
	if err := o.client.PostJSON(ctx, fmt.Sprintf("/queries/%s/approve", queryID), approvalBody{Message: userMessage}, nil); err != nil {
		return normalized(err)
	}
	return nil
}

// attach opens the push channel for a fresh submission and builds the
// caller's handle.
func (o *Orchestrator) attach(ctx context.Context, resp transport.SubmitResponse, failedFiles []string) (*Handle, error) {
	if resp.QueryID == "" {
		return nil, apierr.Parse(fmt.Errorf("backend response missing query id"), nil)
	}
	ch, err := o.openChannel(ctx, resp.QueryID)
	if err != nil {
		return nil, normalized(err)
	}
	o.logger.Debug("query submitted",
		"query_id", resp.QueryID, "entry_id", resp.EntryID)
	return &Handle{
		QueryID:     resp.QueryID,
		EntryID:     resp.EntryID,
		Channel:     ch,
		FailedFiles: failedFiles,
	}, nil
}

// normalized guarantees the error a caller sees is a *apierr.ParsedError.
func normalized(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*apierr.ParsedError); ok {
		return err
	}
	return apierr.Parse(err, nil)
}

// withOriginalQuery attaches the caller's query text to a parsed error
// that lacks one, so the UI can offer a retry of the exact query.
func withOriginalQuery(err error, queryText string) error {
	pe, ok := err.(*apierr.ParsedError)
	if !ok || queryText == "" || pe.OriginalQuery != "" {
		return err
	}
	cp := *pe
	cp.OriginalQuery = queryText
	return &cp
}

func emptyQueryError() error {
	return &apierr.ParsedError{
		Type:        apierr.TypeValidation,
		Code:        "empty_query",
		Message:     "query text must not be empty",
		UserMessage: "Please enter a question before submitting.",
		Retryable:   false,
		StatusCode:  400,
	}
}
