package query

import (
	"github.com/nvoss/meridian/internal/stream"
)

// Request is one query submission. Construct it per call; it is not
// reused or mutated after submission.
type Request struct {
	QueryText           string
	IsFollowup          bool
	ParentEntryID       string
	IncludeProjectFiles bool
	AdditionalContext   map[string]any
}

// submitBody is the wire shape for query submission endpoints.
type submitBody struct {
	Query               string         `json:"query"`
	IsFollowup          bool           `json:"is_followup"`
	ParentEntryID       string         `json:"parent_entry_id,omitempty"`
	IncludeProjectFiles bool           `json:"include_project_files"`
	AdditionalContext   map[string]any `json:"additional_context,omitempty"`
}

func (r Request) wire() submitBody {
	return submitBody{
		Query:               r.QueryText,
		IsFollowup:          r.IsFollowup,
		ParentEntryID:       r.ParentEntryID,
		IncludeProjectFiles: r.IncludeProjectFiles,
		AdditionalContext:   r.AdditionalContext,
	}
}

// Handle is what a caller holds for the lifetime of one query
// interaction: the ids the backend assigned, the push channel carrying
// progress events, and the names of any attachments that failed to
// ingest. The caller closes the channel once a terminal status arrives
// or when it abandons the query.
type Handle struct {
	QueryID     string
	EntryID     string
	Channel     stream.Channel
	FailedFiles []string
}

// syncBody is the wire shape for idempotent replay submissions.
type syncBody struct {
	Query         string   `json:"query"`
	ProjectID     string   `json:"project_id"`
	ProjectName   string   `json:"project_name,omitempty"`
	UploadedFiles []string `json:"uploaded_files,omitempty"`
}

// approvalBody is the wire shape for approval feedback.
type approvalBody struct {
	Message string `json:"message"`
}
