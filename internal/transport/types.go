package transport

import "encoding/json"

// The backend has emitted both snake_case and camelCase key spellings
// for identifier fields over time. Normalization happens here, at the
// wire boundary, so business logic never does fallback reads.

// SubmitResponse is the body of a successful query submission.
type SubmitResponse struct {
	QueryID string
	EntryID string
}

func (r *SubmitResponse) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.QueryID = pickString(raw, "query_id", "queryId")
	r.EntryID = pickString(raw, "entry_id", "entryId")
	return nil
}

// UploadResponse is the body returned by POST /files.
type UploadResponse struct {
	FileID string
	Name   string
}

func (r *UploadResponse) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.FileID = pickString(raw, "file_id", "fileId", "id")
	r.Name = pickString(raw, "filename", "name")
	return nil
}

// ProcessResponse is the body returned by POST /files/{id}/process.
type ProcessResponse struct {
	Status  string `json:"status"`
	Chunks  int    `json:"chunks"`
	Vectors int    `json:"vectors"`
}

// RefreshResult is one recomputed query inside a refresh response.
type RefreshResult struct {
	QueryID string
	EntryID string
}

func (r *RefreshResult) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.QueryID = pickString(raw, "query_id", "queryId")
	r.EntryID = pickString(raw, "entry_id", "entryId")
	return nil
}

// RefreshResponse is the body returned by POST /projects/{id}/refresh.
type RefreshResponse struct {
	Results []RefreshResult `json:"results"`
}

// ChatMessageResponse is the body returned by POST /projects/{id}/chat-messages.
type ChatMessageResponse struct {
	MessageID string
	Timestamp string
	Status    string
}

func (r *ChatMessageResponse) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.MessageID = pickString(raw, "message_id", "messageId")
	r.Timestamp = pickString(raw, "timestamp")
	r.Status = pickString(raw, "status")
	return nil
}

// FileInfo is one entry in a file listing.
type FileInfo struct {
	ID   string
	Name string
}

func (r *FileInfo) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.ID = pickString(raw, "file_id", "fileId", "id")
	r.Name = pickString(raw, "filename", "name")
	return nil
}

// FileListResponse is the body of a file listing endpoint.
type FileListResponse struct {
	Files []FileInfo `json:"files"`
}

func pickString(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
