// Package apierr normalizes the Meridian backend's heterogeneous error
// shapes into a single taxonomy with retry and cacheability semantics.
//
// The backend has historically emitted two incompatible error envelopes:
// the standard {"detail": string | object} shape and an older inline
// {"error": ..., "status": ...} shape. Both are accepted here and both
// must keep working.
package apierr

import (
	"encoding/json"
	"fmt"
)

// Type classifies a normalized error.
type Type string

const (
	TypeValidation Type = "validation"
	TypeNetwork    Type = "network"
	TypeServer     Type = "server"
	TypeAuth       Type = "auth"
	TypeUnknown    Type = "unknown"
)

// ParsedError is the unified error record produced by Parse. It is
// constructed once per failure and never mutated.
type ParsedError struct {
	Type          Type   `json:"type"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	UserMessage   string `json:"user_message"`
	Retryable     bool   `json:"retryable"`
	StatusCode    int    `json:"status_code"`
	OriginalQuery string `json:"original_query,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	ErrorID       string `json:"error_id,omitempty"`
}

// Error implements the error interface. The technical message is for
// logs; end-user surfaces must show UserMessage instead.
func (e *ParsedError) Error() string {
	return fmt.Sprintf("%s (%s, status %d): %s", e.Code, e.Type, e.StatusCode, e.Message)
}

// Is reports whether target is a *ParsedError with the same Type,
// letting callers branch with errors.Is on sentinel values.
func (e *ParsedError) Is(target error) bool {
	t, ok := target.(*ParsedError)
	return ok && t.Type == e.Type
}

// MarshalJSONString serializes the error for propagation across
// process or API boundaries.
func (e *ParsedError) MarshalJSONString() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"type":"unknown","message":%q}`, e.Message)
	}
	return string(b)
}

// categoryFor maps an HTTP status code to an error type. The mapping is
// total over {0, 200-599, >=1000}.
func categoryFor(status int) Type {
	switch {
	case status == 401 || status == 403:
		return TypeAuth
	case status == 400:
		return TypeValidation
	case status >= 1000:
		return TypeNetwork
	case status >= 500:
		return TypeServer
	case status == 0:
		return TypeNetwork
	default:
		return TypeUnknown
	}
}

// retryableFor is a pure function of the status code. Content
// heuristics must never influence it.
func retryableFor(status int) bool {
	return status == 0 || status >= 500 || status == 429
}
