package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Response carries the pieces of an HTTP response that Parse needs. The
// caller reads the body exactly once and hands the bytes over; Parse
// never touches the network.
type Response struct {
	StatusCode int
	Body       []byte
}

// Parse normalizes any error, optionally together with the HTTP
// response that produced it, into a ParsedError. It is deterministic:
// identical inputs yield structurally identical results.
//
// Dispatch order:
//  1. a non-2xx response is parsed as a structured backend exception
//  2. an inline {"error": ..., "status": ...} payload is a validation error
//  3. transport-level failures become network errors
//  4. anything else is unknown
func Parse(err error, resp *Response) *ParsedError {
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return parseHTTPException(err, resp)
	}
	if pe := parseInlineError(err); pe != nil {
		return pe
	}
	if isTransportError(err) {
		msg := "network request failed"
		if err != nil {
			msg = err.Error()
		}
		return &ParsedError{
			Type:        TypeNetwork,
			Code:        "network_error",
			Message:     msg,
			UserMessage: userMessageFor("network_error", TypeNetwork),
			Retryable:   true,
			StatusCode:  0,
		}
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ParsedError{
		Type:        TypeUnknown,
		Code:        "unknown_error",
		Message:     msg,
		UserMessage: userMessageFor("unknown_error", TypeUnknown),
		Retryable:   false,
		StatusCode:  0,
	}
}

// detailEnvelope is the standard backend error body: detail is either a
// plain string or a structured object.
type detailEnvelope struct {
	Detail json.RawMessage `json:"detail"`
}

type detailObject struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Query     string `json:"query"`
	Timestamp string `json:"timestamp"`
	ErrorID   string `json:"error_id"`
}

func parseHTTPException(err error, resp *Response) *ParsedError {
	status := resp.StatusCode
	typ := categoryFor(status)
	retry := retryableFor(status)

	var env detailEnvelope
	if jsonErr := json.Unmarshal(resp.Body, &env); jsonErr == nil && len(env.Detail) > 0 {
		// detail as a structured object carries the backend's own code.
		var obj detailObject
		if objErr := json.Unmarshal(env.Detail, &obj); objErr == nil && obj.Error != "" {
			return &ParsedError{
				Type:          typ,
				Code:          obj.Error,
				Message:       firstNonEmpty(obj.Message, string(env.Detail)),
				UserMessage:   userMessageFor(obj.Error, typ),
				Retryable:     retry,
				StatusCode:    status,
				OriginalQuery: obj.Query,
				Timestamp:     obj.Timestamp,
				ErrorID:       obj.ErrorID,
			}
		}

		// detail as a plain string is a generic message.
		var detail string
		if strErr := json.Unmarshal(env.Detail, &detail); strErr == nil {
			code := codeForStatus(status)
			return &ParsedError{
				Type:        typ,
				Code:        code,
				Message:     detail,
				UserMessage: userMessageFor(code, typ),
				Retryable:   retry,
				StatusCode:  status,
			}
		}
	}

	// Inline legacy envelope can also ride on a non-2xx response.
	if pe := parseInlineBody(resp.Body); pe != nil {
		pe.StatusCode = status
		pe.Type = typ
		pe.Retryable = retry
		return pe
	}

	// Non-JSON body (plain text 5xx pages and the like).
	msg := strings.TrimSpace(string(resp.Body))
	if msg == "" && err != nil {
		msg = err.Error()
	}
	code := codeForStatus(status)
	return &ParsedError{
		Type:        typ,
		Code:        code,
		Message:     msg,
		UserMessage: userMessageFor(code, typ),
		Retryable:   retry,
		StatusCode:  status,
	}
}

// inlineEnvelope is the legacy error shape emitted directly by the
// strategy agent: {"error": ..., "response"|"message": ..., "query": ...}.
type inlineEnvelope struct {
	Error    string `json:"error"`
	Response string `json:"response"`
	Message  string `json:"message"`
	Query    string `json:"query"`
	Status   string `json:"status"`
}

func parseInlineError(err error) *ParsedError {
	if err == nil {
		return nil
	}
	pe := parseInlineBody([]byte(err.Error()))
	if pe == nil {
		return nil
	}
	return pe
}

func parseInlineBody(body []byte) *ParsedError {
	var env inlineEnvelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil || env.Error == "" {
		return nil
	}
	msg := firstNonEmpty(env.Message, env.Response, env.Error)
	return &ParsedError{
		Type:          TypeValidation,
		Code:          env.Error,
		Message:       msg,
		UserMessage:   userMessageFor(env.Error, TypeValidation),
		Retryable:     false,
		StatusCode:    400,
		OriginalQuery: env.Query,
	}
}

// isTransportError reports whether err is a connection-level failure
// rather than a response the backend produced.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "no such host", "failed to fetch", "network is unreachable", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// codeForStatus supplies a synthetic code when the backend did not
// provide one.
func codeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return "auth_error"
	case status == 400:
		return "validation_error"
	case status >= 1000, status == 0:
		return "network_error"
	case status >= 500:
		return "server_error"
	default:
		return "http_error"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
