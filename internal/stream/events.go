// Package stream delivers incremental status events for one in-flight
// query over a server-push channel.
//
// Opening a channel is deliberately decoupled from submitting a query:
// the orchestrator takes a Factory, so tests substitute an in-memory
// channel for the real SSE transport.
package stream

import "encoding/json"

// Status is the lifecycle state carried by a StatusEvent.
type Status string

const (
	StatusProcessing      Status = "processing"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusPendingApproval Status = "pending_approval"
	StatusRejected        Status = "rejected"
)

// Terminal reports whether no further events are expected after s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRejected
}

// StepRecord describes one agent step inside a multi-agent analysis.
type StepRecord struct {
	Agent     string `json:"agent"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	Reasoning string `json:"reasoning,omitempty"`
	Result    string `json:"result,omitempty"`
	Tokens    int    `json:"tokens,omitempty"`
}

// StatusEvent is one message on a query's push channel. Progress and
// Steps accompany intermediate states; Result is populated only on
// terminal completion.
type StatusEvent struct {
	QueryID  string          `json:"query_id"`
	Status   Status          `json:"status"`
	Progress int             `json:"progress,omitempty"`
	Steps    []StepRecord    `json:"steps,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Message  string          `json:"message,omitempty"`
}
