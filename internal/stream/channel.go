package stream

import "context"

// Channel is an open server-push connection for one query. The caller
// owns its lifecycle: close it once a terminal status arrives or when
// abandoning the query. Reconnection after a drop is the caller's
// responsibility; a Channel never auto-retries.
type Channel interface {
	// Events yields status events until the channel closes. The
	// channel is closed by the transport on EOF, by a transport
	// error, or by Close.
	Events() <-chan StatusEvent

	// Err returns the transport error that ended the stream, if any.
	// Valid once Events is closed. Transport errors are surfaced
	// as-is here, not as normalized API errors: the stream is
	// open-ended, so an error is not terminal until a failed status
	// message says so.
	Err() error

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Factory opens a channel for the given query id. The orchestrator is
// constructed with one of these so tests can inject an in-memory
// implementation.
type Factory func(ctx context.Context, queryID string) (Channel, error)
