package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Opener performs the streaming GET for a channel. Implemented by the
// transport client; abstracted here so this package stays free of HTTP
// details.
type Opener interface {
	OpenStream(ctx context.Context, path string) (io.ReadCloser, error)
}

// maxEventSize bounds a single SSE event; result payloads can be large.
const maxEventSize = 4 << 20 // 4MB

// NewSSEFactory returns a Factory that opens the backend's SSE stream
// for a query and decodes each data frame into a StatusEvent.
func NewSSEFactory(opener Opener, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, queryID string) (Channel, error) {
		body, err := opener.OpenStream(ctx, fmt.Sprintf("/queries/%s/stream", queryID))
		if err != nil {
			return nil, fmt.Errorf("opening stream for query %s: %w", queryID, err)
		}
		ch := &sseChannel{
			queryID: queryID,
			body:    body,
			events:  make(chan StatusEvent, 8),
			logger:  logger,
		}
		go ch.run(ctx)
		return ch, nil
	}
}

type sseChannel struct {
	queryID string
	body    io.ReadCloser
	events  chan StatusEvent
	logger  *slog.Logger

	mu     sync.Mutex
	err    error
	closed bool
}

func (c *sseChannel) Events() <-chan StatusEvent { return c.events }

func (c *sseChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *sseChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.body.Close()
}

func (c *sseChannel) run(ctx context.Context) {
	defer close(c.events)

	scanner := bufio.NewScanner(c.body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()

		// A blank line terminates one SSE event.
		if line == "" {
			if data.Len() > 0 {
				c.dispatch(ctx, data.Bytes())
				data.Reset()
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keep-alive
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
		// event:/id:/retry: fields are not used by the backend.
	}
	if data.Len() > 0 {
		c.dispatch(ctx, data.Bytes())
	}

	if err := scanner.Err(); err != nil {
		c.mu.Lock()
		if !c.closed {
			c.err = err
		}
		c.mu.Unlock()
	}
}

func (c *sseChannel) dispatch(ctx context.Context, frame []byte) {
	var ev StatusEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		c.logger.Warn("dropping undecodable stream frame",
			"query_id", c.queryID, "error", err)
		return
	}
	if ev.QueryID == "" {
		ev.QueryID = c.queryID
	}
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
