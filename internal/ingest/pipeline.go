// Package ingest uploads and processes batches of local files against
// the Meridian storage service.
//
// The pipeline is tolerant of partial failure: one bad file never
// aborts the batch and never surfaces as an error. Failed files are
// reported back as data so the caller can submit the query anyway and
// tell the user which attachments were skipped.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/nvoss/meridian/internal/transport"
)

// File is one local attachment.
type File struct {
	Name string
	Data []byte
}

// Uploader is the slice of the transport client the pipeline needs.
type Uploader interface {
	Upload(ctx context.Context, path, field, filename string, content io.Reader, extra map[string]string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
}

// Pipeline ingests file batches. Each file goes through two stages,
// upload then process; progress is reported as completed stages out of
// 2×fileCount and always reaches 100%, failures included.
type Pipeline struct {
	client      Uploader
	logger      *slog.Logger
	onProgress  func(percent int)
	refresh     func(ctx context.Context, scopeID string) error
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress registers a progress callback. percent is monotonic and
// ends at 100.
func WithProgress(fn func(percent int)) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

// WithRegistryRefresh registers the best-effort file-registry refresh
// hook fired after any successful ingestion. Its errors are swallowed.
func WithRegistryRefresh(fn func(ctx context.Context, scopeID string) error) Option {
	return func(p *Pipeline) { p.refresh = fn }
}

// WithConcurrency processes up to n files at a time instead of one.
// Stages within a file stay ordered, progress stays monotonic via an
// atomic completed-stage counter. n <= 1 keeps the default sequential
// behavior, which is the deliberate backpressure choice.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

// WithLogger sets the pipeline logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New creates a Pipeline over the given client.
func New(client Uploader, opts ...Option) *Pipeline {
	p := &Pipeline{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest uploads and processes files under the given scope, in input
// order, and returns the names of files that failed either stage. The
// error return covers only systemic conditions that prevent the batch
// from starting; individual file failures never produce an error.
func (p *Pipeline) Ingest(ctx context.Context, scopeID string, files []File) ([]string, error) {
	if p.client == nil {
		return nil, fmt.Errorf("ingest: no transport client configured")
	}
	if len(files) == 0 {
		return nil, nil
	}

	totalStages := int64(2 * len(files))
	var doneStages atomic.Int64
	credit := func(n int64) {
		done := doneStages.Add(n)
		if p.onProgress != nil {
			p.onProgress(int(done * 100 / totalStages))
		}
	}

	failed := make([]bool, len(files))

	work := func(i int) {
		f := files[i]
		if skipped := p.ingestOne(ctx, scopeID, f, credit); skipped {
			failed[i] = true
		}
	}

	if p.concurrency > 1 {
		pool, err := ants.NewPool(p.concurrency)
		if err != nil {
			return nil, fmt.Errorf("ingest: creating worker pool: %w", err)
		}
		defer pool.Release()

		var wg sync.WaitGroup
		for i := range files {
			i := i
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				work(i)
			}); err != nil {
				wg.Done()
				return nil, fmt.Errorf("ingest: submitting to worker pool: %w", err)
			}
		}
		wg.Wait()
	} else {
		for i := range files {
			work(i)
		}
	}

	var failedNames []string
	for i, bad := range failed {
		if bad {
			failedNames = append(failedNames, files[i].Name)
		}
	}

	if len(failedNames) < len(files) {
		p.fireRegistryRefresh(scopeID)
	}
	return failedNames, nil
}

// ingestOne runs both stages for a single file. It returns true when
// the file failed; in that case the missing stage credit has already
// been synthesized so overall progress still reaches 100%.
func (p *Pipeline) ingestOne(ctx context.Context, scopeID string, f File, credit func(int64)) (skipped bool) {
	if err := preflight(f); err != nil {
		p.logger.Warn("file failed preflight, skipping upload",
			"file", f.Name, "error", err)
		credit(2)
		return true
	}

	var uploaded transport.UploadResponse
	err := p.client.Upload(ctx, "/files", "file", f.Name, bytes.NewReader(f.Data),
		map[string]string{"scope": "project", "project_id": scopeID}, &uploaded)
	if err != nil {
		p.logger.Warn("file upload failed",
			"file", f.Name, "scope_id", scopeID, "error", err)
		credit(2) // synthesize the process stage too
		return true
	}
	credit(1)

	var processed transport.ProcessResponse
	err = p.client.PostJSON(ctx, fmt.Sprintf("/files/%s/process?force=false", uploaded.FileID), nil, &processed)
	if err != nil {
		p.logger.Warn("file processing failed",
			"file", f.Name, "file_id", uploaded.FileID, "error", err)
		credit(1)
		return true
	}
	credit(1)

	p.logger.Debug("file ingested",
		"file", f.Name, "file_id", uploaded.FileID,
		"chunks", processed.Chunks, "vectors", processed.Vectors)
	return false
}

// fireRegistryRefresh kicks off the name→id registry refresh without
// blocking the caller. Failures are logged and swallowed.
func (p *Pipeline) fireRegistryRefresh(scopeID string) {
	if p.refresh == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.refresh(ctx, scopeID); err != nil {
			p.logger.Warn("file registry refresh failed", "scope_id", scopeID, "error", err)
		}
	}()
}
