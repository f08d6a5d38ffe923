// Package registry maintains the file-name→id mapping used to resolve
// uploaded attachments. The ingestion pipeline refreshes it best-effort
// after a successful upload; lookups elsewhere never block on the
// network.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nvoss/meridian/internal/transport"
)

// Lister is the slice of the transport client the registry needs.
type Lister interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Registry is a concurrent-safe name→id map covering both project and
// global file scopes.
type Registry struct {
	client Lister
	logger *slog.Logger

	mu     sync.RWMutex
	byName map[string]string
}

// New creates an empty Registry.
func New(client Lister, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		client: client,
		logger: logger,
		byName: make(map[string]string),
	}
}

// Refresh reloads project-scoped and global file listings concurrently
// and swaps in the merged mapping. Project entries win name collisions.
func (r *Registry) Refresh(ctx context.Context, projectID string) error {
	var projectFiles, globalFiles transport.FileListResponse

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	g.Go(func() error {
		if err := r.client.GetJSON(gCtx, fmt.Sprintf("/projects/%s/files", projectID), &projectFiles); err != nil {
			return fmt.Errorf("listing project files: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.client.GetJSON(gCtx, "/files", &globalFiles); err != nil {
			return fmt.Errorf("listing global files: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	merged := make(map[string]string, len(projectFiles.Files)+len(globalFiles.Files))
	for _, f := range globalFiles.Files {
		if f.Name != "" {
			merged[f.Name] = f.ID
		}
	}
	for _, f := range projectFiles.Files {
		if f.Name != "" {
			merged[f.Name] = f.ID
		}
	}

	r.mu.Lock()
	r.byName = merged
	r.mu.Unlock()

	r.logger.Debug("file registry refreshed",
		"project_id", projectID, "entries", len(merged))
	return nil
}

// Lookup returns the storage id for a file name.
func (r *Registry) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Names returns all known file names. Order is unspecified.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}
