// Package projectstore persists projects and their chat history. Two
// interchangeable implementations exist: a local SQLite store for
// offline use and a REST store backed by the backend's CRUD endpoints.
// Callers depend only on the Store interface.
package projectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a project or message does not exist.
var ErrNotFound = errors.New("projectstore: not found")

// Project groups uploaded files and conversation history.
type Project struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChatMessage is one persisted conversation turn under a project.
type ChatMessage struct {
	ID        string
	ProjectID string
	Role      string // "user" or "assistant"
	Content   string
	EntryID   string // links the message to a query entry, if any
	CreatedAt time.Time
}

// Store is the persistence boundary for projects and chat history.
type Store interface {
	CreateProject(ctx context.Context, name, description string) (Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, id string) error

	SaveChatMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error)
	ListChatMessages(ctx context.Context, projectID string) ([]ChatMessage, error)

	Close() error
}
