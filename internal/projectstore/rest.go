package projectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/nvoss/meridian/internal/transport"
)

// RESTClient is the slice of the transport client the REST store needs.
type RESTClient interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

// RESTStore persists projects through the backend's CRUD endpoints.
// It is interchangeable with SQLiteStore behind the Store interface.
type RESTStore struct {
	client RESTClient
}

// NewREST creates a RESTStore over the given client.
func NewREST(client RESTClient) *RESTStore {
	return &RESTStore{client: client}
}

// Close is a no-op; the REST store holds no resources of its own.
func (s *RESTStore) Close() error { return nil }

type projectDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (d projectDTO) toProject() Project {
	created, _ := time.Parse(time.RFC3339, d.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, d.UpdatedAt)
	return Project{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
}

func (s *RESTStore) CreateProject(ctx context.Context, name, description string) (Project, error) {
	body := map[string]string{"name": name, "description": description}
	var dto projectDTO
	if err := s.client.PostJSON(ctx, "/projects", body, &dto); err != nil {
		return Project{}, fmt.Errorf("creating project: %w", err)
	}
	return dto.toProject(), nil
}

func (s *RESTStore) GetProject(ctx context.Context, id string) (Project, error) {
	var dto projectDTO
	if err := s.client.GetJSON(ctx, "/projects/"+id, &dto); err != nil {
		return Project{}, fmt.Errorf("fetching project %s: %w", id, err)
	}
	return dto.toProject(), nil
}

func (s *RESTStore) ListProjects(ctx context.Context) ([]Project, error) {
	var resp struct {
		Projects []projectDTO `json:"projects"`
	}
	if err := s.client.GetJSON(ctx, "/projects", &resp); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	projects := make([]Project, len(resp.Projects))
	for i, dto := range resp.Projects {
		projects[i] = dto.toProject()
	}
	return projects, nil
}

func (s *RESTStore) DeleteProject(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, "/projects/"+id); err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	return nil
}

func (s *RESTStore) SaveChatMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	body := map[string]string{
		"role":     msg.Role,
		"content":  msg.Content,
		"entry_id": msg.EntryID,
	}
	var resp transport.ChatMessageResponse
	path := fmt.Sprintf("/projects/%s/chat-messages", msg.ProjectID)
	if err := s.client.PostJSON(ctx, path, body, &resp); err != nil {
		return ChatMessage{}, fmt.Errorf("saving chat message: %w", err)
	}
	if resp.Status != "saved" {
		return ChatMessage{}, fmt.Errorf("chat message not saved: status %q", resp.Status)
	}
	msg.ID = resp.MessageID
	if ts, err := time.Parse(time.RFC3339, resp.Timestamp); err == nil {
		msg.CreatedAt = ts
	}
	return msg, nil
}

func (s *RESTStore) ListChatMessages(ctx context.Context, projectID string) ([]ChatMessage, error) {
	var resp struct {
		Messages []struct {
			ID        string `json:"id"`
			Role      string `json:"role"`
			Content   string `json:"content"`
			EntryID   string `json:"entry_id"`
			CreatedAt string `json:"created_at"`
		} `json:"messages"`
	}
	path := fmt.Sprintf("/projects/%s/chat-messages", projectID)
	if err := s.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	msgs := make([]ChatMessage, len(resp.Messages))
	for i, m := range resp.Messages {
		created, _ := time.Parse(time.RFC3339, m.CreatedAt)
		msgs[i] = ChatMessage{
			ID:        m.ID,
			ProjectID: projectID,
			Role:      m.Role,
			Content:   m.Content,
			EntryID:   m.EntryID,
			CreatedAt: created,
		}
	}
	return msgs, nil
}
