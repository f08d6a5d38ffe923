package projectstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nvoss/meridian/internal/transport"
)

func restTestStore(t *testing.T, handler http.HandlerFunc) *RESTStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewREST(transport.New(srv.URL, "tok"))
}

func TestREST_CreateProject(t *testing.T) {
	s := restTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/projects" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id": "p-1", "name": "Acme Q3", "description": "", "created_at": "2026-01-10T09:00:00Z", "updated_at": "2026-01-10T09:00:00Z"}`))
	})

	p, err := s.CreateProject(context.Background(), "Acme Q3", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID != "p-1" || p.Name != "Acme Q3" {
		t.Errorf("project = %+v", p)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
}

func TestREST_SaveChatMessage(t *testing.T) {
	s := restTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/p-1/chat-messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"message_id": "m-1", "timestamp": "2026-01-10T09:00:00Z", "status": "saved"}`))
	})

	msg, err := s.SaveChatMessage(context.Background(), ChatMessage{
		ProjectID: "p-1", Role: "user", Content: "hello",
	})
	if err != nil {
		t.Fatalf("SaveChatMessage: %v", err)
	}
	if msg.ID != "m-1" {
		t.Errorf("ID = %q", msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		t.Error("timestamp not applied")
	}
}

func TestREST_SaveChatMessage_NotSaved(t *testing.T) {
	s := restTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message_id": "m-1", "status": "deferred"}`))
	})

	if _, err := s.SaveChatMessage(context.Background(), ChatMessage{ProjectID: "p-1"}); err == nil {
		t.Fatal("SaveChatMessage accepted a non-saved status")
	}
}

func TestREST_ListProjects(t *testing.T) {
	s := restTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"projects": [
			{"id": "p-1", "name": "Acme Q3"},
			{"id": "p-2", "name": "Pricing study"}
		]}`))
	})

	list, err := s.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(list) != 2 || list[1].Name != "Pricing study" {
		t.Errorf("list = %+v", list)
	}
}

func TestREST_DeleteProject(t *testing.T) {
	var deleted string
	s := restTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = r.URL.Path
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := s.DeleteProject(context.Background(), "p-1"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if deleted != "/projects/p-1" {
		t.Errorf("deleted path = %q", deleted)
	}
}
