// Package stubserver implements every backend endpoint the client
// consumes, with canned multi-agent progress streams. It backs
// integration tests and `meridian stub` for offline development.
package stubserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server holds the stub's in-memory state.
type Server struct {
	token string

	// StreamDelay spaces out streamed events; tests set it to zero.
	StreamDelay time.Duration

	mu       sync.Mutex
	files    map[string]string            // file id → name
	queries  map[string]*queryState       // query id → state
	projects map[string]map[string]string // project id → fields
	messages map[string][]chatMessage     // project id → messages
}

type queryState struct {
	ProjectID string
	EntryID   string
	Text      string
	Failed    bool
}

type chatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	EntryID   string `json:"entry_id"`
	CreatedAt string `json:"created_at"`
}

// New creates a stub with the given bearer token; empty disables auth.
func New(token string) *Server {
	return &Server{
		token:       token,
		StreamDelay: 150 * time.Millisecond,
		files:       make(map[string]string),
		queries:     make(map[string]*queryState),
		projects:    make(map[string]map[string]string),
		messages:    make(map[string][]chatMessage),
	}
}

// Handler returns the stub's HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.token != "" {
		r.Use(bearerAuth(s.token))
	}

	r.Post("/files", s.handleUpload)
	r.Post("/files/{id}/process", s.handleProcess)
	r.Get("/files", s.handleListGlobalFiles)

	r.Post("/projects", s.handleCreateProject)
	r.Get("/projects", s.handleListProjects)
	r.Get("/projects/{id}", s.handleGetProject)
	r.Delete("/projects/{id}", s.handleDeleteProject)
	r.Get("/projects/{id}/files", s.handleListProjectFiles)
	r.Post("/projects/{id}/queries", s.handleSubmit)
	r.Post("/projects/{id}/refresh", s.handleRefresh)
	r.Post("/projects/{id}/chat-messages", s.handleChatMessage)

	r.Post("/queries", s.handleSubmitSync)
	r.Post("/queries/{id}/followup", s.handleFollowup)
	r.Post("/queries/{id}/approve", s.handleApprove)
	r.Get("/queries/{id}/stream", s.handleStream)
	r.Get("/queries/{id}/full-result", s.handleFullResult)

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "auth_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// httpError writes the standard detail-envelope error shape.
func httpError(w http.ResponseWriter, code int, errCode string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"detail": map[string]any{
			"error":     errCode,
			"message":   fmt.Sprintf(format, args...),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"error_id":  uuid.New().String(),
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
