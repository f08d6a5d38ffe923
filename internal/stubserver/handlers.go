package stubserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadSize = 25 << 20 // 25MB

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpError(w, http.StatusBadRequest, "validation_error", "invalid multipart body: %v", err)
		return
	}
	_, hdr, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "validation_error", "missing file part: %v", err)
		return
	}
	// Failure injection: names containing "reject" fail the upload
	// stage, exercising the pipeline's partial-failure path.
	if strings.Contains(hdr.Filename, "reject") {
		httpError(w, http.StatusUnsupportedMediaType, "unsupported_file_type", "file %s was rejected", hdr.Filename)
		return
	}

	id := "file-" + uuid.New().String()
	s.mu.Lock()
	s.files[id] = hdr.Filename
	s.mu.Unlock()

	writeJSON(w, map[string]any{"file_id": id, "filename": hdr.Filename})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	name, ok := s.files[id]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "file_not_found", "no file %s", id)
		return
	}
	if strings.Contains(name, "poison") {
		httpError(w, http.StatusInternalServerError, "processing_failed", "extraction failed for %s", name)
		return
	}
	writeJSON(w, map[string]any{"status": "processed", "chunks": 12, "vectors": 12})
}

func (s *Server) handleListGlobalFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"files": []any{}})
}

func (s *Server) handleListProjectFiles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	files := make([]map[string]string, 0, len(s.files))
	for id, name := range s.files {
		files = append(files, map[string]string{"id": id, "name": name})
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"files": files})
}

type submitRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	s.submit(w, r, projectID)
}

func (s *Server) handleSubmitSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		ProjectID string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "validation_error", "invalid request body: %v", err)
		return
	}
	s.register(w, req.ProjectID, req.Query)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, projectID string) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "validation_error", "invalid request body: %v", err)
		return
	}
	if req.Query == "" {
		httpError(w, http.StatusBadRequest, "empty_query", "query must not be empty")
		return
	}
	// Failure injection: obviously non-analytical queries reproduce
	// the backend's validation rejection.
	if strings.Contains(strings.ToLower(req.Query), "joke") {
		httpError(w, http.StatusBadRequest, "non_business_query", "query %q is not a business question", req.Query)
		return
	}
	s.register(w, projectID, req.Query)
}

func (s *Server) register(w http.ResponseWriter, projectID, text string) {
	qid := "query-" + uuid.New().String()
	eid := "entry-" + uuid.New().String()
	s.mu.Lock()
	s.queries[qid] = &queryState{
		ProjectID: projectID,
		EntryID:   eid,
		Text:      text,
		Failed:    strings.Contains(strings.ToLower(text), "doomed"),
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"query_id": qid, "entry_id": eid})
}

func (s *Server) handleFollowup(w http.ResponseWriter, r *http.Request) {
	parentID := chi.URLParam(r, "id")
	s.mu.Lock()
	parent, ok := s.queries[parentID]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusBadRequest, "invalid_followup", "no query %s to follow up on", parentID)
		return
	}
	s.submit(w, r, parent.ProjectID)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.queries[id]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "query_not_found", "no query %s", id)
		return
	}
	writeJSON(w, map[string]any{"status": "received"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	s.mu.Lock()
	var results []map[string]string
	for qid, q := range s.queries {
		if q.ProjectID == projectID {
			results = append(results, map[string]string{"query_id": qid, "entry_id": q.EntryID})
		}
	}
	s.mu.Unlock()
	if results == nil {
		results = []map[string]string{}
	}
	writeJSON(w, map[string]any{"results": results})
}

// handleStream plays a short canned multi-agent run over SSE.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	q, ok := s.queries[id]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "query_not_found", "no query %s", id)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "server_error", "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(v any) {
		payload, _ := json.Marshal(v)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		if s.StreamDelay > 0 {
			select {
			case <-r.Context().Done():
			case <-time.After(s.StreamDelay):
			}
		}
	}

	steps := []map[string]string{
		{"agent": "researcher", "action": "gather market data", "status": "done"},
		{"agent": "analyst", "action": "model scenario", "status": "done"},
		{"agent": "strategist", "action": "draft recommendations", "status": "done"},
	}
	for i, step := range steps {
		send(map[string]any{
			"query_id": id,
			"status":   "processing",
			"progress": (i + 1) * 100 / (len(steps) + 1),
			"steps":    []any{step},
		})
	}

	if q.Failed {
		send(map[string]any{
			"query_id": id,
			"status":   "failed",
			"progress": 100,
			"message":  "analysis failed: scenario model did not converge",
		})
		return
	}
	send(map[string]any{
		"query_id": id,
		"status":   "completed",
		"progress": 100,
		"result": map[string]any{
			"sections": []map[string]string{
				{"title": "Summary", "body": fmt.Sprintf("Analysis of %q finished.", q.Text)},
			},
		},
	})
}

func (s *Server) handleFullResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	q, ok := s.queries[id]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "query_not_found", "no query %s", id)
		return
	}
	if q.Failed {
		writeJSON(w, map[string]any{
			"query_id": id,
			"status":   "failed",
			"message":  "analysis failed: scenario model did not converge",
		})
		return
	}
	writeJSON(w, map[string]any{
		"query_id": id,
		"status":   "completed",
		"progress": 100,
		"result": map[string]any{
			"sections": []map[string]string{
				{"title": "Summary", "body": fmt.Sprintf("Analysis of %q finished.", q.Text)},
			},
		},
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "validation_error", "invalid request body: %v", err)
		return
	}
	id := "project-" + uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	s.mu.Lock()
	s.projects[id] = map[string]string{
		"id": id, "name": req.Name, "description": req.Description,
		"created_at": now, "updated_at": now,
	}
	s.mu.Unlock()
	writeJSON(w, s.projects[id])
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	p, ok := s.projects[id]
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "project_not_found", "no project %s", id)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]map[string]string, 0, len(s.projects))
	for _, p := range s.projects {
		list = append(list, p)
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"projects": list})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.projects[id]
	delete(s.projects, id)
	delete(s.messages, id)
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "project_not_found", "no project %s", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		EntryID string `json:"entry_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "validation_error", "invalid request body: %v", err)
		return
	}
	msg := chatMessage{
		ID:        "msg-" + uuid.New().String(),
		Role:      req.Role,
		Content:   req.Content,
		EntryID:   req.EntryID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.mu.Lock()
	s.messages[projectID] = append(s.messages[projectID], msg)
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"message_id": msg.ID,
		"timestamp":  msg.CreatedAt,
		"status":     "saved",
	})
}
