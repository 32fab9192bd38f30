package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// handleListWorkspaces returns every managed workspace, least recently
// used first, plus the tracked byte total.
func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.mgr.ListWorkspaces(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if workspaces == nil {
		workspaces = []*core.Workspace{}
	}

	var total int64
	for _, ws := range workspaces {
		total += ws.SizeBytes
	}

	respondJSON(w, http.StatusOK, struct {
		Workspaces []*core.Workspace `json:"workspaces"`
		Count      int               `json:"count"`
		TotalBytes int64             `json:"total_bytes"`
	}{Workspaces: workspaces, Count: len(workspaces), TotalBytes: total})
}

// handleGetWorkspace returns a single workspace record.
func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")

	ws, err := s.mgr.GetWorkspace(r.Context(), core.WorkspaceID(id))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ws)
}
