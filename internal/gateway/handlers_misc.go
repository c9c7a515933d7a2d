package gateway

import (
	"io"
	"net/http"

	"github.com/karem505/openclaw-agent-dashboard/internal/task"
	"github.com/karem505/openclaw-agent-dashboard/internal/workspace"
)

// handleAgents reports the aggregated session fleet summary.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.cfg.Sessions.Summary()
	if err != nil {
		s.logger.Error("session summary failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read sessions: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleFiles serves markdown reads and writes inside the workspace
// allow-list. PUT bodies are raw text, not JSON.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		s.writeError(w, http.StatusBadRequest, "path query param is required")
		return
	}
	if !workspace.AllowedPath(rel) {
		s.writeError(w, http.StatusForbidden, "access denied: path not allowed")
		return
	}

	switch r.Method {
	case http.MethodGet:
		content, err := s.cfg.Workspace.ReadFile(rel)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"path": rel, "content": content})
	case http.MethodPut:
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		if err := s.cfg.Workspace.WriteFile(rel, string(buf)); err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"path": rel, "size": len(buf)})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSkills lists the merged workspace and system skill catalogs.
func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Workspace.Skills())
}

type taskHistory struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Status task.Status `json:"status"`
	Notes  []task.Note `json:"notes"`
}

// handleLogs serves the memory digest list and the task activity history.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	seg := segments(r.URL.Path)
	if len(seg) == 2 && seg[1] == "tasks" {
		history := []taskHistory{}
		for _, t := range s.cfg.Tasks.List(task.Filter{}) {
			if len(t.Notes) == 0 {
				continue
			}
			history = append(history, taskHistory{ID: t.ID, Title: t.Title, Status: t.Status, Notes: t.Notes})
		}
		s.writeJSON(w, http.StatusOK, history)
		return
	}
	if len(seg) == 1 {
		s.writeJSON(w, http.StatusOK, s.cfg.Workspace.MemoryLogs())
		return
	}
	s.writeError(w, http.StatusNotFound, "not found")
}
