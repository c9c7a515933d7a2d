package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/karem505/openclaw-agent-dashboard/internal/cron"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
)

type cronCreateBody struct {
	Name          string          `json:"name"`
	AgentID       string          `json:"agentId"`
	Enabled       *bool           `json:"enabled"`
	Schedule      json.RawMessage `json:"schedule"`
	SessionTarget string          `json:"sessionTarget"`
	WakeMode      string          `json:"wakeMode"`
	Payload       json.RawMessage `json:"payload"`
}

type cronUpdateBody struct {
	Name          *string         `json:"name"`
	Enabled       *bool           `json:"enabled"`
	Schedule      json.RawMessage `json:"schedule"`
	SessionTarget *string         `json:"sessionTarget"`
	WakeMode      *string         `json:"wakeMode"`
	Payload       json.RawMessage `json:"payload"`
}

// handleCron serves GET /cron and POST /cron.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, version := s.cfg.Cron.List()
		s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "version": version})
	case http.MethodPost:
		var body cronCreateBody
		if err := decodeBody(r, &body); err != nil {
			s.writeEngineError(w, err)
			return
		}
		job, err := s.cfg.Cron.Create(cron.CreateRequest{
			Name:          body.Name,
			AgentID:       body.AgentID,
			Enabled:       body.Enabled,
			Schedule:      body.Schedule,
			SessionTarget: body.SessionTarget,
			WakeMode:      body.WakeMode,
			Payload:       body.Payload,
		})
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, job)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCronSubroutes dispatches everything under /cron/.
func (s *Server) handleCronSubroutes(w http.ResponseWriter, r *http.Request) {
	seg := segments(r.URL.Path)
	if len(seg) == 2 && seg[1] == "status" && r.Method == http.MethodGet {
		s.writeJSON(w, http.StatusOK, s.cfg.Cron.Status())
		return
	}
	if len(seg) < 2 {
		s.writeError(w, http.StatusBadRequest, "job ID required")
		return
	}
	id := seg[1]

	switch {
	case len(seg) == 3 && seg[2] == "runs" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs := s.cfg.Cron.Runs(id, limit)
		s.writeJSON(w, http.StatusOK, map[string]any{
			"jobId": id,
			"runs":  runs,
			"count": len(runs),
		})
	case len(seg) == 3 && seg[2] == "run" && r.Method == http.MethodPost:
		s.handleCronRunNow(w, r, id)
	case len(seg) == 2 && r.Method == http.MethodPatch:
		var body cronUpdateBody
		if err := decodeBody(r, &body); err != nil {
			s.writeEngineError(w, err)
			return
		}
		job, err := s.cfg.Cron.Update(id, cron.UpdateRequest{
			Name:          body.Name,
			Enabled:       body.Enabled,
			Schedule:      body.Schedule,
			SessionTarget: body.SessionTarget,
			WakeMode:      body.WakeMode,
			Payload:       body.Payload,
		})
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, job)
	case len(seg) == 2 && r.Method == http.MethodDelete:
		removed, err := s.cfg.Cron.Remove(id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, removed)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCronRunNow triggers an immediate run. Hook failures surface as 502
// so the dashboard can tell a dead agent from a bad request.
func (s *Server) handleCronRunNow(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.cfg.Cron.RunNow(r.Context(), id)
	if err != nil {
		var de *shared.DispatchError
		var te *shared.TimeoutError
		switch {
		case shared.IsNotFound(err):
			s.writeEngineError(w, err)
		case errors.As(err, &te), errors.As(err, &de):
			s.writeError(w, http.StatusBadGateway, err.Error())
		default:
			s.writeEngineError(w, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"jobId":  id,
		"result": result,
	})
}
