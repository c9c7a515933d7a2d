package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
	"github.com/karem505/openclaw-agent-dashboard/internal/task"
)

type taskCreateBody struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Content     string  `json:"content"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Assignee    string  `json:"assignee"`
	DueDate     *string `json:"dueDate"`
	Source      string  `json:"source"`
}

type taskPatchBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Content     *string `json:"content"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	Assignee    *string `json:"assignee"`
	// Raw so an explicit null (clear the due date) is distinguishable from
	// the field being absent.
	DueDate json.RawMessage `json:"dueDate"`
	Source  *string         `json:"source"`
}

// dueDatePatch maps the raw dueDate field onto the engine's tri-state:
// absent → nil, null → pointer to nil, string → pointer to value.
func (b taskPatchBody) dueDatePatch() (**string, error) {
	if len(b.DueDate) == 0 {
		return nil, nil
	}
	var v *string
	if err := json.Unmarshal(b.DueDate, &v); err != nil {
		return nil, shared.Validationf("dueDate must be a string or null")
	}
	return &v, nil
}

// handleTasks serves the collection routes: GET /tasks and POST /tasks.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		tasks := s.cfg.Tasks.List(task.Filter{
			Status:   q.Get("status"),
			Priority: q.Get("priority"),
			Assignee: q.Get("assignee"),
		})
		s.writeJSON(w, http.StatusOK, tasks)
	case http.MethodPost:
		var body taskCreateBody
		if err := decodeBody(r, &body); err != nil {
			s.writeEngineError(w, err)
			return
		}
		t, err := s.cfg.Tasks.Create(task.CreateRequest{
			Title:       body.Title,
			Description: body.Description,
			Content:     body.Content,
			Status:      body.Status,
			Priority:    body.Priority,
			Assignee:    body.Assignee,
			DueDate:     body.DueDate,
			Source:      body.Source,
		})
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, t)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTaskSubroutes dispatches everything under /tasks/.
func (s *Server) handleTaskSubroutes(w http.ResponseWriter, r *http.Request) {
	seg := segments(r.URL.Path)
	// seg[0] is always "tasks" here.
	if len(seg) == 2 && seg[1] == "spawn-batch" {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleSpawnBatch(w, r)
		return
	}
	if len(seg) < 2 {
		s.writeError(w, http.StatusBadRequest, "task ID required")
		return
	}
	id := seg[1]

	switch {
	case len(seg) == 2 && r.Method == http.MethodPatch:
		s.handleTaskPatch(w, r, id)
	case len(seg) == 2 && r.Method == http.MethodDelete:
		removed, err := s.cfg.Tasks.Remove(id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, removed)
	case len(seg) == 2 && r.Method == http.MethodGet:
		t, err := s.cfg.Tasks.Get(id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, t)
	case len(seg) == 3 && seg[2] == "notes" && r.Method == http.MethodPost:
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeEngineError(w, err)
			return
		}
		note, err := s.cfg.Tasks.AppendNote(id, body.Text)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, note)
	case len(seg) == 3 && seg[2] == "spawn" && r.Method == http.MethodPost:
		t, err := s.cfg.Tasks.Spawn(id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, t)
	case len(seg) >= 3 && seg[2] == "attachments":
		s.handleAttachments(w, r, id, seg)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTaskPatch(w http.ResponseWriter, r *http.Request, id string) {
	var body taskPatchBody
	if err := decodeBody(r, &body); err != nil {
		s.writeEngineError(w, err)
		return
	}
	dueDate, err := body.dueDatePatch()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	t, err := s.cfg.Tasks.Patch(id, task.Patch{
		Title:       body.Title,
		Description: body.Description,
		Content:     body.Content,
		Status:      body.Status,
		Priority:    body.Priority,
		Assignee:    body.Assignee,
		DueDate:     dueDate,
		Source:      body.Source,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSpawnBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskIDs []string `json:"taskIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeEngineError(w, err)
		return
	}
	res, err := s.cfg.Tasks.SpawnBatch(body.TaskIDs)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleAttachments serves list, upload, download and delete under
// /tasks/:id/attachments.
func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request, taskID string, seg []string) {
	switch {
	case len(seg) == 3 && r.Method == http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.cfg.Attachments.List(taskID))
	case len(seg) == 3 && r.Method == http.MethodPost:
		var body struct {
			Filename string `json:"filename"`
			Data     string `json:"data"`
			FilePath string `json:"filePath"`
			Source   string `json:"source"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeEngineError(w, err)
			return
		}
		att, err := s.cfg.Attachments.Save(taskID, task.UploadRequest{
			Filename: body.Filename,
			Data:     body.Data,
			FilePath: body.FilePath,
			Source:   body.Source,
		})
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, att)
	case len(seg) == 4 && r.Method == http.MethodGet:
		s.serveAttachment(w, r, taskID, seg[3])
	case len(seg) == 4 && r.Method == http.MethodDelete:
		name, err := url.PathUnescape(seg[3])
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid filename")
			return
		}
		if err := s.cfg.Attachments.Delete(taskID, name); err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) serveAttachment(w http.ResponseWriter, r *http.Request, taskID, rawName string) {
	name, err := url.PathUnescape(rawName)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path, err := s.cfg.Attachments.Resolve(taskID, name)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	ext := filepath.Ext(name)
	w.Header().Set("Content-Type", task.MimeForExt(ext))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
