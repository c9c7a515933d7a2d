package task

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
)

// maxNameLen caps sanitized attachment filenames.
const maxNameLen = 200

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Attachment describes one file stored under a task's attachment directory.
type Attachment struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	IsImage   bool      `json:"isImage"`
	CreatedAt time.Time `json:"createdAt"`
	Ext       string    `json:"ext"`
}

// UploadRequest is either an inline base64 payload or a server-local source
// path restricted to the allow-listed directories.
type UploadRequest struct {
	Filename string
	Data     string // base64, optionally with a data-URL prefix
	FilePath string // server-side copy source
	Source   string // "user" (default) or "agent", recorded in the note
}

// Attachments manages per-task attachment directories. Every upload and
// deletion is also recorded as a note on the owning task.
type Attachments struct {
	root            string
	engine          *Engine
	eventBus        *bus.Bus
	logger          *slog.Logger
	maxUpload       int64
	allowedPrefixes []string
}

// AttachmentsConfig holds the dependencies for the attachment manager.
type AttachmentsConfig struct {
	Root            string
	Engine          *Engine
	Bus             *bus.Bus
	Logger          *slog.Logger
	MaxUploadBytes  int64
	AllowedPrefixes []string // source-path copy allow-list
}

// NewAttachments creates the attachment manager rooted at cfg.Root.
func NewAttachments(cfg AttachmentsConfig) *Attachments {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Attachments{
		root:            cfg.Root,
		engine:          cfg.Engine,
		eventBus:        cfg.Bus,
		logger:          logger,
		maxUpload:       maxUpload,
		allowedPrefixes: cfg.AllowedPrefixes,
	}
}

// Dir returns the attachment directory for a task.
func (a *Attachments) Dir(taskID string) string {
	return filepath.Join(a.root, taskID)
}

// List returns a task's attachments sorted by creation time descending.
// A missing directory yields an empty list.
func (a *Attachments) List(taskID string) []Attachment {
	entries, err := os.ReadDir(a.Dir(taskID))
	if err != nil {
		return []Attachment{}
	}
	out := make([]Attachment, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		out = append(out, Attachment{
			Name:      entry.Name(),
			Size:      info.Size(),
			IsImage:   IsImageExt(ext),
			CreatedAt: info.ModTime().UTC(),
			Ext:       ext,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Resolve validates an attachment filename and returns its path.
func (a *Attachments) Resolve(taskID, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	p := filepath.Join(a.Dir(taskID), name)
	if _, err := os.Stat(p); err != nil {
		return "", &shared.NotFoundError{Kind: "attachment", ID: name}
	}
	return p, nil
}

// Save stores an upload under the task's directory, resolving name
// collisions with a timestamp suffix (never overwriting), and records a
// note on the task.
func (a *Attachments) Save(taskID string, req UploadRequest) (Attachment, error) {
	if _, err := a.engine.Get(taskID); err != nil {
		return Attachment{}, err
	}

	var data []byte
	var name string
	switch {
	case req.FilePath != "":
		src := filepath.Clean(req.FilePath)
		if !a.sourceAllowed(src) {
			return Attachment{}, shared.Validationf("filePath not in allowed directory")
		}
		info, err := os.Stat(src)
		if err != nil {
			return Attachment{}, shared.Validationf("source file not found: %s", src)
		}
		if info.Size() > a.maxUpload {
			return Attachment{}, shared.Validationf("file too large (max %dMB)", a.maxUpload>>20)
		}
		data, err = os.ReadFile(src)
		if err != nil {
			return Attachment{}, &shared.StorageError{Op: "read", Path: src, Err: err}
		}
		name = req.Filename
		if name == "" {
			name = filepath.Base(src)
		}
	case req.Data != "":
		if req.Filename == "" {
			return Attachment{}, shared.Validationf("filename required")
		}
		raw := req.Data
		// Strip a data-URL prefix if present.
		if idx := strings.IndexByte(raw, ','); idx >= 0 {
			raw = raw[idx+1:]
		}
		var err error
		data, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Attachment{}, shared.Validationf("invalid base64 data")
		}
		if int64(len(data)) > a.maxUpload {
			return Attachment{}, shared.Validationf("file too large (max %dMB)", a.maxUpload>>20)
		}
		name = req.Filename
	default:
		return Attachment{}, shared.Validationf("data (base64) or filePath required")
	}

	name = SanitizeName(name)
	if name == "" {
		return Attachment{}, shared.Validationf("invalid filename")
	}

	dir := a.Dir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Attachment{}, &shared.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	finalName := name
	if _, err := os.Stat(filepath.Join(dir, finalName)); err == nil {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		finalName = fmt.Sprintf("%s_%d%s", base, time.Now().UnixMilli(), ext)
	}
	dest := filepath.Join(dir, finalName)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return Attachment{}, &shared.StorageError{Op: "write", Path: dest, Err: err}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Attachment{}, &shared.StorageError{Op: "stat", Path: dest, Err: err}
	}
	ext := strings.ToLower(filepath.Ext(finalName))
	att := Attachment{
		Name:      finalName,
		Size:      info.Size(),
		IsImage:   IsImageExt(ext),
		CreatedAt: info.ModTime().UTC(),
		Ext:       ext,
	}

	uploader := "User"
	if req.Source == "agent" {
		uploader = "Agent"
	}
	noteText := fmt.Sprintf("📎 %s attached: %s (%s)", uploader, finalName, FormatFileSize(att.Size))
	if _, err := a.engine.AppendNote(taskID, noteText); err != nil {
		a.logger.Warn("attachment note failed", "task_id", taskID, "error", err)
	}
	if a.eventBus != nil {
		a.eventBus.Publish(bus.TopicTaskAttached, bus.TaskEvent{TaskID: taskID, Title: finalName})
	}
	a.logger.Info("attachment stored", "task_id", taskID, "name", finalName, "size", att.Size)
	return att, nil
}

// Delete removes an attachment and records a note on the task.
func (a *Attachments) Delete(taskID, name string) error {
	p, err := a.Resolve(taskID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return &shared.StorageError{Op: "remove", Path: p, Err: err}
	}
	noteText := fmt.Sprintf("🗑️ Attachment removed: %s", name)
	if _, err := a.engine.AppendNote(taskID, noteText); err != nil {
		a.logger.Warn("attachment delete note failed", "task_id", taskID, "error", err)
	}
	return nil
}

func (a *Attachments) sourceAllowed(p string) bool {
	for _, prefix := range a.allowedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// SanitizeName restricts a filename to [a-zA-Z0-9._-] and caps its length.
// The result never contains path separators or parent-directory segments.
func SanitizeName(name string) string {
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	if name == "" || strings.Trim(name, "._") == "" {
		return ""
	}
	return name
}

func validateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return shared.Validationf("invalid filename")
	}
	return nil
}

// FormatFileSize renders a byte count the way the dashboard displays it.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
