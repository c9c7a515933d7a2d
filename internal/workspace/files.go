// Package workspace exposes the read-only-ish slices of the agent workspace
// the dashboard serves: allow-listed markdown files, the skill catalog, and
// daily memory logs.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
)

// Workspace wraps a workspace root directory.
type Workspace struct {
	root            string
	systemSkillsDir string
}

// New creates a workspace view.
func New(root, systemSkillsDir string) *Workspace {
	return &Workspace{root: root, systemSkillsDir: systemSkillsDir}
}

// AllowedPath reports whether a relative file path may be read or written:
// root-level *.md files and memory/*.md, nothing else. Absolute paths and
// parent-directory traversal are always rejected.
func AllowedPath(p string) bool {
	if p == "" {
		return false
	}
	normalized := filepath.Clean(p)
	if strings.Contains(normalized, "..") || filepath.IsAbs(normalized) {
		return false
	}
	parts := strings.Split(normalized, string(filepath.Separator))
	if len(parts) == 1 && strings.HasSuffix(normalized, ".md") {
		return true
	}
	if len(parts) == 2 && parts[0] == "memory" && strings.HasSuffix(parts[1], ".md") {
		return true
	}
	return false
}

// ReadFile returns the content of an allow-listed workspace file.
func (w *Workspace) ReadFile(rel string) (string, error) {
	if !AllowedPath(rel) {
		return "", shared.Validationf("path not allowed")
	}
	data, err := os.ReadFile(filepath.Join(w.root, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return "", &shared.NotFoundError{Kind: "file", ID: rel}
		}
		return "", fmt.Errorf("read workspace file: %w", err)
	}
	return string(data), nil
}

// WriteFile atomically replaces an allow-listed workspace file, creating
// parent directories as needed.
func (w *Workspace) WriteFile(rel, content string) error {
	if !AllowedPath(rel) {
		return shared.Validationf("path not allowed")
	}
	full := filepath.Join(w.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &shared.StorageError{Op: "mkdir", Path: filepath.Dir(full), Err: err}
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return &shared.StorageError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return &shared.StorageError{Op: "rename", Path: full, Err: err}
	}
	return nil
}
