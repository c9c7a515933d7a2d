package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// MemoryLog is one daily markdown digest from the memory directory.
type MemoryLog struct {
	Date     string `json:"date"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// MemoryLogs lists the workspace memory/*.md digests, newest first by
// filename. A missing memory directory yields an empty list.
func (w *Workspace) MemoryLogs() []MemoryLog {
	dir := filepath.Join(w.root, "memory")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []MemoryLog{}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	logs := make([]MemoryLog, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		date := strings.TrimSuffix(name, ".md")
		if m := datePrefix.FindStringSubmatch(name); m != nil {
			date = m[1]
		}
		logs = append(logs, MemoryLog{Date: date, Filename: name, Content: string(content)})
	}
	return logs
}
