package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxSkillMDSize caps SKILL.md files the scanner will parse (1 MiB).
const maxSkillMDSize = 1 << 20

// Skill is one SKILL.md entry from the catalog.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// skillFrontmatter is the YAML header of a SKILL.md file.
type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Skills scans the workspace skills directory and the system skills
// directory for SKILL.md files, deduplicated by name with workspace
// entries taking precedence. Unreadable entries are skipped.
func (w *Workspace) Skills() []Skill {
	var skills []Skill
	w.scanSkillDir(filepath.Join(w.root, "skills"), &skills)
	if w.systemSkillsDir != "" {
		w.scanSkillDir(w.systemSkillsDir, &skills)
	}

	seen := map[string]bool{}
	unique := make([]Skill, 0, len(skills))
	for _, s := range skills {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, s)
	}
	return unique
}

func (w *Workspace) scanSkillDir(dir string, out *[]Skill) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Name() != "SKILL.md" {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxSkillMDSize {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if s, ok := parseSkill(string(raw), path, w.root); ok {
			*out = append(*out, s)
		}
		return nil
	})
}

// parseSkill extracts name/description from a SKILL.md: YAML frontmatter
// when present, otherwise the first heading, otherwise the directory name.
func parseSkill(content, path, root string) (Skill, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	skill := Skill{
		Name: filepath.Base(filepath.Dir(path)),
		Path: rel,
	}

	if strings.HasPrefix(content, "---\n") {
		rest := content[4:]
		if end := strings.Index(rest, "\n---"); end >= 0 {
			var fm skillFrontmatter
			if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err == nil {
				if fm.Name != "" {
					skill.Name = strings.TrimSpace(fm.Name)
				}
				skill.Description = strings.TrimSpace(fm.Description)
				return skill, true
			}
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			skill.Name = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			break
		}
	}
	return skill, true
}
