package dispatch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/karem505/openclaw-agent-dashboard/internal/task"
)

// buildTaskMessage renders the instruction message the agent receives for a
// task trigger: the task's identity, an attachment manifest when files are
// present, and the callback steps for reporting progress back to the task API.
func (d *Dispatcher) buildTaskMessage(t task.Task) string {
	description := t.Description
	if description == "" {
		description = "(no description)"
	}
	priority := string(t.Priority)
	if priority == "" {
		priority = "medium"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Execute this dashboard task immediately.\n\n")
	fmt.Fprintf(&b, "Task ID: %s\n", t.ID)
	fmt.Fprintf(&b, "Title: %s\n", t.Title)
	fmt.Fprintf(&b, "Description: %s\n", description)
	fmt.Fprintf(&b, "Priority: %s", priority)
	b.WriteString(d.attachmentManifest(t.ID))
	b.WriteString("\n\n")

	base := d.cfg.DashboardURL
	token := d.cfg.AuthToken
	fmt.Fprintf(&b, "Steps:\n")
	fmt.Fprintf(&b, "1. Update status to in-progress: curl -s -X PATCH '%s/tasks/%s?token=%s' -H 'Content-Type: application/json' -d '{\"status\":\"in-progress\"}'\n", base, t.ID, token)
	fmt.Fprintf(&b, "2. Execute the task (do what the title/description says)\n")
	fmt.Fprintf(&b, "3. **IMPORTANT — File Attachments:** If you generate ANY files (images, documents, PDFs, etc.) as part of this task, attach them to the task using this command for EACH file:\n")
	fmt.Fprintf(&b, "   curl -s -X POST '%s/tasks/%s/attachments?token=%s' -H 'Content-Type: application/json' -d '{\"filePath\":\"/absolute/path/to/file.ext\",\"source\":\"agent\"}'\n", base, t.ID, token)
	fmt.Fprintf(&b, "   The filePath must be an absolute path to the generated file on the server. This lets the dashboard display the file.\n")
	fmt.Fprintf(&b, "4. Add result as a note: curl -s -X POST '%s/tasks/%s/notes?token=%s' -H 'Content-Type: application/json' -d '{\"text\":\"<YOUR_RESULT>\"}'\n", base, t.ID, token)
	fmt.Fprintf(&b, "5. Mark done: curl -s -X PATCH '%s/tasks/%s?token=%s' -H 'Content-Type: application/json' -d '{\"status\":\"done\"}'\n", base, t.ID, token)
	fmt.Fprintf(&b, "6. If it fails, mark failed with error in note.")
	return b.String()
}

// attachmentManifest lists the task's uploaded files, separating images from
// other documents, with an explicit direction to consult images first and to
// re-attach anything the execution produces.
func (d *Dispatcher) attachmentManifest(taskID string) string {
	if d.cfg.Attachments == nil {
		return ""
	}
	files := d.cfg.Attachments.List(taskID)
	if len(files) == 0 {
		return ""
	}
	dir := d.cfg.Attachments.Dir(taskID)

	plural := ""
	if len(files) > 1 {
		plural = "s"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n📎 **User-Uploaded Attachments (%d file%s):**\n", len(files), plural)
	var images []task.Attachment
	for _, f := range files {
		icon := "📄"
		if f.IsImage {
			icon = "🖼️"
			images = append(images, f)
		}
		fmt.Fprintf(&b, "   - %s %s → `%s` (%s)\n", icon, f.Name, filepath.Join(dir, f.Name), task.FormatFileSize(f.Size))
	}
	if len(images) > 0 {
		fmt.Fprintf(&b, "\n⚠️ **IMPORTANT:** The user attached %d image(s) to this task. You MUST:\n", len(images))
		fmt.Fprintf(&b, "   1. Use the `image` tool to analyze each attached image to understand what the user wants\n")
		fmt.Fprintf(&b, "   2. If the task involves remaking/editing images, use the attached image as the input source for the image generation skill:\n")
		fmt.Fprintf(&b, "      python3 skills/google-imagen/scripts/generate_image.py \"edit instruction\" --input \"%s\" --output /tmp/output.png\n", filepath.Join(dir, images[0].Name))
		fmt.Fprintf(&b, "   3. Reference the attached files by their full paths listed above\n")
	}
	return b.String()
}
