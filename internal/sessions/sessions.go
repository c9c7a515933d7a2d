// Package sessions classifies external agent session records into a
// liveness snapshot. It only reads: the session table and the sub-agent run
// registry are owned by the agent runtime, and every query recomputes the
// snapshot from their current contents.
package sessions

import "strings"

// Category is the session kind, assigned once at ingestion from the key
// shape rather than re-parsed on every read.
type Category string

const (
	CategoryMain     Category = "main"
	CategorySubagent Category = "subagent"
	CategoryHook     Category = "hook"
	CategoryCron     Category = "cron"
	CategoryGroup    Category = "group"
)

// CategoryFromKey derives a session's category from its key shape.
// Precedence: ":main" suffix, then ":subagent:", ":hook:", ":cron:"
// substrings; everything else is a group conversation.
func CategoryFromKey(key string) Category {
	switch {
	case strings.HasSuffix(key, ":main"):
		return CategoryMain
	case strings.Contains(key, ":subagent:"):
		return CategorySubagent
	case strings.Contains(key, ":hook:"):
		return CategoryHook
	case strings.Contains(key, ":cron:"):
		return CategoryCron
	default:
		return CategoryGroup
	}
}

// HookSource tags where a hook session originated.
func HookSource(key string) string {
	if strings.Contains(key, ":dashboard:") {
		return "dashboard"
	}
	return "external"
}
