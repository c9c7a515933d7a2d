// Package task implements the dashboard task state machine: creation,
// field patches, append-only notes, spawn re-dispatch and removal, persisted
// as a single JSON collection. Attachment bookkeeping lives alongside in
// attachments.go.
package task

import "time"

// Status is the task lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// ValidStatus reports whether s is one of the enumerated states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusNew, StatusInProgress, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Priority orders tasks for the agent.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriority reports whether p is one of the enumerated priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Terminal reports whether s is an end state a spawn resets from.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Note is one append-only annotation on a task. Notes are never reordered
// or deleted.
type Note struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is a unit of work tracked by the dashboard.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	Assignee    string    `json:"assignee"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	DueDate     *string   `json:"dueDate"`
	Notes       []Note    `json:"notes"`
	Source      string    `json:"source"`
}
