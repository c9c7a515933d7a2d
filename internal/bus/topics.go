package bus

// Task event topics.
const (
	TopicTaskCreated  = "task.created"
	TopicTaskUpdated  = "task.updated"
	TopicTaskSpawned  = "task.spawned"
	TopicTaskDeleted  = "task.deleted"
	TopicTaskNote     = "task.note"
	TopicTaskAttached = "task.attached"
)

// Cron event topics.
const (
	TopicCronUpdated = "cron.updated"
	TopicCronRun     = "cron.run"
)

// Dispatch event topics.
const (
	TopicDispatchSent   = "dispatch.sent"
	TopicDispatchFailed = "dispatch.failed"
)

// TaskEvent is the payload for task.* topics.
type TaskEvent struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// CronEvent is the payload for cron.* topics.
type CronEvent struct {
	JobID string `json:"jobId"`
	Name  string `json:"name"`
	Op    string `json:"op"` // "create", "update", "delete", "run"
}

// DispatchEvent is the payload for dispatch.* topics.
type DispatchEvent struct {
	SessionKey string `json:"sessionKey"`
	Error      string `json:"error,omitempty"`
}
