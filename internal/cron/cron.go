// Package cron stores scheduled job metadata and replays run history.
// Execution and schedule evaluation belong to the external scheduler
// process: this engine treats the schedule as an opaque descriptor and
// only signals the scheduler to re-read the store after mutations.
package cron

import "encoding/json"

// State is the scheduler-owned runtime state of a job. The engine never
// mutates it except to clear NextRunAtMs when the schedule changes.
type State struct {
	NextRunAtMs    *int64  `json:"nextRunAtMs"`
	LastRunAtMs    *int64  `json:"lastRunAtMs"`
	LastStatus     *string `json:"lastStatus"`
	LastDurationMs *int64  `json:"lastDurationMs"`
}

// Job is one scheduled unit. Schedule and Payload are opaque descriptors
// owned by the external scheduler and agent runtime respectively; they are
// stored and returned byte-for-byte.
type Job struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agentId"`
	Name          string          `json:"name"`
	Enabled       bool            `json:"enabled"`
	CreatedAtMs   int64           `json:"createdAtMs"`
	UpdatedAtMs   int64           `json:"updatedAtMs"`
	Schedule      json.RawMessage `json:"schedule"`
	SessionTarget string          `json:"sessionTarget"`
	WakeMode      string          `json:"wakeMode"`
	Payload       json.RawMessage `json:"payload"`
	State         State           `json:"state"`
}

// Store is the persisted job collection document.
type Store struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// SeedStore is the value used when the backing file is missing or corrupt.
func SeedStore() Store {
	return Store{Version: 1, Jobs: []Job{}}
}

// Run is one immutable record from a job's append-only run log. Records
// carry at least ts/status/duration but the engine preserves whatever
// fields the scheduler wrote.
type Run map[string]any

// TimestampMs extracts the run's ts field for ranking; 0 when absent.
func (r Run) TimestampMs() int64 {
	switch v := r["ts"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
