package cron

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
	obs "github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
	"github.com/karem505/openclaw-agent-dashboard/internal/store"
)

// DefaultRunsLimit caps run-history replies when the caller gives no limit.
const DefaultRunsLimit = 50

// Dispatcher triggers an immediate run of a job through the agent hook.
type Dispatcher interface {
	DispatchCronRun(ctx context.Context, jobID, message string) (json.RawMessage, error)
}

// ReloadSignaler nudges the external scheduler to re-read the job store.
// Failures are swallowed by the engine.
type ReloadSignaler interface {
	SignalReload(ctx context.Context)
}

// Config holds the dependencies for the cron engine.
type Config struct {
	Collection *store.Collection[Store]
	RunsDir    string
	Dispatcher Dispatcher
	Reload     ReloadSignaler // nil disables reload signalling
	Bus        *bus.Bus
	Metrics    *obs.Metrics // nil disables counters
	Logger     *slog.Logger
}

// Engine owns cron job CRUD and run-history replay.
type Engine struct {
	col        *store.Collection[Store]
	runsDir    string
	dispatcher Dispatcher
	reload     ReloadSignaler
	eventBus   *bus.Bus
	metrics    *obs.Metrics
	logger     *slog.Logger

	now func() time.Time
}

// New creates a cron engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		col:        cfg.Collection,
		runsDir:    cfg.RunsDir,
		dispatcher: cfg.Dispatcher,
		reload:     cfg.Reload,
		eventBus:   cfg.Bus,
		metrics:    cfg.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns all jobs with the store version.
func (e *Engine) List() ([]Job, int) {
	doc := e.col.Load()
	version := doc.Version
	if version == 0 {
		version = 1
	}
	return doc.Jobs, version
}

// StatusSummary aggregates the job store for the dashboard's cron card.
type StatusSummary struct {
	Total       int    `json:"total"`
	Enabled     int    `json:"enabled"`
	Disabled    int    `json:"disabled"`
	NextRunAtMs *int64 `json:"nextRunAtMs"`
	NextRunIn   *int64 `json:"nextRunIn"`
}

// Status reports totals and the soonest scheduled run among enabled jobs.
func (e *Engine) Status() StatusSummary {
	doc := e.col.Load()
	s := StatusSummary{Total: len(doc.Jobs)}
	var next *int64
	for _, j := range doc.Jobs {
		if j.Enabled {
			s.Enabled++
			if j.State.NextRunAtMs != nil && (next == nil || *j.State.NextRunAtMs < *next) {
				v := *j.State.NextRunAtMs
				next = &v
			}
		} else {
			s.Disabled++
		}
	}
	if next != nil {
		s.NextRunAtMs = next
		in := *next - e.now().UnixMilli()
		if in < 0 {
			in = 0
		}
		s.NextRunIn = &in
	}
	return s
}

// Runs replays a job's append-only run log, newest first. Corrupt lines are
// dropped, never fatal; a missing log yields an empty history.
func (e *Engine) Runs(jobID string, limit int) []Run {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	path := filepath.Join(e.runsDir, jobID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return []Run{}
	}
	defer f.Close()

	runs := []Run{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r Run
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		runs = append(runs, r)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].TimestampMs() > runs[j].TimestampMs() })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// CreateRequest carries the caller-supplied fields for a new job.
type CreateRequest struct {
	Name          string
	AgentID       string
	Enabled       *bool
	Schedule      json.RawMessage
	SessionTarget string
	WakeMode      string
	Payload       json.RawMessage
}

// Create persists a new job. Name and schedule are required; everything
// else defaults. The scheduler computes nextRunAtMs after the reload signal.
func (e *Engine) Create(req CreateRequest) (Job, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Job{}, shared.Validationf("name is required")
	}
	if len(req.Schedule) == 0 || string(req.Schedule) == "null" {
		return Job{}, shared.Validationf("schedule is required")
	}

	now := e.now().UnixMilli()
	job := Job{
		ID:            uuid.NewString(),
		AgentID:       defaultString(req.AgentID, "main"),
		Name:          strings.TrimSpace(req.Name),
		Enabled:       req.Enabled == nil || *req.Enabled,
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
		Schedule:      req.Schedule,
		SessionTarget: defaultString(req.SessionTarget, "isolated"),
		WakeMode:      defaultString(req.WakeMode, "now"),
		Payload:       req.Payload,
		State:         State{},
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage(`{"kind":"agentTurn","message":""}`)
	}

	err := e.col.Update(func(doc *Store) error {
		if doc.Version == 0 {
			doc.Version = 1
		}
		doc.Jobs = append(doc.Jobs, job)
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	e.afterMutation("create", job)
	return job, nil
}

// UpdateRequest patches job fields. Changing the schedule clears
// state.nextRunAtMs so the external scheduler recomputes it.
type UpdateRequest struct {
	Name          *string
	Enabled       *bool
	Schedule      json.RawMessage
	SessionTarget *string
	WakeMode      *string
	Payload       json.RawMessage
}

func (e *Engine) Update(id string, req UpdateRequest) (Job, error) {
	var updated Job
	err := e.col.Update(func(doc *Store) error {
		job := findJob(doc.Jobs, id)
		if job == nil {
			return &shared.NotFoundError{Kind: "job", ID: id}
		}
		if req.Name != nil {
			job.Name = *req.Name
		}
		if req.Enabled != nil {
			job.Enabled = *req.Enabled
		}
		if len(req.Schedule) > 0 {
			job.Schedule = req.Schedule
			job.State.NextRunAtMs = nil
		}
		if req.SessionTarget != nil {
			job.SessionTarget = *req.SessionTarget
		}
		if req.WakeMode != nil {
			job.WakeMode = *req.WakeMode
		}
		if len(req.Payload) > 0 {
			job.Payload = req.Payload
		}
		job.UpdatedAtMs = e.now().UnixMilli()
		updated = *job
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	e.afterMutation("update", updated)
	return updated, nil
}

// Remove deletes a job and returns the removed record.
func (e *Engine) Remove(id string) (Job, error) {
	var removed Job
	err := e.col.Update(func(doc *Store) error {
		for i, j := range doc.Jobs {
			if j.ID == id {
				removed = j
				doc.Jobs = append(doc.Jobs[:i], doc.Jobs[i+1:]...)
				return nil
			}
		}
		return &shared.NotFoundError{Kind: "job", ID: id}
	})
	if err != nil {
		return Job{}, err
	}
	e.afterMutation("delete", removed)
	return removed, nil
}

// RunNow triggers an immediate run through the agent hook and returns the
// hook's result.
func (e *Engine) RunNow(ctx context.Context, id string) (json.RawMessage, error) {
	doc := e.col.Load()
	job := findJob(doc.Jobs, id)
	if job == nil {
		return nil, &shared.NotFoundError{Kind: "job", ID: id}
	}
	message := payloadMessage(job.Payload)
	result, err := e.dispatcher.DispatchCronRun(ctx, job.ID, message)
	if err != nil {
		return nil, err
	}
	if e.eventBus != nil {
		e.eventBus.Publish(bus.TopicCronRun, bus.CronEvent{JobID: job.ID, Name: job.Name, Op: "run"})
	}
	if e.metrics != nil {
		e.metrics.CronRuns.Add(ctx, 1)
	}
	e.logger.Info("cron run triggered", "job_id", job.ID, "name", job.Name)
	return result, nil
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// afterMutation signals the external scheduler and publishes the bus event.
// The reload is best-effort: a failed signal is the scheduler's poll
// interval's problem, not the caller's.
func (e *Engine) afterMutation(op string, job Job) {
	if e.reload != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		e.reload.SignalReload(ctx)
		cancel()
	}
	if e.eventBus != nil {
		e.eventBus.Publish(bus.TopicCronUpdated, bus.CronEvent{JobID: job.ID, Name: job.Name, Op: op})
	}
	e.logger.Info("cron store mutated", "op", op, "job_id", job.ID)
}

// payloadMessage digs the message string out of the opaque payload
// descriptor; an unreadable payload yields an empty message.
func payloadMessage(payload json.RawMessage) string {
	var p struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.Message
}

func findJob(jobs []Job, id string) *Job {
	for i := range jobs {
		if jobs[i].ID == id {
			return &jobs[i]
		}
	}
	return nil
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
