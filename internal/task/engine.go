package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
	obs "github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
	"github.com/karem505/openclaw-agent-dashboard/internal/store"
)

// Dispatcher enqueues an execution trigger for a task. Enqueue must not
// block: the mutation has already committed when it is called.
type Dispatcher interface {
	EnqueueTask(t Task)
}

// Config holds the dependencies for the task engine.
type Config struct {
	Collection *store.Collection[[]Task]
	Dispatcher Dispatcher   // nil disables execution triggers
	Bus        *bus.Bus     // nil disables event publication
	Metrics    *obs.Metrics // nil disables counters
	Logger     *slog.Logger
}

// Engine owns all task mutations. Every write goes through the collection's
// serialized update cycle; execution triggers are enqueued only after the
// write has committed.
type Engine struct {
	col        *store.Collection[[]Task]
	dispatcher Dispatcher
	eventBus   *bus.Bus
	metrics    *obs.Metrics
	logger     *slog.Logger

	now func() time.Time
}

// New creates a task engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		col:        cfg.Collection,
		dispatcher: cfg.Dispatcher,
		eventBus:   cfg.Bus,
		metrics:    cfg.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Filter selects tasks by exact match on any provided field.
type Filter struct {
	Status   string
	Priority string
	Assignee string
}

// List returns tasks in insertion order, narrowed by the filter.
func (e *Engine) List(f Filter) []Task {
	tasks := e.col.Load()
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Status != "" && string(t.Status) != f.Status {
			continue
		}
		if f.Priority != "" && string(t.Priority) != f.Priority {
			continue
		}
		if f.Assignee != "" && t.Assignee != f.Assignee {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Get returns one task by id.
func (e *Engine) Get(id string) (Task, error) {
	for _, t := range e.col.Load() {
		if t.ID == id {
			return t, nil
		}
	}
	return Task{}, &shared.NotFoundError{Kind: "task", ID: id}
}

// CreateRequest carries the caller-supplied fields for a new task.
type CreateRequest struct {
	Title       string
	Description string
	Content     string
	Status      string
	Priority    string
	Assignee    string
	DueDate     *string
	Source      string
}

// Create validates the request and persists a new task. Unknown status or
// priority values silently fall back to the defaults rather than erroring.
// A task that lands in status "new" triggers execution exactly once.
func (e *Engine) Create(req CreateRequest) (Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return Task{}, shared.Validationf("title is required")
	}

	status := StatusNew
	if s := Status(req.Status); ValidStatus(s) {
		status = s
	}
	priority := PriorityMedium
	if p := Priority(req.Priority); ValidPriority(p) {
		priority = p
	}
	assignee := req.Assignee
	if assignee == "" {
		assignee = "main"
	}
	source := req.Source
	if source == "" {
		source = "dashboard"
	}

	now := e.now().UTC()
	t := Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Status:      status,
		Priority:    priority,
		Assignee:    assignee,
		CreatedAt:   now,
		UpdatedAt:   now,
		DueDate:     req.DueDate,
		Notes:       []Note{},
		Source:      source,
	}

	err := e.col.Update(func(tasks *[]Task) error {
		*tasks = append(*tasks, t)
		return nil
	})
	if err != nil {
		return Task{}, err
	}

	if t.Status == StatusNew && e.dispatcher != nil {
		e.dispatcher.EnqueueTask(t)
	}
	e.publish(bus.TopicTaskCreated, t)
	if e.metrics != nil {
		e.metrics.TasksCreated.Add(context.Background(), 1)
	}
	e.logger.Info("task created", "task_id", t.ID, "status", t.Status, "priority", t.Priority)
	return t, nil
}

// Patch applies the allow-listed fields to an existing task. A provided
// status that differs from the current one appends an audit note before the
// fields are applied; an invalid explicit status or priority rejects the
// whole patch with no state change.
type Patch struct {
	Title       *string
	Description *string
	Content     *string
	Status      *string
	Priority    *string
	Assignee    *string
	// DueDate is doubly indirect so a patch can distinguish "leave as is"
	// (nil) from "clear the due date" (pointer to nil).
	DueDate **string
	Source  *string
}

func (e *Engine) Patch(id string, p Patch) (Task, error) {
	var updated Task
	err := e.col.Update(func(tasks *[]Task) error {
		t := findTask(*tasks, id)
		if t == nil {
			return &shared.NotFoundError{Kind: "task", ID: id}
		}

		now := e.now().UTC()
		if p.Status != nil && Status(*p.Status) != t.Status {
			if !ValidStatus(Status(*p.Status)) {
				return shared.Validationf("invalid status %q, must be one of: new, in-progress, done, failed", *p.Status)
			}
			t.Notes = append(t.Notes, Note{
				Text:      fmt.Sprintf("Status changed from %q to %q", t.Status, *p.Status),
				Timestamp: now,
			})
		}
		if p.Priority != nil && !ValidPriority(Priority(*p.Priority)) {
			return shared.Validationf("invalid priority %q, must be one of: high, medium, low", *p.Priority)
		}

		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Content != nil {
			t.Content = *p.Content
		}
		if p.Status != nil {
			t.Status = Status(*p.Status)
		}
		if p.Priority != nil {
			t.Priority = Priority(*p.Priority)
		}
		if p.Assignee != nil {
			t.Assignee = *p.Assignee
		}
		if p.DueDate != nil {
			t.DueDate = *p.DueDate
		}
		if p.Source != nil {
			t.Source = *p.Source
		}
		t.UpdatedAt = now
		updated = *t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	e.publish(bus.TopicTaskUpdated, updated)
	return updated, nil
}

// AppendNote appends a note to a task. Prior notes are never touched.
func (e *Engine) AppendNote(id, text string) (Note, error) {
	if text == "" {
		return Note{}, shared.Validationf("text is required")
	}
	note := Note{Text: text, Timestamp: e.now().UTC()}
	var updated Task
	err := e.col.Update(func(tasks *[]Task) error {
		t := findTask(*tasks, id)
		if t == nil {
			return &shared.NotFoundError{Kind: "task", ID: id}
		}
		t.Notes = append(t.Notes, note)
		t.UpdatedAt = note.Timestamp
		updated = *t
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	e.publish(bus.TopicTaskNote, updated)
	return note, nil
}

// Spawn re-dispatches execution for one task. A terminal task is reset to
// "new" with an audit note; a task that is already running is rejected.
func (e *Engine) Spawn(id string) (Task, error) {
	var spawned Task
	err := e.col.Update(func(tasks *[]Task) error {
		t := findTask(*tasks, id)
		if t == nil {
			return &shared.NotFoundError{Kind: "task", ID: id}
		}
		if t.Status == StatusInProgress {
			return &shared.ConflictError{Msg: "task is already running"}
		}
		now := e.now().UTC()
		t.Notes = append(t.Notes, Note{Text: "⚡ Spawned as parallel sub-agent", Timestamp: now})
		if t.Status.Terminal() {
			t.Notes = append(t.Notes, Note{
				Text:      fmt.Sprintf("Status changed from %q to %q", t.Status, StatusNew),
				Timestamp: now,
			})
			t.Status = StatusNew
		}
		t.UpdatedAt = now
		spawned = *t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	if e.dispatcher != nil {
		e.dispatcher.EnqueueTask(spawned)
	}
	e.publish(bus.TopicTaskSpawned, spawned)
	if e.metrics != nil {
		e.metrics.TasksSpawned.Add(context.Background(), 1)
	}
	e.logger.Info("task spawned", "task_id", spawned.ID)
	return spawned, nil
}

// SpawnSkip records one task a batch spawn passed over and why.
type SpawnSkip struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// SpawnBatchResult is the partial-failure outcome of a batch spawn.
type SpawnBatchResult struct {
	Spawned int         `json:"spawned"`
	Skipped []SpawnSkip `json:"skipped"`
	Tasks   []Task      `json:"tasks"`
}

// SpawnBatch re-dispatches a set of tasks. Per-item failures are collected;
// the batch never aborts. All changes commit in one write, and dispatches
// are enqueued only after that write.
//
// The audit-note wording and ordering intentionally differ from Spawn: the
// batch path resets a terminal status before appending its audit note.
func (e *Engine) SpawnBatch(ids []string) (SpawnBatchResult, error) {
	if len(ids) == 0 {
		return SpawnBatchResult{}, shared.Validationf("taskIds array is required")
	}
	res := SpawnBatchResult{Skipped: []SpawnSkip{}, Tasks: []Task{}}
	err := e.col.Update(func(tasks *[]Task) error {
		for _, id := range ids {
			t := findTask(*tasks, id)
			if t == nil {
				res.Skipped = append(res.Skipped, SpawnSkip{ID: id, Reason: "not found"})
				continue
			}
			if t.Status == StatusInProgress {
				res.Skipped = append(res.Skipped, SpawnSkip{ID: id, Reason: "already running"})
				continue
			}
			now := e.now().UTC()
			t.Notes = append(t.Notes, Note{
				Text:      fmt.Sprintf("⚡ Spawned as part of parallel batch (%d tasks)", len(ids)),
				Timestamp: now,
			})
			if t.Status.Terminal() {
				t.Notes = append(t.Notes, Note{
					Text:      fmt.Sprintf("Status changed from %q to %q", t.Status, StatusNew),
					Timestamp: now,
				})
				t.Status = StatusNew
			}
			t.UpdatedAt = now
			res.Tasks = append(res.Tasks, *t)
		}
		return nil
	})
	if err != nil {
		return SpawnBatchResult{}, err
	}
	res.Spawned = len(res.Tasks)
	for _, t := range res.Tasks {
		if e.dispatcher != nil {
			e.dispatcher.EnqueueTask(t)
		}
		e.publish(bus.TopicTaskSpawned, t)
	}
	if e.metrics != nil && res.Spawned > 0 {
		e.metrics.TasksSpawned.Add(context.Background(), int64(res.Spawned))
	}
	e.logger.Info("batch spawn", "requested", len(ids), "spawned", res.Spawned, "skipped", len(res.Skipped))
	return res, nil
}

// Remove deletes a task and returns the removed record.
func (e *Engine) Remove(id string) (Task, error) {
	var removed Task
	err := e.col.Update(func(tasks *[]Task) error {
		for i, t := range *tasks {
			if t.ID == id {
				removed = t
				*tasks = append((*tasks)[:i], (*tasks)[i+1:]...)
				return nil
			}
		}
		return &shared.NotFoundError{Kind: "task", ID: id}
	})
	if err != nil {
		return Task{}, err
	}
	e.publish(bus.TopicTaskDeleted, removed)
	return removed, nil
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) publish(topic string, t Task) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(topic, bus.TaskEvent{TaskID: t.ID, Title: t.Title, Status: string(t.Status)})
}

func findTask(tasks []Task, id string) *Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}
