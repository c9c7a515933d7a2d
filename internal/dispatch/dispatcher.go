// Package dispatch sends execution triggers to the external agent runtime's
// hook endpoint. Task triggers are fire-and-forget: the originating mutation
// commits first, then the trigger is enqueued on a bounded outbox consumed
// by a small worker pool, so network failures never surface to the caller.
// Cron run-now triggers are synchronous and return the hook's result.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
	obs "github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
	"github.com/karem505/openclaw-agent-dashboard/internal/task"
)

const (
	defaultTaskTimeout = 10 * time.Second
	defaultCronTimeout = 15 * time.Second
	defaultWorkers     = 2
	defaultQueueSize   = 64
)

// hookRequest is the wire payload for the agent execute hook.
type hookRequest struct {
	Message    string `json:"message"`
	SessionKey string `json:"sessionKey"`
}

// Config holds the dependencies for the dispatcher.
type Config struct {
	HookURL   string
	HookToken string

	// DashboardURL and AuthToken are embedded in the instruction message so
	// the agent can call back into the task API.
	DashboardURL string
	AuthToken    string

	TaskTimeout time.Duration // fire-and-forget bound; defaults to 10s
	CronTimeout time.Duration // awaited bound; defaults to 15s
	Workers     int
	QueueSize   int

	Attachments *task.Attachments // nil disables the attachment manifest
	Bus         *bus.Bus
	Logger      *slog.Logger
	Metrics     *obs.Metrics
	Tracer      trace.Tracer // nil disables hook spans
}

// Dispatcher owns the outbox queue and the HTTP transport to the hook.
type Dispatcher struct {
	cfg    Config
	queue  chan task.Task
	client *http.Client
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a dispatcher with the given config.
func New(cfg Config) *Dispatcher {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.CronTimeout <= 0 {
		cfg.CronTimeout = defaultCronTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		queue:  make(chan task.Task, cfg.QueueSize),
		client: &http.Client{},
		logger: logger,
	}
}

// SetAttachments wires the attachment manager after construction. The
// manager needs the task engine, which in turn needs the dispatcher, so the
// cycle is closed here before Start.
func (d *Dispatcher) SetAttachments(a *task.Attachments) {
	d.cfg.Attachments = a
}

// Start launches the outbox workers. It runs until the context is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.Info("dispatch outbox started", "workers", d.cfg.Workers, "queue", d.cfg.QueueSize)
}

// Stop cancels the workers and waits for them to exit. An in-flight hook
// call is canceled along with the worker context; triggers are
// fire-and-forget, so shutdown does not wait them out.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("dispatch outbox stopped")
}

// EnqueueTask queues a task trigger. It never blocks: when the outbox is
// saturated the trigger is dropped with an error log, since the mutation
// that produced it has already committed.
func (d *Dispatcher) EnqueueTask(t task.Task) {
	select {
	case d.queue <- t:
	default:
		d.logger.Error("dispatch outbox full, dropping trigger", "task_id", t.ID)
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.DispatchDropped.Add(context.Background(), 1)
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			d.dispatchTask(ctx, t)
		}
	}
}

// dispatchTask sends one task trigger. Failures and timeouts are logged,
// never retried, never surfaced.
func (d *Dispatcher) dispatchTask(ctx context.Context, t task.Task) {
	sessionKey := "hook:dashboard:" + t.ID
	ctx = shared.WithTaskID(ctx, t.ID)
	ctx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()
	if d.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = obs.StartClientSpan(ctx, d.cfg.Tracer, "hook.task",
			obs.AttrTaskID.String(t.ID), obs.AttrSessionKey.String(sessionKey))
		defer span.End()
	}

	start := time.Now()
	body, status, err := d.post(ctx, hookRequest{
		Message:    d.buildTaskMessage(t),
		SessionKey: sessionKey,
	})
	d.observe(start, err)
	if err != nil {
		d.logger.ErrorContext(ctx, "task trigger failed", "error", err)
		if d.cfg.Bus != nil {
			d.cfg.Bus.Publish(bus.TopicDispatchFailed, bus.DispatchEvent{SessionKey: sessionKey, Error: err.Error()})
		}
		return
	}
	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200]
	}
	d.logger.InfoContext(ctx, "task trigger sent", "status", status, "response", preview)
	if d.cfg.Bus != nil {
		d.cfg.Bus.Publish(bus.TopicDispatchSent, bus.DispatchEvent{SessionKey: sessionKey})
	}
}

// DispatchCronRun sends a cron trigger and waits for the hook's response.
// The result is the hook's JSON body when parseable, otherwise a wrapper
// carrying the raw text.
func (d *Dispatcher) DispatchCronRun(ctx context.Context, jobID, message string) (json.RawMessage, error) {
	sessionKey := "hook:dashboard-cron:" + jobID
	ctx = shared.WithJobID(ctx, jobID)
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CronTimeout)
	defer cancel()
	if d.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = obs.StartClientSpan(ctx, d.cfg.Tracer, "hook.cron_run",
			obs.AttrJobID.String(jobID), obs.AttrSessionKey.String(sessionKey))
		defer span.End()
	}

	start := time.Now()
	body, _, err := d.post(ctx, hookRequest{Message: message, SessionKey: sessionKey})
	d.observe(start, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &shared.TimeoutError{SessionKey: sessionKey}
		}
		return nil, &shared.DispatchError{SessionKey: sessionKey, Err: err}
	}

	if json.Valid(body) && len(bytes.TrimSpace(body)) > 0 {
		return json.RawMessage(body), nil
	}
	wrapped, _ := json.Marshal(map[string]any{"ok": true, "raw": string(body)})
	return wrapped, nil
}

// post performs one hook call and drains the response body.
func (d *Dispatcher) post(ctx context.Context, payload hookRequest) ([]byte, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode hook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.HookURL, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("build hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.HookToken)

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (d *Dispatcher) observe(start time.Time, err error) {
	if d.cfg.Metrics == nil {
		return
	}
	d.cfg.Metrics.DispatchDuration.Record(context.Background(), time.Since(start).Seconds())
	if err != nil {
		d.cfg.Metrics.DispatchErrors.Add(context.Background(), 1)
	}
}
