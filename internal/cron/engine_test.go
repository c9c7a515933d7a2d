package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	obs "github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
	"github.com/karem505/openclaw-agent-dashboard/internal/store"
)

type fakeCronDispatcher struct {
	jobIDs   []string
	messages []string
	result   json.RawMessage
	err      error
}

func (f *fakeCronDispatcher) DispatchCronRun(_ context.Context, jobID, message string) (json.RawMessage, error) {
	f.jobIDs = append(f.jobIDs, jobID)
	f.messages = append(f.messages, message)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeReloader struct {
	signals int
}

func (f *fakeReloader) SignalReload(context.Context) { f.signals++ }

func newTestCronEngine(t *testing.T) (*Engine, *fakeCronDispatcher, *fakeReloader, string) {
	t.Helper()
	dir := t.TempDir()
	col := store.NewCollection(filepath.Join(dir, "jobs.json"), SeedStore, nil)
	fd := &fakeCronDispatcher{result: json.RawMessage(`{"ok":true}`)}
	fr := &fakeReloader{}
	runsDir := filepath.Join(dir, "runs")
	e := New(Config{Collection: col, RunsDir: runsDir, Dispatcher: fd, Reload: fr})
	return e, fd, fr, runsDir
}

func TestCreate_DefaultsAndReloadSignal(t *testing.T) {
	e, _, fr, _ := newTestCronEngine(t)

	job, err := e.Create(CreateRequest{
		Name:     "Daily digest",
		Schedule: json.RawMessage(`{"kind":"cron","expr":"0 8 * * *"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.ID == "" || !job.Enabled {
		t.Fatalf("job = %+v, want enabled with id", job)
	}
	if job.AgentID != "main" || job.SessionTarget != "isolated" || job.WakeMode != "now" {
		t.Fatalf("defaults = %s/%s/%s", job.AgentID, job.SessionTarget, job.WakeMode)
	}
	if string(job.Payload) != `{"kind":"agentTurn","message":""}` {
		t.Fatalf("payload default = %s", job.Payload)
	}
	if job.State.NextRunAtMs != nil {
		t.Fatal("engine must not compute nextRunAtMs")
	}
	if fr.signals != 1 {
		t.Fatalf("reload signals = %d, want 1", fr.signals)
	}

	jobs, version := e.List()
	if len(jobs) != 1 || version != 1 {
		t.Fatalf("list = %d jobs version %d", len(jobs), version)
	}
}

func TestCreate_Validation(t *testing.T) {
	e, _, fr, _ := newTestCronEngine(t)

	if _, err := e.Create(CreateRequest{Schedule: json.RawMessage(`{}`)}); !shared.IsValidation(err) {
		t.Fatalf("missing name err = %v", err)
	}
	if _, err := e.Create(CreateRequest{Name: "x"}); !shared.IsValidation(err) {
		t.Fatalf("missing schedule err = %v", err)
	}
	if fr.signals != 0 {
		t.Fatal("rejected create must not signal reload")
	}
}

func TestCreate_ExplicitDisabled(t *testing.T) {
	e, _, _, _ := newTestCronEngine(t)
	disabled := false
	job, err := e.Create(CreateRequest{
		Name:     "paused",
		Enabled:  &disabled,
		Schedule: json.RawMessage(`{"kind":"interval","ms":60000}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.Enabled {
		t.Fatal("explicit enabled=false ignored")
	}
}

func TestUpdate_ScheduleChangeClearsNextRun(t *testing.T) {
	e, _, _, _ := newTestCronEngine(t)
	job, _ := e.Create(CreateRequest{Name: "j", Schedule: json.RawMessage(`{"expr":"old"}`)})

	// Simulate the scheduler having stamped runtime state.
	next := int64(1900000000000)
	err := e.col.Update(func(doc *Store) error {
		findJob(doc.Jobs, job.ID).State.NextRunAtMs = &next
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// A name-only patch keeps the state.
	name := "renamed"
	updated, err := e.Update(job.ID, UpdateRequest{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if updated.State.NextRunAtMs == nil {
		t.Fatal("name patch must not clear nextRunAtMs")
	}

	// A schedule change clears it.
	updated, err = e.Update(job.ID, UpdateRequest{Schedule: json.RawMessage(`{"expr":"new"}`)})
	if err != nil {
		t.Fatal(err)
	}
	if updated.State.NextRunAtMs != nil {
		t.Fatal("schedule change must clear nextRunAtMs")
	}
	if string(updated.Schedule) != `{"expr":"new"}` {
		t.Fatalf("schedule = %s", updated.Schedule)
	}
}

func TestStatus_Summary(t *testing.T) {
	e, _, _, _ := newTestCronEngine(t)
	a, _ := e.Create(CreateRequest{Name: "a", Schedule: json.RawMessage(`{}`)})
	b, _ := e.Create(CreateRequest{Name: "b", Schedule: json.RawMessage(`{}`)})
	disabled := false
	if _, err := e.Create(CreateRequest{Name: "c", Enabled: &disabled, Schedule: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}

	e.SetClock(func() time.Time { return time.UnixMilli(1000) })
	soon, later := int64(5000), int64(9000)
	err := e.col.Update(func(doc *Store) error {
		findJob(doc.Jobs, a.ID).State.NextRunAtMs = &later
		findJob(doc.Jobs, b.ID).State.NextRunAtMs = &soon
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	s := e.Status()
	if s.Total != 3 || s.Enabled != 2 || s.Disabled != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.NextRunAtMs == nil || *s.NextRunAtMs != soon {
		t.Fatalf("nextRunAtMs = %v, want %d", s.NextRunAtMs, soon)
	}
	if s.NextRunIn == nil || *s.NextRunIn != 4000 {
		t.Fatalf("nextRunIn = %v, want 4000", s.NextRunIn)
	}
}

func TestRuns_LimitOrderingAndCorruptLines(t *testing.T) {
	e, _, _, runsDir := newTestCronEngine(t)
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lines := []string{
		`{"ts":100,"status":"ok","durationMs":5}`,
		`{broken json`,
		`{"ts":300,"status":"error","durationMs":9}`,
		`{"ts":200,"status":"ok","durationMs":7}`,
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(filepath.Join(runsDir, "job-1.jsonl"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	runs := e.Runs("job-1", 2)
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].TimestampMs() != 300 || runs[1].TimestampMs() != 200 {
		t.Fatalf("order = %d, %d, want newest first", runs[0].TimestampMs(), runs[1].TimestampMs())
	}
	// Extra fields from the scheduler survive untouched.
	if runs[0]["status"] != "error" {
		t.Fatalf("status = %v", runs[0]["status"])
	}
}

func TestRuns_MissingLogIsEmpty(t *testing.T) {
	e, _, _, _ := newTestCronEngine(t)
	if got := e.Runs("nothing", 0); got == nil || len(got) != 0 {
		t.Fatalf("runs = %v, want empty non-nil", got)
	}
}

func TestRunNow_DispatchesPayloadMessage(t *testing.T) {
	e, fd, _, _ := newTestCronEngine(t)
	job, _ := e.Create(CreateRequest{
		Name:     "digest",
		Schedule: json.RawMessage(`{}`),
		Payload:  json.RawMessage(`{"kind":"agentTurn","message":"send the daily digest"}`),
	})

	result, err := e.RunNow(t.Context(), job.ID)
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("result = %s", result)
	}
	if len(fd.jobIDs) != 1 || fd.jobIDs[0] != job.ID {
		t.Fatalf("dispatched jobs = %v", fd.jobIDs)
	}
	if fd.messages[0] != "send the daily digest" {
		t.Fatalf("message = %q", fd.messages[0])
	}
}

func TestRunNow_Errors(t *testing.T) {
	e, fd, _, _ := newTestCronEngine(t)
	if _, err := e.RunNow(t.Context(), "ghost"); !shared.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}

	job, _ := e.Create(CreateRequest{Name: "j", Schedule: json.RawMessage(`{}`)})
	fd.err = fmt.Errorf("hook unreachable")
	if _, err := e.RunNow(t.Context(), job.ID); err == nil {
		t.Fatal("dispatcher error must propagate")
	}
}

func TestRemove(t *testing.T) {
	e, _, fr, _ := newTestCronEngine(t)
	job, _ := e.Create(CreateRequest{Name: "j", Schedule: json.RawMessage(`{}`)})
	signalsBefore := fr.signals

	removed, err := e.Remove(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed.ID != job.ID {
		t.Fatalf("removed = %s", removed.ID)
	}
	if jobs, _ := e.List(); len(jobs) != 0 {
		t.Fatalf("jobs left = %d", len(jobs))
	}
	if fr.signals != signalsBefore+1 {
		t.Fatal("remove must signal reload")
	}
	if _, err := e.Remove(job.ID); !shared.IsNotFound(err) {
		t.Fatalf("double remove err = %v", err)
	}
}

func TestRunNow_RecordsRunCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	m, err := obs.NewMetrics(meter)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	col := store.NewCollection(filepath.Join(dir, "jobs.json"), SeedStore, nil)
	fd := &fakeCronDispatcher{result: json.RawMessage(`{"ok":true}`)}
	e := New(Config{
		Collection: col,
		RunsDir:    filepath.Join(dir, "runs"),
		Dispatcher: fd,
		Reload:     &fakeReloader{},
		Metrics:    m,
	})

	job, err := e.Create(CreateRequest{
		Name:     "counted",
		Schedule: json.RawMessage(`{"kind":"cron","expr":"0 8 * * *"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RunNow(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RunNow(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "dashboard.cron.runs" {
				continue
			}
			sum, ok := mt.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("cron.runs is not an int64 sum")
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 2 {
		t.Fatalf("cron.runs = %d, want 2", total)
	}
}
