package task

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	obs "github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
	"github.com/karem505/openclaw-agent-dashboard/internal/store"
)

// fakeDispatcher counts enqueued triggers per task.
type fakeDispatcher struct {
	mu    sync.Mutex
	tasks []Task
}

func (f *fakeDispatcher) EnqueueTask(t Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func newTestEngine(t *testing.T) (*Engine, *fakeDispatcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	col := store.NewCollection(path, func() []Task { return []Task{} }, nil)
	fd := &fakeDispatcher{}
	e := New(Config{Collection: col, Dispatcher: fd})
	return e, fd, path
}

func TestCreate_Defaults(t *testing.T) {
	e, fd, _ := newTestEngine(t)

	created, err := e.Create(CreateRequest{Title: "check disk usage"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("id not assigned")
	}
	if created.Status != StatusNew || created.Priority != PriorityMedium {
		t.Fatalf("defaults = %s/%s, want new/medium", created.Status, created.Priority)
	}
	if created.Assignee != "main" || created.Source != "dashboard" {
		t.Fatalf("assignee/source = %s/%s, want main/dashboard", created.Assignee, created.Source)
	}
	if len(created.Notes) != 0 {
		t.Fatalf("new task has %d notes, want 0", len(created.Notes))
	}
	if fd.count() != 1 {
		t.Fatalf("dispatched %d times, want exactly 1", fd.count())
	}
}

func TestCreate_InvalidEnumsFallBackSilently(t *testing.T) {
	e, fd, _ := newTestEngine(t)

	created, err := e.Create(CreateRequest{Title: "t", Status: "bogus", Priority: "urgent"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusNew || created.Priority != PriorityMedium {
		t.Fatalf("got %s/%s, want silent fallback to new/medium", created.Status, created.Priority)
	}
	if fd.count() != 1 {
		t.Fatalf("dispatched %d times, want 1", fd.count())
	}
}

func TestCreate_NonNewStatusDoesNotDispatch(t *testing.T) {
	e, fd, _ := newTestEngine(t)

	if _, err := e.Create(CreateRequest{Title: "t", Status: "done"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if fd.count() != 0 {
		t.Fatalf("dispatched %d times, want 0 for non-new status", fd.count())
	}
}

func TestCreate_EmptyTitleRejected(t *testing.T) {
	e, fd, _ := newTestEngine(t)

	_, err := e.Create(CreateRequest{Title: "   "})
	if !shared.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if fd.count() != 0 {
		t.Fatal("rejected create must not dispatch")
	}
	if got := e.List(Filter{}); len(got) != 0 {
		t.Fatalf("rejected create persisted %d tasks", len(got))
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for _, spec := range []struct{ title, status, priority string }{
		{"a", "new", "high"},
		{"b", "done", "low"},
		{"c", "new", "low"},
	} {
		if _, err := e.Create(CreateRequest{Title: spec.title, Status: spec.status, Priority: spec.priority}); err != nil {
			t.Fatal(err)
		}
	}

	all := e.List(Filter{})
	if len(all) != 3 || all[0].Title != "a" || all[2].Title != "c" {
		t.Fatalf("list order broken: %+v", all)
	}
	if got := e.List(Filter{Status: "new"}); len(got) != 2 {
		t.Fatalf("status filter = %d tasks, want 2", len(got))
	}
	if got := e.List(Filter{Status: "new", Priority: "low"}); len(got) != 1 || got[0].Title != "c" {
		t.Fatalf("combined filter = %+v, want just c", got)
	}
}

func TestPatch_StatusChangeAppendsAuditNote(t *testing.T) {
	e, _, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t"})

	st := "in-progress"
	updated, err := e.Patch(created.ID, Patch{Status: &st})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Fatalf("status = %s, want in-progress", updated.Status)
	}
	if len(updated.Notes) != 1 {
		t.Fatalf("notes = %d, want 1 audit note", len(updated.Notes))
	}
	want := `Status changed from "new" to "in-progress"`
	if updated.Notes[0].Text != want {
		t.Fatalf("note = %q, want %q", updated.Notes[0].Text, want)
	}
}

func TestPatch_SameStatusNoAuditNote(t *testing.T) {
	e, _, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t"})

	st := "new"
	updated, err := e.Patch(created.ID, Patch{Status: &st})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if len(updated.Notes) != 0 {
		t.Fatalf("same-status patch added %d notes", len(updated.Notes))
	}
}

func TestPatch_InvalidStatusAbortsWholePatch(t *testing.T) {
	e, _, path := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "original"})
	before, _ := os.ReadFile(path)

	bad := "exploded"
	newTitle := "renamed"
	_, err := e.Patch(created.ID, Patch{Title: &newTitle, Status: &bad})
	if !shared.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatal("failed patch must leave the file byte-identical")
	}
	got, _ := e.Get(created.ID)
	if got.Title != "original" {
		t.Fatalf("title = %q, partial patch applied", got.Title)
	}
}

func TestPatch_InvalidPriorityRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t"})

	bad := "critical"
	_, err := e.Patch(created.ID, Patch{Priority: &bad})
	if !shared.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestPatch_NotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)
	st := "done"
	_, err := e.Patch("nope", Patch{Status: &st})
	if !shared.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestPatch_DueDateTriState(t *testing.T) {
	e, _, _ := newTestEngine(t)
	due := "2026-09-15"
	created, err := e.Create(CreateRequest{Title: "t", DueDate: &due})
	if err != nil {
		t.Fatal(err)
	}

	// Absent leaves the due date alone.
	title := "renamed"
	patched, err := e.Patch(created.ID, Patch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if patched.DueDate == nil || *patched.DueDate != due {
		t.Fatalf("due date = %v, want untouched", patched.DueDate)
	}

	// A new value replaces it.
	later := "2026-10-01"
	ptr := &later
	patched, err = e.Patch(created.ID, Patch{DueDate: &ptr})
	if err != nil {
		t.Fatal(err)
	}
	if patched.DueDate == nil || *patched.DueDate != later {
		t.Fatalf("due date = %v, want %q", patched.DueDate, later)
	}

	// An explicit nil clears it.
	var clear *string
	patched, err = e.Patch(created.ID, Patch{DueDate: &clear})
	if err != nil {
		t.Fatal(err)
	}
	if patched.DueDate != nil {
		t.Fatalf("due date = %q, want cleared", *patched.DueDate)
	}
}

func TestAppendNote_PreservesPriorNotes(t *testing.T) {
	e, _, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t"})

	if _, err := e.AppendNote(created.ID, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AppendNote(created.ID, "second"); err != nil {
		t.Fatal(err)
	}

	got, _ := e.Get(created.ID)
	if len(got.Notes) != 2 || got.Notes[0].Text != "first" || got.Notes[1].Text != "second" {
		t.Fatalf("notes = %+v", got.Notes)
	}
}

func TestAppendNote_EmptyTextRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t"})
	if _, err := e.AppendNote(created.ID, ""); !shared.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSpawn_RunningTaskConflicts(t *testing.T) {
	e, fd, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t", Status: "in-progress"})
	dispatchedBefore := fd.count()

	_, err := e.Spawn(created.ID)
	if !shared.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if fd.count() != dispatchedBefore {
		t.Fatal("conflicting spawn must not dispatch")
	}
}

func TestSpawn_TerminalTaskResetsWithAuditTrail(t *testing.T) {
	e, fd, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t", Status: "done"})

	spawned, err := e.Spawn(created.ID)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if spawned.Status != StatusNew {
		t.Fatalf("status = %s, want new", spawned.Status)
	}
	if len(spawned.Notes) != 2 {
		t.Fatalf("notes = %d, want spawn note + audit note", len(spawned.Notes))
	}
	if spawned.Notes[0].Text != "⚡ Spawned as parallel sub-agent" {
		t.Fatalf("first note = %q", spawned.Notes[0].Text)
	}
	// The audit note records the pre-reset status.
	want := `Status changed from "done" to "new"`
	if spawned.Notes[1].Text != want {
		t.Fatalf("audit note = %q, want %q", spawned.Notes[1].Text, want)
	}
	if fd.count() != 1 {
		t.Fatalf("dispatched %d times, want 1", fd.count())
	}
}

func TestSpawn_NewTaskKeepsStatus(t *testing.T) {
	e, _, _ := newTestEngine(t)
	created, _ := e.Create(CreateRequest{Title: "t"})

	spawned, err := e.Spawn(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if spawned.Status != StatusNew || len(spawned.Notes) != 1 {
		t.Fatalf("status=%s notes=%d, want new with only the spawn note", spawned.Status, len(spawned.Notes))
	}
}

func TestSpawnBatch_PartialFailure(t *testing.T) {
	e, fd, _ := newTestEngine(t)
	a, _ := e.Create(CreateRequest{Title: "a", Status: "done"})
	b, _ := e.Create(CreateRequest{Title: "b", Status: "in-progress"})

	res, err := e.SpawnBatch([]string{a.ID, b.ID, "ghost"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Spawned != 1 || len(res.Tasks) != 1 || res.Tasks[0].ID != a.ID {
		t.Fatalf("spawned = %+v, want just %s", res.Tasks, a.ID)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("skipped = %+v, want running+missing", res.Skipped)
	}
	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.ID] = s.Reason
	}
	if reasons[b.ID] != "already running" || reasons["ghost"] != "not found" {
		t.Fatalf("skip reasons = %v", reasons)
	}
	if fd.count() != 1 {
		t.Fatalf("dispatched %d times, want 1", fd.count())
	}
}

func TestSpawnBatch_NoteWording(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a, _ := e.Create(CreateRequest{Title: "a", Status: "failed"})

	res, err := e.SpawnBatch([]string{a.ID, "ghost", "ghost2"})
	if err != nil {
		t.Fatal(err)
	}
	got := res.Tasks[0]
	if got.Notes[0].Text != "⚡ Spawned as part of parallel batch (3 tasks)" {
		t.Fatalf("batch note = %q", got.Notes[0].Text)
	}
	// The batch path resets status before writing the audit note, so the
	// note reads new-to-new. Kept for history compatibility.
	if !strings.Contains(got.Notes[1].Text, `"new" to "new"`) {
		t.Fatalf("audit note = %q", got.Notes[1].Text)
	}
}

func TestSpawnBatch_EmptyRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.SpawnBatch(nil); !shared.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestRemove(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a, _ := e.Create(CreateRequest{Title: "a"})
	b, _ := e.Create(CreateRequest{Title: "b"})

	removed, err := e.Remove(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed.ID != a.ID {
		t.Fatalf("removed %s, want %s", removed.ID, a.ID)
	}
	left := e.List(Filter{})
	if len(left) != 1 || left[0].ID != b.ID {
		t.Fatalf("remaining = %+v", left)
	}
	if _, err := e.Remove(a.ID); !shared.IsNotFound(err) {
		t.Fatalf("double remove err = %v, want not found", err)
	}
}

func TestSetClock(t *testing.T) {
	e, _, _ := newTestEngine(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return fixed })

	created, _ := e.Create(CreateRequest{Title: "t"})
	if !created.CreatedAt.Equal(fixed) || !created.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps = %v/%v, want %v", created.CreatedAt, created.UpdatedAt, fixed)
	}
}

// counterValue collects the reader and sums the named int64 counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetrics_CreateAndSpawnRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	m, err := obs.NewMetrics(meter)
	if err != nil {
		t.Fatal(err)
	}

	col := store.NewCollection(filepath.Join(t.TempDir(), "tasks.json"), func() []Task { return []Task{} }, nil)
	e := New(Config{Collection: col, Metrics: m})

	a, err := e.Create(CreateRequest{Title: "a", Status: "done"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Create(CreateRequest{Title: "b", Status: "done"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Spawn(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SpawnBatch([]string{b.ID, "ghost"}); err != nil {
		t.Fatal(err)
	}

	if got := counterValue(t, reader, "dashboard.tasks.created"); got != 2 {
		t.Fatalf("tasks.created = %d, want 2", got)
	}
	if got := counterValue(t, reader, "dashboard.tasks.spawned"); got != 2 {
		t.Fatalf("tasks.spawned = %d, want 2", got)
	}
}
