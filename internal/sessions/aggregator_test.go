package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCategoryFromKey(t *testing.T) {
	cases := []struct {
		key  string
		want Category
	}{
		{"agent:main", CategoryMain},
		{"agent:subagent:abc123", CategorySubagent},
		{"agent:main:hook:dashboard:tid", CategoryHook},
		{"agent:main:cron:job-1", CategoryCron},
		{"telegram:group:-100987", CategoryGroup},
		// A ":main" suffix wins over inner markers.
		{"agent:subagent:main", CategoryMain},
	}
	for _, c := range cases {
		if got := CategoryFromKey(c.key); got != c.want {
			t.Errorf("CategoryFromKey(%q) = %s, want %s", c.key, got, c.want)
		}
	}
}

func TestHookSource(t *testing.T) {
	if got := HookSource("agent:main:hook:dashboard:tid"); got != "dashboard" {
		t.Fatalf("got %q, want dashboard", got)
	}
	if got := HookSource("agent:main:hook:webhook:xyz"); got != "external" {
		t.Fatalf("got %q, want external", got)
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestAggregator(t *testing.T, sessions map[string]any, runs map[string]any) *Aggregator {
	t.Helper()
	dir := t.TempDir()
	sessionsPath := filepath.Join(dir, "sessions.json")
	runsPath := filepath.Join(dir, "runs.json")
	writeJSON(t, sessionsPath, sessions)
	if runs != nil {
		writeJSON(t, runsPath, map[string]any{"runs": runs})
	}
	return New(Config{SessionsPath: sessionsPath, RunsPath: runsPath})
}

// nowMs is an arbitrary fixed reference instant.
const nowMs = int64(1_760_000_000_000)

func fixedClock(a *Aggregator) {
	a.SetClock(func() time.Time { return time.UnixMilli(nowMs) })
}

func TestSummary_ActiveThreshold(t *testing.T) {
	a := newTestAggregator(t, map[string]any{
		"agent:subagent:fresh": map[string]any{"updatedAt": nowMs - 5*60*1000, "model": "m"},
		"agent:subagent:stale": map[string]any{"updatedAt": nowMs - 40*60*1000, "model": "m"},
	}, nil)
	fixedClock(a)

	s, err := a.Summary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.TotalSessions != 2 || s.ActiveSessions != 1 {
		t.Fatalf("total=%d active=%d, want 2/1", s.TotalSessions, s.ActiveSessions)
	}
	if s.Subagents.Total != 2 || s.Subagents.Active != 1 {
		t.Fatalf("subagents = %+v", s.Subagents)
	}
	for _, e := range s.Subagents.Sessions {
		if e.Key == "agent:subagent:fresh" {
			if !e.IsActive || e.AgeMinutes != 5 {
				t.Fatalf("fresh entry = %+v", e)
			}
		}
		if e.Key == "agent:subagent:stale" && e.IsActive {
			t.Fatal("stale entry marked active")
		}
	}
}

func TestSummary_MainAgentStatus(t *testing.T) {
	a := newTestAggregator(t, map[string]any{
		"agent:main": map[string]any{
			"updatedAt":   nowMs - 2*60*1000,
			"model":       "claude-x",
			"totalTokens": 4200,
			"channel":     "telegram",
		},
	}, nil)
	fixedClock(a)

	s, err := a.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if s.MainAgent == nil {
		t.Fatal("mainAgent missing")
	}
	if s.MainAgent.Status != "active" || s.MainAgent.Model != "claude-x" || s.MainAgent.TotalTokens != 4200 {
		t.Fatalf("mainAgent = %+v", s.MainAgent)
	}
}

func TestSummary_IdleMainAndChannelFallback(t *testing.T) {
	a := newTestAggregator(t, map[string]any{
		"agent:main": map[string]any{
			"updatedAt": nowMs - 90*60*1000,
			"origin":    map[string]any{"surface": "discord"},
		},
	}, nil)
	fixedClock(a)

	s, err := a.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if s.MainAgent.Status != "idle" {
		t.Fatalf("status = %q, want idle", s.MainAgent.Status)
	}
	if s.MainAgent.Channel != "discord" {
		t.Fatalf("channel = %q, want origin.surface fallback", s.MainAgent.Channel)
	}
}

func TestSummary_SubagentCorrelation(t *testing.T) {
	a := newTestAggregator(t, map[string]any{
		"agent:subagent:abc": map[string]any{"updatedAt": nowMs},
		"agent:subagent:xyz": map[string]any{"updatedAt": nowMs},
	}, map[string]any{
		"run-1": map[string]any{
			"childSessionKey":     "agent:subagent:abc",
			"task":                "research the quarterly numbers",
			"requesterSessionKey": "agent:main",
			"status":              "running",
		},
	})
	fixedClock(a)

	s, err := a.Summary()
	if err != nil {
		t.Fatal(err)
	}
	byKey := map[string]Entry{}
	for _, e := range s.Subagents.Sessions {
		byKey[e.Key] = e
	}
	correlated := byKey["agent:subagent:abc"]
	if correlated.Task != "research the quarterly numbers" || correlated.SubagentStatus != "running" {
		t.Fatalf("correlated = %+v", correlated)
	}
	if correlated.RequesterSessionKey != "agent:main" {
		t.Fatalf("requester = %q", correlated.RequesterSessionKey)
	}
	uncorrelated := byKey["agent:subagent:xyz"]
	if uncorrelated.Task != "" || uncorrelated.SubagentStatus != "" {
		t.Fatalf("uncorrelated = %+v", uncorrelated)
	}
}

func TestSummary_HookSourceTagging(t *testing.T) {
	a := newTestAggregator(t, map[string]any{
		"agent:main:hook:dashboard:tid-1": map[string]any{"updatedAt": nowMs},
		"agent:main:hook:github:push":     map[string]any{"updatedAt": nowMs},
	}, nil)
	fixedClock(a)

	s, err := a.Summary()
	if err != nil {
		t.Fatal(err)
	}
	sources := map[string]string{}
	for _, e := range s.Hooks.Sessions {
		sources[e.Key] = e.HookSource
	}
	if sources["agent:main:hook:dashboard:tid-1"] != "dashboard" {
		t.Fatalf("sources = %v", sources)
	}
	if sources["agent:main:hook:github:push"] != "external" {
		t.Fatalf("sources = %v", sources)
	}
}

func TestSummary_TopTenPerCategory(t *testing.T) {
	table := map[string]any{}
	for i := 0; i < 15; i++ {
		table["agent:subagent:"+string(rune('a'+i))] = map[string]any{
			"updatedAt": nowMs - int64(i)*1000,
		}
	}
	a := newTestAggregator(t, table, nil)
	fixedClock(a)

	s, err := a.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if s.Subagents.Total != 15 {
		t.Fatalf("total = %d", s.Subagents.Total)
	}
	if len(s.Subagents.Sessions) != 10 {
		t.Fatalf("sessions listed = %d, want 10", len(s.Subagents.Sessions))
	}
	// Newest first.
	if s.Subagents.Sessions[0].UpdatedAt < s.Subagents.Sessions[9].UpdatedAt {
		t.Fatal("sessions not sorted newest first")
	}
}

func TestSummary_MissingSessionsFileErrors(t *testing.T) {
	a := New(Config{SessionsPath: filepath.Join(t.TempDir(), "absent.json")})
	if _, err := a.Summary(); err == nil {
		t.Fatal("missing session table must error")
	}
}

func TestSummary_AgeMinutesRounding(t *testing.T) {
	a := newTestAggregator(t, map[string]any{
		// 90 seconds old rounds to 2 minutes.
		"agent:main": map[string]any{"updatedAt": nowMs - 90*1000},
	}, nil)
	fixedClock(a)

	s, err := a.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if s.MainAgent.AgeMinutes != 2 {
		t.Fatalf("ageMinutes = %d, want 2", s.MainAgent.AgeMinutes)
	}
}
