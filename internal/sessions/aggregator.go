package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"
)

// ActiveThreshold is the liveness window: a session updated within it
// counts as active.
const ActiveThreshold = 30 * time.Minute

// topPerCategory caps the per-category session lists in the summary.
const topPerCategory = 10

// Entry is one classified session with derived liveness fields.
type Entry struct {
	Key           string   `json:"key"`
	Category      Category `json:"category"`
	UpdatedAt     int64    `json:"updatedAt"`
	AgeMs         int64    `json:"ageMs"`
	AgeMinutes    int64    `json:"ageMinutes"`
	IsActive      bool     `json:"isActive"`
	Model         string   `json:"model"`
	TotalTokens   int64    `json:"totalTokens"`
	ContextTokens int64    `json:"contextTokens"`
	Channel       string   `json:"channel"`
	DisplayName   string   `json:"displayName"`
	Label         string   `json:"label"`
	SessionID     string   `json:"sessionId"`

	// Subagent correlation, filled from the run registry.
	Task                string `json:"task,omitempty"`
	RequesterSessionKey string `json:"requesterSessionKey,omitempty"`
	SubagentStatus      string `json:"subagentStatus,omitempty"`

	// Hook origin tag.
	HookSource string `json:"hookSource,omitempty"`
}

// MainAgentStatus is the most-recently-updated main session's snapshot.
type MainAgentStatus struct {
	Status      string `json:"status"`
	AgeMinutes  int64  `json:"ageMinutes"`
	Model       string `json:"model"`
	TotalTokens int64  `json:"totalTokens"`
	Channel     string `json:"channel"`
}

// CategorySummary is the per-category rollup with its freshest entries.
type CategorySummary struct {
	Total    int     `json:"total"`
	Active   int     `json:"active"`
	Sessions []Entry `json:"sessions"`
}

// GroupSummary is the rollup for group conversations (no entry list).
type GroupSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Summary is the full liveness snapshot.
type Summary struct {
	TotalSessions  int              `json:"totalSessions"`
	ActiveSessions int              `json:"activeSessions"`
	MainAgent      *MainAgentStatus `json:"mainAgent"`
	Subagents      CategorySummary  `json:"subagents"`
	Hooks          CategorySummary  `json:"hooks"`
	Crons          CategorySummary  `json:"crons"`
	Groups         GroupSummary     `json:"groups"`
	Timestamp      int64            `json:"timestamp"`
}

// rawSession mirrors the externally owned session table record.
type rawSession struct {
	UpdatedAt     int64  `json:"updatedAt"`
	Model         string `json:"model"`
	TotalTokens   int64  `json:"totalTokens"`
	ContextTokens int64  `json:"contextTokens"`
	Channel       string `json:"channel"`
	Origin        struct {
		Surface string `json:"surface"`
	} `json:"origin"`
	DisplayName string `json:"displayName"`
	Label       string `json:"label"`
	SessionID   string `json:"sessionId"`
}

// rawRun mirrors the sub-agent run registry record.
type rawRun struct {
	ChildSessionKey     string `json:"childSessionKey"`
	Task                string `json:"task"`
	RequesterSessionKey string `json:"requesterSessionKey"`
	Status              string `json:"status"`
}

// Aggregator reads the external session and run-registry files.
type Aggregator struct {
	sessionsPath string
	runsPath     string
	logger       *slog.Logger

	now func() time.Time
}

// Config holds the aggregator's file locations.
type Config struct {
	SessionsPath string
	RunsPath     string
	Logger       *slog.Logger
}

// New creates an aggregator.
func New(cfg Config) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		sessionsPath: cfg.SessionsPath,
		runsPath:     cfg.RunsPath,
		logger:       logger,
		now:          time.Now,
	}
}

// SetClock overrides the aggregator's time source. Tests only.
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Summary recomputes the liveness snapshot. An unreadable session table is
// an error (the dashboard cannot render without it); a missing run registry
// just skips sub-agent correlation.
func (a *Aggregator) Summary() (Summary, error) {
	raw, err := os.ReadFile(a.sessionsPath)
	if err != nil {
		return Summary{}, fmt.Errorf("read sessions: %w", err)
	}
	var table map[string]rawSession
	if err := json.Unmarshal(raw, &table); err != nil {
		return Summary{}, fmt.Errorf("parse sessions: %w", err)
	}

	runs := a.loadRuns()
	now := a.now().UnixMilli()

	byCategory := map[Category][]Entry{}
	var all []Entry
	for key, s := range table {
		age := now - s.UpdatedAt
		channel := s.Channel
		if channel == "" {
			channel = s.Origin.Surface
		}
		entry := Entry{
			Key:           key,
			Category:      CategoryFromKey(key),
			UpdatedAt:     s.UpdatedAt,
			AgeMs:         age,
			AgeMinutes:    (age + 30000) / 60000,
			IsActive:      age < ActiveThreshold.Milliseconds(),
			Model:         s.Model,
			TotalTokens:   s.TotalTokens,
			ContextTokens: s.ContextTokens,
			Channel:       channel,
			DisplayName:   s.DisplayName,
			Label:         s.Label,
			SessionID:     s.SessionID,
		}

		switch entry.Category {
		case CategorySubagent:
			// First match in registry iteration order wins.
			for _, run := range runs {
				if run.ChildSessionKey == key {
					entry.Task = truncate(run.Task, 200)
					entry.RequesterSessionKey = run.RequesterSessionKey
					entry.SubagentStatus = run.Status
					if entry.SubagentStatus == "" {
						entry.SubagentStatus = "unknown"
					}
					break
				}
			}
		case CategoryHook:
			entry.HookSource = HookSource(key)
		}

		byCategory[entry.Category] = append(byCategory[entry.Category], entry)
		all = append(all, entry)
	}

	for cat := range byCategory {
		entries := byCategory[cat]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].UpdatedAt > entries[j].UpdatedAt })
		byCategory[cat] = entries
	}

	summary := Summary{
		TotalSessions: len(all),
		Subagents:     categorySummary(byCategory[CategorySubagent]),
		Hooks:         categorySummary(byCategory[CategoryHook]),
		Crons:         categorySummary(byCategory[CategoryCron]),
		Groups: GroupSummary{
			Total:  len(byCategory[CategoryGroup]),
			Active: countActive(byCategory[CategoryGroup]),
		},
		Timestamp: now,
	}
	summary.ActiveSessions = countActive(all)
	if mains := byCategory[CategoryMain]; len(mains) > 0 {
		m := mains[0]
		status := "idle"
		if m.IsActive {
			status = "active"
		}
		summary.MainAgent = &MainAgentStatus{
			Status:      status,
			AgeMinutes:  m.AgeMinutes,
			Model:       m.Model,
			TotalTokens: m.TotalTokens,
			Channel:     m.Channel,
		}
	}
	return summary, nil
}

// loadRuns reads the run registry; a missing or corrupt file yields nothing.
func (a *Aggregator) loadRuns() []rawRun {
	raw, err := os.ReadFile(a.runsPath)
	if err != nil {
		return nil
	}
	var doc struct {
		Runs map[string]rawRun `json:"runs"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		a.logger.Debug("run registry parse failed", "path", a.runsPath, "error", err)
		return nil
	}
	out := make([]rawRun, 0, len(doc.Runs))
	for _, r := range doc.Runs {
		out = append(out, r)
	}
	return out
}

func categorySummary(entries []Entry) CategorySummary {
	top := entries
	if len(top) > topPerCategory {
		top = top[:topPerCategory]
	}
	if top == nil {
		top = []Entry{}
	}
	return CategorySummary{
		Total:    len(entries),
		Active:   countActive(entries),
		Sessions: top,
	}
}

func countActive(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if e.IsActive {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
