package channels

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
)

func TestFormatEvent(t *testing.T) {
	cases := []struct {
		name string
		ev   bus.Event
		want string
	}{
		{
			name: "task created",
			ev:   bus.Event{Topic: bus.TopicTaskCreated, Payload: bus.TaskEvent{Title: "ship it"}},
			want: "🆕 Task created: ship it",
		},
		{
			name: "task spawned",
			ev:   bus.Event{Topic: bus.TopicTaskSpawned, Payload: bus.TaskEvent{Title: "retry"}},
			want: "⚡ Task spawned: retry",
		},
		{
			name: "task done",
			ev:   bus.Event{Topic: bus.TopicTaskUpdated, Payload: bus.TaskEvent{Title: "report", Status: "done"}},
			want: "✅ Task done: report",
		},
		{
			name: "task failed",
			ev:   bus.Event{Topic: bus.TopicTaskUpdated, Payload: bus.TaskEvent{Title: "report", Status: "failed"}},
			want: "❌ Task failed: report",
		},
		{
			name: "intermediate status dropped",
			ev:   bus.Event{Topic: bus.TopicTaskUpdated, Payload: bus.TaskEvent{Title: "report", Status: "in-progress"}},
			want: "",
		},
		{
			name: "cron created",
			ev:   bus.Event{Topic: bus.TopicCronUpdated, Payload: bus.CronEvent{Op: "create", Name: "digest"}},
			want: "⏰ Cron job created: digest",
		},
		{
			name: "cron run",
			ev:   bus.Event{Topic: bus.TopicCronUpdated, Payload: bus.CronEvent{Op: "run", Name: "digest"}},
			want: "⏰ Cron run: digest",
		},
		{
			name: "cron delete dropped",
			ev:   bus.Event{Topic: bus.TopicCronUpdated, Payload: bus.CronEvent{Op: "delete", Name: "digest"}},
			want: "",
		},
		{
			name: "dispatch failure",
			ev:   bus.Event{Topic: bus.TopicDispatchFailed, Payload: bus.DispatchEvent{SessionKey: "hook:dashboard:t-1", Error: "timeout"}},
			want: "⚠️ Agent trigger failed for hook:dashboard:t-1: timeout",
		},
		{
			name: "unknown payload dropped",
			ev:   bus.Event{Topic: "task.created", Payload: 42},
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatEvent(tc.ev); got != tc.want {
				t.Fatalf("formatEvent = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBroadcast_FansOutAndSkipsEmpty(t *testing.T) {
	ch := NewTelegramChannel("tok", []int64{1, 2, 3}, bus.New(), slog.Default())
	var sent []int64
	ch.send = func(chatID int64, text string) error {
		sent = append(sent, chatID)
		if chatID == 2 {
			return errors.New("blocked")
		}
		return nil
	}

	ch.broadcast("")
	if len(sent) != 0 {
		t.Fatalf("empty message sent to %v", sent)
	}

	// A per-chat failure does not stop the fan-out.
	ch.broadcast("hello")
	if len(sent) != 3 {
		t.Fatalf("sent to %v, want all three chats", sent)
	}
}

func TestName(t *testing.T) {
	ch := NewTelegramChannel("tok", nil, bus.New(), slog.Default())
	if ch.Name() != "telegram" {
		t.Fatalf("name = %q", ch.Name())
	}
}
