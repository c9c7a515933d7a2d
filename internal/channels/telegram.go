package channels

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
)

// TelegramChannel announces task and cron lifecycle events to a set of
// chats. It is outbound-only: incoming messages are ignored.
type TelegramChannel struct {
	token    string
	chatIDs  []int64
	eventBus *bus.Bus
	logger   *slog.Logger
	bot      *tgbotapi.BotAPI

	// send is swapped out in tests.
	send func(chatID int64, text string) error
}

// NewTelegramChannel creates a new Telegram notifier.
func NewTelegramChannel(token string, chatIDs []int64, eventBus *bus.Bus, logger *slog.Logger) *TelegramChannel {
	t := &TelegramChannel{
		token:    token,
		chatIDs:  chatIDs,
		eventBus: eventBus,
		logger:   logger,
	}
	t.send = t.sendMessage
	return t
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Start connects the bot and forwards bus events until the context ends.
func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	t.logger.Info("telegram notifier started", "user", t.bot.Self.UserName)

	taskSub := t.eventBus.Subscribe("task.")
	cronSub := t.eventBus.Subscribe("cron.")
	dispatchSub := t.eventBus.Subscribe(bus.TopicDispatchFailed)
	defer func() {
		t.eventBus.Unsubscribe(taskSub)
		t.eventBus.Unsubscribe(cronSub)
		t.eventBus.Unsubscribe(dispatchSub)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-taskSub.Ch():
			t.broadcast(formatEvent(ev))
		case ev := <-cronSub.Ch():
			t.broadcast(formatEvent(ev))
		case ev := <-dispatchSub.Ch():
			t.broadcast(formatEvent(ev))
		}
	}
}

// broadcast fans a message out to every configured chat. Empty messages are
// skipped.
func (t *TelegramChannel) broadcast(text string) {
	if text == "" {
		return
	}
	for _, chatID := range t.chatIDs {
		if err := t.send(chatID, text); err != nil {
			t.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
		}
	}
}

func (t *TelegramChannel) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := t.bot.Send(msg)
	return err
}

// formatEvent renders a bus event as a short human-readable line. Topics
// without a rendering return "" and are dropped.
func formatEvent(ev bus.Event) string {
	switch p := ev.Payload.(type) {
	case bus.TaskEvent:
		switch ev.Topic {
		case bus.TopicTaskCreated:
			return fmt.Sprintf("🆕 Task created: %s", p.Title)
		case bus.TopicTaskSpawned:
			return fmt.Sprintf("⚡ Task spawned: %s", p.Title)
		case bus.TopicTaskUpdated:
			if p.Status == "done" {
				return fmt.Sprintf("✅ Task done: %s", p.Title)
			}
			if p.Status == "failed" {
				return fmt.Sprintf("❌ Task failed: %s", p.Title)
			}
			return ""
		default:
			return ""
		}
	case bus.CronEvent:
		switch p.Op {
		case "run":
			return fmt.Sprintf("⏰ Cron run: %s", p.Name)
		case "create":
			return fmt.Sprintf("⏰ Cron job created: %s", p.Name)
		default:
			return ""
		}
	case bus.DispatchEvent:
		if ev.Topic == bus.TopicDispatchFailed {
			return fmt.Sprintf("⚠️ Agent trigger failed for %s: %s", p.SessionKey, p.Error)
		}
		return ""
	default:
		return ""
	}
}
