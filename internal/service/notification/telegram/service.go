package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
)

// Service forwards triggered alarms to one Telegram chat.
type Service struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ monitor.Sink = (*Service)(nil)

func NewService(bot *tgbotapi.BotAPI, chatID int64) *Service {
	return &Service{
		bot:    bot,
		chatID: chatID,
	}
}

func (s *Service) Publish(ctx context.Context, event string, payload any) {
	if event != monitor.EventAlarmTriggered {
		return
	}
	ev, ok := payload.(monitor.AlarmEvent)
	if !ok {
		return
	}

	text := fmt.Sprintf("🔔 %s\nPrice: $%.4f (24h %+.2f%%)", ev.Message, ev.Asset.Price, ev.Asset.Change24h)
	if _, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, text)); err != nil {
		slog.Error("failed to send telegram notification", "alarm", ev.Alarm.ID, "error", err)
	}
}
