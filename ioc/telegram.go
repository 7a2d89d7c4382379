package ioc

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/viper"
)

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// InitTelegramBot returns nil when no token is configured, the notifier is
// optional.
func InitTelegramBot() (*tgbotapi.BotAPI, int64) {
	var cfg TelegramConfig
	if err := viper.UnmarshalKey("notification.telegram", &cfg); err != nil {
		panic(err)
	}
	if cfg.Token == "" {
		return nil, 0
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		panic(err)
	}
	return bot, cfg.ChatID
}
