package main

import (
	"context"
	"fmt"
	"time"

	"stockpile_manager/internal/domain/messaging"
	"stockpile_manager/internal/infra/config"
	"stockpile_manager/internal/infra/line"
	"stockpile_manager/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// messagingStack is everything tied to the selected chat platform.
type messagingStack struct {
	sender    messaging.Sender
	validator messaging.TargetValidator
	line      *line.Client // Set for the LINE provider
	bot       *telebot.Bot // Set for the Telegram provider
}

func newMessaging(cfg *config.AppConfig, log *logrus.Logger) (*messagingStack, error) {
	switch cfg.MessagingProvider {
	case config.ProviderLine:
		client, err := line.NewClient(cfg.LineChannelSecret, cfg.LineChannelAccessToken, log)
		if err != nil {
			return nil, err
		}
		return &messagingStack{sender: client, validator: line.Validator{}, line: client}, nil

	case config.ProviderTelegram:
		botLog := log.WithField("component", "telebot")
		bot, err := telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLog.WithError(err)
				if c != nil && c.Chat() != nil {
					entry = entry.WithField("chat_id", c.Chat().ID)
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		return &messagingStack{sender: telegram.NewTelebotAdapter(bot), validator: telegram.Validator{}, bot: bot}, nil

	default:
		return nil, fmt.Errorf("%w: unknown MESSAGING_PROVIDER %q", config.ErrConfig, cfg.MessagingProvider)
	}
}

// loadConfig reads the configuration and applies the check the command needs.
func loadConfig(validate func(*config.AppConfig) error) (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connectTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
