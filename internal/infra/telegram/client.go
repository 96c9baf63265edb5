// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"stockpile_manager/internal/domain/messaging"

	"gopkg.in/telebot.v3"
)

// messenger is the part of *telebot.Bot the adapter needs.
type messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements messaging.Sender using the gopkg.in/telebot.v3 library.
// Targets are Telegram chat ids in decimal form.
type TelebotAdapter struct {
	bot messenger
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// Send delivers text to the group chat, or to every individual chat. Telegram
// has no multicast, so an individual target fails if any single chat fails.
func (tba *TelebotAdapter) Send(ctx context.Context, target messaging.Target, text string) error {
	switch target.Kind {
	case messaging.TargetGroup:
		return tba.sendTo(target.GroupID, text)
	case messaging.TargetIndividual:
		var errs []error
		for _, id := range target.UserIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := tba.sendTo(id, text); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("unsupported target kind %q", target.Kind)
	}
}

func (tba *TelebotAdapter) sendTo(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	if _, err := tba.bot.Send(telebot.ChatID(id), text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram send to %d: %w", id, err)
	}
	return nil
}

// Validator checks Telegram chat ids. Private chats have positive ids, groups
// and supergroups negative ones.
type Validator struct{}

func (Validator) ValidateUserID(id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("telegram user chat id must be a positive integer, got %q", id)
	}
	return nil
}

func (Validator) ValidateGroupID(id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n >= 0 {
		return fmt.Errorf("telegram group chat id must be a negative integer, got %q", id)
	}
	return nil
}
