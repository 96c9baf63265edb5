// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands wires the commands people use to find the chat id they
// paste into the family notification settings.
func RegisterBotCommands(b *telebot.Bot, baseLogger *logrus.Entry) {
	log := baseLogger.WithField("handler_group", "registration")

	reply := func(command string) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			chat := c.Chat()
			if chat == nil {
				return nil
			}
			log.WithFields(logrus.Fields{
				"command":   command,
				"chat_id":   chat.ID,
				"chat_type": chat.Type,
			}).Info("Processing registration command")
			return c.Send(describeChat(chat))
		}
	}

	b.Handle("/start", reply("/start"))
	b.Handle("/id", reply("/id"))
	b.Handle("/help", func(c telebot.Context) error {
		return c.Send(helpText)
	})
}

const helpText = "備蓄品の期限が近づくとこのチャットにお知らせします。\n" +
	"/id でこのチャットのIDを表示します。アプリの通知設定に貼り付けてください。"

func describeChat(chat *telebot.Chat) string {
	switch chat.Type {
	case telebot.ChatGroup, telebot.ChatSuperGroup:
		return fmt.Sprintf("このグループのIDは %d です。\nアプリの「グループ通知先」に設定してください。", chat.ID)
	default:
		return fmt.Sprintf("あなたのチャットIDは %d です。\nアプリの「個人通知先」に設定してください。", chat.ID)
	}
}
