package line

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/sirupsen/logrus"
)

// WebhookHandler answers LINE platform callbacks. It is used to discover the
// user and group ids to configure as notification targets: a text message
// gets a reply with the sender's ids. Once the signature is valid the
// platform always receives 200.
func (c *Client) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			reply(w, http.StatusOK, `{"message":"LINE webhook endpoint is ready"}`)
			return
		}

		events, err := c.bot.ParseRequest(r)
		if err != nil {
			if errors.Is(err, linebot.ErrInvalidSignature) {
				c.log.Warn("Rejected webhook with invalid signature")
				reply(w, http.StatusBadRequest, `{"error":"invalid signature"}`)
				return
			}
			c.log.WithError(err).Error("Failed to parse webhook body")
			reply(w, http.StatusBadRequest, `{"error":"invalid request"}`)
			return
		}

		for _, event := range events {
			c.handleEvent(r, event)
		}
		reply(w, http.StatusOK, `{"status":"ok"}`)
	})
}

func (c *Client) handleEvent(r *http.Request, event *linebot.Event) {
	if event.Source == nil {
		return
	}
	log := c.log.WithFields(logrus.Fields{
		"event_type":  event.Type,
		"source_type": event.Source.Type,
		"user_id":     event.Source.UserID,
	})
	if event.Source.Type == linebot.EventSourceTypeGroup {
		log = log.WithField("group_id", event.Source.GroupID)
	}
	log.Info("Webhook event received")

	if event.Type != linebot.EventTypeMessage || event.ReplyToken == "" {
		return
	}
	if _, ok := event.Message.(*linebot.TextMessage); !ok {
		return
	}

	_, err := c.bot.ReplyMessage(event.ReplyToken, linebot.NewTextMessage(describeSource(event.Source))).
		WithContext(r.Context()).Do()
	if err != nil {
		log.WithError(err).Warn("Failed to reply with source ids")
	}
}

func describeSource(src *linebot.EventSource) string {
	if src.Type == linebot.EventSourceTypeGroup {
		return fmt.Sprintf("このグループのIDは\n%s\nです。アプリの「グループ通知先」に設定してください。", src.GroupID)
	}
	return fmt.Sprintf("あなたのユーザーIDは\n%s\nです。アプリの「個人通知先」に設定してください。", src.UserID)
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
