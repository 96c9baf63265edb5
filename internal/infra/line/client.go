package line

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"stockpile_manager/internal/domain/messaging"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/sirupsen/logrus"
)

const (
	// Platform limits of the Messaging API.
	maxTextLength        = 5000
	maxMessagesPerCall   = 5
	maxMulticastReceiver = 500
)

var (
	userIDPattern  = regexp.MustCompile(`^U[0-9a-f]{32}$`)
	groupIDPattern = regexp.MustCompile(`^C[0-9a-f]{32}$`)
)

// Client sends notifications through the LINE Messaging API and verifies
// webhook signatures with the channel secret.
type Client struct {
	bot *linebot.Client
	log *logrus.Entry
}

func NewClient(channelSecret, channelToken string, log *logrus.Logger, opts ...linebot.ClientOption) (*Client, error) {
	bot, err := linebot.New(channelSecret, channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE client: %w", err)
	}
	return &Client{bot: bot, log: log.WithField("component", "line")}, nil
}

// Send pushes text to a group, or multicasts it to individual users. A long
// text is split into bubbles and sent in as many calls as needed, at most
// maxMessagesPerCall bubbles each. Any failed call fails the whole send.
func (c *Client) Send(ctx context.Context, target messaging.Target, text string) error {
	batches := messageBatches(text)

	switch target.Kind {
	case messaging.TargetGroup:
		for _, msgs := range batches {
			if _, err := c.bot.PushMessage(target.GroupID, msgs...).WithContext(ctx).Do(); err != nil {
				return fmt.Errorf("line push to group: %w", err)
			}
		}
		return nil
	case messaging.TargetIndividual:
		for start := 0; start < len(target.UserIDs); start += maxMulticastReceiver {
			end := min(start+maxMulticastReceiver, len(target.UserIDs))
			for _, msgs := range batches {
				if _, err := c.bot.Multicast(target.UserIDs[start:end], msgs...).WithContext(ctx).Do(); err != nil {
					return fmt.Errorf("line multicast to %d user(s): %w", end-start, err)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported target kind %q", target.Kind)
	}
}

// messageBatches splits text into text bubbles grouped per API call.
func messageBatches(text string) [][]linebot.SendingMessage {
	chunks := splitText(text, maxTextLength)
	batches := make([][]linebot.SendingMessage, 0, (len(chunks)+maxMessagesPerCall-1)/maxMessagesPerCall)
	for start := 0; start < len(chunks); start += maxMessagesPerCall {
		end := min(start+maxMessagesPerCall, len(chunks))
		msgs := make([]linebot.SendingMessage, 0, end-start)
		for _, chunk := range chunks[start:end] {
			msgs = append(msgs, linebot.NewTextMessage(chunk))
		}
		batches = append(batches, msgs)
	}
	return batches
}

// splitText cuts text at line boundaries into chunks of at most limit runes.
// A single line longer than limit is cut mid-line.
func splitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	flush := func() {
		if chunk := strings.TrimSuffix(cur.String(), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		cur.Reset()
		n = 0
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		if n+len(runes) > limit {
			flush()
		}
		cur.WriteString(string(runes))
		n += len(runes)
	}
	flush()
	return chunks
}

// Validator checks LINE identifiers before they are stored as targets.
type Validator struct{}

func (Validator) ValidateUserID(id string) error {
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("LINE user id must look like U followed by 32 hex characters, got %q", id)
	}
	return nil
}

func (Validator) ValidateGroupID(id string) error {
	if !groupIDPattern.MatchString(id) {
		return fmt.Errorf("LINE group id must look like C followed by 32 hex characters, got %q", id)
	}
	return nil
}
