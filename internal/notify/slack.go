package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
)

// SlackNotifier posts approval events to an operator channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlackNotifier creates a notifier posting to the given channel.
// botToken is the Bot User OAuth Token (xoxb-...).
func NewSlackNotifier(botToken, channel string, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
		logger:  logger,
	}
}

func (n *SlackNotifier) Name() string { return "slack" }

// Notify posts one event as a channel message.
func (n *SlackNotifier) Notify(ctx context.Context, ev approval.Event) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(formatEvent(ev), false),
	)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

func formatEvent(ev approval.Event) string {
	switch ev.Type {
	case approval.EventRequested:
		return fmt.Sprintf("*Approval needed*: `%s` in session `%s` (request `%s`)",
			ev.ToolName, ev.SessionID, ev.ApprovalID)
	default:
		msg := fmt.Sprintf("*Approval %s*: `%s` (request `%s`)", ev.Status, ev.ToolName, ev.ApprovalID)
		if ev.Actor != "" {
			msg += fmt.Sprintf(" by %s", ev.Actor)
		}
		if ev.Reason != "" {
			msg += fmt.Sprintf(": %s", ev.Reason)
		}
		return msg
	}
}
