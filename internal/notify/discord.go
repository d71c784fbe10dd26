package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
)

// DiscordNotifier posts approval events to an operator channel.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
	logger    *zap.Logger
}

// NewDiscordNotifier opens a Discord session for the bot token. The session
// is send-only; no gateway intents are needed.
func NewDiscordNotifier(token, channelID string, logger *zap.Logger) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordNotifier{
		session:   session,
		channelID: channelID,
		logger:    logger,
	}, nil
}

func (n *DiscordNotifier) Name() string { return "discord" }

// Notify posts one event as a channel message.
func (n *DiscordNotifier) Notify(ctx context.Context, ev approval.Event) error {
	_, err := n.session.ChannelMessageSend(n.channelID, formatEvent(ev),
		discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close shuts down the session.
func (n *DiscordNotifier) Close() error {
	return n.session.Close()
}
