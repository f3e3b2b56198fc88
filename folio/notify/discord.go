package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const discordHistoryLimit = 50

// discordAPI is the slice of *discordgo.Session the notifier uses.
type discordAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Discord posts to a channel through the bot REST API and reads replies after
// the sent message.
type Discord struct {
	api        discordAPI
	channelID  string
	waitUserID string
	logger     zerolog.Logger
}

// NewDiscord creates a Discord notifier from bot settings.
func NewDiscord(cfg config.DiscordConfig, logger zerolog.Logger) (*Discord, error) {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil, errors.New("discord notifier requires token and channel_id")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return newDiscord(session, cfg, logger), nil
}

func newDiscord(api discordAPI, cfg config.DiscordConfig, logger zerolog.Logger) *Discord {
	return &Discord{
		api:        api,
		channelID:  cfg.ChannelID,
		waitUserID: cfg.WaitUserID,
		logger:     logger.With().Str("channel", "discord").Logger(),
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, text string) (Receipt, error) {
	msg, err := d.api.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: discord send: %v", ErrSideChannel, err)
	}
	d.logger.Info().Str("message_id", msg.ID).Msg("message sent")
	return Receipt{MessageID: msg.ID, ChannelID: msg.ChannelID, SentAt: msg.Timestamp}, nil
}

func (d *Discord) Replies(ctx context.Context, since Receipt) ([]Reply, error) {
	msgs, err := d.api.ChannelMessages(d.channelID, discordHistoryLimit, "", since.MessageID, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: discord history: %v", ErrSideChannel, err)
	}

	replies := make([]Reply, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil || m.Author.Bot {
			continue
		}
		if d.waitUserID != "" && m.Author.ID != d.waitUserID {
			continue
		}
		replies = append(replies, Reply{ID: m.ID, Author: m.Author.Username, Content: m.Content, SentAt: m.Timestamp})
	}
	return newer(replies, since), nil
}

var _ Notifier = (*Discord)(nil)
