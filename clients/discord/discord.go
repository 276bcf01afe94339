package discord

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"whalewatch/config"
)

// Client mirrors dispatched alerts and operational reports to a Discord
// channel for the team. Subscriber delivery happens over Telegram; this
// channel is observability, not product surface.
type Client struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.OpsChannelID

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord mirror disabled")
		return &Client{logger: logger, channelID: channelID}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &Client{logger: logger, channelID: channelID}
	}

	logger.Info("discord bot initialized", zap.String("channelID", channelID))

	return &Client{
		logger:    logger,
		session:   session,
		channelID: channelID,
	}
}

// SendMessage sends a plain text message to the ops channel.
func (c *Client) SendMessage(message string) {
	if c.session == nil || c.channelID == "" {
		return
	}

	if _, err := c.session.ChannelMessageSend(c.channelID, message); err != nil {
		c.logger.Error("failed to send discord message", zap.Error(err))
	}
}

// SendEmbed sends a rich embed to the ops channel.
func (c *Client) SendEmbed(embed *discordgo.MessageEmbed) {
	if c.session == nil || c.channelID == "" {
		return
	}

	if _, err := c.session.ChannelMessageSendEmbed(c.channelID, embed); err != nil {
		c.logger.Error("failed to send discord embed", zap.Error(err))
	}
}

// Close shuts down the session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
