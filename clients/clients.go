package clients

import (
	"go.uber.org/zap"

	"whalewatch/clients/datafeed"
	"whalewatch/clients/discord"
	"whalewatch/clients/gamma"
	"whalewatch/clients/telegram"
	"whalewatch/config"
)

type Clients struct {
	Logger *zap.Logger

	Telegram *telegram.Client
	Discord  *discord.Client
	Gamma    *gamma.Client
	DataFeed *datafeed.Client
	Stream   *datafeed.Stream
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	c := &Clients{
		Logger:   logger,
		Telegram: telegram.NewClient(logger, cfg),
		Discord:  discord.NewClient(logger, cfg),
		Gamma:    gamma.NewClient(logger, cfg),
		DataFeed: datafeed.NewClient(logger, cfg),
	}

	// Only create the websocket stream if configured to use it.
	if cfg.Polymarket.UseWebSocket {
		c.Stream = datafeed.NewStream(logger, cfg)
	}

	return c
}

// Close shuts down every client that holds a connection.
func (c *Clients) Close() {
	if c.Stream != nil {
		_ = c.Stream.Close()
	}
	_ = c.Telegram.Close()
	_ = c.Discord.Close()
}
