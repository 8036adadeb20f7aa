// Package bot wraps the Telegram session and message handlers.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkuznetsov/banword-bot/internal/ban"
	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/economy"
	"github.com/mkuznetsov/banword-bot/internal/lottery"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/words"
)

// Bot wraps the Telegram session and update loop.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      config.TelegramConfig
	logger   *slog.Logger
	handlers *Handlers
	done     chan struct{}
}

// NewAPI opens a Telegram session. It is separate from New so the caller
// can hand the session to a Notifier before the managers that depend on it
// are built.
func NewAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram session: %w", err)
	}
	api.Debug = cfg.Debug
	return api, nil
}

// New creates a new Bot instance on an existing session.
func New(api *tgbotapi.BotAPI, cfg config.TelegramConfig, eco *economy.Manager, bans *ban.Manager, rotator *lottery.Rotator, cache *words.Cache, wordRepo store.WordRepository, chats store.ChatRepository, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Bot {
	handlers := NewHandlers(api, cfg, eco, bans, rotator, cache, wordRepo, chats, logger, tp, clk)

	return &Bot{
		api:      api,
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
		done:     make(chan struct{}),
	}
}

// Start begins long-polling for updates and dispatching them. It returns
// once the update loop is running.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	b.logger.InfoContext(ctx, "bot is ready", slog.String("user", b.api.Self.UserName))

	go func() {
		defer close(b.done)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				b.handlers.HandleUpdate(ctx, update)
			}
		}
	}()
	return nil
}

// Stop shuts down the update loop and waits for in-flight handling to end.
func (b *Bot) Stop() error {
	b.api.StopReceivingUpdates()
	<-b.done
	return nil
}
