package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

// ChatRepo implements store.ChatRepository with sqlx.
type ChatRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewChatRepo returns a new ChatRepo.
func NewChatRepo(db *sqlx.DB, clk clock.Clock) *ChatRepo {
	return &ChatRepo{db: db, clk: clk}
}

func (r *ChatRepo) Upsert(ctx context.Context, c *store.ChatSettings) error {
	now := r.clk.Now().UTC()
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO chat_settings (chat_id, chat_title, notify_on_ban, notify_on_unban, notify_weekly_word, games_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (chat_id) DO UPDATE
		 SET chat_title = EXCLUDED.chat_title,
		     notify_on_ban = EXCLUDED.notify_on_ban,
		     notify_on_unban = EXCLUDED.notify_on_unban,
		     notify_weekly_word = EXCLUDED.notify_weekly_word,
		     games_enabled = EXCLUDED.games_enabled,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		c.ChatID, c.ChatTitle, c.NotifyOnBan, c.NotifyOnUnban, c.NotifyWeeklyWord, c.GamesEnabled, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upserting chat settings: %w", err)
	}
	return nil
}

func (r *ChatRepo) Get(ctx context.Context, chatID int64) (*store.ChatSettings, error) {
	var c store.ChatSettings
	err := r.db.GetContext(ctx, &c, `SELECT * FROM chat_settings WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat %d: %w", chatID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting chat settings: %w", err)
	}
	return &c, nil
}

func (r *ChatRepo) ListNotify(ctx context.Context) ([]store.ChatSettings, error) {
	var chats []store.ChatSettings
	err := r.db.SelectContext(ctx, &chats,
		`SELECT * FROM chat_settings
		 WHERE notify_on_ban OR notify_on_unban OR notify_weekly_word
		 ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("listing notify chats: %w", err)
	}
	return chats, nil
}
