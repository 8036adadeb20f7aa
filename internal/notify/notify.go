// Package notify defines the outbound notification seam. The core emits
// events here; the bot layer renders them to Telegram chats.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kind identifies a notification event.
type Kind string

const (
	BanApplied        Kind = "ban_applied"
	BanLifted         Kind = "ban_lifted"
	WeeklyWordRotated Kind = "weekly_word_rotated"
)

// Event carries the fixed payload for one notification. Fields are populated
// per kind: ban events fill the player and ban fields, rotation fills the
// word fields.
type Event struct {
	Kind Kind

	PlayerID   int64
	TelegramID int64
	Username   string

	Reason      string
	Word        string
	BuyoutPrice int
	ExpiresAt   time.Time

	// Paid is set on BanLifted when the ban was bought out; zero for expiry.
	Paid int

	WeekNumber int
}

// Notifier delivers notification events to the outside world.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier writes notifications to the log. It is the fallback used when
// no chat transport is wired (tests, one-off tooling).
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the event.
func (n LogNotifier) Notify(ctx context.Context, e Event) error {
	n.Logger.InfoContext(ctx, "notification",
		slog.String("kind", string(e.Kind)),
		slog.Int64("player_id", e.PlayerID),
		slog.String("word", e.Word),
	)
	return nil
}
