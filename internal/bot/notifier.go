package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mkuznetsov/banword-bot/internal/notify"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

// Notifier broadcasts domain notifications to every registered chat,
// honoring each chat's per-kind opt-in flags.
type Notifier struct {
	api    API
	chats  store.ChatRepository
	logger *slog.Logger
}

// NewNotifier returns a Notifier broadcasting through the given API.
func NewNotifier(api API, chats store.ChatRepository, logger *slog.Logger) *Notifier {
	return &Notifier{api: api, chats: chats, logger: logger}
}

// Notify renders the event and sends it to all chats subscribed to its kind.
// Per-chat send failures are logged and skipped so one broken chat does not
// block the rest.
func (n *Notifier) Notify(ctx context.Context, e notify.Event) error {
	text := render(e)
	if text == "" {
		return nil
	}

	chats, err := n.chats.ListNotify(ctx)
	if err != nil {
		return fmt.Errorf("listing notify chats: %w", err)
	}

	for _, c := range chats {
		if !wantsKind(c, e.Kind) {
			continue
		}
		if _, err := n.api.Send(tgbotapi.NewMessage(c.ChatID, text)); err != nil {
			n.logger.WarnContext(ctx, "notification send failed",
				slog.Int64("chat_id", c.ChatID),
				slog.String("kind", string(e.Kind)),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func wantsKind(c store.ChatSettings, k notify.Kind) bool {
	switch k {
	case notify.BanApplied:
		return c.NotifyOnBan
	case notify.BanLifted:
		return c.NotifyOnUnban
	case notify.WeeklyWordRotated:
		return c.NotifyWeeklyWord
	default:
		return false
	}
}

func render(e notify.Event) string {
	name := e.Username
	if name != "" {
		name = "@" + name
	} else {
		name = fmt.Sprintf("player %d", e.PlayerID)
	}

	switch e.Kind {
	case notify.BanApplied:
		return fmt.Sprintf(
			"%s got banned (%s). Buyout: %d points, expires %s.",
			name, e.Reason, e.BuyoutPrice, e.ExpiresAt.UTC().Format("Jan 2 15:04 MST"),
		)
	case notify.BanLifted:
		if e.Paid > 0 {
			return fmt.Sprintf("%s bought their way out of a ban for %d points.", name, e.Paid)
		}
		return fmt.Sprintf("%s is unbanned.", name)
	case notify.WeeklyWordRotated:
		return fmt.Sprintf("A new secret word is in play for week %d. Watch your mouth.", e.WeekNumber)
	default:
		return ""
	}
}
