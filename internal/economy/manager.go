package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/event"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/words"
)

// ErrWordExists is returned when a personal banword is added twice.
var ErrWordExists = errors.New("word already on the list")

// ErrWordNotFound is returned when removing a word that is not on the list.
var ErrWordNotFound = errors.New("word not on the list")

// Manager owns player accounts: registration, balances, personal word lists
// and game bookkeeping.
type Manager struct {
	players store.PlayerRepository
	events  event.Store
	cache   *words.Cache
	cfg     config.BanConfig
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewManager returns a new economy Manager.
func NewManager(players store.PlayerRepository, events event.Store, cache *words.Cache, cfg config.BanConfig, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		players: players,
		events:  events,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		tracer:  tp.Tracer("github.com/mkuznetsov/banword-bot/internal/economy"),
	}
}

// GetOrCreate looks up a player by Telegram ID, registering them with the
// starting balance on first sight. Existing players get their profile fields
// and last-active timestamp refreshed.
func (m *Manager) GetOrCreate(ctx context.Context, telegramID int64, username, firstName, lastName string) (*store.Player, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.GetOrCreate",
		trace.WithAttributes(attribute.Int64("telegram_id", telegramID)),
	)
	defer span.End()

	p, err := m.players.GetByTelegramID(ctx, telegramID)
	if err == nil {
		if touchErr := m.players.Touch(ctx, p.ID, username, firstName, lastName); touchErr != nil {
			m.logger.WarnContext(ctx, "failed to touch player", slog.Any("error", touchErr))
		}
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up player: %w", err)
	}

	p = &store.Player{
		TelegramID:         telegramID,
		Username:           username,
		FirstName:          firstName,
		LastName:           lastName,
		Balance:            m.cfg.StartingBalance,
		CurrentBuyoutPrice: m.cfg.BaseBuyoutPrice,
	}
	if err := m.players.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}

	m.appendEvent(ctx, p.ID, event.PlayerRegistered, event.PlayerRegisteredData{
		TelegramID: telegramID,
		Username:   username,
	})

	m.logger.InfoContext(ctx, "player registered",
		slog.Int64("telegram_id", telegramID),
		slog.String("username", username),
		slog.Int("balance", p.Balance),
	)
	return p, nil
}

// Adjust credits or debits a player's balance and returns the new balance.
// A debit that would go negative fails with store.ErrNegativeBalance and
// leaves the balance untouched.
func (m *Manager) Adjust(ctx context.Context, playerID int64, delta int, reason string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Adjust",
		trace.WithAttributes(
			attribute.Int64("player_id", playerID),
			attribute.Int("delta", delta),
		),
	)
	defer span.End()

	p, err := m.players.GetByID(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("loading player: %w", err)
	}

	if err := m.players.AdjustBalance(ctx, playerID, delta); err != nil {
		return 0, fmt.Errorf("adjusting balance by %d: %w", delta, err)
	}
	newBalance := p.Balance + delta

	m.appendEvent(ctx, playerID, event.BalanceAdjusted, event.BalanceAdjustedData{
		PlayerID: playerID,
		Delta:    delta,
		Reason:   reason,
	})

	m.logger.InfoContext(ctx, "balance adjusted",
		slog.Int64("player_id", playerID),
		slog.Int("delta", delta),
		slog.Int("balance", newBalance),
		slog.String("reason", reason),
	)
	return newBalance, nil
}

// SetBalance overwrites a player's balance, bypassing the earned/spent
// bookkeeping. Admin tooling only.
func (m *Manager) SetBalance(ctx context.Context, playerID int64, balance int) error {
	ctx, span := m.tracer.Start(ctx, "Manager.SetBalance",
		trace.WithAttributes(attribute.Int64("player_id", playerID)),
	)
	defer span.End()

	if balance < 0 {
		return store.ErrNegativeBalance
	}
	if err := m.players.SetBalance(ctx, playerID, balance); err != nil {
		return fmt.Errorf("setting balance: %w", err)
	}

	m.logger.InfoContext(ctx, "balance set",
		slog.Int64("player_id", playerID),
		slog.Int("balance", balance),
	)
	return nil
}

// PersonalWords returns the player's personal watch-list, normalized.
func (m *Manager) PersonalWords(ctx context.Context, playerID int64) ([]string, error) {
	p, err := m.players.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}
	return words.NormalizeAll(p.PersonalBanwords), nil
}

// AddPersonalWord appends a word to the player's personal watch-list and
// returns the updated list. Duplicates fail with ErrWordExists.
func (m *Manager) AddPersonalWord(ctx context.Context, playerID int64, word string) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.AddPersonalWord",
		trace.WithAttributes(attribute.Int64("player_id", playerID)),
	)
	defer span.End()

	term := words.Normalize(word)
	if term == "" {
		return nil, fmt.Errorf("empty word")
	}

	current, err := m.PersonalWords(ctx, playerID)
	if err != nil {
		return nil, err
	}
	for _, w := range current {
		if w == term {
			return nil, fmt.Errorf("adding %q: %w", term, ErrWordExists)
		}
	}

	updated := append(current, term)
	if err := m.savePersonalWords(ctx, playerID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// RemovePersonalWord deletes a word from the player's personal watch-list and
// returns the updated list.
func (m *Manager) RemovePersonalWord(ctx context.Context, playerID int64, word string) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.RemovePersonalWord",
		trace.WithAttributes(attribute.Int64("player_id", playerID)),
	)
	defer span.End()

	term := words.Normalize(word)

	current, err := m.PersonalWords(ctx, playerID)
	if err != nil {
		return nil, err
	}
	updated := make([]string, 0, len(current))
	for _, w := range current {
		if w != term {
			updated = append(updated, w)
		}
	}
	if len(updated) == len(current) {
		return nil, fmt.Errorf("removing %q: %w", term, ErrWordNotFound)
	}

	if err := m.savePersonalWords(ctx, playerID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// SetPersonalWords replaces the player's entire personal watch-list.
func (m *Manager) SetPersonalWords(ctx context.Context, playerID int64, list []string) ([]string, error) {
	updated := words.NormalizeAll(list)
	if err := m.savePersonalWords(ctx, playerID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (m *Manager) savePersonalWords(ctx context.Context, playerID int64, list []string) error {
	if err := m.players.SetPersonalBanwords(ctx, playerID, list); err != nil {
		return fmt.Errorf("saving personal banwords: %w", err)
	}
	m.cache.InvalidatePersonal(playerID)
	m.logger.InfoContext(ctx, "personal banwords updated",
		slog.Int64("player_id", playerID),
		slog.Int("count", len(list)),
	)
	return nil
}

// RecordGame persists one game session and settles the net winnings against
// the player's balance.
func (m *Manager) RecordGame(ctx context.Context, s *store.GameSession) error {
	ctx, span := m.tracer.Start(ctx, "Manager.RecordGame",
		trace.WithAttributes(
			attribute.Int64("player_id", s.PlayerID),
			attribute.String("game_type", s.GameType),
		),
	)
	defer span.End()

	if err := m.players.RecordGame(ctx, s); err != nil {
		return fmt.Errorf("recording game: %w", err)
	}

	net := s.WinAmount - s.BetAmount
	if net != 0 {
		if _, err := m.Adjust(ctx, s.PlayerID, net, "game:"+s.GameType); err != nil {
			return fmt.Errorf("settling game winnings: %w", err)
		}
	}
	return nil
}

// Leaderboard returns the top players by balance.
func (m *Manager) Leaderboard(ctx context.Context, limit int) ([]store.Player, error) {
	players, err := m.players.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return players, nil
}

func (m *Manager) appendEvent(ctx context.Context, playerID int64, t event.Type, data any) {
	raw, _ := json.Marshal(data)
	evt := event.Event{
		AggregateID: "player-" + strconv.FormatInt(playerID, 10),
		Type:        t,
		Data:        raw,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
