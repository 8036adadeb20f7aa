package ban

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/event"
	"github.com/mkuznetsov/banword-bot/internal/notify"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

// ErrNotBanned is returned when a buyout is attempted by an unbanned player.
var ErrNotBanned = errors.New("player is not banned")

// InsufficientFundsError is returned when a player cannot afford a buyout.
// It carries the exact amounts so callers can render both numbers.
type InsufficientFundsError struct {
	Need int
	Have int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d, have %d", e.Need, e.Have)
}

// BuyoutResult reports a completed (or repaired) buyout.
type BuyoutResult struct {
	NewBalance int
	Paid       int
}

// Manager owns the ban lifecycle for all players. A player's ban and balance
// mutations run under a per-player lock, so concurrent ApplyBan and Buyout
// on the same player cannot interleave; operations on different players
// proceed independently.
type Manager struct {
	players  store.PlayerRepository
	bans     store.BanRepository
	events   event.Store
	notifier notify.Notifier
	policy   Policy
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewManager returns a new ban Manager.
func NewManager(players store.PlayerRepository, bans store.BanRepository, events event.Store, notifier notify.Notifier, policy Policy, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		players:  players,
		bans:     bans,
		events:   events,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		tracer:   tp.Tracer("github.com/mkuznetsov/banword-bot/internal/ban"),
		clock:    clk,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// playerLock returns the mutex guarding one player's ban/balance state.
func (m *Manager) playerLock(playerID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[playerID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[playerID] = l
	}
	return l
}

// ApplyBan bans a player for the given category and triggering term. A
// player already banned can be re-banned: the new record's price and expiry
// supersede the prior one, and the prior unpaid record stays in history.
// The player's buyout price is persisted and only ever grows from here.
func (m *Manager) ApplyBan(ctx context.Context, playerID int64, reason store.BanReason, term string) (*store.BanRecord, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ApplyBan",
		trace.WithAttributes(
			attribute.Int64("player_id", playerID),
			attribute.String("reason", string(reason)),
		),
	)
	defer span.End()

	l := m.playerLock(playerID)
	l.Lock()
	defer l.Unlock()

	p, err := m.players.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}

	pen := m.policy.Penalty(reason, p.CurrentBuyoutPrice)
	now := m.clock.Now().UTC()
	expiresAt := now.Add(pen.Duration)

	var word *string
	if term != "" {
		word = &term
	}

	rec := &store.BanRecord{
		PlayerID:      playerID,
		Reason:        reason,
		Word:          word,
		Multiplier:    pen.Multiplier,
		BuyoutPrice:   pen.BuyoutPrice,
		DurationHours: pen.DurationHours(),
		ExpiresAt:     expiresAt,
	}
	if err := m.bans.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating ban record: %w", err)
	}

	if err := m.players.SetBanState(ctx, store.BanState{
		PlayerID:    playerID,
		Reason:      reason,
		Word:        word,
		ExpiresAt:   expiresAt,
		BuyoutPrice: pen.BuyoutPrice,
	}); err != nil {
		return nil, fmt.Errorf("updating player ban state: %w", err)
	}

	m.appendEvent(ctx, playerID, event.BanApplied, event.BanAppliedData{
		PlayerID:      playerID,
		Reason:        string(reason),
		Word:          term,
		Multiplier:    pen.Multiplier,
		BuyoutPrice:   pen.BuyoutPrice,
		DurationHours: rec.DurationHours,
		ExpiresAt:     expiresAt,
	})

	if err := m.notifier.Notify(ctx, notify.Event{
		Kind:        notify.BanApplied,
		PlayerID:    playerID,
		TelegramID:  p.TelegramID,
		Username:    p.Username,
		Reason:      string(reason),
		Word:        term,
		BuyoutPrice: pen.BuyoutPrice,
		ExpiresAt:   expiresAt,
	}); err != nil {
		m.logger.ErrorContext(ctx, "ban notification failed", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "ban applied",
		slog.Int64("player_id", playerID),
		slog.String("reason", string(reason)),
		slog.String("word", term),
		slog.Int("buyout_price", pen.BuyoutPrice),
		slog.Time("expires_at", expiresAt),
	)
	return rec, nil
}

// Buyout lets a banned player pay off their active ban. The exact buyout
// price is debited, the record is marked paid and the player is unbanned.
//
// A player flagged banned with no unpaid record is a recoverable
// inconsistency: the flag is cleared and a zero-cost result returned.
func (m *Manager) Buyout(ctx context.Context, playerID int64) (BuyoutResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Buyout",
		trace.WithAttributes(attribute.Int64("player_id", playerID)),
	)
	defer span.End()

	l := m.playerLock(playerID)
	l.Lock()
	defer l.Unlock()

	p, err := m.players.GetByID(ctx, playerID)
	if err != nil {
		return BuyoutResult{}, fmt.Errorf("loading player: %w", err)
	}

	if !p.IsBanned {
		return BuyoutResult{}, ErrNotBanned
	}

	rec, err := m.bans.LatestUnpaid(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		// Banned flag with no backing record. Repair rather than error.
		if clearErr := m.players.ClearBan(ctx, playerID); clearErr != nil {
			return BuyoutResult{}, fmt.Errorf("repairing ban state: %w", clearErr)
		}
		m.logger.WarnContext(ctx, "banned player had no unpaid ban record, cleared flag",
			slog.Int64("player_id", playerID),
		)
		return BuyoutResult{NewBalance: p.Balance, Paid: 0}, nil
	}
	if err != nil {
		return BuyoutResult{}, fmt.Errorf("finding unpaid ban: %w", err)
	}

	if p.Balance < rec.BuyoutPrice {
		return BuyoutResult{}, &InsufficientFundsError{Need: rec.BuyoutPrice, Have: p.Balance}
	}

	if err := m.players.AdjustBalance(ctx, playerID, -rec.BuyoutPrice); err != nil {
		return BuyoutResult{}, fmt.Errorf("debiting buyout: %w", err)
	}
	if err := m.bans.MarkPaid(ctx, rec.ID, m.clock.Now().UTC()); err != nil {
		return BuyoutResult{}, fmt.Errorf("marking ban paid: %w", err)
	}
	if err := m.players.ClearBan(ctx, playerID); err != nil {
		return BuyoutResult{}, fmt.Errorf("clearing ban state: %w", err)
	}

	newBalance := p.Balance - rec.BuyoutPrice

	m.appendEvent(ctx, playerID, event.BanBoughtOut, event.BanBoughtOutData{
		PlayerID:   playerID,
		Paid:       rec.BuyoutPrice,
		NewBalance: newBalance,
	})

	if err := m.notifier.Notify(ctx, notify.Event{
		Kind:       notify.BanLifted,
		PlayerID:   playerID,
		TelegramID: p.TelegramID,
		Username:   p.Username,
		Paid:       rec.BuyoutPrice,
	}); err != nil {
		m.logger.ErrorContext(ctx, "unban notification failed", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "ban bought out",
		slog.Int64("player_id", playerID),
		slog.Int("paid", rec.BuyoutPrice),
		slog.Int("new_balance", newBalance),
	)
	return BuyoutResult{NewBalance: newBalance, Paid: rec.BuyoutPrice}, nil
}

// Lift removes a player's active ban without charging them. The latest
// unpaid record is settled at zero cost so it no longer counts as active.
// Returns ErrNotBanned if the player has no active ban.
func (m *Manager) Lift(ctx context.Context, playerID int64) (*store.BanRecord, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Lift",
		trace.WithAttributes(attribute.Int64("player_id", playerID)),
	)
	defer span.End()

	l := m.playerLock(playerID)
	l.Lock()
	defer l.Unlock()

	p, err := m.players.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}
	if !p.IsBanned {
		return nil, ErrNotBanned
	}

	rec, err := m.bans.LatestUnpaid(ctx, playerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("finding unpaid ban: %w", err)
	}
	if rec != nil {
		if err := m.bans.MarkPaid(ctx, rec.ID, m.clock.Now().UTC()); err != nil {
			return nil, fmt.Errorf("settling ban record: %w", err)
		}
	}
	if err := m.players.ClearBan(ctx, playerID); err != nil {
		return nil, fmt.Errorf("clearing ban state: %w", err)
	}

	m.appendEvent(ctx, playerID, event.BanLifted, event.BanLiftedData{PlayerID: playerID})

	if err := m.notifier.Notify(ctx, notify.Event{
		Kind:       notify.BanLifted,
		PlayerID:   playerID,
		TelegramID: p.TelegramID,
		Username:   p.Username,
	}); err != nil {
		m.logger.ErrorContext(ctx, "unban notification failed", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "ban lifted manually", slog.Int64("player_id", playerID))
	return rec, nil
}

// CheckExpiry lifts the player's ban if it has expired as of now. Calling it
// on an unbanned player, or before expiry, is a no-op. Returns whether the
// ban was lifted.
func (m *Manager) CheckExpiry(ctx context.Context, playerID int64, now time.Time) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CheckExpiry",
		trace.WithAttributes(attribute.Int64("player_id", playerID)),
	)
	defer span.End()

	l := m.playerLock(playerID)
	l.Lock()
	defer l.Unlock()

	p, err := m.players.GetByID(ctx, playerID)
	if err != nil {
		return false, fmt.Errorf("loading player: %w", err)
	}

	if !p.IsBanned || p.BanExpiresAt == nil {
		return false, nil
	}
	if now.Before(*p.BanExpiresAt) {
		return false, nil
	}

	if err := m.players.ClearBan(ctx, playerID); err != nil {
		return false, fmt.Errorf("clearing expired ban: %w", err)
	}

	m.appendEvent(ctx, playerID, event.BanExpired, event.BanExpiredData{PlayerID: playerID})

	if err := m.notifier.Notify(ctx, notify.Event{
		Kind:       notify.BanLifted,
		PlayerID:   playerID,
		TelegramID: p.TelegramID,
		Username:   p.Username,
	}); err != nil {
		m.logger.ErrorContext(ctx, "unban notification failed", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "ban expired",
		slog.Int64("player_id", playerID),
	)
	return true, nil
}

// SweepExpired scans all currently banned players and lifts every ban whose
// expiry has passed. Returns the number of bans lifted. Safe to run
// concurrently with itself: each per-player check is idempotent.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SweepExpired")
	defer span.End()

	banned, err := m.players.ListBanned(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing banned players: %w", err)
	}

	now := m.clock.Now().UTC()
	lifted := 0
	for _, p := range banned {
		ok, checkErr := m.CheckExpiry(ctx, p.ID, now)
		if checkErr != nil {
			m.logger.ErrorContext(ctx, "expiry check failed during sweep",
				slog.Int64("player_id", p.ID),
				slog.Any("error", checkErr),
			)
			continue
		}
		if ok {
			lifted++
		}
	}

	if lifted > 0 {
		m.logger.InfoContext(ctx, "expiry sweep complete",
			slog.Int("scanned", len(banned)),
			slog.Int("lifted", lifted),
		)
	}
	return lifted, nil
}

// RunSweeper runs SweepExpired on the given interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepExpired(ctx); err != nil {
				m.logger.ErrorContext(ctx, "expiry sweep failed", slog.Any("error", err))
			}
		}
	}
}

// appendEvent marshals and appends a domain event; failures are logged, not
// surfaced, since the mutation itself already committed.
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
