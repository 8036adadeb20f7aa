// Package lottery rotates the weekly watch-word from a pool of candidates.
package lottery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/event"
	"github.com/mkuznetsov/banword-bot/internal/notify"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/words"
)

// ErrPoolEmpty is returned by Rotate when no active candidate words exist.
// The current weekly word, if any, stays active.
var ErrPoolEmpty = errors.New("lottery pool is empty")

// weeklyTTL is how long a freshly drawn weekly word stays valid.
const weeklyTTL = 7 * 24 * time.Hour

// Rotator draws a new weekly watch-word from the lottery pool on a weekly
// schedule and keeps the word cache in sync.
type Rotator struct {
	words    store.WordRepository
	cache    *words.Cache
	events   event.Store
	notifier notify.Notifier
	cfg      config.LotteryConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewRotator returns a new Rotator.
func NewRotator(repo store.WordRepository, cache *words.Cache, events event.Store, notifier notify.Notifier, cfg config.LotteryConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Rotator {
	return &Rotator{
		words:    repo,
		cache:    cache,
		events:   events,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		tracer:   tp.Tracer("github.com/mkuznetsov/banword-bot/internal/lottery"),
		clock:    clk,
	}
}

// Rotate draws one word uniformly at random from the active pool, makes it
// the sole active weekly word and bumps the drawn word's usage counter.
// Previous weekly words are deactivated first, so at most one weekly word is
// ever active. An empty pool fails with ErrPoolEmpty and leaves the current
// weekly word in place.
func (r *Rotator) Rotate(ctx context.Context) (*store.WeeklyBanword, error) {
	ctx, span := r.tracer.Start(ctx, "Rotator.Rotate")
	defer span.End()

	pool, err := r.words.ListActivePool(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading lottery pool: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrPoolEmpty
	}

	pick := pool[rand.IntN(len(pool))]

	if err := r.words.DeactivateAllWeekly(ctx); err != nil {
		return nil, fmt.Errorf("deactivating previous weekly words: %w", err)
	}

	now := r.clock.Now().UTC()
	_, week := now.ISOWeek()
	expiresAt := now.Add(weeklyTTL)

	weekly, err := r.words.CreateWeekly(ctx, pick.Word, week, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("creating weekly word: %w", err)
	}

	if err := r.words.IncrementPoolUsage(ctx, pick.ID); err != nil {
		r.logger.WarnContext(ctx, "failed to bump pool word usage",
			slog.Int64("word_id", pick.ID),
			slog.Any("error", err),
		)
	}

	if err := r.cache.LoadWeekly(ctx); err != nil {
		r.logger.ErrorContext(ctx, "weekly cache reload failed after rotation",
			slog.Any("error", err),
		)
	}

	r.appendEvent(ctx, event.WeeklyWordRotated, event.WeeklyWordRotatedData{
		Word:       weekly.Word,
		WeekNumber: week,
	})

	if err := r.notifier.Notify(ctx, notify.Event{
		Kind:       notify.WeeklyWordRotated,
		Word:       weekly.Word,
		WeekNumber: week,
	}); err != nil {
		r.logger.ErrorContext(ctx, "rotation notification failed", slog.Any("error", err))
	}

	r.logger.InfoContext(ctx, "weekly word rotated",
		slog.String("word", weekly.Word),
		slog.Int("week", week),
		slog.Time("expires_at", expiresAt),
	)
	return weekly, nil
}

// AddWords adds candidate terms to the lottery pool, skipping empties after
// normalization, and returns the created entries.
func (r *Rotator) AddWords(ctx context.Context, terms []string) ([]store.LotteryWord, error) {
	ctx, span := r.tracer.Start(ctx, "Rotator.AddWords")
	defer span.End()

	created := make([]store.LotteryWord, 0, len(terms))
	for _, t := range words.NormalizeAll(terms) {
		w, err := r.words.CreatePoolWord(ctx, t)
		if err != nil {
			return created, fmt.Errorf("adding pool word %q: %w", t, err)
		}
		created = append(created, *w)
	}

	r.logger.InfoContext(ctx, "lottery pool words added", slog.Int("count", len(created)))
	return created, nil
}

// Pool returns the active candidate words.
func (r *Rotator) Pool(ctx context.Context) ([]store.LotteryWord, error) {
	return r.words.ListActivePool(ctx)
}

// RemoveWord deactivates a pool candidate.
func (r *Rotator) RemoveWord(ctx context.Context, id int64) error {
	return r.words.DeactivatePoolWord(ctx, id)
}

// Run rotates on the configured weekday and hour until ctx is done. Failed
// rotations are logged and retried at the next scheduled point.
func (r *Rotator) Run(ctx context.Context) {
	for {
		next := r.nextRotation(r.clock.Now())
		r.logger.Info("next weekly rotation scheduled", slog.Time("at", next))

		timer := time.NewTimer(next.Sub(r.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := r.Rotate(ctx); err != nil {
			if errors.Is(err, ErrPoolEmpty) {
				r.logger.Warn("weekly rotation skipped, pool is empty")
			} else {
				r.logger.Error("weekly rotation failed", slog.Any("error", err))
			}
		}
	}
}

// nextRotation returns the next occurrence of the configured weekday and
// hour, in UTC, strictly after now.
func (r *Rotator) nextRotation(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), r.cfg.RotationHour, 0, 0, 0, time.UTC)
	days := (int(r.cfg.RotationWeekday) - int(next.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (r *Rotator) appendEvent(ctx context.Context, t event.Type, data any) {
	raw, _ := json.Marshal(data)
	evt := event.Event{
		AggregateID: "lottery",
		Type:        t,
		Data:        raw,
	}
	if err := r.events.Append(ctx, evt); err != nil {
		r.logger.ErrorContext(ctx, "failed to append event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
