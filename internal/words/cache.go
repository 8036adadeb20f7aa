package words

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

// Cache is the process-wide mirror of the three watch-lists. The bot checks
// it on every incoming message, so the common global/weekly case costs no
// storage round trip.
//
// Every load is a full replace-on-success: a failed fetch keeps the previous
// snapshot intact rather than serving an empty list. Personal word lists are
// lazily loaded per player and kept until invalidated.
type Cache struct {
	mu       sync.RWMutex
	global   []string
	weekly   []string
	personal map[int64][]string
	loadedAt time.Time

	words   store.WordRepository
	players store.PlayerRepository
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   clock.Clock
}

// NewCache returns an empty Cache; call ReloadAll before serving lookups.
func NewCache(words store.WordRepository, players store.PlayerRepository, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Cache {
	return &Cache{
		personal: make(map[int64][]string),
		words:    words,
		players:  players,
		logger:   logger,
		tracer:   tp.Tracer("github.com/mkuznetsov/banword-bot/internal/words"),
		clock:    clk,
	}
}

// LoadGlobal replaces the global snapshot from storage.
func (c *Cache) LoadGlobal(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "Cache.LoadGlobal")
	defer span.End()

	rows, err := c.words.ListActiveGlobal(ctx)
	if err != nil {
		return fmt.Errorf("loading global banwords: %w", err)
	}

	terms := make([]string, 0, len(rows))
	for _, w := range rows {
		terms = append(terms, Normalize(w.Word))
	}

	c.mu.Lock()
	c.global = terms
	c.loadedAt = c.clock.Now()
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "global banwords loaded", slog.Int("count", len(terms)))
	return nil
}

// LoadWeekly replaces the weekly snapshot from storage.
func (c *Cache) LoadWeekly(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "Cache.LoadWeekly")
	defer span.End()

	rows, err := c.words.ListActiveWeekly(ctx)
	if err != nil {
		return fmt.Errorf("loading weekly banwords: %w", err)
	}

	terms := make([]string, 0, len(rows))
	for _, w := range rows {
		terms = append(terms, Normalize(w.Word))
	}

	c.mu.Lock()
	c.weekly = terms
	c.loadedAt = c.clock.Now()
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "weekly banwords loaded", slog.Int("count", len(terms)))
	return nil
}

// ReloadAll refreshes the global and weekly snapshots. Personal lists are
// managed per player and untouched here.
func (c *Cache) ReloadAll(ctx context.Context) error {
	if err := c.LoadGlobal(ctx); err != nil {
		return err
	}
	return c.LoadWeekly(ctx)
}

// LoadPersonal replaces the personal snapshot for one player from storage.
func (c *Cache) LoadPersonal(ctx context.Context, playerID int64) error {
	ctx, span := c.tracer.Start(ctx, "Cache.LoadPersonal",
		trace.WithAttributes(attribute.Int64("player_id", playerID)),
	)
	defer span.End()

	p, err := c.players.GetByID(ctx, playerID)
	if err != nil {
		return fmt.Errorf("loading personal banwords for player %d: %w", playerID, err)
	}

	terms := NormalizeAll(p.PersonalBanwords)

	c.mu.Lock()
	c.personal[playerID] = terms
	c.mu.Unlock()
	return nil
}

// InvalidatePersonal drops the cached personal list for a player so the next
// Check re-fetches it (used after the player edits their list).
func (c *Cache) InvalidatePersonal(playerID int64) {
	c.mu.Lock()
	delete(c.personal, playerID)
	c.mu.Unlock()
}

// Check matches text against the cached watch-lists, lazily loading the
// player's personal list on first sight.
func (c *Cache) Check(ctx context.Context, playerID int64, text string) (Result, error) {
	c.mu.RLock()
	_, havePersonal := c.personal[playerID]
	c.mu.RUnlock()

	if !havePersonal {
		if err := c.LoadPersonal(ctx, playerID); err != nil {
			return Result{}, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return Match(text, c.global, c.weekly, c.personal[playerID]), nil
}

// LastReload returns when a global or weekly snapshot last loaded
// successfully; zero if never.
func (c *Cache) LastReload() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
