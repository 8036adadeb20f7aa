package dbsql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

// WordRepo implements store.WordRepository using database/sql.
type WordRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewWordRepo returns a new WordRepo.
func NewWordRepo(db *sql.DB, clk clock.Clock) *WordRepo {
	return &WordRepo{db: db, clock: clk}
}

func (r *WordRepo) ListActiveGlobal(ctx context.Context) ([]store.GlobalBanword, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, word, is_active, times_triggered, created_at
		 FROM global_banwords WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing global banwords: %w", err)
	}
	defer rows.Close()

	var out []store.GlobalBanword
	for rows.Next() {
		var w store.GlobalBanword
		if err := rows.Scan(&w.ID, &w.Word, &w.IsActive, &w.TimesTriggered, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning global banword: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WordRepo) CreateGlobal(ctx context.Context, word string) (*store.GlobalBanword, error) {
	w := store.GlobalBanword{Word: word, IsActive: true, CreatedAt: r.clock.Now().UTC()}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO global_banwords (word, is_active, created_at) VALUES ($1, TRUE, $2) RETURNING id`,
		w.Word, w.CreatedAt,
	).Scan(&w.ID)
	if err != nil {
		return nil, fmt.Errorf("creating global banword: %w", err)
	}
	return &w, nil
}

func (r *WordRepo) DeactivateGlobal(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE global_banwords SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating global banword: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("global banword %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *WordRepo) IncrementGlobalTrigger(ctx context.Context, word string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE global_banwords SET times_triggered = times_triggered + 1 WHERE word = $1 AND is_active`, word)
	if err != nil {
		return fmt.Errorf("bumping global trigger count: %w", err)
	}
	return nil
}

func (r *WordRepo) ListActiveWeekly(ctx context.Context) ([]store.WeeklyBanword, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, word, is_active, week_number, times_triggered, created_at, expires_at
		 FROM weekly_banwords WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing weekly banwords: %w", err)
	}
	defer rows.Close()

	var out []store.WeeklyBanword
	for rows.Next() {
		var w store.WeeklyBanword
		if err := rows.Scan(&w.ID, &w.Word, &w.IsActive, &w.WeekNumber, &w.TimesTriggered, &w.CreatedAt, &w.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning weekly banword: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WordRepo) CreateWeekly(ctx context.Context, word string, weekNumber int, expiresAt time.Time) (*store.WeeklyBanword, error) {
	w := store.WeeklyBanword{
		Word:       word,
		IsActive:   true,
		WeekNumber: weekNumber,
		CreatedAt:  r.clock.Now().UTC(),
		ExpiresAt:  &expiresAt,
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO weekly_banwords (word, is_active, week_number, created_at, expires_at)
		 VALUES ($1, TRUE, $2, $3, $4)
		 RETURNING id`,
		w.Word, w.WeekNumber, w.CreatedAt, expiresAt,
	).Scan(&w.ID)
	if err != nil {
		return nil, fmt.Errorf("creating weekly banword: %w", err)
	}
	return &w, nil
}

func (r *WordRepo) DeactivateAllWeekly(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE weekly_banwords SET is_active = FALSE WHERE is_active`)
	if err != nil {
		return fmt.Errorf("deactivating weekly banwords: %w", err)
	}
	return nil
}

func (r *WordRepo) IncrementWeeklyTrigger(ctx context.Context, word string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE weekly_banwords SET times_triggered = times_triggered + 1 WHERE word = $1 AND is_active`, word)
	if err != nil {
		return fmt.Errorf("bumping weekly trigger count: %w", err)
	}
	return nil
}

func (r *WordRepo) ListActivePool(ctx context.Context) ([]store.LotteryWord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, word, is_active, times_used, created_at
		 FROM lottery_words WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing lottery pool: %w", err)
	}
	defer rows.Close()

	var out []store.LotteryWord
	for rows.Next() {
		var w store.LotteryWord
		if err := rows.Scan(&w.ID, &w.Word, &w.IsActive, &w.TimesUsed, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lottery word: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WordRepo) CreatePoolWord(ctx context.Context, word string) (*store.LotteryWord, error) {
	w := store.LotteryWord{Word: word, IsActive: true, CreatedAt: r.clock.Now().UTC()}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO lottery_words (word, is_active, created_at) VALUES ($1, TRUE, $2) RETURNING id`,
		w.Word, w.CreatedAt,
	).Scan(&w.ID)
	if err != nil {
		return nil, fmt.Errorf("creating lottery word: %w", err)
	}
	return &w, nil
}

func (r *WordRepo) DeactivatePoolWord(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE lottery_words SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating lottery word: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("lottery word %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *WordRepo) IncrementPoolUsage(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE lottery_words SET times_used = times_used + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bumping lottery usage: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("lottery word %d: %w", id, store.ErrNotFound)
	}
	return nil
}
