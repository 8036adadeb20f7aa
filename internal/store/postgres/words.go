package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

// WordRepo implements store.WordRepository with sqlx.
type WordRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewWordRepo returns a new WordRepo.
func NewWordRepo(db *sqlx.DB, clk clock.Clock) *WordRepo {
	return &WordRepo{db: db, clk: clk}
}

func (r *WordRepo) ListActiveGlobal(ctx context.Context) ([]store.GlobalBanword, error) {
	var out []store.GlobalBanword
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM global_banwords WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing global banwords: %w", err)
	}
	return out, nil
}

func (r *WordRepo) CreateGlobal(ctx context.Context, word string) (*store.GlobalBanword, error) {
	w := store.GlobalBanword{
		Word:      word,
		IsActive:  true,
		CreatedAt: r.clk.Now().UTC(),
	}
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
	var out []store.WeeklyBanword
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM weekly_banwords WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing weekly banwords: %w", err)
	}
	return out, nil
}

func (r *WordRepo) CreateWeekly(ctx context.Context, word string, weekNumber int, expiresAt time.Time) (*store.WeeklyBanword, error) {
	w := store.WeeklyBanword{
		Word:       word,
		IsActive:   true,
		WeekNumber: weekNumber,
		CreatedAt:  r.clk.Now().UTC(),
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
	var out []store.LotteryWord
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM lottery_words WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing lottery pool: %w", err)
	}
	return out, nil
}

func (r *WordRepo) CreatePoolWord(ctx context.Context, word string) (*store.LotteryWord, error) {
	w := store.LotteryWord{
		Word:      word,
		IsActive:  true,
		CreatedAt: r.clk.Now().UTC(),
	}
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
