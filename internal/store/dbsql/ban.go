package dbsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

const banColumns = `id, player_id, reason, word, multiplier, buyout_price, duration_hours,
	expires_at, was_paid, created_at, paid_at`

// BanRepo implements store.BanRepository using database/sql.
type BanRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewBanRepo returns a new BanRepo.
func NewBanRepo(db *sql.DB, clk clock.Clock) *BanRepo {
	return &BanRepo{db: db, clock: clk}
}

func scanBan(row rowScanner, b *store.BanRecord) error {
	return row.Scan(
		&b.ID, &b.PlayerID, &b.Reason, &b.Word, &b.Multiplier, &b.BuyoutPrice, &b.DurationHours,
		&b.ExpiresAt, &b.WasPaid, &b.CreatedAt, &b.PaidAt,
	)
}

func (r *BanRepo) Create(ctx context.Context, b *store.BanRecord) error {
	b.CreatedAt = r.clock.Now().UTC()
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO ban_history (player_id, reason, word, multiplier, buyout_price, duration_hours, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		b.PlayerID, string(b.Reason), b.Word, b.Multiplier, b.BuyoutPrice, b.DurationHours, b.ExpiresAt, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("creating ban record: %w", err)
	}
	return nil
}

func (r *BanRepo) LatestUnpaid(ctx context.Context, playerID int64) (*store.BanRecord, error) {
	b := &store.BanRecord{}
	err := scanBan(r.db.QueryRowContext(ctx,
		`SELECT `+banColumns+` FROM ban_history
		 WHERE player_id = $1 AND NOT was_paid
		 ORDER BY created_at DESC
		 LIMIT 1`, playerID), b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unpaid ban for player %d: %w", playerID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest unpaid ban: %w", err)
	}
	return b, nil
}

func (r *BanRepo) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ban_history SET was_paid = TRUE, paid_at = $1 WHERE id = $2`,
		paidAt, id,
	)
	if err != nil {
		return fmt.Errorf("marking ban paid: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ban %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *BanRepo) ListByPlayer(ctx context.Context, playerID int64) ([]store.BanRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+banColumns+` FROM ban_history WHERE player_id = $1 ORDER BY created_at DESC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing bans: %w", err)
	}
	defer rows.Close()

	var records []store.BanRecord
	for rows.Next() {
		var b store.BanRecord
		if err := scanBan(rows, &b); err != nil {
			return nil, fmt.Errorf("scanning ban row: %w", err)
		}
		records = append(records, b)
	}
	return records, rows.Err()
}
