package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

// PlayerRepo implements store.PlayerRepository with sqlx.
type PlayerRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sqlx.DB, clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{db: db, clk: clk}
}

func (r *PlayerRepo) Create(ctx context.Context, p *store.Player) error {
	query := `INSERT INTO players (
	             telegram_id, username, first_name, last_name,
	             balance, current_buyout_price, personal_banwords,
	             created_at, updated_at, last_active_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)
	          RETURNING id`
	now := r.clk.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.LastActiveAt = now
	if p.PersonalBanwords == nil {
		p.PersonalBanwords = pq.StringArray{}
	}
	err := r.db.QueryRowContext(ctx, query,
		p.TelegramID, p.Username, p.FirstName, p.LastName,
		p.Balance, p.CurrentBuyoutPrice, p.PersonalBanwords, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

func (r *PlayerRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*store.Player, error) {
	var p store.Player
	err := r.db.GetContext(ctx, &p, `SELECT * FROM players WHERE telegram_id = $1`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player tg=%d: %w", telegramID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting player by telegram_id: %w", err)
	}
	return &p, nil
}

func (r *PlayerRepo) GetByID(ctx context.Context, id int64) (*store.Player, error) {
	var p store.Player
	err := r.db.GetContext(ctx, &p, `SELECT * FROM players WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &p, nil
}

func (r *PlayerRepo) Touch(ctx context.Context, id int64, username, firstName, lastName string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players
		 SET username = $1, first_name = $2, last_name = $3,
		     last_active_at = $4, updated_at = $4
		 WHERE id = $5`,
		username, firstName, lastName, r.clk.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touching player: %w", err)
	}
	return requireRow(result, id)
}

func (r *PlayerRepo) AdjustBalance(ctx context.Context, id int64, delta int) error {
	// The WHERE clause enforces the non-negative invariant in the same
	// statement, so concurrent debits cannot overdraw.
	result, err := r.db.ExecContext(ctx,
		`UPDATE players
		 SET balance = balance + $1,
		     total_earned = total_earned + GREATEST($1, 0),
		     total_spent = total_spent + GREATEST(-$1, 0),
		     updated_at = $2
		 WHERE id = $3 AND balance + $1 >= 0`,
		delta, r.clk.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("adjusting balance: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Either the player does not exist or the debit would overdraw.
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("checking player: %w", err)
		}
		if !exists {
			return fmt.Errorf("player %d: %w", id, store.ErrNotFound)
		}
		return store.ErrNegativeBalance
	}
	return nil
}

func (r *PlayerRepo) SetBalance(ctx context.Context, id int64, balance int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance, r.clk.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting balance: %w", err)
	}
	return requireRow(result, id)
}

func (r *PlayerRepo) SetBanState(ctx context.Context, s store.BanState) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players
		 SET is_banned = TRUE,
		     ban_expires_at = $1,
		     ban_count = ban_count + 1,
		     current_buyout_price = $2,
		     last_ban_reason = $3,
		     last_ban_word = $4,
		     updated_at = $5
		 WHERE id = $6`,
		s.ExpiresAt, s.BuyoutPrice, string(s.Reason), s.Word, r.clk.Now().UTC(), s.PlayerID,
	)
	if err != nil {
		return fmt.Errorf("setting ban state: %w", err)
	}
	return requireRow(result, s.PlayerID)
}

func (r *PlayerRepo) ClearBan(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players SET is_banned = FALSE, ban_expires_at = NULL, updated_at = $1 WHERE id = $2`,
		r.clk.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("clearing ban: %w", err)
	}
	return requireRow(result, id)
}

func (r *PlayerRepo) SetPersonalBanwords(ctx context.Context, id int64, words []string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players SET personal_banwords = $1, updated_at = $2 WHERE id = $3`,
		pq.StringArray(words), r.clk.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting personal banwords: %w", err)
	}
	return requireRow(result, id)
}

func (r *PlayerRepo) ListBanned(ctx context.Context) ([]store.Player, error) {
	var players []store.Player
	err := r.db.SelectContext(ctx, &players, `SELECT * FROM players WHERE is_banned ORDER BY ban_expires_at`)
	if err != nil {
		return nil, fmt.Errorf("listing banned players: %w", err)
	}
	return players, nil
}

func (r *PlayerRepo) List(ctx context.Context, limit int) ([]store.Player, error) {
	var players []store.Player
	err := r.db.SelectContext(ctx, &players, `SELECT * FROM players ORDER BY balance DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return players, nil
}

func (r *PlayerRepo) RecordGame(ctx context.Context, s *store.GameSession) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.clk.Now().UTC()
	s.CreatedAt = now
	err = tx.QueryRowContext(ctx,
		`INSERT INTO game_sessions (player_id, game_type, score, bet_amount, win_amount, is_win, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		s.PlayerID, s.GameType, s.Score, s.BetAmount, s.WinAmount, s.IsWin, now,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("inserting game session: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE players
		 SET games_played = games_played + 1,
		     games_won = games_won + CASE WHEN $1 THEN 1 ELSE 0 END,
		     updated_at = $2
		 WHERE id = $3`,
		s.IsWin, now, s.PlayerID,
	)
	if err != nil {
		return fmt.Errorf("updating game counters: %w", err)
	}
	if err := requireRow(result, s.PlayerID); err != nil {
		return err
	}

	return tx.Commit()
}

// requireRow converts a zero-row update into store.ErrNotFound.
func requireRow(result sql.Result, playerID int64) error {
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("player %d: %w", playerID, store.ErrNotFound)
	}
	return nil
}
