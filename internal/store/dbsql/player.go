package dbsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/store"
)

const playerColumns = `id, telegram_id, username, first_name, last_name,
	balance, total_earned, total_spent,
	ban_count, current_buyout_price, is_banned, ban_expires_at, last_ban_reason, last_ban_word,
	personal_banwords, games_played, games_won,
	created_at, updated_at, last_active_at`

// PlayerRepo implements store.PlayerRepository using database/sql.
type PlayerRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sql.DB, clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{db: db, clock: clk}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner, p *store.Player) error {
	return row.Scan(
		&p.ID, &p.TelegramID, &p.Username, &p.FirstName, &p.LastName,
		&p.Balance, &p.TotalEarned, &p.TotalSpent,
		&p.BanCount, &p.CurrentBuyoutPrice, &p.IsBanned, &p.BanExpiresAt, &p.LastBanReason, &p.LastBanWord,
		&p.PersonalBanwords, &p.GamesPlayed, &p.GamesWon,
		&p.CreatedAt, &p.UpdatedAt, &p.LastActiveAt,
	)
}

func (r *PlayerRepo) Create(ctx context.Context, p *store.Player) error {
	now := r.clock.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.LastActiveAt = now
	if p.PersonalBanwords == nil {
		p.PersonalBanwords = pq.StringArray{}
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO players (
		     telegram_id, username, first_name, last_name,
		     balance, current_buyout_price, personal_banwords,
		     created_at, updated_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)
		 RETURNING id`,
		p.TelegramID, p.Username, p.FirstName, p.LastName,
		p.Balance, p.CurrentBuyoutPrice, p.PersonalBanwords, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

func (r *PlayerRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*store.Player, error) {
	p := &store.Player{}
	err := scanPlayer(r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE telegram_id = $1`, telegramID), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player tg=%d: %w", telegramID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting player by telegram_id: %w", err)
	}
	return p, nil
}

func (r *PlayerRepo) GetByID(ctx context.Context, id int64) (*store.Player, error) {
	p := &store.Player{}
	err := scanPlayer(r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return p, nil
}

func (r *PlayerRepo) Touch(ctx context.Context, id int64, username, firstName, lastName string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players
		 SET username = $1, first_name = $2, last_name = $3,
		     last_active_at = $4, updated_at = $4
		 WHERE id = $5`,
		username, firstName, lastName, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touching player: %w", err)
	}
	return requireRow(result, id)
}

func (r *PlayerRepo) AdjustBalance(ctx context.Context, id int64, delta int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players
		 SET balance = balance + $1,
		     total_earned = total_earned + GREATEST($1, 0),
		     total_spent = total_spent + GREATEST(-$1, 0),
		     updated_at = $2
		 WHERE id = $3 AND balance + $1 >= 0`,
		delta, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("adjusting balance: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		var exists bool
		err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
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
		balance, r.clock.Now().UTC(), id,
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
		s.ExpiresAt, s.BuyoutPrice, string(s.Reason), s.Word, r.clock.Now().UTC(), s.PlayerID,
	)
	if err != nil {
		return fmt.Errorf("setting ban state: %w", err)
	}
	return requireRow(result, s.PlayerID)
}

func (r *PlayerRepo) ClearBan(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players SET is_banned = FALSE, ban_expires_at = NULL, updated_at = $1 WHERE id = $2`,
		r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("clearing ban: %w", err)
	}
	return requireRow(result, id)
}

func (r *PlayerRepo) SetPersonalBanwords(ctx context.Context, id int64, words []string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players SET personal_banwords = $1, updated_at = $2 WHERE id = $3`,
		pq.StringArray(words), r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting personal banwords: %w", err)
	}
	return requireRow(result, id)
}

func (r *PlayerRepo) ListBanned(ctx context.Context) ([]store.Player, error) {
	return r.list(ctx, `SELECT `+playerColumns+` FROM players WHERE is_banned ORDER BY ban_expires_at`)
}

func (r *PlayerRepo) List(ctx context.Context, limit int) ([]store.Player, error) {
	return r.list(ctx, `SELECT `+playerColumns+` FROM players ORDER BY balance DESC LIMIT $1`, limit)
}

func (r *PlayerRepo) list(ctx context.Context, query string, args ...any) ([]store.Player, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var players []store.Player
	for rows.Next() {
		var p store.Player
		if err := scanPlayer(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *PlayerRepo) RecordGame(ctx context.Context, s *store.GameSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.clock.Now().UTC()
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
