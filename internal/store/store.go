package store

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNegativeBalance is returned when a balance adjustment would commit a
// negative balance.
var ErrNegativeBalance = errors.New("balance would go negative")

// BanReason categorizes why a player was banned.
type BanReason string

const (
	ReasonLottery      BanReason = "lottery"
	ReasonWeeklyWord   BanReason = "weekly_word"
	ReasonPersonalWord BanReason = "personal_word"
	ReasonGlobalWord   BanReason = "global_word"
	ReasonManual       BanReason = "manual"
)

// Player represents a chat member with an economy account and ban state.
type Player struct {
	ID         int64   `db:"id"`
	TelegramID int64   `db:"telegram_id"`
	Username   string  `db:"username"`
	FirstName  string  `db:"first_name"`
	LastName   string  `db:"last_name"`

	Balance     int `db:"balance"`
	TotalEarned int `db:"total_earned"`
	TotalSpent  int `db:"total_spent"`

	BanCount           int        `db:"ban_count"`
	CurrentBuyoutPrice int        `db:"current_buyout_price"`
	IsBanned           bool       `db:"is_banned"`
	BanExpiresAt       *time.Time `db:"ban_expires_at"`
	LastBanReason      *string    `db:"last_ban_reason"`
	LastBanWord        *string    `db:"last_ban_word"`

	PersonalBanwords pq.StringArray `db:"personal_banwords"`

	GamesPlayed int `db:"games_played"`
	GamesWon    int `db:"games_won"`

	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastActiveAt time.Time `db:"last_active_at"`
}

// BanRecord represents one ban event in the audit trail.
type BanRecord struct {
	ID            int64      `db:"id"`
	PlayerID      int64      `db:"player_id"`
	Reason        BanReason  `db:"reason"`
	Word          *string    `db:"word"`
	Multiplier    int        `db:"multiplier"`
	BuyoutPrice   int        `db:"buyout_price"`
	DurationHours int        `db:"duration_hours"`
	ExpiresAt     time.Time  `db:"expires_at"`
	WasPaid       bool       `db:"was_paid"`
	CreatedAt     time.Time  `db:"created_at"`
	PaidAt        *time.Time `db:"paid_at"`
}

// GlobalBanword is a permanent watch-list entry, active until deactivated.
type GlobalBanword struct {
	ID             int64     `db:"id"`
	Word           string    `db:"word"`
	IsActive       bool      `db:"is_active"`
	TimesTriggered int       `db:"times_triggered"`
	CreatedAt      time.Time `db:"created_at"`
}

// WeeklyBanword is the rotating watch-word; at most one is active at a time.
type WeeklyBanword struct {
	ID             int64      `db:"id"`
	Word           string     `db:"word"`
	IsActive       bool       `db:"is_active"`
	WeekNumber     int        `db:"week_number"`
	TimesTriggered int        `db:"times_triggered"`
	CreatedAt      time.Time  `db:"created_at"`
	ExpiresAt      *time.Time `db:"expires_at"`
}

// LotteryWord is a candidate term for the weekly rotation pool.
type LotteryWord struct {
	ID        int64     `db:"id"`
	Word      string    `db:"word"`
	IsActive  bool      `db:"is_active"`
	TimesUsed int       `db:"times_used"`
	CreatedAt time.Time `db:"created_at"`
}

// GameSession records a single played game for a player.
type GameSession struct {
	ID        int64     `db:"id"`
	PlayerID  int64     `db:"player_id"`
	GameType  string    `db:"game_type"`
	Score     int       `db:"score"`
	BetAmount int       `db:"bet_amount"`
	WinAmount int       `db:"win_amount"`
	IsWin     bool      `db:"is_win"`
	CreatedAt time.Time `db:"created_at"`
}

// ChatSettings controls which notifications a chat receives.
type ChatSettings struct {
	ID               int64     `db:"id"`
	ChatID           int64     `db:"chat_id"`
	ChatTitle        string    `db:"chat_title"`
	NotifyOnBan      bool      `db:"notify_on_ban"`
	NotifyOnUnban    bool      `db:"notify_on_unban"`
	NotifyWeeklyWord bool      `db:"notify_weekly_word"`
	GamesEnabled     bool      `db:"games_enabled"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// BanState carries the denormalized ban fields written onto a Player when a
// ban is applied.
type BanState struct {
	PlayerID    int64
	Reason      BanReason
	Word        *string
	ExpiresAt   time.Time
	BuyoutPrice int
}

// PlayerRepository defines player persistence operations.
type PlayerRepository interface {
	Create(ctx context.Context, p *Player) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*Player, error)
	GetByID(ctx context.Context, id int64) (*Player, error)
	// Touch refreshes profile fields and last_active_at.
	Touch(ctx context.Context, id int64, username, firstName, lastName string) error
	// AdjustBalance applies delta and the matching total_earned/total_spent
	// bookkeeping. Returns ErrNegativeBalance without applying if the result
	// would be negative.
	AdjustBalance(ctx context.Context, id int64, delta int) error
	SetBalance(ctx context.Context, id int64, balance int) error
	// SetBanState marks the player banned and persists the new buyout price,
	// ban counter and last-ban fields in one update.
	SetBanState(ctx context.Context, s BanState) error
	// ClearBan resets is_banned and ban_expires_at.
	ClearBan(ctx context.Context, id int64) error
	SetPersonalBanwords(ctx context.Context, id int64, words []string) error
	ListBanned(ctx context.Context) ([]Player, error)
	List(ctx context.Context, limit int) ([]Player, error)
	// RecordGame inserts the session and bumps the player's game counters.
	RecordGame(ctx context.Context, s *GameSession) error
}

// BanRepository defines ban history persistence operations.
type BanRepository interface {
	Create(ctx context.Context, b *BanRecord) error
	// LatestUnpaid returns the most recent unpaid record for the player, or
	// ErrNotFound.
	LatestUnpaid(ctx context.Context, playerID int64) (*BanRecord, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
	ListByPlayer(ctx context.Context, playerID int64) ([]BanRecord, error)
}

// WordRepository defines watch-list persistence operations for the global,
// weekly and lottery-pool word tables.
type WordRepository interface {
	ListActiveGlobal(ctx context.Context) ([]GlobalBanword, error)
	CreateGlobal(ctx context.Context, word string) (*GlobalBanword, error)
	DeactivateGlobal(ctx context.Context, id int64) error
	IncrementGlobalTrigger(ctx context.Context, word string) error

	ListActiveWeekly(ctx context.Context) ([]WeeklyBanword, error)
	CreateWeekly(ctx context.Context, word string, weekNumber int, expiresAt time.Time) (*WeeklyBanword, error)
	DeactivateAllWeekly(ctx context.Context) error
	IncrementWeeklyTrigger(ctx context.Context, word string) error

	ListActivePool(ctx context.Context) ([]LotteryWord, error)
	CreatePoolWord(ctx context.Context, word string) (*LotteryWord, error)
	DeactivatePoolWord(ctx context.Context, id int64) error
	IncrementPoolUsage(ctx context.Context, id int64) error
}

// ChatRepository defines notification chat persistence operations.
type ChatRepository interface {
	Upsert(ctx context.Context, c *ChatSettings) error
	Get(ctx context.Context, chatID int64) (*ChatSettings, error)
	// ListNotify returns chats subscribed to at least one notification kind.
	ListNotify(ctx context.Context) ([]ChatSettings, error)
}
