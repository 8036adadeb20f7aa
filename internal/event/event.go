package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	PlayerRegistered Type = "player.registered"
	BalanceAdjusted  Type = "balance.adjusted"

	BanApplied   Type = "ban.applied"
	BanBoughtOut Type = "ban.bought_out"
	BanExpired   Type = "ban.expired"
	BanLifted    Type = "ban.lifted"

	WeeklyWordRotated Type = "weekly_word.rotated"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// PlayerRegisteredData is the payload for PlayerRegistered events.
type PlayerRegisteredData struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
}

// BalanceAdjustedData is the payload for BalanceAdjusted events.
type BalanceAdjustedData struct {
	PlayerID int64  `json:"player_id"`
	Delta    int    `json:"delta"`
	Reason   string `json:"reason"`
}

// BanAppliedData is the payload for BanApplied events.
type BanAppliedData struct {
	PlayerID      int64     `json:"player_id"`
	Reason        string    `json:"reason"`
	Word          string    `json:"word,omitempty"`
	Multiplier    int       `json:"multiplier"`
	BuyoutPrice   int       `json:"buyout_price"`
	DurationHours int       `json:"duration_hours"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// BanBoughtOutData is the payload for BanBoughtOut events.
type BanBoughtOutData struct {
	PlayerID   int64 `json:"player_id"`
	Paid       int   `json:"paid"`
	NewBalance int   `json:"new_balance"`
}

// BanExpiredData is the payload for BanExpired events.
type BanExpiredData struct {
	PlayerID int64 `json:"player_id"`
}

// BanLiftedData is the payload for BanLifted events.
type BanLiftedData struct {
	PlayerID int64 `json:"player_id"`
}

// WeeklyWordRotatedData is the payload for WeeklyWordRotated events.
type WeeklyWordRotatedData struct {
	Word       string `json:"word"`
	WeekNumber int    `json:"week_number"`
}
