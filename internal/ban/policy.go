// Package ban implements the ban pricing policy and the player ban
// lifecycle: applying bans, buyouts and time-based expiry.
package ban

import (
	"time"

	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/words"
)

// Penalty is the computed outcome of one offense.
type Penalty struct {
	Multiplier  int
	BuyoutPrice int
	Duration    time.Duration
}

// DurationHours returns the ban length in whole hours.
func (p Penalty) DurationHours() int {
	return int(p.Duration / time.Hour)
}

// Policy computes penalties from the configured multiplier and duration
// tables. It is pure: category and current price in, penalty out.
type Policy struct {
	multipliers map[store.BanReason]int
	durations   map[int]int
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(cfg config.BanConfig) Policy {
	return Policy{
		multipliers: map[store.BanReason]int{
			store.ReasonLottery:      cfg.LotteryMultiplier,
			store.ReasonWeeklyWord:   cfg.WeeklyMultiplier,
			store.ReasonPersonalWord: cfg.PersonalMultiplier,
			store.ReasonGlobalWord:   1,
			store.ReasonManual:       1,
		},
		durations: cfg.DurationHours,
	}
}

// Multiplier returns the configured multiplier for a category; unknown
// categories fall back to 1, same as manual bans.
func (p Policy) Multiplier(reason store.BanReason) int {
	if m, ok := p.multipliers[reason]; ok {
		return m
	}
	return 1
}

// Penalty computes the new buyout price and ban duration for an offense.
// The price only grows: newPrice = currentPrice * multiplier. Multipliers
// absent from the duration table resolve to 1 hour rather than failing.
func (p Policy) Penalty(reason store.BanReason, currentPrice int) Penalty {
	mult := p.Multiplier(reason)

	hours, ok := p.durations[mult]
	if !ok {
		hours = 1
	}

	return Penalty{
		Multiplier:  mult,
		BuyoutPrice: currentPrice * mult,
		Duration:    time.Duration(hours) * time.Hour,
	}
}

// ReasonFor maps a matched watch-list to its ban category.
func ReasonFor(list words.List) store.BanReason {
	switch list {
	case words.ListGlobal:
		return store.ReasonGlobalWord
	case words.ListWeekly:
		return store.ReasonWeeklyWord
	case words.ListPersonal:
		return store.ReasonPersonalWord
	default:
		return store.ReasonManual
	}
}
