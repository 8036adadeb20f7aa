package lottery_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/event"
	"github.com/mkuznetsov/banword-bot/internal/lottery"
	"github.com/mkuznetsov/banword-bot/internal/notify"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/words"
)

var testTP = noop.NewTracerProvider()

// 2025-06-02 is a Monday in ISO week 23.
var testNow = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type mockWordRepo struct {
	pool    []store.LotteryWord
	weekly  []store.WeeklyBanword
	nextID  int64
	poolErr error
}

func newMockWordRepo(poolWords ...string) *mockWordRepo {
	m := &mockWordRepo{nextID: 1}
	for _, w := range poolWords {
		m.pool = append(m.pool, store.LotteryWord{ID: m.nextID, Word: w, IsActive: true})
		m.nextID++
	}
	return m
}

func (m *mockWordRepo) ListActiveGlobal(context.Context) ([]store.GlobalBanword, error) {
	return nil, nil
}
func (m *mockWordRepo) CreateGlobal(context.Context, string) (*store.GlobalBanword, error) {
	return nil, nil
}
func (m *mockWordRepo) DeactivateGlobal(context.Context, int64) error        { return nil }
func (m *mockWordRepo) IncrementGlobalTrigger(context.Context, string) error { return nil }

func (m *mockWordRepo) ListActiveWeekly(context.Context) ([]store.WeeklyBanword, error) {
	var out []store.WeeklyBanword
	for _, w := range m.weekly {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWordRepo) CreateWeekly(_ context.Context, word string, weekNumber int, expiresAt time.Time) (*store.WeeklyBanword, error) {
	w := store.WeeklyBanword{
		ID:         m.nextID,
		Word:       word,
		IsActive:   true,
		WeekNumber: weekNumber,
		ExpiresAt:  &expiresAt,
	}
	m.nextID++
	m.weekly = append(m.weekly, w)
	return &w, nil
}

func (m *mockWordRepo) DeactivateAllWeekly(context.Context) error {
	for i := range m.weekly {
		m.weekly[i].IsActive = false
	}
	return nil
}

func (m *mockWordRepo) IncrementWeeklyTrigger(context.Context, string) error { return nil }

func (m *mockWordRepo) ListActivePool(context.Context) ([]store.LotteryWord, error) {
	if m.poolErr != nil {
		return nil, m.poolErr
	}
	var out []store.LotteryWord
	for _, w := range m.pool {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWordRepo) CreatePoolWord(_ context.Context, word string) (*store.LotteryWord, error) {
	w := store.LotteryWord{ID: m.nextID, Word: word, IsActive: true}
	m.nextID++
	m.pool = append(m.pool, w)
	return &w, nil
}

func (m *mockWordRepo) DeactivatePoolWord(_ context.Context, id int64) error {
	for i := range m.pool {
		if m.pool[i].ID == id {
			m.pool[i].IsActive = false
			return nil
		}
	}
	return fmt.Errorf("pool word %d: %w", id, store.ErrNotFound)
}

func (m *mockWordRepo) IncrementPoolUsage(_ context.Context, id int64) error {
	for i := range m.pool {
		if m.pool[i].ID == id {
			m.pool[i].TimesUsed++
			return nil
		}
	}
	return fmt.Errorf("pool word %d: %w", id, store.ErrNotFound)
}

type stubPlayerRepo struct{}

func (stubPlayerRepo) Create(context.Context, *store.Player) error { return nil }
func (stubPlayerRepo) GetByTelegramID(context.Context, int64) (*store.Player, error) {
	return nil, store.ErrNotFound
}
func (stubPlayerRepo) GetByID(context.Context, int64) (*store.Player, error) {
	return &store.Player{}, nil
}
func (stubPlayerRepo) Touch(context.Context, int64, string, string, string) error { return nil }
func (stubPlayerRepo) AdjustBalance(context.Context, int64, int) error            { return nil }
func (stubPlayerRepo) SetBalance(context.Context, int64, int) error               { return nil }
func (stubPlayerRepo) SetBanState(context.Context, store.BanState) error          { return nil }
func (stubPlayerRepo) ClearBan(context.Context, int64) error                      { return nil }
func (stubPlayerRepo) SetPersonalBanwords(context.Context, int64, []string) error { return nil }
func (stubPlayerRepo) ListBanned(context.Context) ([]store.Player, error)         { return nil, nil }
func (stubPlayerRepo) List(context.Context, int) ([]store.Player, error)          { return nil, nil }
func (stubPlayerRepo) RecordGame(context.Context, *store.GameSession) error       { return nil }

type mockEventStore struct {
	events []event.Event
}

func (m *mockEventStore) Append(_ context.Context, events ...event.Event) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEventStore) Load(context.Context, string) ([]event.Event, error) {
	return m.events, nil
}

func (m *mockEventStore) LoadByType(_ context.Context, t event.Type) ([]event.Event, error) {
	var out []event.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockNotifier struct {
	sent []notify.Event
}

func (m *mockNotifier) Notify(_ context.Context, e notify.Event) error {
	m.sent = append(m.sent, e)
	return nil
}

type fixture struct {
	repo     *mockWordRepo
	cache    *words.Cache
	events   *mockEventStore
	notifier *mockNotifier
	clk      *clock.Mock
	rot      *lottery.Rotator
}

func newFixture(poolWords ...string) *fixture {
	f := &fixture{
		repo:     newMockWordRepo(poolWords...),
		events:   &mockEventStore{},
		notifier: &mockNotifier{},
		clk:      &clock.Mock{T: testNow},
	}
	f.cache = words.NewCache(f.repo, stubPlayerRepo{}, slog.Default(), testTP, f.clk)
	f.rot = lottery.NewRotator(
		f.repo, f.cache, f.events, f.notifier,
		config.LotteryConfig{Enabled: true, RotationWeekday: time.Monday, RotationHour: 0},
		slog.Default(), testTP, f.clk,
	)
	return f
}

func (f *fixture) activeWeekly(t *testing.T) []store.WeeklyBanword {
	t.Helper()
	active, err := f.repo.ListActiveWeekly(context.Background())
	if err != nil {
		t.Fatalf("ListActiveWeekly() error = %v", err)
	}
	return active
}

func TestRotator_Rotate(t *testing.T) {
	f := newFixture("zephyr", "quasar", "nimbus")

	weekly, err := f.rot.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	found := false
	for _, w := range f.repo.pool {
		if w.Word == weekly.Word {
			found = true
			if w.TimesUsed != 1 {
				t.Errorf("drawn word usage = %d, want 1", w.TimesUsed)
			}
		} else if w.TimesUsed != 0 {
			t.Errorf("undrawn word %q usage = %d, want 0", w.Word, w.TimesUsed)
		}
	}
	if !found {
		t.Fatalf("drawn word %q is not from the pool", weekly.Word)
	}

	if weekly.WeekNumber != 23 {
		t.Errorf("week number = %d, want 23", weekly.WeekNumber)
	}
	if weekly.ExpiresAt == nil || !weekly.ExpiresAt.Equal(testNow.Add(7*24*time.Hour)) {
		t.Errorf("expires at %v, want %v", weekly.ExpiresAt, testNow.Add(7*24*time.Hour))
	}

	if active := f.activeWeekly(t); len(active) != 1 {
		t.Errorf("active weekly words = %d, want 1", len(active))
	}

	// The cache must serve the new word immediately.
	res, err := f.cache.Check(context.Background(), 1, "the "+weekly.Word+" rises")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.Matched || res.List != words.ListWeekly {
		t.Errorf("cache result = %+v, want weekly match", res)
	}

	if len(f.events.events) != 1 || f.events.events[0].Type != event.WeeklyWordRotated {
		t.Errorf("events = %+v, want one weekly_word.rotated", f.events.events)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Kind != notify.WeeklyWordRotated {
		t.Errorf("notifications = %+v, want one rotation notice", f.notifier.sent)
	}
	if f.notifier.sent[0].WeekNumber != 23 {
		t.Errorf("notified week = %d, want 23", f.notifier.sent[0].WeekNumber)
	}
}

func TestRotator_Rotate_ReplacesPrevious(t *testing.T) {
	f := newFixture("zephyr", "quasar")

	for i := 0; i < 3; i++ {
		if _, err := f.rot.Rotate(context.Background()); err != nil {
			t.Fatalf("Rotate() #%d error = %v", i+1, err)
		}
	}

	if active := f.activeWeekly(t); len(active) != 1 {
		t.Errorf("active weekly words after 3 rotations = %d, want 1", len(active))
	}
	if len(f.repo.weekly) != 3 {
		t.Errorf("weekly history rows = %d, want 3", len(f.repo.weekly))
	}
}

func TestRotator_Rotate_EmptyPool(t *testing.T) {
	f := newFixture("zephyr")

	// Establish a current word, then drain the pool.
	prev, err := f.rot.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	for i := range f.repo.pool {
		f.repo.pool[i].IsActive = false
	}

	_, err = f.rot.Rotate(context.Background())
	if !errors.Is(err, lottery.ErrPoolEmpty) {
		t.Fatalf("Rotate() error = %v, want ErrPoolEmpty", err)
	}

	// The previous word must survive a failed draw.
	active := f.activeWeekly(t)
	if len(active) != 1 || active[0].Word != prev.Word {
		t.Errorf("active weekly = %+v, want %q kept", active, prev.Word)
	}
	if len(f.events.events) != 1 {
		t.Errorf("events = %d, want only the first rotation's", len(f.events.events))
	}
}

func TestRotator_AddWords(t *testing.T) {
	f := newFixture()

	created, err := f.rot.AddWords(context.Background(), []string{" Zephyr ", "zephyr", "QUASAR", ""})
	if err != nil {
		t.Fatalf("AddWords() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %v, want 2 after normalization", created)
	}
	if created[0].Word != "zephyr" || created[1].Word != "quasar" {
		t.Errorf("created = %v, want [zephyr quasar]", created)
	}

	pool, err := f.rot.Pool(context.Background())
	if err != nil {
		t.Fatalf("Pool() error = %v", err)
	}
	if len(pool) != 2 {
		t.Errorf("pool = %d words, want 2", len(pool))
	}
}

func TestRotator_RemoveWord(t *testing.T) {
	f := newFixture("zephyr", "quasar")

	if err := f.rot.RemoveWord(context.Background(), 1); err != nil {
		t.Fatalf("RemoveWord() error = %v", err)
	}
	pool, err := f.rot.Pool(context.Background())
	if err != nil {
		t.Fatalf("Pool() error = %v", err)
	}
	if len(pool) != 1 || pool[0].Word != "quasar" {
		t.Errorf("pool = %+v, want only quasar", pool)
	}

	if err := f.rot.RemoveWord(context.Background(), 99); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("RemoveWord(99) error = %v, want ErrNotFound", err)
	}
}
