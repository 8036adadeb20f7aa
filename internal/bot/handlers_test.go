package bot_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mkuznetsov/banword-bot/internal/ban"
	"github.com/mkuznetsov/banword-bot/internal/bot"
	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/economy"
	"github.com/mkuznetsov/banword-bot/internal/event"
	"github.com/mkuznetsov/banword-bot/internal/lottery"
	"github.com/mkuznetsov/banword-bot/internal/notify"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/words"
)

var testTP = noop.NewTracerProvider()

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

const (
	chatID      = int64(-100200300)
	adminTgID   = int64(99)
	regularTgID = int64(5001)
)

// fakeAPI records everything the handlers try to send to Telegram.
type fakeAPI struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// lastText returns the text of the last sent message.
func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("last sent is %T, want MessageConfig", f.sent[len(f.sent)-1])
	}
	return msg.Text
}

func (f *fakeAPI) deleteCount() int {
	n := 0
	for _, r := range f.requests {
		if _, ok := r.(tgbotapi.DeleteMessageConfig); ok {
			n++
		}
	}
	return n
}

// mockPlayerRepo is an in-memory store.PlayerRepository with working
// registration, balance, ban-state and personal-word semantics.
type mockPlayerRepo struct {
	players map[int64]*store.Player
	nextID  int64
}

func newMockPlayerRepo() *mockPlayerRepo {
	return &mockPlayerRepo{players: make(map[int64]*store.Player), nextID: 1}
}

func (m *mockPlayerRepo) Create(_ context.Context, p *store.Player) error {
	p.ID = m.nextID
	m.nextID++
	m.players[p.ID] = p
	return nil
}

func (m *mockPlayerRepo) GetByTelegramID(_ context.Context, telegramID int64) (*store.Player, error) {
	for _, p := range m.players {
		if p.TelegramID == telegramID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("player tg=%d: %w", telegramID, store.ErrNotFound)
}

func (m *mockPlayerRepo) GetByID(_ context.Context, id int64) (*store.Player, error) {
	p, ok := m.players[id]
	if !ok {
		return nil, fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	return p, nil
}

func (m *mockPlayerRepo) Touch(_ context.Context, _ int64, _, _, _ string) error { return nil }

func (m *mockPlayerRepo) AdjustBalance(_ context.Context, id int64, delta int) error {
	p, ok := m.players[id]
	if !ok {
		return fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	if p.Balance+delta < 0 {
		return store.ErrNegativeBalance
	}
	p.Balance += delta
	if delta > 0 {
		p.TotalEarned += delta
	} else {
		p.TotalSpent += -delta
	}
	return nil
}

func (m *mockPlayerRepo) SetBalance(_ context.Context, id int64, balance int) error {
	p, ok := m.players[id]
	if !ok {
		return fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	p.Balance = balance
	return nil
}

func (m *mockPlayerRepo) SetBanState(_ context.Context, s store.BanState) error {
	p, ok := m.players[s.PlayerID]
	if !ok {
		return fmt.Errorf("player %d: %w", s.PlayerID, store.ErrNotFound)
	}
	reason := string(s.Reason)
	expires := s.ExpiresAt
	p.IsBanned = true
	p.BanExpiresAt = &expires
	p.BanCount++
	p.LastBanReason = &reason
	p.LastBanWord = s.Word
	p.CurrentBuyoutPrice = s.BuyoutPrice
	return nil
}

func (m *mockPlayerRepo) ClearBan(_ context.Context, id int64) error {
	p, ok := m.players[id]
	if !ok {
		return fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	p.IsBanned = false
	p.BanExpiresAt = nil
	return nil
}

func (m *mockPlayerRepo) SetPersonalBanwords(_ context.Context, id int64, list []string) error {
	p, ok := m.players[id]
	if !ok {
		return fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	p.PersonalBanwords = pq.StringArray(list)
	return nil
}

func (m *mockPlayerRepo) ListBanned(_ context.Context) ([]store.Player, error) {
	var out []store.Player
	for _, p := range m.players {
		if p.IsBanned {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPlayerRepo) List(_ context.Context, limit int) ([]store.Player, error) {
	var out []store.Player
	for _, p := range m.players {
		out = append(out, *p)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockPlayerRepo) RecordGame(_ context.Context, _ *store.GameSession) error { return nil }

func (m *mockPlayerRepo) byTelegramID(t *testing.T, telegramID int64) *store.Player {
	t.Helper()
	p, err := m.GetByTelegramID(context.Background(), telegramID)
	if err != nil {
		t.Fatalf("player tg=%d not found", telegramID)
	}
	return p
}

// mockBanRepo is an in-memory store.BanRepository.
type mockBanRepo struct {
	records map[int64]*store.BanRecord
	nextID  int64
}

func newMockBanRepo() *mockBanRepo {
	return &mockBanRepo{records: make(map[int64]*store.BanRecord), nextID: 1}
}

func (m *mockBanRepo) Create(_ context.Context, b *store.BanRecord) error {
	b.ID = m.nextID
	b.CreatedAt = testNow.Add(time.Duration(m.nextID) * time.Second)
	m.nextID++
	cp := *b
	m.records[cp.ID] = &cp
	return nil
}

func (m *mockBanRepo) LatestUnpaid(_ context.Context, playerID int64) (*store.BanRecord, error) {
	var latest *store.BanRecord
	for _, r := range m.records {
		if r.PlayerID != playerID || r.WasPaid {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("unpaid ban for player %d: %w", playerID, store.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (m *mockBanRepo) MarkPaid(_ context.Context, id int64, paidAt time.Time) error {
	r, ok := m.records[id]
	if !ok {
		return fmt.Errorf("ban %d: %w", id, store.ErrNotFound)
	}
	r.WasPaid = true
	r.PaidAt = &paidAt
	return nil
}

func (m *mockBanRepo) ListByPlayer(_ context.Context, playerID int64) ([]store.BanRecord, error) {
	var out []store.BanRecord
	for _, r := range m.records {
		if r.PlayerID == playerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// mockWordRepo is an in-memory store.WordRepository covering all three lists.
type mockWordRepo struct {
	global []store.GlobalBanword
	weekly []store.WeeklyBanword
	pool   []store.LotteryWord
	nextID int64
}

func newMockWordRepo() *mockWordRepo { return &mockWordRepo{nextID: 1} }

func (m *mockWordRepo) ListActiveGlobal(context.Context) ([]store.GlobalBanword, error) {
	var out []store.GlobalBanword
	for _, w := range m.global {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWordRepo) CreateGlobal(_ context.Context, word string) (*store.GlobalBanword, error) {
	w := store.GlobalBanword{ID: m.nextID, Word: word, IsActive: true}
	m.nextID++
	m.global = append(m.global, w)
	return &w, nil
}

func (m *mockWordRepo) DeactivateGlobal(_ context.Context, id int64) error {
	for i := range m.global {
		if m.global[i].ID == id {
			m.global[i].IsActive = false
			return nil
		}
	}
	return fmt.Errorf("global banword %d: %w", id, store.ErrNotFound)
}

func (m *mockWordRepo) IncrementGlobalTrigger(_ context.Context, word string) error {
	for i := range m.global {
		if m.global[i].Word == word {
			m.global[i].TimesTriggered++
			return nil
		}
	}
	return fmt.Errorf("global banword %q: %w", word, store.ErrNotFound)
}

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
	w := store.WeeklyBanword{ID: m.nextID, Word: word, IsActive: true, WeekNumber: weekNumber, ExpiresAt: &expiresAt}
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

func (m *mockWordRepo) IncrementWeeklyTrigger(_ context.Context, word string) error {
	for i := range m.weekly {
		if m.weekly[i].Word == word {
			m.weekly[i].TimesTriggered++
			return nil
		}
	}
	return fmt.Errorf("weekly banword %q: %w", word, store.ErrNotFound)
}

func (m *mockWordRepo) ListActivePool(context.Context) ([]store.LotteryWord, error) {
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

// mockChatRepo is an in-memory store.ChatRepository.
type mockChatRepo struct {
	chats map[int64]*store.ChatSettings
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{chats: make(map[int64]*store.ChatSettings)}
}

func (m *mockChatRepo) Upsert(_ context.Context, c *store.ChatSettings) error {
	cp := *c
	m.chats[c.ChatID] = &cp
	return nil
}

func (m *mockChatRepo) Get(_ context.Context, chatID int64) (*store.ChatSettings, error) {
	c, ok := m.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %d: %w", chatID, store.ErrNotFound)
	}
	return c, nil
}

func (m *mockChatRepo) ListNotify(_ context.Context) ([]store.ChatSettings, error) {
	var out []store.ChatSettings
	for _, c := range m.chats {
		out = append(out, *c)
	}
	return out, nil
}

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

type botFixture struct {
	api     *fakeAPI
	players *mockPlayerRepo
	bans    *mockBanRepo
	words   *mockWordRepo
	chats   *mockChatRepo
	clk     *clock.Mock
	cache   *words.Cache
	h       *bot.Handlers
}

func newBotFixture(t *testing.T, globalWords ...string) *botFixture {
	t.Helper()

	banCfg := config.BanConfig{
		StartingBalance:    1000,
		BaseBuyoutPrice:    100,
		LotteryMultiplier:  2,
		WeeklyMultiplier:   4,
		PersonalMultiplier: 4,
		DurationHours:      map[int]int{1: 1, 2: 2, 4: 8},
	}

	f := &botFixture{
		api:     &fakeAPI{},
		players: newMockPlayerRepo(),
		bans:    newMockBanRepo(),
		words:   newMockWordRepo(),
		chats:   newMockChatRepo(),
		clk:     &clock.Mock{T: testNow},
	}
	for _, w := range globalWords {
		if _, err := f.words.CreateGlobal(context.Background(), w); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.Default()
	events := &mockEventStore{}
	notifier := notify.LogNotifier{Logger: logger}

	f.cache = words.NewCache(f.words, f.players, logger, testTP, f.clk)
	if err := f.cache.ReloadAll(context.Background()); err != nil {
		t.Fatalf("warming cache: %v", err)
	}

	eco := economy.NewManager(f.players, events, f.cache, banCfg, logger, testTP)
	bans := ban.NewManager(f.players, f.bans, events, notifier, ban.NewPolicy(banCfg), logger, testTP, f.clk)
	rotator := lottery.NewRotator(f.words, f.cache, events, notifier, config.LotteryConfig{}, logger, testTP, f.clk)

	tgCfg := config.TelegramConfig{AdminIDs: []int64{adminTgID}}
	f.h = bot.NewHandlers(f.api, tgCfg, eco, bans, rotator, f.cache, f.words, f.chats, logger, testTP, f.clk)
	return f
}

// update builds a group-chat text update; commands get the bot_command
// entity Telegram would attach.
func update(fromTgID int64, username, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 42,
		From:      &tgbotapi.User{ID: fromTgID, UserName: username, FirstName: "Test"},
		Chat:      &tgbotapi.Chat{ID: chatID, Title: "test chat"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmdLen := strings.IndexAny(text, " \n")
		if cmdLen < 0 {
			cmdLen = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestHandlers_GlobalWordBansAndDeletes(t *testing.T) {
	f := newBotFixture(t, "badger")

	f.h.HandleUpdate(context.Background(), update(regularTgID, "alice", "what a BADGER of a day"))

	p := f.players.byTelegramID(t, regularTgID)
	if !p.IsBanned {
		t.Fatal("player not banned after saying a global word")
	}
	if p.CurrentBuyoutPrice != 100 {
		t.Errorf("buyout price = %d, want 100 (global x1)", p.CurrentBuyoutPrice)
	}
	if f.api.deleteCount() != 1 {
		t.Errorf("delete requests = %d, want 1", f.api.deleteCount())
	}
	if f.words.global[0].TimesTriggered != 1 {
		t.Errorf("trigger count = %d, want 1", f.words.global[0].TimesTriggered)
	}
	if got := f.api.lastText(t); !strings.Contains(got, "banned") {
		t.Errorf("reply %q should announce the ban", got)
	}
}

func TestHandlers_CleanMessageIgnored(t *testing.T) {
	f := newBotFixture(t, "badger")

	f.h.HandleUpdate(context.Background(), update(regularTgID, "alice", "a perfectly fine sentence"))

	if f.players.byTelegramID(t, regularTgID).IsBanned {
		t.Error("clean message got the player banned")
	}
	if len(f.api.sent) != 0 || len(f.api.requests) != 0 {
		t.Errorf("sent %d messages and %d requests for a clean message", len(f.api.sent), len(f.api.requests))
	}
}

func TestHandlers_BotAndNilSendersIgnored(t *testing.T) {
	f := newBotFixture(t, "badger")

	u := update(regularTgID, "robo", "badger")
	u.Message.From.IsBot = true
	f.h.HandleUpdate(context.Background(), u)
	f.h.HandleUpdate(context.Background(), tgbotapi.Update{})

	if len(f.players.players) != 0 {
		t.Error("bot or empty update registered a player")
	}
}

func TestHandlers_BalanceCommand(t *testing.T) {
	f := newBotFixture(t)

	f.h.HandleUpdate(context.Background(), update(regularTgID, "alice", "/balance"))

	if got := f.api.lastText(t); !strings.Contains(got, "1000 points") {
		t.Errorf("reply %q should show the starting balance", got)
	}
}

func TestHandlers_BuyoutCommand(t *testing.T) {
	f := newBotFixture(t, "badger")
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "/buyout"))
	if got := f.api.lastText(t); !strings.Contains(got, "not banned") {
		t.Errorf("reply %q should say not banned", got)
	}

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "badger"))
	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "/buyout"))

	if got := f.api.lastText(t); !strings.Contains(got, "100 points") {
		t.Errorf("reply %q should show the amount paid", got)
	}
	p := f.players.byTelegramID(t, regularTgID)
	if p.IsBanned {
		t.Error("player still banned after buyout")
	}
	if p.Balance != 900 {
		t.Errorf("balance = %d, want 900", p.Balance)
	}
}

func TestHandlers_BannedPlayerStaysSilenced(t *testing.T) {
	f := newBotFixture(t, "badger")
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "badger"))
	if f.api.deleteCount() != 1 {
		t.Fatalf("delete requests = %d, want 1", f.api.deleteCount())
	}

	// While banned even clean messages are removed.
	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "let me speak"))
	if f.api.deleteCount() != 2 {
		t.Errorf("delete requests = %d, want 2", f.api.deleteCount())
	}
}

func TestHandlers_BanExpiresOnNextActivity(t *testing.T) {
	f := newBotFixture(t, "badger")
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "badger"))
	if !f.players.byTelegramID(t, regularTgID).IsBanned {
		t.Fatal("player not banned")
	}

	// Global ban lasts 1 hour.
	f.clk.Advance(2 * time.Hour)
	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "hello again"))

	if f.players.byTelegramID(t, regularTgID).IsBanned {
		t.Error("expired ban not lifted on next activity")
	}
}

func TestHandlers_PersonalWordFlow(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "/addword Quokka"))
	if got := f.api.lastText(t); !strings.Contains(got, "Added") {
		t.Fatalf("reply %q should confirm the add", got)
	}

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "/mywords"))
	if got := f.api.lastText(t); !strings.Contains(got, "quokka") {
		t.Errorf("reply %q should list the normalized word", got)
	}

	// Saying the own watch-word is a personal-word ban (x4).
	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "I saw a quokka today"))
	p := f.players.byTelegramID(t, regularTgID)
	if !p.IsBanned {
		t.Fatal("player not banned by their own word")
	}
	if p.CurrentBuyoutPrice != 400 {
		t.Errorf("buyout price = %d, want 400 (personal x4)", p.CurrentBuyoutPrice)
	}
}

func TestHandlers_AdminGate(t *testing.T) {
	f := newBotFixture(t)

	f.h.HandleUpdate(context.Background(), update(regularTgID, "alice", "/banword snake"))

	if got := f.api.lastText(t); !strings.Contains(got, "admins only") {
		t.Errorf("reply %q should refuse non-admins", got)
	}
	if len(f.words.global) != 0 {
		t.Error("non-admin created a global banword")
	}
}

func TestHandlers_AdminBanword(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(adminTgID, "boss", "/banword Snake"))
	if len(f.words.global) != 1 || f.words.global[0].Word != "snake" {
		t.Fatalf("global words = %+v, want one normalized snake", f.words.global)
	}

	// The cache reloads immediately: the next message triggers.
	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "sneaky SNAKE"))
	if !f.players.byTelegramID(t, regularTgID).IsBanned {
		t.Error("new global word did not take effect")
	}
}

func TestHandlers_AdminRotateAndPool(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(adminTgID, "boss", "/rotate"))
	if got := f.api.lastText(t); !strings.Contains(got, "empty") {
		t.Errorf("reply %q should report the empty pool", got)
	}

	f.h.HandleUpdate(ctx, update(adminTgID, "boss", "/addpool zephyr gizmo"))
	if len(f.words.pool) != 2 {
		t.Fatalf("pool size = %d, want 2", len(f.words.pool))
	}

	f.h.HandleUpdate(ctx, update(adminTgID, "boss", "/rotate"))
	if got := f.api.lastText(t); !strings.Contains(got, "week 23") {
		t.Errorf("reply %q should name ISO week 23", got)
	}

	active, err := f.words.ListActiveWeekly(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("active weekly = (%v, %v), want exactly one", active, err)
	}

	// The rotated word bans on sight.
	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "say "+active[0].Word+" out loud"))
	p := f.players.byTelegramID(t, regularTgID)
	if !p.IsBanned {
		t.Fatal("weekly word did not ban")
	}
	if p.CurrentBuyoutPrice != 400 {
		t.Errorf("buyout price = %d, want 400 (weekly x4)", p.CurrentBuyoutPrice)
	}
}

func TestHandlers_AdminUnban(t *testing.T) {
	f := newBotFixture(t, "badger")
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "badger"))
	if !f.players.byTelegramID(t, regularTgID).IsBanned {
		t.Fatal("player not banned")
	}

	f.h.HandleUpdate(ctx, update(adminTgID, "boss", fmt.Sprintf("/unban %d", regularTgID)))

	p := f.players.byTelegramID(t, regularTgID)
	if p.IsBanned {
		t.Error("player still banned after /unban")
	}
	if p.Balance != 1000 {
		t.Errorf("balance = %d, want 1000 (admin unban is free)", p.Balance)
	}
}

func TestHandlers_AdminSetBalance(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.h.HandleUpdate(ctx, update(regularTgID, "alice", "hello"))
	f.h.HandleUpdate(ctx, update(adminTgID, "boss", fmt.Sprintf("/setbalance %d 250", regularTgID)))

	if got := f.players.byTelegramID(t, regularTgID).Balance; got != 250 {
		t.Errorf("balance = %d, want 250", got)
	}
}

func TestHandlers_SetChat(t *testing.T) {
	f := newBotFixture(t)

	f.h.HandleUpdate(context.Background(), update(adminTgID, "boss", "/setchat"))

	c, err := f.chats.Get(context.Background(), chatID)
	if err != nil {
		t.Fatalf("chat not registered: %v", err)
	}
	if !c.NotifyOnBan || !c.NotifyOnUnban || !c.NotifyWeeklyWord {
		t.Errorf("chat flags = %+v, want all notifications on", c)
	}
}

func TestHandlers_UnknownCommand(t *testing.T) {
	f := newBotFixture(t)

	f.h.HandleUpdate(context.Background(), update(regularTgID, "alice", "/frobnicate"))

	if got := f.api.lastText(t); !strings.Contains(got, "Unknown command") {
		t.Errorf("reply %q should point at /help", got)
	}
}
