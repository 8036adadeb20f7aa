package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkuznetsov/banword-bot/internal/ban"
	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/economy"
	"github.com/mkuznetsov/banword-bot/internal/lottery"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/words"
)

// API is the subset of the Telegram client the handlers use. *tgbotapi.BotAPI
// satisfies it; tests substitute a fake.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handlers process incoming Telegram updates: banword moderation on plain
// messages and the command set.
type Handlers struct {
	api      API
	cfg      config.TelegramConfig
	eco      *economy.Manager
	bans     *ban.Manager
	rotator  *lottery.Rotator
	cache    *words.Cache
	wordRepo store.WordRepository
	chats    store.ChatRepository
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewHandlers creates new update handlers.
func NewHandlers(api API, cfg config.TelegramConfig, eco *economy.Manager, bans *ban.Manager, rotator *lottery.Rotator, cache *words.Cache, wordRepo store.WordRepository, chats store.ChatRepository, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Handlers {
	return &Handlers{
		api:      api,
		cfg:      cfg,
		eco:      eco,
		bans:     bans,
		rotator:  rotator,
		cache:    cache,
		wordRepo: wordRepo,
		chats:    chats,
		logger:   logger,
		tracer:   tp.Tracer("github.com/mkuznetsov/banword-bot/internal/bot"),
		clock:    clk,
	}
}

// HandleUpdate routes one update. Commands and plain messages both pass
// through player registration and a lazy ban-expiry check first.
func (h *Handlers) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	ctx, span := h.tracer.Start(ctx, "HandleUpdate",
		trace.WithAttributes(
			attribute.Int64("chat_id", msg.Chat.ID),
			attribute.Int64("user_id", msg.From.ID),
		),
	)
	defer span.End()

	player, err := h.eco.GetOrCreate(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName, msg.From.LastName)
	if err != nil {
		h.logger.ErrorContext(ctx, "player lookup failed",
			slog.Int64("user_id", msg.From.ID),
			slog.Any("error", err),
		)
		return
	}

	// Bans expire lazily on the player's next activity; the sweeper only
	// covers players who went quiet.
	if lifted, err := h.bans.CheckExpiry(ctx, player.ID, h.clock.Now().UTC()); err != nil {
		h.logger.ErrorContext(ctx, "expiry check failed", slog.Any("error", err))
	} else if lifted {
		player.IsBanned = false
	}

	if msg.IsCommand() {
		h.handleCommand(ctx, msg, player)
		return
	}
	h.moderate(ctx, msg, player)
}

// moderate matches a plain message against the watch-lists and bans on a hit.
func (h *Handlers) moderate(ctx context.Context, msg *tgbotapi.Message, player *store.Player) {
	if msg.Text == "" {
		return
	}

	res, err := h.cache.Check(ctx, player.ID, msg.Text)
	if err != nil {
		h.logger.ErrorContext(ctx, "banword check failed", slog.Any("error", err))
		return
	}
	if !res.Matched {
		// A banned player stays silenced until buyout or expiry.
		if player.IsBanned {
			h.deleteMessage(ctx, msg)
		}
		return
	}

	h.deleteMessage(ctx, msg)

	var reason store.BanReason
	switch res.List {
	case words.ListGlobal:
		reason = store.ReasonGlobalWord
		if err := h.wordRepo.IncrementGlobalTrigger(ctx, res.Term); err != nil {
			h.logger.WarnContext(ctx, "failed to bump trigger count", slog.Any("error", err))
		}
	case words.ListWeekly:
		reason = store.ReasonWeeklyWord
		if err := h.wordRepo.IncrementWeeklyTrigger(ctx, res.Term); err != nil {
			h.logger.WarnContext(ctx, "failed to bump trigger count", slog.Any("error", err))
		}
	case words.ListPersonal:
		reason = store.ReasonPersonalWord
	}

	rec, err := h.bans.ApplyBan(ctx, player.ID, reason, res.Term)
	if err != nil {
		h.logger.ErrorContext(ctx, "applying ban failed",
			slog.Int64("player_id", player.ID),
			slog.Any("error", err),
		)
		return
	}

	h.reply(msg.Chat.ID, fmt.Sprintf(
		"%s is banned for %dh (said a watched word). Buyout: %d points, or wait it out.",
		displayName(msg.From), rec.DurationHours, rec.BuyoutPrice,
	))
}

func (h *Handlers) deleteMessage(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := h.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		h.logger.WarnContext(ctx, "failed to delete message",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Any("error", err),
		)
	}
}

func (h *Handlers) handleCommand(ctx context.Context, msg *tgbotapi.Message, player *store.Player) {
	ctx, span := h.tracer.Start(ctx, "HandleCommand",
		trace.WithAttributes(attribute.String("command", msg.Command())),
	)
	defer span.End()

	switch msg.Command() {
	case "start", "help":
		h.handleHelp(msg)
	case "balance":
		h.handleBalance(msg, player)
	case "buyout":
		h.handleBuyout(ctx, msg, player)
	case "mywords":
		h.handleMyWords(ctx, msg, player)
	case "addword":
		h.handleAddWord(ctx, msg, player)
	case "delword":
		h.handleDelWord(ctx, msg, player)
	case "top":
		h.handleTop(ctx, msg)
	case "week":
		h.handleWeek(ctx, msg)
	case "banword":
		h.adminOnly(msg, func() { h.handleBanword(ctx, msg) })
	case "banwords":
		h.adminOnly(msg, func() { h.handleBanwords(ctx, msg) })
	case "delbanword":
		h.adminOnly(msg, func() { h.handleDelBanword(ctx, msg) })
	case "rotate":
		h.adminOnly(msg, func() { h.handleRotate(ctx, msg) })
	case "pool":
		h.adminOnly(msg, func() { h.handlePool(ctx, msg) })
	case "addpool":
		h.adminOnly(msg, func() { h.handleAddPool(ctx, msg) })
	case "delpool":
		h.adminOnly(msg, func() { h.handleDelPool(ctx, msg) })
	case "setchat":
		h.adminOnly(msg, func() { h.handleSetChat(ctx, msg) })
	case "ban":
		h.adminOnly(msg, func() { h.handleManualBan(ctx, msg) })
	case "unban":
		h.adminOnly(msg, func() { h.handleUnban(ctx, msg) })
	case "setbalance":
		h.adminOnly(msg, func() { h.handleSetBalance(ctx, msg) })
	default:
		h.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

// adminOnly runs fn only for configured admins.
func (h *Handlers) adminOnly(msg *tgbotapi.Message, fn func()) {
	if !h.cfg.IsAdmin(msg.From.ID) {
		h.reply(msg.Chat.ID, "This command is for admins only.")
		return
	}
	fn()
}

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	h.reply(msg.Chat.ID, strings.Join([]string{
		"Commands:",
		"/balance — your points and ban status",
		"/buyout — pay off an active ban",
		"/mywords — your personal watch-list",
		"/addword <word> — add a personal watch-word",
		"/delword <word> — remove a personal watch-word",
		"/top — points leaderboard",
		"/week — current weekly word",
	}, "\n"))
}

func (h *Handlers) handleBalance(msg *tgbotapi.Message, player *store.Player) {
	text := fmt.Sprintf("%s: %d points (earned %d, spent %d, bans %d)",
		displayName(msg.From), player.Balance, player.TotalEarned, player.TotalSpent, player.BanCount)
	if player.IsBanned {
		text += fmt.Sprintf("\nCurrently banned. Buyout: %d points", player.CurrentBuyoutPrice)
		if player.BanExpiresAt != nil {
			text += fmt.Sprintf(", expires %s", player.BanExpiresAt.UTC().Format("Jan 2 15:04 MST"))
		}
	}
	h.reply(msg.Chat.ID, text)
}

func (h *Handlers) handleBuyout(ctx context.Context, msg *tgbotapi.Message, player *store.Player) {
	res, err := h.bans.Buyout(ctx, player.ID)
	switch {
	case errors.Is(err, ban.ErrNotBanned):
		h.reply(msg.Chat.ID, "You are not banned.")
	case err != nil:
		var insufficient *ban.InsufficientFundsError
		if errors.As(err, &insufficient) {
			h.reply(msg.Chat.ID, fmt.Sprintf(
				"Not enough points: buyout costs %d, you have %d.",
				insufficient.Need, insufficient.Have,
			))
			return
		}
		h.logger.ErrorContext(ctx, "buyout failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Buyout failed, try again later.")
	case res.Paid == 0:
		h.reply(msg.Chat.ID, "Your ban was already cleared.")
	default:
		h.reply(msg.Chat.ID, fmt.Sprintf(
			"Ban paid off for %d points. Balance: %d.", res.Paid, res.NewBalance,
		))
	}
}

func (h *Handlers) handleMyWords(ctx context.Context, msg *tgbotapi.Message, player *store.Player) {
	list, err := h.eco.PersonalWords(ctx, player.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing personal words failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not load your words.")
		return
	}
	if len(list) == 0 {
		h.reply(msg.Chat.ID, "Your personal watch-list is empty. Add one with /addword.")
		return
	}
	h.reply(msg.Chat.ID, "Your watch-words: "+strings.Join(list, ", "))
}

func (h *Handlers) handleAddWord(ctx context.Context, msg *tgbotapi.Message, player *store.Player) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		h.reply(msg.Chat.ID, "Usage: /addword <word>")
		return
	}
	list, err := h.eco.AddPersonalWord(ctx, player.ID, arg)
	if errors.Is(err, economy.ErrWordExists) {
		h.reply(msg.Chat.ID, "That word is already on your list.")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "adding personal word failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not add the word.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Added. You now watch %d word(s).", len(list)))
}

func (h *Handlers) handleDelWord(ctx context.Context, msg *tgbotapi.Message, player *store.Player) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		h.reply(msg.Chat.ID, "Usage: /delword <word>")
		return
	}
	list, err := h.eco.RemovePersonalWord(ctx, player.ID, arg)
	if errors.Is(err, economy.ErrWordNotFound) {
		h.reply(msg.Chat.ID, "That word is not on your list.")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "removing personal word failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not remove the word.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Removed. You now watch %d word(s).", len(list)))
}

func (h *Handlers) handleTop(ctx context.Context, msg *tgbotapi.Message) {
	players, err := h.eco.Leaderboard(ctx, 10)
	if err != nil {
		h.logger.ErrorContext(ctx, "leaderboard failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not load the leaderboard.")
		return
	}
	if len(players) == 0 {
		h.reply(msg.Chat.ID, "No players yet.")
		return
	}
	var b strings.Builder
	b.WriteString("Leaderboard:\n")
	for i, p := range players {
		name := p.Username
		if name == "" {
			name = p.FirstName
		}
		fmt.Fprintf(&b, "%d. %s — %d points\n", i+1, name, p.Balance)
	}
	h.reply(msg.Chat.ID, b.String())
}

func (h *Handlers) handleWeek(ctx context.Context, msg *tgbotapi.Message) {
	active, err := h.wordRepo.ListActiveWeekly(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing weekly word failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not load the weekly word.")
		return
	}
	if len(active) == 0 {
		h.reply(msg.Chat.ID, "No weekly word is active right now.")
		return
	}
	w := active[0]
	text := fmt.Sprintf("Weekly word of week %d is hidden. It has been said %d time(s).", w.WeekNumber, w.TimesTriggered)
	h.reply(msg.Chat.ID, text)
}

func (h *Handlers) handleBanword(ctx context.Context, msg *tgbotapi.Message) {
	arg := words.Normalize(msg.CommandArguments())
	if arg == "" {
		h.reply(msg.Chat.ID, "Usage: /banword <word>")
		return
	}
	if _, err := h.wordRepo.CreateGlobal(ctx, arg); err != nil {
		h.logger.ErrorContext(ctx, "creating global banword failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not add the global banword.")
		return
	}
	if err := h.cache.LoadGlobal(ctx); err != nil {
		h.logger.ErrorContext(ctx, "global cache reload failed", slog.Any("error", err))
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Global banword %q added.", arg))
}

func (h *Handlers) handleBanwords(ctx context.Context, msg *tgbotapi.Message) {
	active, err := h.wordRepo.ListActiveGlobal(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing global banwords failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not load global banwords.")
		return
	}
	if len(active) == 0 {
		h.reply(msg.Chat.ID, "No global banwords.")
		return
	}
	var b strings.Builder
	b.WriteString("Global banwords:\n")
	for _, w := range active {
		fmt.Fprintf(&b, "#%d %s (triggered %d)\n", w.ID, w.Word, w.TimesTriggered)
	}
	h.reply(msg.Chat.ID, b.String())
}

func (h *Handlers) handleDelBanword(ctx context.Context, msg *tgbotapi.Message) {
	id, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		h.reply(msg.Chat.ID, "Usage: /delbanword <id> (see /banwords)")
		return
	}
	if err := h.wordRepo.DeactivateGlobal(ctx, id); err != nil {
		h.logger.ErrorContext(ctx, "deactivating global banword failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not remove the global banword.")
		return
	}
	if err := h.cache.LoadGlobal(ctx); err != nil {
		h.logger.ErrorContext(ctx, "global cache reload failed", slog.Any("error", err))
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Global banword #%d removed.", id))
}

func (h *Handlers) handleDelPool(ctx context.Context, msg *tgbotapi.Message) {
	id, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		h.reply(msg.Chat.ID, "Usage: /delpool <id> (see /pool)")
		return
	}
	if err := h.rotator.RemoveWord(ctx, id); err != nil {
		h.logger.ErrorContext(ctx, "removing pool word failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not remove the pool word.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Pool word #%d removed.", id))
}

func (h *Handlers) handleRotate(ctx context.Context, msg *tgbotapi.Message) {
	weekly, err := h.rotator.Rotate(ctx)
	if errors.Is(err, lottery.ErrPoolEmpty) {
		h.reply(msg.Chat.ID, "The lottery pool is empty; add words with /addpool first.")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "manual rotation failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Rotation failed.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Weekly word rotated for week %d.", weekly.WeekNumber))
}

func (h *Handlers) handlePool(ctx context.Context, msg *tgbotapi.Message) {
	pool, err := h.rotator.Pool(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing pool failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not load the pool.")
		return
	}
	if len(pool) == 0 {
		h.reply(msg.Chat.ID, "The lottery pool is empty.")
		return
	}
	var b strings.Builder
	b.WriteString("Lottery pool:\n")
	for _, w := range pool {
		fmt.Fprintf(&b, "#%d %s (drawn %d)\n", w.ID, w.Word, w.TimesUsed)
	}
	h.reply(msg.Chat.ID, b.String())
}

func (h *Handlers) handleAddPool(ctx context.Context, msg *tgbotapi.Message) {
	terms := strings.Fields(msg.CommandArguments())
	if len(terms) == 0 {
		h.reply(msg.Chat.ID, "Usage: /addpool <word> [word...]")
		return
	}
	created, err := h.rotator.AddWords(ctx, terms)
	if err != nil {
		h.logger.ErrorContext(ctx, "adding pool words failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not add pool words.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Added %d word(s) to the lottery pool.", len(created)))
}

func (h *Handlers) handleSetChat(ctx context.Context, msg *tgbotapi.Message) {
	settings := &store.ChatSettings{
		ChatID:           msg.Chat.ID,
		ChatTitle:        msg.Chat.Title,
		NotifyOnBan:      true,
		NotifyOnUnban:    true,
		NotifyWeeklyWord: true,
		GamesEnabled:     true,
	}
	if err := h.chats.Upsert(ctx, settings); err != nil {
		h.logger.ErrorContext(ctx, "registering chat failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not register this chat.")
		return
	}
	h.reply(msg.Chat.ID, "This chat now receives ban and rotation notices.")
}

// targetPlayer resolves the player an admin command acts on: the replied-to
// user, or a Telegram ID argument.
func (h *Handlers) targetPlayer(ctx context.Context, msg *tgbotapi.Message) (*store.Player, error) {
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
		return h.eco.GetOrCreate(ctx, reply.From.ID, reply.From.UserName, reply.From.FirstName, reply.From.LastName)
	}
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		return nil, fmt.Errorf("no target: reply to a message or pass a Telegram ID")
	}
	tgID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad Telegram ID %q", fields[0])
	}
	return h.eco.GetOrCreate(ctx, tgID, "", "", "")
}

func (h *Handlers) handleManualBan(ctx context.Context, msg *tgbotapi.Message) {
	target, err := h.targetPlayer(ctx, msg)
	if err != nil {
		h.reply(msg.Chat.ID, err.Error())
		return
	}
	rec, err := h.bans.ApplyBan(ctx, target.ID, store.ReasonManual, "")
	if err != nil {
		h.logger.ErrorContext(ctx, "manual ban failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not apply the ban.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Banned for %dh. Buyout: %d points.", rec.DurationHours, rec.BuyoutPrice))
}

func (h *Handlers) handleUnban(ctx context.Context, msg *tgbotapi.Message) {
	target, err := h.targetPlayer(ctx, msg)
	if err != nil {
		h.reply(msg.Chat.ID, err.Error())
		return
	}
	if !target.IsBanned {
		h.reply(msg.Chat.ID, "That player is not banned.")
		return
	}
	// Admin unban is a free buyout: settle the record without charging.
	if _, err := h.bans.Lift(ctx, target.ID); err != nil {
		h.logger.ErrorContext(ctx, "unban failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not lift the ban.")
		return
	}
	h.reply(msg.Chat.ID, "Ban lifted.")
}

func (h *Handlers) handleSetBalance(ctx context.Context, msg *tgbotapi.Message) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		h.reply(msg.Chat.ID, "Usage: /setbalance <telegram_id> <amount>")
		return
	}
	tgID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		h.reply(msg.Chat.ID, fmt.Sprintf("Bad Telegram ID %q.", fields[0]))
		return
	}
	amount, err := strconv.Atoi(fields[1])
	if err != nil || amount < 0 {
		h.reply(msg.Chat.ID, fmt.Sprintf("Bad amount %q.", fields[1]))
		return
	}
	target, err := h.eco.GetOrCreate(ctx, tgID, "", "", "")
	if err != nil {
		h.logger.ErrorContext(ctx, "target lookup failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not find that player.")
		return
	}
	if err := h.eco.SetBalance(ctx, target.ID, amount); err != nil {
		h.logger.ErrorContext(ctx, "set balance failed", slog.Any("error", err))
		h.reply(msg.Chat.ID, "Could not set the balance.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Balance set to %d.", amount))
}

func (h *Handlers) reply(chatID int64, text string) {
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.logger.Warn("failed to send message",
			slog.Int64("chat_id", chatID),
			slog.Any("error", err),
		)
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return u.FirstName
}
