package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"xoranyx-bot/internal/ledger"
)

type Options struct {
	BotName   string
	AdminID   int64
	WebAppURL string
}

type Bot struct {
	Instance *telego.Bot
	Service  *ledger.Service
	Logger   *zap.Logger
	Options  Options

	usernameOnce sync.Once
	username     string
}

func NewBot(token string, service *ledger.Service, opts Options, logger *zap.Logger) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance: tgBot,
		Service:  service,
		Logger:   logger,
		Options:  opts,
	}, nil
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	handler.Handle(b.handleStart, th.CommandEqual("start"))

	// Admin
	handler.Handle(b.adminOnly(b.handleAdminHelp), th.CommandEqual("admin"))
	handler.Handle(b.adminOnly(b.handleAddCoins), th.CommandEqual("addcoins"))
	handler.Handle(b.adminOnly(b.handleRemoveCoins), th.CommandEqual("removecoins"))
	handler.Handle(b.adminOnly(b.handleUserInfo), th.CommandEqual("userinfo"))
	handler.Handle(b.adminOnly(b.handleBotStats), th.CommandEqual("stats"))

	handler.Handle(b.handleWebAppData, hasWebAppData)

	handler.Handle(b.handleWatchAd, th.CallbackDataEqual("watch_ad"))
	handler.Handle(b.handleConfirmAd, th.CallbackDataEqual("confirm_ad"))
	handler.Handle(b.handleMicroTasks, th.CallbackDataEqual("micro_tasks"))
	handler.Handle(b.handleTask, th.CallbackDataPrefix("task_"))
	handler.Handle(b.handleInvite, th.CallbackDataEqual("invite_friends"))
	handler.Handle(b.handleBalance, th.CallbackDataEqual("my_balance"))
	handler.Handle(b.handleStats, th.CallbackDataEqual("my_stats"))
	handler.Handle(b.handleBack, th.CallbackDataEqual("back"))
	handler.Handle(b.alert(textCopyLink), th.CallbackDataEqual("copy_link"))
	handler.Handle(b.alert(textShareLink), th.CallbackDataEqual("share_link"))

	b.Logger.Info("Bot started, listening for updates")
	handler.Start()
	return nil
}

// Notify sends a plain message to a user's private chat.
func (b *Bot) Notify(ctx context.Context, userID int64, text string) error {
	_, err := b.Instance.SendMessage(ctx, tu.Message(tu.ID(userID), text))
	return err
}

func hasWebAppData(_ context.Context, update telego.Update) bool {
	return update.Message != nil && update.Message.WebAppData != nil
}

func (b *Bot) mainMenu() *telego.InlineKeyboardMarkup {
	rows := [][]telego.InlineKeyboardButton{
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("📺 Watch Ads").WithCallbackData("watch_ad")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("📋 Micro Tasks").WithCallbackData("micro_tasks")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("👥 Invite Friends").WithCallbackData("invite_friends")),
	}
	if b.Options.WebAppURL != "" {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🖥️ Open Web App").WithWebApp(&telego.WebAppInfo{URL: b.Options.WebAppURL}),
		))
	}
	rows = append(rows,
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("💰 My Balance").WithCallbackData("my_balance")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("📊 My Stats").WithCallbackData("my_stats")),
	)
	return tu.InlineKeyboard(rows...)
}

func backKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔙 Back").WithCallbackData("back")),
	)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup, markdown bool) {
	msg := tu.Message(tu.ID(chatID), text)
	if markup != nil {
		msg = msg.WithReplyMarkup(markup)
	}
	if markdown {
		msg = msg.WithParseMode(telego.ModeMarkdown)
	}
	if _, err := b.Instance.SendMessage(ctx, msg); err != nil {
		b.Logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) answer(ctx context.Context, callbackID string) {
	_ = b.Instance.AnswerCallbackQuery(ctx, tu.CallbackQuery(callbackID))
}

func (b *Bot) botUsername(ctx context.Context) string {
	b.usernameOnce.Do(func() {
		b.username = b.Options.BotName
		if info, err := b.Instance.GetMe(ctx); err == nil {
			b.username = info.Username
		} else {
			b.Logger.Warn("Failed to get bot info", zap.Error(err))
		}
	})
	return b.username
}

func (b *Bot) fail(ctx context.Context, chatID int64, op string, err error) {
	b.Logger.Error("Ledger operation failed", zap.Int64("user_id", chatID), zap.String("action", op), zap.Error(err))
	b.send(ctx, chatID, textGenericError, nil, false)
}

func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil {
		return nil
	}
	userID := message.From.ID
	c := ctx.Context()

	if _, err := b.Service.GetUser(c, userID); err != nil {
		b.fail(c, message.Chat.ID, "start", err)
		return nil
	}

	text := welcomeText(b.Options.BotName, message.From.FirstName)

	if inviterID, ok := parseStartPayload(message.Text); ok {
		res, err := b.Service.AttributeReferral(c, userID, inviterID)
		var pending *ledger.PendingRewardError
		switch {
		case errors.As(err, &pending):
			b.Logger.Warn("Invite reward pending", zap.Int64("user_id", userID), zap.Int64("inviter_id", inviterID), zap.Error(err))
		case err != nil:
			b.Logger.Error("Failed to process invite", zap.Int64("user_id", userID), zap.Int64("inviter_id", inviterID), zap.Error(err))
		}
		text += referralNotice(res)
		if res.Status == ledger.StatusAttributed {
			b.notifyInviter(c, res.InviterID, userID)
		}
	}

	login, err := b.Service.PerformDailyCappedAction(c, userID, ledger.DailyLogin())
	if err != nil {
		b.Logger.Error("Failed to grant login bonus", zap.Int64("user_id", userID), zap.Error(err))
	} else {
		text += loginBonusNotice(login)
	}

	b.send(c, message.Chat.ID, text, b.mainMenu(), false)
	return nil
}

func (b *Bot) notifyInviter(ctx context.Context, inviterID, inviteeID int64) {
	reward := b.Service.Settings().Rewards.Invite
	if reward <= 0 {
		return
	}
	if err := b.Notify(ctx, inviterID, InviteRewardText(inviteeID, reward)); err != nil {
		b.Logger.Warn("Failed to notify inviter", zap.Int64("inviter_id", inviterID), zap.Error(err))
	}
}

func (b *Bot) handleWatchAd(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	userID := callback.From.ID
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	user, err := b.Service.GetUser(c, userID)
	if err != nil {
		b.fail(c, userID, string(ledger.ActionWatchAd), err)
		return nil
	}

	limit := b.Service.Settings().Limits.MaxAdsPerDay
	if limit != ledger.Unlimited && user.DailyStats.AdsWatched >= limit {
		b.send(c, userID, adLimitText(), b.mainMenu(), false)
		return nil
	}

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("✅ I Watched").WithCallbackData("confirm_ad")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("❌ Cancel").WithCallbackData("back")),
	)
	b.send(c, userID, adText(b.Options.BotName), keyboard, false)
	return nil
}

func (b *Bot) handleConfirmAd(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	userID := callback.From.ID
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	res, err := b.Service.PerformDailyCappedAction(c, userID, ledger.WatchAd())
	if err != nil {
		b.fail(c, userID, string(ledger.ActionWatchAd), err)
		return nil
	}

	b.send(c, userID, adResultText(res), b.mainMenu(), false)
	return nil
}

func (b *Bot) handleMicroTasks(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	var rows [][]telego.InlineKeyboardButton
	for _, task := range b.Service.Tasks() {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("📌 %s - %d coins", task.Title, task.Reward)).
				WithCallbackData(fmt.Sprintf("task_%d", task.ID)),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔙 Back").WithCallbackData("back")))

	b.send(c, callback.From.ID, tasksText(b.Options.BotName), tu.InlineKeyboard(rows...), false)
	return nil
}

func (b *Bot) handleTask(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	userID := callback.From.ID
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	taskID, ok := parseTaskID(callback.Data)
	if !ok {
		return nil
	}

	res, err := b.Service.PerformDailyCappedAction(c, userID, ledger.CompleteTask(taskID))
	if errors.Is(err, ledger.ErrInvalidInput) {
		b.send(c, userID, "❌ Unknown task.", b.mainMenu(), false)
		return nil
	}
	if err != nil {
		b.fail(c, userID, string(ledger.ActionCompleteTask), err)
		return nil
	}

	var task ledger.Task
	for _, t := range b.Service.Tasks() {
		if t.ID == taskID {
			task = t
		}
	}
	b.send(c, userID, taskResultText(task, res), b.mainMenu(), false)
	return nil
}

func (b *Bot) handleInvite(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	userID := callback.From.ID
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	user, err := b.Service.GetUser(c, userID)
	if err != nil {
		b.fail(c, userID, "invite", err)
		return nil
	}

	link := inviteLink(b.botUsername(c), userID)
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔗 Copy Link").WithCallbackData("copy_link")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("📤 Share Link").WithCallbackData("share_link")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔙 Back").WithCallbackData("back")),
	)
	b.send(c, userID, inviteText(b.Options.BotName, link, user, b.Service.Settings()), keyboard, true)
	return nil
}

func (b *Bot) handleBalance(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	userID := callback.From.ID
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	user, err := b.Service.GetUser(c, userID)
	if err != nil {
		b.fail(c, userID, "balance", err)
		return nil
	}

	b.send(c, userID, balanceText(b.Options.BotName, user, b.Service.Settings().Location), backKeyboard(), true)
	return nil
}

func (b *Bot) handleStats(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	userID := callback.From.ID
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	user, err := b.Service.GetUser(c, userID)
	if err != nil {
		b.fail(c, userID, "stats", err)
		return nil
	}

	b.send(c, userID, statsText(b.Options.BotName, user, b.Service.Settings().Limits), backKeyboard(), true)
	return nil
}

func (b *Bot) handleBack(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	c := ctx.Context()
	defer b.answer(c, callback.ID)

	b.send(c, callback.From.ID, textMainMenu, b.mainMenu(), false)
	return nil
}

func (b *Bot) alert(text string) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), &telego.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
			Text:            text,
			ShowAlert:       true,
		})
		return nil
	}
}

type webAppRequest struct {
	Action string `json:"action"`
}

func (b *Bot) handleWebAppData(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil {
		return nil
	}
	c := ctx.Context()

	var req webAppRequest
	if err := json.Unmarshal([]byte(message.WebAppData.Data), &req); err != nil {
		b.Logger.Warn("Invalid web app data", zap.Int64("user_id", message.From.ID), zap.Error(err))
		return nil
	}
	if req.Action != "get_user_data" {
		return nil
	}

	user, err := b.Service.GetUser(c, message.From.ID)
	if err != nil {
		b.fail(c, message.Chat.ID, "web_app_data", err)
		return nil
	}
	b.send(c, message.Chat.ID, webAppDataText(user), nil, false)
	return nil
}
