package bot

import (
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	"go.uber.org/zap"

	"xoranyx-bot/internal/ledger"
)

func (b *Bot) isAdmin(userID int64) bool {
	return b.Options.AdminID != 0 && userID == b.Options.AdminID
}

func (b *Bot) adminOnly(next th.Handler) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if message.From == nil || !b.isAdmin(message.From.ID) {
			b.send(ctx.Context(), message.Chat.ID, textAccessDenied, nil, false)
			return nil
		}
		return next(ctx, update)
	}
}

func (b *Bot) handleAdminHelp(ctx *th.Context, update telego.Update) error {
	b.send(ctx.Context(), update.Message.Chat.ID, adminHelpText(), nil, false)
	return nil
}

func (b *Bot) handleAddCoins(ctx *th.Context, update telego.Update) error {
	message := update.Message
	c := ctx.Context()

	userID, amount, err := parseAdminArgs(message.Text, true)
	if err != nil {
		b.send(c, message.Chat.ID, "Usage: /addcoins [user_id] [amount]", nil, false)
		return nil
	}

	balance, err := b.Service.Credit(c, userID, amount, "Admin credit")
	if err != nil {
		b.send(c, message.Chat.ID, adminErrorText(err), nil, false)
		return nil
	}

	b.Logger.Info("Admin credit", zap.Int64("admin_id", message.From.ID), zap.Int64("user_id", userID), zap.Int64("amount", amount))
	b.send(c, message.Chat.ID, fmt.Sprintf("✅ Added %d coins to %d. Balance: %d", amount, userID, balance), nil, false)
	return nil
}

func (b *Bot) handleRemoveCoins(ctx *th.Context, update telego.Update) error {
	message := update.Message
	c := ctx.Context()

	userID, amount, err := parseAdminArgs(message.Text, true)
	if err != nil {
		b.send(c, message.Chat.ID, "Usage: /removecoins [user_id] [amount]", nil, false)
		return nil
	}

	balance, err := b.Service.Debit(c, userID, amount, "Admin debit")
	if err != nil {
		b.send(c, message.Chat.ID, adminErrorText(err), nil, false)
		return nil
	}

	b.Logger.Info("Admin debit", zap.Int64("admin_id", message.From.ID), zap.Int64("user_id", userID), zap.Int64("amount", amount))
	b.send(c, message.Chat.ID, fmt.Sprintf("✅ Removed %d coins from %d. Balance: %d", amount, userID, balance), nil, false)
	return nil
}

func (b *Bot) handleUserInfo(ctx *th.Context, update telego.Update) error {
	message := update.Message
	c := ctx.Context()

	userID, _, err := parseAdminArgs(message.Text, false)
	if err != nil {
		b.send(c, message.Chat.ID, "Usage: /userinfo [user_id]", nil, false)
		return nil
	}

	user, err := b.Service.GetUser(c, userID)
	if err != nil {
		b.send(c, message.Chat.ID, adminErrorText(err), nil, false)
		return nil
	}
	b.send(c, message.Chat.ID, userInfoText(user), nil, false)
	return nil
}

func (b *Bot) handleBotStats(ctx *th.Context, update telego.Update) error {
	message := update.Message
	c := ctx.Context()

	totals, err := b.Service.Stats(c)
	if err != nil {
		b.fail(c, message.Chat.ID, "stats", err)
		return nil
	}
	b.send(c, message.Chat.ID, botStatsText(totals), nil, false)
	return nil
}

func adminErrorText(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "❌ Insufficient balance."
	case errors.Is(err, ledger.ErrInvalidInput):
		return "❌ Amount must be positive."
	case errors.Is(err, ledger.ErrNotFound):
		return "❌ Invalid user id."
	default:
		return textGenericError
	}
}
