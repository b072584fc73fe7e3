package bot

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xoranyx-bot/internal/ledger"
	"xoranyx-bot/internal/models"
)

func TestParseStartPayload(t *testing.T) {
	tests := []struct {
		text string
		id   int64
		ok   bool
	}{
		{text: "/start", ok: false},
		{text: "/start 12345", id: 12345, ok: true},
		{text: "/start  777 extra", id: 777, ok: true},
		{text: "/start ref_12", ok: false},
		{text: "/start -5", ok: false},
		{text: "/start 0", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			id, ok := parseStartPayload(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestParseAdminArgs(t *testing.T) {
	id, amount, err := parseAdminArgs("/addcoins 42 100", true)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(100), amount)

	id, _, err = parseAdminArgs("/userinfo 42", false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, text := range []string{"/addcoins", "/addcoins 42", "/addcoins x 1", "/addcoins 1 y", "/addcoins 1 2 3"} {
		_, _, err := parseAdminArgs(text, true)
		assert.Error(t, err, text)
	}
}

func TestParseTaskID(t *testing.T) {
	id, ok := parseTaskID("task_3")
	assert.True(t, ok)
	assert.Equal(t, 3, id)

	_, ok = parseTaskID("task_x")
	assert.False(t, ok)
}

func TestFormatLimit(t *testing.T) {
	assert.Equal(t, "∞", formatLimit(ledger.Unlimited))
	assert.Equal(t, "10", formatLimit(10))
	assert.Equal(t, "-", progress(3, 0))
	assert.Equal(t, "50%", progress(5, 10))
}

func TestAdResultText(t *testing.T) {
	credited := adResultText(ledger.ActionResult{Status: ledger.ActionCredited, NewBalance: 30, Count: 3, Limit: 10, Reward: 10})
	assert.Contains(t, credited, "10 coins added")
	assert.Contains(t, credited, "Current balance: 30 coins")
	assert.Contains(t, credited, "3/10 ads")

	limited := adResultText(ledger.ActionResult{Status: ledger.ActionLimitReached, Count: 10, Limit: 10})
	assert.Contains(t, limited, "Daily Limit Reached")
}

func TestBalanceText(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	user := ledger.UserView{
		Coins:       15,
		TotalEarned: 25,
		RecentTransactions: []models.Transaction{
			{Seq: 2, Amount: -10, Reason: "Admin debit", CreatedAt: at.Add(time.Hour)},
			{Seq: 1, Amount: 25, Reason: "Watched ad", CreatedAt: at},
		},
	}

	text := balanceText("Xoranyx", user, time.UTC)
	assert.Contains(t, text, "Coin balance: 15")
	assert.Contains(t, text, "[10:30] Admin debit: *-10 coins*")
	assert.Contains(t, text, "[09:30] Watched ad: *25 coins*")
	assert.Less(t, strings.Index(text, "Admin debit"), strings.Index(text, "Watched ad"))

	empty := balanceText("Xoranyx", ledger.UserView{}, time.UTC)
	assert.Contains(t, empty, "No transactions yet")
}

func TestReferralNotice(t *testing.T) {
	assert.Empty(t, referralNotice(ledger.AttributionResult{Status: ledger.StatusSkipped}))
	assert.Contains(t, referralNotice(ledger.AttributionResult{Status: ledger.StatusAttributed, WelcomeGift: 10}), "Received 10 coins gift")
	assert.Contains(t, referralNotice(ledger.AttributionResult{Status: ledger.StatusRewardPending, WelcomeGift: 10}), "Received 10 coins gift")
}

func TestAdminErrorText(t *testing.T) {
	assert.Equal(t, "❌ Insufficient balance.", adminErrorText(fmt.Errorf("wrap: %w", ledger.ErrInsufficientBalance)))
	assert.Equal(t, "❌ Amount must be positive.", adminErrorText(ledger.ErrInvalidInput))
	assert.Equal(t, textGenericError, adminErrorText(errors.New("boom")))
}
