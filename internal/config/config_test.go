package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xoranyx-bot/internal/ledger"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.LedgerBackend)
	assert.Equal(t, time.Hour, cfg.SettleInterval)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ledger.DefaultSettings().Rewards, cfg.Ledger.Rewards)
	assert.Equal(t, 10, cfg.Ledger.Limits.MaxAdsPerDay)
	assert.Equal(t, 5, cfg.Ledger.Limits.MaxTasksPerDay)
	assert.Equal(t, 20, cfg.Ledger.Limits.MaxInvites)
	assert.False(t, cfg.Ledger.Limits.EnforceMaxInvites)
	assert.Equal(t, time.UTC, cfg.Ledger.Location)
	assert.Len(t, cfg.Ledger.Tasks, 5)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "File")
	t.Setenv("LEDGER_FILE", "/tmp/ledger.json")
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("REWARD_AD_WATCH", "15")
	t.Setenv("LIMIT_MAX_ADS_PER_DAY", "unlimited")
	t.Setenv("LIMIT_MAX_TASKS_PER_DAY", "0")
	t.Setenv("ENFORCE_MAX_INVITES", "true")
	t.Setenv("SETTLE_INTERVAL", "15m")
	t.Setenv("LEDGER_TIMEZONE", "Europe/Moscow")
	t.Setenv("METRICS_ALLOWED_CIDRS", "127.0.0.1,10.0.0.0/8")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.LedgerBackend)
	assert.Equal(t, "/tmp/ledger.json", cfg.LedgerFile)
	assert.Equal(t, int64(42), cfg.AdminID)
	assert.Equal(t, int64(15), cfg.Ledger.Rewards.AdWatch)
	assert.Equal(t, ledger.Unlimited, cfg.Ledger.Limits.MaxAdsPerDay)
	assert.Equal(t, 0, cfg.Ledger.Limits.MaxTasksPerDay)
	assert.True(t, cfg.Ledger.Limits.EnforceMaxInvites)
	assert.Equal(t, 15*time.Minute, cfg.SettleInterval)
	assert.Equal(t, "Europe/Moscow", cfg.Ledger.Location.String())
	assert.Len(t, cfg.MetricsCIDRs, 2)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "backend", key: "LEDGER_BACKEND", value: "mongo"},
		{name: "admin id", key: "ADMIN_ID", value: "root"},
		{name: "negative limit", key: "LIMIT_MAX_ADS_PER_DAY", value: "-3"},
		{name: "limit text", key: "LIMIT_MAX_INVITES", value: "many"},
		{name: "negative reward", key: "REWARD_INVITE", value: "-50"},
		{name: "zero ad reward", key: "REWARD_AD_WATCH", value: "0"},
		{name: "zero task reward", key: "REWARD_MICRO_TASK", value: "0"},
		{name: "zero login reward", key: "REWARD_DAILY_LOGIN", value: "0"},
		{name: "bool", key: "ENFORCE_MAX_INVITES", value: "sometimes"},
		{name: "duration", key: "SETTLE_INTERVAL", value: "hourly"},
		{name: "zero interval", key: "SETTLE_INTERVAL", value: "0s"},
		{name: "timezone", key: "LEDGER_TIMEZONE", value: "Mars/Olympus"},
		{name: "metrics subnet", key: "METRICS_ALLOWED_CIDRS", value: "10.0.0.0/40"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadConfig()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadConfigReferralRewardsMayBeZero(t *testing.T) {
	t.Setenv("REWARD_INVITE", "0")
	t.Setenv("REWARD_WELCOME_GIFT", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.Ledger.Rewards.Invite)
	assert.Zero(t, cfg.Ledger.Rewards.WelcomeGift)
}
