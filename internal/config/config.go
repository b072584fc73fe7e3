package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"xoranyx-bot/internal/ledger"
	"xoranyx-bot/internal/utils"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

type Config struct {
	DBUser        string
	DBPassword    string
	DBName        string
	DBHost        string
	DBPort        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	BotToken      string
	BotName       string
	AdminID       int64
	WebAppURL     string

	LedgerBackend  string
	LedgerFile     string
	SettleInterval time.Duration
	HTTPAddr       string
	MetricsCIDRs   []*net.IPNet
	LogLevel       string
	AppEnv         string

	Ledger ledger.Settings
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	p := &parser{}
	cfg := &Config{
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "xoranyx_bot"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		BotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotName:       getEnv("BOT_NAME", "Xoranyx"),
		AdminID:       p.getInt64("ADMIN_ID", 0),
		WebAppURL:     getEnv("WEB_APP_URL", ""),

		LedgerBackend:  strings.ToLower(getEnv("LEDGER_BACKEND", BackendPostgres)),
		LedgerFile:     getEnv("LEDGER_FILE", "ledger.json"),
		SettleInterval: p.getDuration("SETTLE_INTERVAL", time.Hour),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AppEnv:         getEnv("APP_ENV", "production"),
	}

	settings := ledger.DefaultSettings()
	settings.Rewards = ledger.Rewards{
		AdWatch:     p.getInt64("REWARD_AD_WATCH", settings.Rewards.AdWatch),
		MicroTask:   p.getInt64("REWARD_MICRO_TASK", settings.Rewards.MicroTask),
		Invite:      p.getInt64("REWARD_INVITE", settings.Rewards.Invite),
		DailyLogin:  p.getInt64("REWARD_DAILY_LOGIN", settings.Rewards.DailyLogin),
		WelcomeGift: p.getInt64("REWARD_WELCOME_GIFT", settings.Rewards.WelcomeGift),
	}
	settings.Limits.MaxAdsPerDay = p.getLimit("LIMIT_MAX_ADS_PER_DAY", settings.Limits.MaxAdsPerDay)
	settings.Limits.MaxTasksPerDay = p.getLimit("LIMIT_MAX_TASKS_PER_DAY", settings.Limits.MaxTasksPerDay)
	settings.Limits.MaxInvites = p.getLimit("LIMIT_MAX_INVITES", settings.Limits.MaxInvites)
	settings.Limits.EnforceMaxInvites = p.getBool("ENFORCE_MAX_INVITES", false)
	settings.RecentWindow = int(p.getInt64("RECENT_TX_WINDOW", int64(settings.RecentWindow)))
	settings.Location = p.getLocation("LEDGER_TIMEZONE", time.UTC)
	cfg.Ledger = settings

	cidrs, err := utils.ParseCIDRs(getEnv("METRICS_ALLOWED_CIDRS", ""))
	if err != nil {
		p.fail("METRICS_ALLOWED_CIDRS", getEnv("METRICS_ALLOWED_CIDRS", ""), err)
	}
	cfg.MetricsCIDRs = cidrs

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LedgerBackend {
	case BackendPostgres, BackendRedis, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("invalid LEDGER_BACKEND %q", c.LedgerBackend)
	}
	if c.LedgerBackend == BackendFile && c.LedgerFile == "" {
		return fmt.Errorf("LEDGER_FILE is required for the file backend")
	}
	r := c.Ledger.Rewards
	for name, v := range map[string]int64{
		"REWARD_AD_WATCH":    r.AdWatch,
		"REWARD_MICRO_TASK":  r.MicroTask,
		"REWARD_DAILY_LOGIN": r.DailyLogin,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	// Referral rewards may be switched off with 0.
	for name, v := range map[string]int64{
		"REWARD_INVITE":       r.Invite,
		"REWARD_WELCOME_GIFT": r.WelcomeGift,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	if c.SettleInterval <= 0 {
		return fmt.Errorf("SETTLE_INTERVAL must be positive")
	}
	return nil
}

// parser keeps the first conversion error so LoadConfig can read every
// variable in one pass.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) getInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return n
}

// getLimit accepts a non-negative integer or "unlimited".
func (p *parser) getLimit(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "unlimited") {
		return ledger.Unlimited
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	if n < 0 {
		p.fail(key, value, fmt.Errorf("must be >= 0 or \"unlimited\""))
		return fallback
	}
	return n
}

func (p *parser) getBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return b
}

func (p *parser) getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return d
}

func (p *parser) getLocation(key string, fallback *time.Location) *time.Location {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	loc, err := time.LoadLocation(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
