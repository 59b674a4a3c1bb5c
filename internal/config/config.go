package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName           = "Buhgalteriya"
	defaultAppEnv            = "development"
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultShutdownDelay     = 10 * time.Second
	defaultDedupeTTL         = 24 * time.Hour
	defaultTelegramAPIURL    = "https://api.telegram.org"
	defaultPollTimeout       = 30 * time.Second
	defaultCurrency          = "UAH"
	defaultAPIRateLimit      = 30
	shutdownSecondsEnvVar    = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar   = "SHUTDOWN_TIMEOUT"
	dedupeTTLSecondsEnvVar   = "UPDATE_DEDUPE_TTL_SECONDS"
	dedupeTTLDurEnvVar       = "UPDATE_DEDUPE_TTL"
	conversationTTLDurEnvVar = "CONVERSATION_TTL"
)

// Delivery modes for inbound chat updates.
const (
	DeliveryPolling = "polling"
	DeliveryWebhook = "webhook"
)

// Debit policies decide when a submitted expense leaves the submitter's balance.
const (
	DebitAtSubmission = "submission"
	DebitAtSettlement = "settlement"
)

// DefaultCategories are offered to members whose role requires a category.
var DefaultCategories = []string{"Work.ua", "Jooble", "Telegram", "Target", "Other"}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration

	TelegramToken  string
	TelegramAPIURL string
	DeliveryMode   string
	WebhookSecret  string
	PollTimeout    time.Duration
	// UpdateDedupeTTL bounds how long processed update ids are remembered.
	UpdateDedupeTTL time.Duration
	// ConversationTTL expires abandoned dialogs in Redis. Zero keeps them until
	// they are finished, cancelled or superseded.
	ConversationTTL time.Duration

	KafkaBrokers []string
	APIKeyHash   string
	APIRateLimit int

	DebitPolicy     string
	Currency        string
	ArchiveReceipts bool
	AutoMigrate     bool

	Roster Roster
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIURL:  strings.TrimRight(getEnv("TELEGRAM_API_URL", defaultTelegramAPIURL), "/"),
		DeliveryMode:    strings.ToLower(getEnv("DELIVERY_MODE", DeliveryPolling)),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		PollTimeout:     defaultPollTimeout,
		UpdateDedupeTTL: defaultDedupeTTL,
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		APIKeyHash:      os.Getenv("API_KEY_HASH"),
		APIRateLimit:    defaultAPIRateLimit,
		DebitPolicy:     strings.ToLower(getEnv("DEBIT_POLICY", DebitAtSubmission)),
		Currency:        getEnv("CURRENCY", defaultCurrency),
		ArchiveReceipts: getBool("ARCHIVE_RECEIPTS", true),
		AutoMigrate:     getBool("AUTO_MIGRATE", true),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.UpdateDedupeTTL, err = durationFromEnv(dedupeTTLSecondsEnvVar, dedupeTTLDurEnvVar, cfg.UpdateDedupeTTL); err != nil {
		return Config{}, err
	}
	if cfg.ConversationTTL, err = durationFromEnv("", conversationTTLDurEnvVar, 0); err != nil {
		return Config{}, err
	}
	if cfg.PollTimeout, err = durationFromEnv("", "POLL_TIMEOUT", cfg.PollTimeout); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid API_RATE_LIMIT: %w", err)
		}
		cfg.APIRateLimit = n
	}

	roster, err := loadRoster()
	if err != nil {
		return Config{}, err
	}
	cfg.Roster = roster

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN must be set")
	}
	switch c.DeliveryMode {
	case DeliveryPolling:
	case DeliveryWebhook:
		if c.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SECRET must be set when DELIVERY_MODE=webhook")
		}
	default:
		return fmt.Errorf("unknown DELIVERY_MODE %q", c.DeliveryMode)
	}
	switch c.DebitPolicy {
	case DebitAtSubmission, DebitAtSettlement:
	default:
		return fmt.Errorf("unknown DEBIT_POLICY %q", c.DebitPolicy)
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}
	return c.Roster.Validate()
}

// IsDev reports whether in-memory backends are acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
