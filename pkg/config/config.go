package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// App holds runtime configuration derived from env vars.
type App struct {
	DatabaseDriver string
	DatabaseURL    string

	KafkaBrokers string
	KafkaTopic   string

	APIPort     string
	Environment string
	LogLevel    string
	LogEncoding string
	CORSOrigins []string

	// One-off scheduler (external "fire once at T" service).
	OneOffEndpoint    string
	OneOffAdminSecret string
	OneOffTimeout     time.Duration
	OneOffRateLimit   float64

	// CallbackURL is the public URL of this service's firing webhook.
	CallbackURL         string
	WebhookSecret       string
	WebhookSecretHeader string

	RedisURL string

	SweepInterval  time.Duration
	SweepBatchSize int
	// SweepMaxLateness skips overdue events older than this instead of
	// firing them late. Zero fires every overdue event.
	SweepMaxLateness time.Duration
	// SweepTriggerGrace is how long past plan_start a registered trigger
	// may stay silent before the sweeper fires the event itself.
	SweepTriggerGrace time.Duration

	AutoComplete       bool
	EarlyFireTolerance time.Duration
	FiringGuardTTL     time.Duration
}

// FromEnv loads the application configuration from environment variables.
func FromEnv() App {
	return App{
		DatabaseDriver:      getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		KafkaBrokers:        getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "schedule-events"),
		APIPort:             getEnv("API_PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "production"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogEncoding:         getEnv("LOG_ENCODING", "json"),
		CORSOrigins:         getCORSOrigins(),
		OneOffEndpoint:      os.Getenv("ONEOFF_ENDPOINT"),
		OneOffAdminSecret:   os.Getenv("ONEOFF_ADMIN_SECRET"),
		OneOffTimeout:       getDuration("ONEOFF_TIMEOUT", 10*time.Second),
		OneOffRateLimit:     getFloat("ONEOFF_RATE_LIMIT", 20),
		CallbackURL:         getEnv("CALLBACK_URL", "http://localhost:8080/api/v1/oneoff/fired"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		WebhookSecretHeader: getEnv("WEBHOOK_SECRET_HEADER", "X-Webhook-Secret"),
		RedisURL:            os.Getenv("REDIS_URL"),
		SweepInterval:       getDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize:      getInt("SWEEP_BATCH", 100),
		SweepMaxLateness:    getDuration("SWEEP_MAX_LATENESS", 0),
		SweepTriggerGrace:   getDuration("SWEEP_TRIGGER_GRACE", 5*time.Minute),
		AutoComplete:        getBool("AUTO_COMPLETE", false),
		EarlyFireTolerance:  getDuration("EARLY_FIRE_TOLERANCE", 5*time.Second),
		FiringGuardTTL:      getDuration("FIRING_GUARD_TTL", time.Minute),
	}
}

// KafkaBrokerList splits KafkaBrokers into trimmed, non-empty addresses.
func (a App) KafkaBrokerList() []string {
	return splitList(a.KafkaBrokers)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

// getCORSOrigins parses CORS_ORIGINS; unset or empty means "*".
func getCORSOrigins() []string {
	raw := os.Getenv("CORS_ORIGINS")
	if raw == "" {
		return []string{"*"}
	}
	return splitList(raw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
