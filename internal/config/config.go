package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for either authority.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	S2S       S2SConfig
	Tokens    TokenConfig
	RateLimit RateLimitConfig
	Workers   WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines caller authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// S2SConfig configures the link to the peer authority.
// APIKey is sent on outgoing calls; AcceptedKeys verify incoming ones.
type S2SConfig struct {
	PeerURL      string
	APIKey       string
	AcceptedKeys []string
	TimeoutMs    int
	MaxRetries   int
}

// TokenConfig bounds voting token lifetimes.
type TokenConfig struct {
	TTLHours              int
	ReservationTTLSeconds int
}

// RateLimitConfig is a fixed window on token requests per member.
type RateLimitConfig struct {
	MaxAttempts   int
	WindowMinutes int
}

// WorkerConfig sets background loop cadence.
type WorkerConfig struct {
	CloserIntervalSeconds int
	NotifyPollIntervalMs  int
}

// Load reads configuration from environment variables, applying defaults where possible.
// service selects per-authority defaults ("eligibility" or "ballot").
func Load(service string) (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	defaultPort := "8080"
	if service == "ballot" {
		defaultPort = "8081"
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	apiKey := os.Getenv("S2S_API_KEY")
	accepted := splitList(os.Getenv("S2S_ACCEPTED_KEYS"))
	if len(accepted) == 0 && apiKey != "" {
		accepted = []string{apiKey}
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", service+"-authority"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", defaultPort),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations/"+service),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: LoadAuth(),
		S2S: S2SConfig{
			PeerURL:      strings.TrimRight(os.Getenv("S2S_BASE_URL"), "/"),
			APIKey:       apiKey,
			AcceptedKeys: accepted,
			TimeoutMs:    getEnvAsInt("S2S_TIMEOUT_MS", 3000),
			MaxRetries:   getEnvAsInt("S2S_MAX_RETRIES", 3),
		},
		Tokens: TokenConfig{
			TTLHours:              getEnvAsInt("TOKEN_TTL_HOURS", 24),
			ReservationTTLSeconds: getEnvAsInt("TOKEN_RESERVATION_TTL_SECONDS", 60),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:   getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			WindowMinutes: getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 10),
		},
		Workers: WorkerConfig{
			CloserIntervalSeconds: getEnvAsInt("CLOSER_INTERVAL_SECONDS", 30),
			NotifyPollIntervalMs:  getEnvAsInt("NOTIFY_POLL_INTERVAL_MS", 1000),
		},
	}

	if cfg.S2S.PeerURL == "" {
		return nil, fmt.Errorf("S2S_BASE_URL is required")
	}
	if cfg.S2S.APIKey == "" {
		return nil, fmt.Errorf("S2S_API_KEY is required")
	}

	return cfg, nil
}

// LoadAuth reads only the caller-authentication settings. Tooling that mints
// tokens needs nothing else.
func LoadAuth() AuthConfig {
	_ = godotenv.Load()
	return AuthConfig{
		JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
		Issuer:                getEnv("AUTH_JWT_ISSUER", "membership"),
		AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
	}
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout bounds a single S2S call.
func (s S2SConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// TTL is the maximum lifetime of a voting token.
func (t TokenConfig) TTL() time.Duration {
	return time.Duration(t.TTLHours) * time.Hour
}

// ReservationTTL is how long an unconfirmed reservation blocks a retry.
func (t TokenConfig) ReservationTTL() time.Duration {
	return time.Duration(t.ReservationTTLSeconds) * time.Second
}

// Window is the rate limit bucket length.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

func (w WorkerConfig) CloserInterval() time.Duration {
	return time.Duration(w.CloserIntervalSeconds) * time.Second
}

func (w WorkerConfig) NotifyPollInterval() time.Duration {
	return time.Duration(w.NotifyPollIntervalMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
