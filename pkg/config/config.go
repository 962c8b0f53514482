// Package config loads process configuration from environment variables.
// Every service binary shares one Config struct; each binary only reads the
// fields relevant to it. Defaults keep a single-host dev setup working with
// nothing but DATABASE_URL set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default ports per service binary.
const (
	DefaultIngestPort   = 8081
	DefaultIncidentPort = 8082
	DefaultOncallPort   = 8083
	DefaultNotifyPort   = 8084
)

const (
	defaultCorrelationWindowMinutes = 5
	defaultOverrideHours            = 8
	minOverrideHours                = 1
	maxOverrideHours                = 168

	defaultHistorySize       = 200
	defaultEscalationLogSize = 100
	defaultNotificationLog   = 500

	defaultServiceTimeout = 3 * time.Second
	defaultIdempotencyTTL = 60 * time.Minute
	defaultDBMaxConns     = 10
)

// Config is the merged environment configuration for all service binaries.
type Config struct {
	HTTPPort    int
	LogLevel    string
	CORSOrigins []string
	APIKey      string

	DatabaseURL string
	DBMaxConns  int32

	CorrelationWindow time.Duration

	IncidentManagementURL  string
	OncallServiceURL       string
	NotificationServiceURL string

	IncidentTimeout     time.Duration
	OncallTimeout       time.Duration
	NotificationTimeout time.Duration

	DefaultOverrideHours int
	MaxHistorySize       int
	MaxEscalationLogSize int
	MaxLogSize           int
	SeedDefaultSchedules bool

	WebhookURL    string
	EmailEndpoint string
	SlackEndpoint string

	RedisURL       string
	IdempotencyTTL time.Duration

	// TeamMap routes a service name to the team that owns it. Services
	// absent from the map default to a team named after the service.
	TeamMap map[string]string
}

// Load builds a Config from the environment, applying defaults and bounds.
// defaultPort is the per-binary fallback when HTTP_PORT is unset.
func Load(defaultPort int) (*Config, error) {
	cfg := &Config{
		HTTPPort:    getEnvInt("HTTP_PORT", defaultPort),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(os.Getenv("CORS_ORIGINS")),
		APIKey:      os.Getenv("API_KEY"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", defaultDBMaxConns)),

		CorrelationWindow: time.Duration(getEnvInt("CORRELATION_WINDOW_MINUTES", defaultCorrelationWindowMinutes)) * time.Minute,

		IncidentManagementURL:  getEnv("INCIDENT_MANAGEMENT_URL", "http://localhost:8082"),
		OncallServiceURL:       getEnv("ONCALL_SERVICE_URL", "http://localhost:8083"),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8084"),

		IncidentTimeout:     getEnvSeconds("INCIDENT_TIMEOUT", defaultServiceTimeout),
		OncallTimeout:       getEnvSeconds("ONCALL_TIMEOUT", defaultServiceTimeout),
		NotificationTimeout: getEnvSeconds("NOTIFICATION_TIMEOUT", defaultServiceTimeout),

		DefaultOverrideHours: getEnvInt("DEFAULT_OVERRIDE_HOURS", defaultOverrideHours),
		MaxHistorySize:       getEnvInt("MAX_HISTORY_SIZE", defaultHistorySize),
		MaxEscalationLogSize: getEnvInt("MAX_ESCALATION_LOG_SIZE", defaultEscalationLogSize),
		MaxLogSize:           getEnvInt("MAX_LOG_SIZE", defaultNotificationLog),
		SeedDefaultSchedules: getEnvBool("SEED_DEFAULT_SCHEDULES", false),

		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		EmailEndpoint: os.Getenv("EMAIL_ENDPOINT"),
		SlackEndpoint: os.Getenv("SLACK_ENDPOINT"),

		RedisURL:       os.Getenv("REDIS_URL"),
		IdempotencyTTL: time.Duration(getEnvInt("IDEMPOTENCY_TTL_MINUTES", int(defaultIdempotencyTTL/time.Minute))) * time.Minute,

		TeamMap: parseTeamMap(os.Getenv("TEAM_MAP")),
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP_PORT %d", cfg.HTTPPort)
	}
	if cfg.CorrelationWindow <= 0 {
		return nil, fmt.Errorf("CORRELATION_WINDOW_MINUTES must be positive")
	}
	if cfg.DefaultOverrideHours < minOverrideHours || cfg.DefaultOverrideHours > maxOverrideHours {
		return nil, fmt.Errorf("DEFAULT_OVERRIDE_HOURS must be in [%d,%d], got %d",
			minOverrideHours, maxOverrideHours, cfg.DefaultOverrideHours)
	}
	for name, v := range map[string]int{
		"MAX_HISTORY_SIZE":        cfg.MaxHistorySize,
		"MAX_ESCALATION_LOG_SIZE": cfg.MaxEscalationLogSize,
		"MAX_LOG_SIZE":            cfg.MaxLogSize,
	} {
		if v < 1 {
			return nil, fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return cfg, nil
}

// OverrideBounds returns the allowed [min,max] override duration in hours.
func OverrideBounds() (int, int) {
	return minOverrideHours, maxOverrideHours
}

// TeamFor resolves the owning team of a service. Unknown services map to a
// team named after the service itself.
func (c *Config) TeamFor(service string) string {
	if team, ok := c.TeamMap[service]; ok {
		return team
	}
	return service
}

// parseTeamMap parses "svc-a=team-1,svc-b=team-2" into a lookup map.
// Malformed entries are skipped.
func parseTeamMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitCSV(raw) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
