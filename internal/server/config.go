// Package server provides configuration helpers that define runtime defaults,
// environment loading, and validation for the RoomChat service.
package server

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultPort           = ":8080"
	defaultFrontendURL    = "http://localhost:5173"
	defaultMaxMessageSize = 1 << 20
	defaultRefillInterval = time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A zero Burst disables the limiter.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	HistoryLimit   int
	RateLimit      RateLimitConfig
}

var (
	configMu     sync.RWMutex
	activeConfig Config
	activePolicy originPolicy
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:           defaultPort,
		AllowedOrigins: []string{defaultFrontendURL},
		MaxMessageSize: defaultMaxMessageSize,
		HistoryLimit:   DefaultHistoryLimit,
		RateLimit: RateLimitConfig{
			RefillInterval: defaultRefillInterval,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	policy := newOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = policy.list()

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activePolicy = policy
	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	applied := *cfg
	applied.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(applied)
}

// CurrentConfig returns a copy of the configuration in effect.
func CurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables read through
// viper. Unset or invalid values keep their defaults.
//
//	SERVER_PORT                 listen address, e.g. ":8080"
//	FRONTEND_URL                single allowed origin
//	ALLOWED_ORIGINS             comma separated origins, wins over FRONTEND_URL
//	MAX_MESSAGE_SIZE            inbound frame limit in bytes
//	HISTORY_LIMIT               messages kept per room
//	RATE_LIMIT_BURST            inbound frames allowed per refill interval, unset means unlimited
//	RATE_LIMIT_REFILL_INTERVAL  refill interval in seconds
func NewConfigFromEnv() *Config {
	return newConfigFromViper(newEnvViper())
}

func newEnvViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

func newConfigFromViper(v *viper.Viper) *Config {
	cfg := defaultConfig()

	if port := strings.TrimSpace(v.GetString("server_port")); port != "" {
		cfg.Port = port
	}

	if frontend := strings.TrimSpace(v.GetString("frontend_url")); frontend != "" {
		cfg.AllowedOrigins = []string{frontend}
	}
	if origins := v.GetString("allowed_origins"); strings.TrimSpace(origins) != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if size := v.GetInt64("max_message_size"); size > 0 {
		cfg.MaxMessageSize = size
	}
	if limit := v.GetInt("history_limit"); limit > 0 {
		cfg.HistoryLimit = limit
	}
	if burst := v.GetInt("rate_limit_burst"); burst > 0 {
		cfg.RateLimit.Burst = burst
	}
	if seconds := v.GetInt("rate_limit_refill_interval"); seconds > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(seconds) * time.Second
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
