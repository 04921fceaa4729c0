// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat relay.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	ShutdownTimeout time.Duration
	RateLimit       RateLimitConfig
	Log             LogConfig
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultRateBurst       = 5
	defaultRefillInterval  = time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:5173",
		},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		WriteWait:       defaultWriteWait,
		PongWait:        defaultPongWait,
		PingPeriod:      pingPeriodFor(defaultPongWait),
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: defaultRefillInterval,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// pingPeriodFor keeps pings comfortably inside the pong deadline.
func pingPeriodFor(pongWait time.Duration) time.Duration {
	return pongWait * 9 / 10
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = pingPeriodFor(cfg.PongWait)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// LoadConfig reads configuration from an optional .env file, the environment
// and, when path is not empty, a config file. Environment variables use the
// upper-cased key with dots replaced by underscores (SERVER_PORT,
// RATE_LIMIT_BURST, LOG_LEVEL, ...). PORT is accepted as an alias of
// SERVER_PORT. Values that are missing or invalid fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("bind port env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := configFromViper(v)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := defaultConfig()
	v.SetDefault("server.port", def.Port)
	v.SetDefault("allowed_origins", strings.Join(def.AllowedOrigins, ","))
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("send_buffer_size", def.SendBufferSize)
	v.SetDefault("write_wait", def.WriteWait.String())
	v.SetDefault("pong_wait", def.PongWait.String())
	v.SetDefault("ping_period", "")
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout.String())
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", def.RateLimit.RefillInterval.String())
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", "")
}

func configFromViper(v *viper.Viper) Config {
	def := defaultConfig()
	cfg := Config{
		Port:            v.GetString("server.port"),
		AllowedOrigins:  originsValue(v.Get("allowed_origins")),
		MaxMessageSize:  parseMaxMessageSize(v.GetString("max_message_size"), def.MaxMessageSize),
		SendBufferSize:  parseIntValue(v.GetString("send_buffer_size"), def.SendBufferSize),
		WriteWait:       parseInterval(v.GetString("write_wait"), def.WriteWait),
		PongWait:        parseInterval(v.GetString("pong_wait"), def.PongWait),
		PingPeriod:      parseInterval(v.GetString("ping_period"), 0),
		ShutdownTimeout: parseInterval(v.GetString("shutdown_timeout"), def.ShutdownTimeout),
		RateLimit: RateLimitConfig{
			Burst:          parseIntValue(v.GetString("rate_limit.burst"), def.RateLimit.Burst),
			RefillInterval: parseInterval(v.GetString("rate_limit.refill_interval"), def.RateLimit.RefillInterval),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
	}
	return sanitizeConfig(cfg)
}

// originsValue accepts a comma-separated string (environment) or a list
// (config file).
func originsValue(raw any) []string {
	if s, ok := raw.(string); ok {
		return parseOrigins(s)
	}
	return cast.ToStringSlice(raw)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseInterval accepts whole seconds ("5") or a Go duration ("500ms").
func parseInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
