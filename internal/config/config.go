package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	NATS   NATSConfig
	OpenAI OpenAIConfig
	Memory MemoryConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	EmbedModel string
	ChatModel  string
	// Dimensions must match the vector(N) columns in the migrations.
	// The shipped schema uses 1536; changing this requires a matching
	// migration before any chunk can be inserted.
	Dimensions int
	Timeout    time.Duration
}

// MemoryConfig holds the engine tunables exposed through the environment.
// Per-layer fractions and priority weights live in internal/memory.
type MemoryConfig struct {
	ContextWindowTokens int
	RecentWindowSize    int
	EntityThreshold     float64
	EntityMax           int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: k.Strings("server.cors.origins"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		OpenAI: OpenAIConfig{
			APIKey:     k.String("openai.api.key"),
			BaseURL:    k.String("openai.base.url"),
			EmbedModel: k.String("openai.embed.model"),
			ChatModel:  k.String("openai.chat.model"),
			Dimensions: k.Int("openai.dimensions"),
		},
		Memory: MemoryConfig{
			ContextWindowTokens: k.Int("memory.context.window"),
			RecentWindowSize:    k.Int("memory.recent.window"),
			EntityThreshold:     k.Float64("memory.entity.threshold"),
			EntityMax:           k.Int("memory.entity.max"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "recall"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "recall"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.OpenAI.EmbedModel == "" {
		cfg.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.Dimensions == 0 {
		cfg.OpenAI.Dimensions = 1536
	}
	if cfg.Memory.ContextWindowTokens == 0 {
		cfg.Memory.ContextWindowTokens = 8000
	}
	if cfg.Memory.RecentWindowSize == 0 {
		cfg.Memory.RecentWindowSize = 50
	}
	if cfg.Memory.EntityThreshold == 0 {
		cfg.Memory.EntityThreshold = 0.7
	}
	if cfg.Memory.EntityMax == 0 {
		cfg.Memory.EntityMax = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	timeoutStr := k.String("openai.timeout")
	if timeoutStr == "" {
		timeoutStr = "10s"
	}
	cfg.OpenAI.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing openai timeout: %w", err)
	}

	return cfg, nil
}
