package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "recall",
			Password: "secret", Name: "recall", SSLMode: "disable", MaxConns: 25,
		},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		OpenAI: OpenAIConfig{APIKey: "sk-test", Dimensions: 1536},
		Memory: MemoryConfig{ContextWindowTokens: 8000, EntityThreshold: 0.7, EntityMax: 20},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_DimensionsMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.OpenAI.Dimensions = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "OPENAI_DIMENSIONS") {
		t.Fatalf("expected OPENAI_DIMENSIONS error, got: %v", err)
	}
}

func TestValidate_NonDefaultDimensionsWarnOnly(t *testing.T) {
	cfg := validConfig()
	cfg.OpenAI.Dimensions = 768
	if err := cfg.Validate(); err != nil {
		t.Fatalf("non-default dimensions should warn, not fail: %v", err)
	}
}

func TestValidate_EntityThresholdRange(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.EntityThreshold = 1.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "MEMORY_ENTITY_THRESHOLD") {
		t.Fatalf("expected MEMORY_ENTITY_THRESHOLD error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
		OpenAI: OpenAIConfig{Dimensions: 1536},
		Memory: MemoryConfig{ContextWindowTokens: 8000},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"DB_PASSWORD", "SERVER_PORT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
