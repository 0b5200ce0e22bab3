package core

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate_RequiresBotToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.URL = "https://store.example.com"

	err := cfg.Validate()
	var missing ConfigMissingError
	if !errors.As(err, &missing) || missing.Field != "bot_token" {
		t.Fatalf("expected bot_token missing error, got %v", err)
	}
}

func TestConfigValidate_RequiresBackendURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BotToken = "123:abc"

	err := cfg.Validate()
	var missing ConfigMissingError
	if !errors.As(err, &missing) || missing.Field != "backend.url" {
		t.Fatalf("expected backend.url missing error, got %v", err)
	}
}

func TestConfigValidate_AcceptsCompleteConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BotToken = "123:abc"
	cfg.Backend.URL = "https://store.example.com"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestDefaultConfig_CarriesPacingAndEvictionDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Delivery.MinInterval != 700*time.Millisecond {
		t.Fatalf("expected 700ms pacing default, got %s", cfg.Delivery.MinInterval)
	}
	if cfg.Delivery.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", cfg.Delivery.PageSize)
	}
	if cfg.Session.TTL <= 0 {
		t.Fatalf("expected positive session TTL default")
	}
	if cfg.Port != 5000 {
		t.Fatalf("expected default port 5000, got %d", cfg.Port)
	}
}
