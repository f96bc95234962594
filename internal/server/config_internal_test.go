package server

import (
	"testing"

	"github.com/parley-chat/parley/internal/bus"
)

// TestDefaultConfig verifies the loopback bind and conservative defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Addr != "127.0.0.1:8080" {
		t.Errorf("Expected loopback default address, got %q", cfg.Addr)
	}
	if cfg.MaxMessageSize != 512 {
		t.Errorf("Expected default max message size 512, got %d", cfg.MaxMessageSize)
	}
	if cfg.BusCapacity != bus.DefaultCapacity {
		t.Errorf("Expected default bus capacity %d, got %d", bus.DefaultCapacity, cfg.BusCapacity)
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Error("Expected non-empty default origin allow-list")
	}
}

// TestNewConfigFromEnv verifies environment overrides and fallback on
// unparseable values.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", "0.0.0.0:9000")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:3000")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("BUS_CAPACITY", "64")

	cfg := NewConfigFromEnv()

	if cfg.Addr != "0.0.0.0:9000" {
		t.Errorf("Expected address override, got %q", cfg.Addr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://chat.example.com" {
		t.Errorf("Unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("Expected max message size 1024, got %d", cfg.MaxMessageSize)
	}
	if cfg.BusCapacity != 64 {
		t.Errorf("Expected bus capacity 64, got %d", cfg.BusCapacity)
	}

	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("BUS_CAPACITY", "-4")
	cfg = NewConfigFromEnv()
	if cfg.MaxMessageSize != 512 {
		t.Errorf("Expected fallback max message size, got %d", cfg.MaxMessageSize)
	}
	if cfg.BusCapacity != bus.DefaultCapacity {
		t.Errorf("Expected fallback bus capacity, got %d", cfg.BusCapacity)
	}
}

// TestSetConfigSanitizesZeroValues verifies that an empty Config is filled
// with defaults when applied.
func TestSetConfigSanitizesZeroValues(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{})
	cfg := currentConfig()

	if cfg.Addr != "127.0.0.1:8080" {
		t.Errorf("Expected default address after sanitize, got %q", cfg.Addr)
	}
	if cfg.MaxMessageSize != 512 {
		t.Errorf("Expected default max message size after sanitize, got %d", cfg.MaxMessageSize)
	}
	if cfg.BusCapacity != bus.DefaultCapacity {
		t.Errorf("Expected default bus capacity after sanitize, got %d", cfg.BusCapacity)
	}
}
