package vault

import (
	"context"
	"testing"

	"futures-radar-bot/config"
)

func TestDisabledClientIsNoOp(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.IsEnabled() {
		t.Fatal("client should report disabled")
	}
	if _, err := c.Secret(context.Background(), "jwt_secret"); err == nil {
		t.Fatal("Secret on a disabled client should error")
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health on a disabled client should be nil, got %v", err)
	}

	cfg := &config.Config{}
	cfg.AuthConfig.JWTSecret = "from-env"
	if err := c.Overlay(context.Background(), cfg); err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if cfg.AuthConfig.JWTSecret != "from-env" {
		t.Fatal("Overlay must not touch fields when disabled")
	}
}
