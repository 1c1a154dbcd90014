// Package vault loads runtime secrets (feed API key, bot token, JWT
// secret) from a HashiCorp Vault KV v2 mount. The service is read-only
// toward Vault; secrets are fetched once at startup and overlaid onto
// the config.
package vault

import (
	"context"
	"fmt"
	"sync"

	"futures-radar-bot/config"

	"github.com/hashicorp/vault/api"
)

// Client wraps the HashiCorp Vault client for secret reads.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cache  map[string]string
	loaded bool
}

// NewClient creates a Vault client. A disabled config yields a no-op
// client whose lookups always miss.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg, cache: make(map[string]string)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]string),
	}, nil
}

// IsEnabled returns whether Vault is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Secret returns one secret value by key. The secret map is read from
// Vault on first use and cached for the process lifetime.
func (c *Client) Secret(ctx context.Context, key string) (string, error) {
	if !c.config.Enabled {
		return "", fmt.Errorf("vault is disabled")
	}

	c.mu.RLock()
	if c.loaded {
		val := c.cache[key]
		c.mu.RUnlock()
		if val == "" {
			return "", fmt.Errorf("secret %q not found", key)
		}
		return val, nil
	}
	c.mu.RUnlock()

	if err := c.load(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	val := c.cache[key]
	if val == "" {
		return "", fmt.Errorf("secret %q not found", key)
	}
	return val, nil
}

// load reads the whole KV v2 secret into the cache.
func (c *Client) load(ctx context.Context) error {
	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("no secrets at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid secret format at %s", path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range data {
		if s, ok := v.(string); ok {
			c.cache[k] = s
		}
	}
	c.loaded = true
	return nil
}

// Overlay fills empty secret fields in cfg from Vault. Values already
// set (config file or environment) win; a disabled client is a no-op.
func (c *Client) Overlay(ctx context.Context, cfg *config.Config) error {
	if !c.config.Enabled {
		return nil
	}
	if err := c.load(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if cfg.FeedConfig.APIKey == "" {
		cfg.FeedConfig.APIKey = c.cache["feed_api_key"]
	}
	if cfg.NotificationConfig.Telegram.BotToken == "" {
		cfg.NotificationConfig.Telegram.BotToken = c.cache["telegram_bot_token"]
	}
	if cfg.AuthConfig.JWTSecret == "" {
		cfg.AuthConfig.JWTSecret = c.cache["jwt_secret"]
	}
	return nil
}

// Health checks the Vault connection and seal status.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
