package config

import (
	"testing"
	"time"

	"stockroom/errors"
	"stockroom/inventory"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreDSN != "stockroom.db" {
		t.Errorf("unexpected default DSN: %q", cfg.StoreDSN)
	}
	if cfg.QuantityPolicy != inventory.QuantityPolicyReject {
		t.Errorf("unexpected default policy: %q", cfg.QuantityPolicy)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("unexpected default reconnect delay: %v", cfg.ReconnectDelay)
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATS should be disabled by default, got %q", cfg.NATSURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STOCKROOM_STORE_DSN", ":memory:")
	t.Setenv("STOCKROOM_NATS_URL", "nats://broker:4222")
	t.Setenv("STOCKROOM_REDIS_ADDR", "redis:6379")
	t.Setenv("STOCKROOM_CACHE_TTL", "30s")
	t.Setenv("STOCKROOM_RECONNECT_DELAY", "250ms")
	t.Setenv("STOCKROOM_QUANTITY_POLICY", "clamp")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreDSN != ":memory:" {
		t.Errorf("DSN override ignored: %q", cfg.StoreDSN)
	}
	if cfg.NATSURL != "nats://broker:4222" {
		t.Errorf("NATS URL override ignored: %q", cfg.NATSURL)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("cache TTL override ignored: %v", cfg.CacheTTL)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("reconnect delay override ignored: %v", cfg.ReconnectDelay)
	}
	if cfg.QuantityPolicy != inventory.QuantityPolicyClamp {
		t.Errorf("policy override ignored: %q", cfg.QuantityPolicy)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"STOCKROOM_CACHE_TTL":       "soon",
		"STOCKROOM_RECONNECT_DELAY": "-1s",
		"STOCKROOM_QUANTITY_POLICY": "explode",
		"STOCKROOM_REDIS_DB":        "one",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			if !errors.IsValidation(err) {
				t.Errorf("expected validation error for %s=%q, got %v", key, value, err)
			}
		})
	}
}
