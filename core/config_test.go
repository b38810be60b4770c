package core

import (
	"context"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	cfg.WebhookBatchSize = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative batch size rejection")
	}

	cfg = DefaultConfig()
	cfg.ServiceName = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing service name rejection")
	}
}

func TestConfigBatchingEnabled(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.BatchingEnabled() {
		t.Fatalf("default config must batch")
	}

	cfg.DirectDelivery = true
	if cfg.BatchingEnabled() {
		t.Fatalf("direct delivery must disable batching")
	}

	cfg = DefaultConfig()
	cfg.WebhookBatchSize = 0
	if cfg.BatchingEnabled() {
		t.Fatalf("zero batch size must disable batching")
	}
}

func TestCfgxConfigProviderAppliesLoadedValues(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"webhook_batch_size": 5,
		"lock_key":           "worker-9",
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WebhookBatchSize != 5 {
		t.Fatalf("expected loaded batch size, got %d", cfg.WebhookBatchSize)
	}
	if cfg.LockKey != "worker-9" {
		t.Fatalf("expected loaded lock key, got %q", cfg.LockKey)
	}
	if cfg.LockTTL != DefaultConfig().LockTTL {
		t.Fatalf("expected default ttl retained, got %v", cfg.LockTTL)
	}
}

func TestGoOptionsResolverLayerPrecedence(t *testing.T) {
	defaults := DefaultConfig()

	loaded := Config{}
	loaded.WebhookBatchSize = 25
	loaded.LockKey = "from-config"

	runtime := Config{}
	runtime.LockKey = "from-runtime"
	runtime.LockTTL = 45 * time.Second

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.LockKey != "from-runtime" {
		t.Fatalf("runtime layer must win, got %q", resolved.LockKey)
	}
	if resolved.WebhookBatchSize != 25 {
		t.Fatalf("config layer must beat defaults, got %d", resolved.WebhookBatchSize)
	}
	if resolved.LockTTL != 45*time.Second {
		t.Fatalf("unexpected ttl %v", resolved.LockTTL)
	}
	if resolved.ResolveConcurrency != defaults.ResolveConcurrency {
		t.Fatalf("defaults must fill unset keys, got %d", resolved.ResolveConcurrency)
	}
}

func TestGoOptionsResolverRejectsInvalidMerge(t *testing.T) {
	runtime := Config{WebhookBatchSize: -10}
	if _, err := (GoOptionsResolver{}).Resolve(DefaultConfig(), Config{}, runtime); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestNewServiceRequiresResolverAndSender(t *testing.T) {
	if _, err := NewService(testConfig(), WithWebhookSender(&stubSender{})); err == nil {
		t.Fatalf("expected missing resolver error")
	}
	if _, err := NewService(testConfig(), WithDirectoryResolver(&stubResolver{})); err == nil {
		t.Fatalf("expected missing sender error")
	}
}

func TestNewServiceResolvesRuntimeConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookBatchSize = 7
	service := newTestService(t, cfg,
		WithDirectoryResolver(&stubResolver{}),
		WithWebhookSender(&stubSender{}),
	)
	if got := service.Config().WebhookBatchSize; got != 7 {
		t.Fatalf("expected runtime batch size applied, got %d", got)
	}
	if service.Config().LockKey != "test-worker" {
		t.Fatalf("unexpected lock key %q", service.Config().LockKey)
	}
}
