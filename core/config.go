package core

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultWebhookBatchSize   = 50
	defaultLockTTL            = 30 * time.Second
	defaultResolveConcurrency = 4

	// defaultRetryDelay schedules failed events when no backoff policy is
	// wired, keeping the drain loop from refetching them in the same run.
	defaultRetryDelay = 30 * time.Second
)

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`

	// WebhookBatchSize is the fetch page size of the drain loop.
	WebhookBatchSize int `koanf:"webhook_batch_size" mapstructure:"webhook_batch_size"`

	// DirectDelivery disables batching: events are delivered synchronously at
	// push time through the direct dispatcher and never touch the store.
	DirectDelivery bool `koanf:"direct_delivery" mapstructure:"direct_delivery"`

	// LockKey labels the global drain lock. It defaults to the hostname,
	// which is a human-readable owner label rather than a per-process scope:
	// all workers contend for the same logical lock.
	LockKey string `koanf:"lock_key" mapstructure:"lock_key"`

	// LockTTL bounds how long a crashed holder blocks the next drain. The
	// holder renews at half this interval.
	LockTTL time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`

	// ResolveConcurrency bounds concurrent directory resolution and outbound
	// sends within one fetched page.
	ResolveConcurrency int `koanf:"resolve_concurrency" mapstructure:"resolve_concurrency"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:        "dsync",
		WebhookBatchSize:   defaultWebhookBatchSize,
		LockKey:            defaultLockKey(),
		LockTTL:            defaultLockTTL,
		ResolveConcurrency: defaultResolveConcurrency,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.WebhookBatchSize < 0 {
		return fmt.Errorf("core: webhook_batch_size cannot be negative")
	}
	if c.LockTTL < 0 {
		return fmt.Errorf("core: lock_ttl cannot be negative")
	}
	if c.ResolveConcurrency < 0 {
		return fmt.Errorf("core: resolve_concurrency cannot be negative")
	}
	return nil
}

// BatchingEnabled reports whether pushes are queued for the drain loop or
// dispatched directly.
func (c Config) BatchingEnabled() bool {
	return !c.DirectDelivery && c.WebhookBatchSize > 0
}

func defaultLockKey() string {
	hostname, err := os.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		return "dsync"
	}
	return hostname
}
