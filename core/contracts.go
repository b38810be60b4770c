package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// EventStore is the durable queue of outbound events. Implementations must
// make Put atomic per record; nothing here assumes cross-record transactions,
// and the processor treats each record's fate independently.
type EventStore interface {
	// Put upserts one queued event, indexed by its directory id.
	Put(ctx context.Context, event QueuedEvent) error

	// NextBatch claims up to limit events in ascending creation order and
	// marks them processing. Returned records carry their pre-claim status so
	// the caller can detect a page of exhausted retries. Events whose
	// NextAttemptAt lies in the future are skipped.
	NextBatch(ctx context.Context, limit int) ([]QueuedEvent, error)

	// MarkFailed transitions one event to failed, increments its retry count
	// and schedules the next attempt. A nil nextAttemptAt leaves the event
	// immediately eligible again.
	MarkFailed(ctx context.Context, id string, nextAttemptAt *time.Time) error

	// Delete removes one event, either after successful delivery or because
	// its directory is permanently undeliverable.
	Delete(ctx context.Context, id string) error

	// Count returns the number of queued events still held.
	Count(ctx context.Context) (int, error)
}

// Locker is the TTL-based mutual exclusion primitive guarding the drain loop.
// Only one caller may hold a given key at a time; the holder renews before
// expiry, and a crashed holder's key becomes acquirable once the TTL lapses.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// DirectoryResolver maps a directory id to its current webhook configuration.
// Implementations return ErrDirectoryNotFound (or a wrapper of it) for
// missing directories so the processor can distinguish permanent drops from
// transient lookup failures.
type DirectoryResolver interface {
	Get(ctx context.Context, directoryID string) (Directory, error)
}

// WebhookSender performs one signed HTTP delivery and reports the response
// status. Transport errors propagate; non-2xx statuses do not.
type WebhookSender interface {
	Send(ctx context.Context, hook Webhook, payload any) (int, error)
}

// WebhookEventLogger is the optional per-directory audit sink. Logging
// failures are best-effort and never affect delivery outcomes.
type WebhookEventLogger interface {
	Log(ctx context.Context, entry WebhookEventLogEntry) error
}

// RetryBackoff schedules the delay before an event's next delivery attempt.
type RetryBackoff interface {
	NextDelay(attempt int) time.Duration
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives operational counters and histograms.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}
