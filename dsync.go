// Package dsync delivers directory-sync change events to tenant webhooks:
// durable at-least-once dispatch, per-directory batching, HMAC-signed
// payloads and lock-guarded drain runs. The root package re-exports the
// core surface and wires production defaults for the HTTP sender and the
// retry schedule.
package dsync

import (
	"github.com/boxyhq/go-dsync/core"
	"github.com/boxyhq/go-dsync/webhooks"
)

// Core domain types, re-exported so hosts only import the root package.
type (
	Service              = core.Service
	Config               = core.Config
	Option               = core.Option
	EventKind            = core.EventKind
	DirectorySyncEvent   = core.DirectorySyncEvent
	QueuedEvent          = core.QueuedEvent
	EventStatus          = core.EventStatus
	User                 = core.User
	Group                = core.Group
	Directory            = core.Directory
	Webhook              = core.Webhook
	TransformInput       = core.TransformInput
	WebhookEventLogEntry = core.WebhookEventLogEntry

	EventStore         = core.EventStore
	Locker             = core.Locker
	DirectoryResolver  = core.DirectoryResolver
	WebhookSender      = core.WebhookSender
	WebhookEventLogger = core.WebhookEventLogger
	RetryBackoff       = core.RetryBackoff
	MetricsRecorder    = core.MetricsRecorder
	Logger             = core.Logger
	LoggerProvider     = core.LoggerProvider
)

const (
	EventUserCreated      = core.EventUserCreated
	EventUserUpdated      = core.EventUserUpdated
	EventUserDeleted      = core.EventUserDeleted
	EventGroupCreated     = core.EventGroupCreated
	EventGroupUpdated     = core.EventGroupUpdated
	EventGroupDeleted     = core.EventGroupDeleted
	EventGroupUserAdded   = core.EventGroupUserAdded
	EventGroupUserRemoved = core.EventGroupUserRemoved

	EventStatusPending    = core.EventStatusPending
	EventStatusProcessing = core.EventStatusProcessing
	EventStatusFailed     = core.EventStatusFailed
)

// Option re-exports.
var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithEventStore         = core.WithEventStore
	WithLocker             = core.WithLocker
	WithDirectoryResolver  = core.WithDirectoryResolver
	WithWebhookSender      = core.WithWebhookSender
	WithWebhookEventLogger = core.WithWebhookEventLogger
	WithRetryBackoff       = core.WithRetryBackoff
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
)

// DefaultConfig mirrors core.DefaultConfig.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Transform builds the wire event for one change.
func Transform(kind EventKind, in TransformInput) (DirectorySyncEvent, error) {
	return core.Transform(kind, in)
}

// New constructs the dispatcher with production defaults: a signing HTTP
// sender and an exponential retry schedule. Options passed by the caller
// override the defaults, so tests can swap in a fake sender and an
// in-memory store through the same constructor.
func New(cfg Config, options ...Option) (*Service, error) {
	defaults := []Option{
		WithWebhookSender(webhooks.NewHTTPSender(nil)),
		WithRetryBackoff(webhooks.ExponentialRetryPolicy{}),
	}
	return core.NewService(cfg, append(defaults, options...)...)
}
