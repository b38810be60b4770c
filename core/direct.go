package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DirectDispatcher is the non-batched delivery strategy: one signed POST per
// event at push time, no queue, no lock, no retries. Selected by
// configuration; it shares the signing/send primitive with the drain loop
// but deliberately remains a separate code path.
type DirectDispatcher struct {
	Sender   WebhookSender
	EventLog WebhookEventLogger
	Now      func() time.Time
}

func NewDirectDispatcher(sender WebhookSender) *DirectDispatcher {
	return &DirectDispatcher{
		Sender: sender,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Dispatch sends one event to the directory's webhook. Inactive or
// unconfigured directories are skipped without error; delivery outcomes are
// reported to the caller, which decides whether to surface them.
func (d *DirectDispatcher) Dispatch(ctx context.Context, directory Directory, event DirectorySyncEvent) (int, error) {
	if d == nil || d.Sender == nil {
		return 0, fmt.Errorf("core: direct dispatcher requires a webhook sender")
	}
	if !directory.Active() || !directory.HasWebhook() {
		return 0, nil
	}

	status, err := d.Sender.Send(ctx, directory.Webhook, event)
	if d.EventLog != nil && directory.LogWebhookEvents {
		entry := WebhookEventLogEntry{
			ID:          uuid.NewString(),
			DirectoryID: directory.ID,
			TenantID:    directory.TenantID,
			Product:     directory.Product,
			Endpoint:    directory.Webhook.Endpoint,
			Payload:     event,
			StatusCode:  status,
			Delivered:   err == nil && status == http.StatusOK,
			CreatedAt:   d.now(),
		}
		// Best effort; the audit sink never affects the delivery outcome.
		_ = d.EventLog.Log(ctx, entry)
	}
	return status, err
}

func (d *DirectDispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func errServiceNotConfigured() error {
	return fmt.Errorf("core: service is not configured")
}

func errBatchingDisabled() error {
	return fmt.Errorf("core: event batching is disabled, use direct delivery")
}

func errDeliveryRejected(status int) error {
	return fmt.Errorf("core: webhook delivery rejected with status %d", status)
}
