package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/boxyhq/go-dsync/core"
	"github.com/google/uuid"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// WebhookEventLogStore keeps an audit ledger of webhook delivery attempts
// for directories that opt into logging.
type WebhookEventLogStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventLogRecord]
}

func NewWebhookEventLogStore(db *bun.DB) (*WebhookEventLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventLogRecord](db, webhookEventLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook log repository wiring: %w", err)
		}
	}
	return &WebhookEventLogStore{db: db, repo: repo}, nil
}

func (s *WebhookEventLogStore) Log(ctx context.Context, entry core.WebhookEventLogEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	if strings.TrimSpace(entry.DirectoryID) == "" {
		return fmt.Errorf("sqlstore: webhook log entry requires a directory id")
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("sqlstore: encode webhook log payload: %w", err)
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := &webhookEventLogRecord{
		ID:          id,
		DirectoryID: strings.TrimSpace(entry.DirectoryID),
		TenantID:    entry.TenantID,
		Product:     entry.Product,
		Endpoint:    entry.Endpoint,
		Payload:     payload,
		StatusCode:  entry.StatusCode,
		Delivered:   entry.Delivered,
		CreatedAt:   createdAt,
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

// List returns delivery attempts for a directory, newest first.
func (s *WebhookEventLogStore) List(ctx context.Context, directoryID string, limit int) ([]core.WebhookEventLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	directoryID = strings.TrimSpace(directoryID)
	if directoryID == "" {
		return nil, fmt.Errorf("sqlstore: directory id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	var records []webhookEventLogRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("directory_id = ?", directoryID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]core.WebhookEventLogEntry, 0, len(records))
	for _, record := range records {
		var payload any
		if len(record.Payload) > 0 {
			if err := json.Unmarshal(record.Payload, &payload); err != nil {
				return nil, fmt.Errorf("sqlstore: decode webhook log %q: %w", record.ID, err)
			}
		}
		entries = append(entries, core.WebhookEventLogEntry{
			ID:          record.ID,
			DirectoryID: record.DirectoryID,
			TenantID:    record.TenantID,
			Product:     record.Product,
			Endpoint:    record.Endpoint,
			Payload:     payload,
			StatusCode:  record.StatusCode,
			Delivered:   record.Delivered,
			CreatedAt:   record.CreatedAt,
		})
	}
	return entries, nil
}

// DeleteOlderThan prunes the ledger and returns the number of rows removed.
func (s *WebhookEventLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*webhookEventLogRecord)(nil)).
		Where("created_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
