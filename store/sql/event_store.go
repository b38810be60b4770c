package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/boxyhq/go-dsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// EventStore is the durable bun-backed queue of outbound directory-sync
// events.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*queuedEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*queuedEventRecord](db, queuedEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	return &EventStore{db: db, repo: repo}, nil
}

func (s *EventStore) Put(ctx context.Context, event core.QueuedEvent) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("sqlstore: queued event id is required")
	}
	if err := event.Event.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(event.Event)
	if err != nil {
		return fmt.Errorf("sqlstore: encode queued event payload: %w", err)
	}
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := event.Status
	if status == "" {
		status = core.EventStatusPending
	}

	record := &queuedEventRecord{
		ID:          strings.TrimSpace(event.ID),
		DirectoryID: strings.TrimSpace(event.Event.DirectoryID),
		EventType:   string(event.Event.Event),
		TenantID:    event.Event.TenantID,
		Product:     event.Event.Product,
		Payload:     payload,
		Status:      string(status),
		RetryCount:  event.RetryCount,
		CreatedAt:   createdAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if event.NextAttemptAt != nil {
		next := event.NextAttemptAt.UTC()
		record.NextAttemptAt = &next
	}

	_, err = s.repo.Create(ctx, record)
	return err
}

// NextBatch claims up to limit events oldest-first and flips them to
// processing inside one transaction. The select does not filter on status:
// rows left processing by a crashed run are reclaimed once their backoff
// window (if any) has passed, which is the at-least-once recovery path.
// Returned records keep their pre-claim status so the caller can spot a page
// of exhausted retries.
func (s *EventStore) NextBatch(ctx context.Context, limit int) ([]core.QueuedEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()

	var records []queuedEventRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		records = records[:0]
		if err := tx.NewSelect().
			Model(&records).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Order("created_at ASC").
			Limit(limit).
			Scan(ctx); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		ids := make([]string, 0, len(records))
		for _, record := range records {
			ids = append(ids, record.ID)
		}
		_, err := tx.NewUpdate().
			Model((*queuedEventRecord)(nil)).
			Set("status = ?", string(core.EventStatusProcessing)).
			Set("updated_at = ?", now).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]core.QueuedEvent, 0, len(records))
	for _, record := range records {
		event, convertErr := queuedEventToDomain(record)
		if convertErr != nil {
			return nil, convertErr
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *EventStore) MarkFailed(ctx context.Context, id string, nextAttemptAt *time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: queued event id is required")
	}

	var next *time.Time
	if nextAttemptAt != nil {
		value := nextAttemptAt.UTC()
		next = &value
	}
	_, err := s.db.NewUpdate().
		Model((*queuedEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusFailed)).
		Set("retry_count = retry_count + 1").
		Set("next_attempt_at = ?", next).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *EventStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: queued event id is required")
	}
	_, err := s.db.NewDelete().
		Model((*queuedEventRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *EventStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event store is not configured")
	}
	return s.db.NewSelect().
		Model((*queuedEventRecord)(nil)).
		Count(ctx)
}

// CountByDirectory supports admin views showing per-directory backlog.
func (s *EventStore) CountByDirectory(ctx context.Context, directoryID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event store is not configured")
	}
	return s.db.NewSelect().
		Model((*queuedEventRecord)(nil)).
		Where("directory_id = ?", strings.TrimSpace(directoryID)).
		Count(ctx)
}

func queuedEventToDomain(record queuedEventRecord) (core.QueuedEvent, error) {
	var event core.DirectorySyncEvent
	if err := json.Unmarshal(record.Payload, &event); err != nil {
		return core.QueuedEvent{}, fmt.Errorf("sqlstore: decode queued event %q: %w", record.ID, err)
	}
	out := core.QueuedEvent{
		ID:         record.ID,
		Event:      event,
		RetryCount: record.RetryCount,
		Status:     core.EventStatus(record.Status),
		CreatedAt:  record.CreatedAt,
	}
	if record.NextAttemptAt != nil {
		next := record.NextAttemptAt.UTC()
		out.NextAttemptAt = &next
	}
	return out, nil
}
