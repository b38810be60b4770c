package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func queuedEventHandlers() repository.ModelHandlers[*queuedEventRecord] {
	return repository.ModelHandlers[*queuedEventRecord]{
		NewRecord: func() *queuedEventRecord {
			return &queuedEventRecord{}
		},
		GetID: func(record *queuedEventRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *queuedEventRecord, id uuid.UUID) {
			// Event ids are opaque strings assigned by the caller; the
			// generated uuid only fills a genuinely absent id. Overwriting a
			// non-uuid id here would orphan the row for MarkFailed/Delete.
			if record == nil || strings.TrimSpace(record.ID) != "" {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *queuedEventRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func webhookEventLogHandlers() repository.ModelHandlers[*webhookEventLogRecord] {
	return repository.ModelHandlers[*webhookEventLogRecord]{
		NewRecord: func() *webhookEventLogRecord {
			return &webhookEventLogRecord{}
		},
		GetID: func(record *webhookEventLogRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *webhookEventLogRecord, id uuid.UUID) {
			// Log ids are opaque strings; only fill an absent id.
			if record == nil || strings.TrimSpace(record.ID) != "" {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *webhookEventLogRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
