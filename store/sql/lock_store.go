package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// LockStore grants processing ownership through a single row per lock key.
// A lock is free when no row exists or the existing row has expired, so a
// crashed holder is displaced once its TTL runs out without any cleanup job.
type LockStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewLockStore(db *bun.DB) (*LockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LockStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *LockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: lock store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("sqlstore: lock key is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("sqlstore: lock ttl must be positive")
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	record := &lockRecord{
		Key:       key,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.NewInsert().
		Model(record).
		Exec(ctx)
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, fmt.Errorf("sqlstore: acquire lock %q: %w", key, err)
	}

	// Row exists. Take it over only if the previous holder let it expire.
	result, err := s.db.NewUpdate().
		Model((*lockRecord)(nil)).
		Set("expires_at = ?", expiresAt).
		Set("updated_at = ?", now).
		Where("key = ?", key).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("sqlstore: take over lock %q: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: take over lock %q: %w", key, err)
	}
	return affected == 1, nil
}

func (s *LockStore) Renew(ctx context.Context, key string, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: lock store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: lock key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("sqlstore: lock ttl must be positive")
	}

	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*lockRecord)(nil)).
		Set("expires_at = ?", now.Add(ttl)).
		Set("updated_at = ?", now).
		Where("key = ?", key).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: renew lock %q: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: renew lock %q: %w", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: lock %q is no longer held", key)
	}
	return nil
}

func (s *LockStore) Release(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: lock store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: lock key is required")
	}
	_, err := s.db.NewDelete().
		Model((*lockRecord)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: release lock %q: %w", key, err)
	}
	return nil
}

// Holder reports the current expiry for a lock key, mostly for diagnostics.
func (s *LockStore) Holder(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, fmt.Errorf("sqlstore: lock store is not configured")
	}
	record := &lockRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("key = ?", strings.TrimSpace(key)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlstore: inspect lock %q: %w", key, err)
	}
	return record.ExpiresAt, true, nil
}
