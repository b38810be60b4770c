package core

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HandleEvent is the SCIM-facing entry point: it transforms the change into
// its wire shape and either queues it for the drain loop or, when batching is
// disabled, hands it to the direct dispatcher. Direct delivery is fire and
// forget; its failures are logged, never returned.
func (s *Service) HandleEvent(ctx context.Context, kind EventKind, in TransformInput) (QueuedEvent, error) {
	if s == nil {
		return QueuedEvent{}, errServiceNotConfigured()
	}
	event, err := Transform(kind, in)
	if err != nil {
		return QueuedEvent{}, s.mapError(err)
	}
	if s.config.BatchingEnabled() {
		return s.Push(ctx, event)
	}

	startedAt := s.now()
	status, sendErr := s.direct.Dispatch(ctx, in.Directory, event)
	s.observeOperation(ctx, startedAt, "direct_delivery", sendErr, map[string]any{
		"directory_id": event.DirectoryID,
		"tenant":       event.TenantID,
		"product":      event.Product,
		"event_type":   string(event.Event),
		"status_code":  status,
	})
	return QueuedEvent{}, nil
}

// Push enqueues one transformed event for asynchronous delivery.
func (s *Service) Push(ctx context.Context, event DirectorySyncEvent) (QueuedEvent, error) {
	if s == nil || s.store == nil {
		return QueuedEvent{}, errServiceNotConfigured()
	}
	if err := event.Validate(); err != nil {
		return QueuedEvent{}, s.mapError(err)
	}
	if !s.config.BatchingEnabled() {
		return QueuedEvent{}, s.mapError(errBatchingDisabled())
	}

	record := QueuedEvent{
		ID:         uuid.NewString(),
		Event:      event,
		RetryCount: 0,
		Status:     EventStatusPending,
		CreatedAt:  s.now(),
	}
	if err := s.store.Put(ctx, record); err != nil {
		return QueuedEvent{}, s.mapError(err)
	}
	return record, nil
}

// Process drains the queue until a fetch returns no events. It is the single
// entry point for schedulers and triggers; a run that cannot take the lock is
// an idempotent no-op. Delivery failures are absorbed into event state and
// never surface to the caller; only store or lock infrastructure errors do.
func (s *Service) Process(ctx context.Context) error {
	if s == nil || s.store == nil || s.locker == nil {
		return errServiceNotConfigured()
	}
	if !s.config.BatchingEnabled() {
		return nil
	}
	if !s.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer s.draining.Store(false)

	key := strings.TrimSpace(s.config.LockKey)
	if key == "" {
		key = defaultLockKey()
	}
	ttl := s.config.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	acquired, err := s.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return s.mapError(err)
	}
	if !acquired {
		s.logInfo(ctx, "event drain already active, skipping run", map[string]any{
			"lock_key": key,
		})
		return nil
	}

	stopRenewal := s.startLockRenewal(ctx, key, ttl)
	defer func() {
		stopRenewal()
		if releaseErr := s.locker.Release(ctx, key); releaseErr != nil {
			s.logError(ctx, "release drain lock", map[string]any{
				"lock_key": key,
				"error":    releaseErr.Error(),
			})
		}
	}()

	startedAt := s.now()
	var drained int
	for {
		if ctx.Err() != nil {
			return s.mapError(ctx.Err())
		}
		batch, fetchErr := s.fetchNextBatch(ctx)
		if fetchErr != nil {
			s.observeOperation(ctx, startedAt, "process_events", fetchErr, map[string]any{
				"drained": drained,
			})
			return s.mapError(fetchErr)
		}
		if len(batch) == 0 {
			break
		}
		drained += len(batch)
		s.dispatchGroups(ctx, groupByDirectory(batch))
	}

	s.observeOperation(ctx, startedAt, "process_events", nil, map[string]any{
		"drained": drained,
	})
	return nil
}

// fetchNextBatch claims the next page oldest-first. A non-empty page made up
// entirely of already-failed events means retries are piling up without being
// cleared; that raises an operator-visible escalation but never stops the
// loop, which re-attempts them regardless.
func (s *Service) fetchNextBatch(ctx context.Context) ([]QueuedEvent, error) {
	batch, err := s.store.NextBatch(ctx, s.config.WebhookBatchSize)
	if err != nil {
		return nil, err
	}
	if len(batch) > 0 && allFailed(batch) {
		s.logError(ctx, "all events in batch have failed, please check the system", map[string]any{
			"batch_size": len(batch),
		})
		s.recordCounter(ctx, "dsync.batch_exhausted.total", 1, map[string]string{})
	}
	return batch, nil
}

type directoryGroup struct {
	directoryID string
	events      []QueuedEvent
}

func groupByDirectory(batch []QueuedEvent) []directoryGroup {
	index := make(map[string]int, len(batch))
	groups := make([]directoryGroup, 0, len(batch))
	for _, event := range batch {
		id := event.Event.DirectoryID
		at, ok := index[id]
		if !ok {
			index[id] = len(groups)
			groups = append(groups, directoryGroup{directoryID: id})
			at = index[id]
		}
		groups[at].events = append(groups[at].events, event)
	}
	return groups
}

// dispatchGroups resolves and delivers each directory group, bounding
// concurrent outbound work so a page spanning many directories cannot open
// unbounded HTTP connections.
func (s *Service) dispatchGroups(ctx context.Context, groups []directoryGroup) {
	concurrency := s.config.ResolveConcurrency
	if concurrency <= 0 {
		concurrency = defaultResolveConcurrency
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		sem <- struct{}{}
		go func(group directoryGroup) {
			defer wg.Done()
			defer func() { <-sem }()
			s.deliverGroup(ctx, group)
		}(group)
	}
	wg.Wait()
}

func (s *Service) deliverGroup(ctx context.Context, group directoryGroup) {
	startedAt := s.now()
	fields := map[string]any{
		"directory_id": group.directoryID,
		"events":       len(group.events),
	}

	directory, err := s.resolver.Get(ctx, group.directoryID)
	switch {
	case err != nil && IsDirectoryNotFound(err):
		// Permanently undeliverable; the sender is never consulted.
		s.deleteGroup(ctx, group)
		s.observeOperation(ctx, startedAt, "drop_events", nil, fields)
		return
	case err != nil:
		// Transient lookup failure: keep the events for the next run.
		s.markGroupFailed(ctx, group)
		s.observeOperation(ctx, startedAt, "deliver_events", err, fields)
		return
	case !directory.Active(), !directory.HasWebhook():
		s.deleteGroup(ctx, group)
		s.observeOperation(ctx, startedAt, "drop_events", nil, fields)
		return
	}

	fields["tenant"] = directory.TenantID
	fields["product"] = directory.Product

	payload := rawEvents(group.events)
	status, sendErr := s.sender.Send(ctx, directory.Webhook, payload)
	delivered := sendErr == nil && status == http.StatusOK
	fields["status_code"] = status

	if delivered {
		s.deleteGroup(ctx, group)
	} else {
		if sendErr == nil {
			sendErr = errDeliveryRejected(status)
		}
		s.markGroupFailed(ctx, group)
	}

	if directory.LogWebhookEvents {
		s.logWebhookOutcome(ctx, directory, payload, status, delivered)
	}
	s.observeOperation(ctx, startedAt, "deliver_events", sendErr, fields)
}

// rawEvents strips the store wrapper: tenant endpoints receive the array of
// domain events, not queue bookkeeping.
func rawEvents(events []QueuedEvent) []DirectorySyncEvent {
	out := make([]DirectorySyncEvent, 0, len(events))
	for _, event := range events {
		out = append(out, event.Event)
	}
	return out
}

// markGroupFailed fans out one store write per event. Individual write
// failures are logged and tolerated so one bad record cannot hold the rest
// of the group hostage.
func (s *Service) markGroupFailed(ctx context.Context, group directoryGroup) {
	now := s.now()
	for _, event := range group.events {
		delay := defaultRetryDelay
		if s.backoff != nil {
			delay = s.backoff.NextDelay(event.RetryCount + 1)
		}
		next := now.Add(delay)
		nextAttemptAt := &next
		if err := s.store.MarkFailed(ctx, event.ID, nextAttemptAt); err != nil {
			s.logError(ctx, "mark event failed", map[string]any{
				"event_id":     event.ID,
				"directory_id": group.directoryID,
				"error":        err.Error(),
			})
		}
	}
}

func (s *Service) deleteGroup(ctx context.Context, group directoryGroup) {
	for _, event := range group.events {
		if err := s.store.Delete(ctx, event.ID); err != nil {
			s.logError(ctx, "delete event", map[string]any{
				"event_id":     event.ID,
				"directory_id": group.directoryID,
				"error":        err.Error(),
			})
		}
	}
}

func (s *Service) logWebhookOutcome(
	ctx context.Context,
	directory Directory,
	payload any,
	status int,
	delivered bool,
) {
	if s.eventLog == nil {
		return
	}
	entry := WebhookEventLogEntry{
		ID:          uuid.NewString(),
		DirectoryID: directory.ID,
		TenantID:    directory.TenantID,
		Product:     directory.Product,
		Endpoint:    directory.Webhook.Endpoint,
		Payload:     payload,
		StatusCode:  status,
		Delivered:   delivered,
		CreatedAt:   s.now(),
	}
	if err := s.eventLog.Log(ctx, entry); err != nil {
		s.logError(ctx, "record webhook event log", map[string]any{
			"directory_id": directory.ID,
			"error":        err.Error(),
		})
	}
}

// startLockRenewal extends the drain lock at half its TTL until stopped. A
// crashed process simply stops renewing and the lock expires on its own.
func (s *Service) startLockRenewal(ctx context.Context, key string, ttl time.Duration) func() {
	interval := ttl / 2
	if interval <= 0 {
		interval = ttl
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.locker.Renew(ctx, key, ttl); err != nil {
					s.logError(ctx, "renew drain lock", map[string]any{
						"lock_key": key,
						"error":    err.Error(),
					})
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}

func allFailed(batch []QueuedEvent) bool {
	for _, event := range batch {
		if event.Status != EventStatusFailed {
			return false
		}
	}
	return true
}
