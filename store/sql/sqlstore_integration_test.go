package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/boxyhq/go-dsync/core"
	dsyncmigrations "github.com/boxyhq/go-dsync/migrations"
	sqlstore "github.com/boxyhq/go-dsync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-dsync-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	ctx := context.Background()
	for _, table := range []string{"dsync_events", "dsync_locks", "dsync_webhook_events"} {
		var name string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(ctx, &name); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if name != table {
			t.Fatalf("expected %s table, got %q", table, name)
		}
	}
}

func TestEventStore_ClaimsOldestFirstAndPreservesPreClaimStatus(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewEventStore(client.DB())
	if err != nil {
		t.Fatalf("new event store: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		event := integrationQueuedEvent(fmt.Sprintf("evt_%d", i+1), "dir_claim")
		event.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Put(ctx, event); err != nil {
			t.Fatalf("put event %d: %v", i+1, err)
		}
	}

	batch, err := store.NextBatch(ctx, 2)
	if err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 claimed events, got %d", len(batch))
	}
	if batch[0].ID != "evt_1" || batch[1].ID != "evt_2" {
		t.Fatalf("expected oldest-first claim order, got %s then %s", batch[0].ID, batch[1].ID)
	}
	for _, event := range batch {
		if event.Status != core.EventStatusPending {
			t.Fatalf("expected pre-claim status pending for %s, got %q", event.ID, event.Status)
		}
	}

	var status string
	if err := client.DB().NewRaw(
		"SELECT status FROM dsync_events WHERE id = ?", "evt_1",
	).Scan(ctx, &status); err != nil {
		t.Fatalf("read claimed status: %v", err)
	}
	if status != string(core.EventStatusProcessing) {
		t.Fatalf("expected claimed row to be processing, got %q", status)
	}
}

func TestEventStore_RetryWindowAndReclaim(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewEventStore(client.DB())
	if err != nil {
		t.Fatalf("new event store: %v", err)
	}

	event := integrationQueuedEvent("evt_retry", "dir_retry")
	event.CreatedAt = time.Now().UTC().Add(-time.Minute)
	if err := store.Put(ctx, event); err != nil {
		t.Fatalf("put event: %v", err)
	}

	if batch, err := store.NextBatch(ctx, 10); err != nil || len(batch) != 1 {
		t.Fatalf("expected initial claim of 1 event, got %d (err=%v)", len(batch), err)
	}

	future := time.Now().UTC().Add(time.Hour)
	if err := store.MarkFailed(ctx, "evt_retry", &future); err != nil {
		t.Fatalf("mark failed with future attempt: %v", err)
	}
	if batch, err := store.NextBatch(ctx, 10); err != nil || len(batch) != 0 {
		t.Fatalf("expected no claims inside backoff window, got %d (err=%v)", len(batch), err)
	}

	past := time.Now().UTC().Add(-time.Second)
	if err := store.MarkFailed(ctx, "evt_retry", &past); err != nil {
		t.Fatalf("mark failed with elapsed attempt: %v", err)
	}
	batch, err := store.NextBatch(ctx, 10)
	if err != nil {
		t.Fatalf("reclaim batch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected reclaim once the window passed, got %d events", len(batch))
	}
	if batch[0].Status != core.EventStatusFailed {
		t.Fatalf("expected pre-claim status failed, got %q", batch[0].Status)
	}
	if batch[0].RetryCount != 2 {
		t.Fatalf("expected retry count 2 after two failures, got %d", batch[0].RetryCount)
	}

	if err := store.Delete(ctx, "evt_retry"); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty queue after delete, got %d", count)
	}
}

func TestEventStore_PreservesOpaqueCallerIDs(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewEventStore(client.DB())
	if err != nil {
		t.Fatalf("new event store: %v", err)
	}

	// Non-uuid ids come from the host's own id scheme and must survive the
	// insert untouched, or MarkFailed and Delete by id would hit zero rows.
	if err := store.Put(ctx, integrationQueuedEvent("evt_opaque-1", "dir_opaque")); err != nil {
		t.Fatalf("put event: %v", err)
	}

	var storedID string
	if err := client.DB().NewRaw(
		"SELECT id FROM dsync_events WHERE directory_id = ?", "dir_opaque",
	).Scan(ctx, &storedID); err != nil {
		t.Fatalf("read stored id: %v", err)
	}
	if storedID != "evt_opaque-1" {
		t.Fatalf("expected caller id to be preserved, got %q", storedID)
	}

	next := time.Now().UTC().Add(time.Hour)
	if err := store.MarkFailed(ctx, "evt_opaque-1", &next); err != nil {
		t.Fatalf("mark failed by caller id: %v", err)
	}
	var retryCount int
	if err := client.DB().NewRaw(
		"SELECT retry_count FROM dsync_events WHERE id = ?", "evt_opaque-1",
	).Scan(ctx, &retryCount); err != nil {
		t.Fatalf("read retry count: %v", err)
	}
	if retryCount != 1 {
		t.Fatalf("expected MarkFailed to hit the row, retry count %d", retryCount)
	}

	if err := store.Delete(ctx, "evt_opaque-1"); err != nil {
		t.Fatalf("delete by caller id: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected delete by caller id to clear the queue, got %d", count)
	}
}

func TestWebhookEventLogStore_PreservesCallerIDs(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	logs, err := sqlstore.NewWebhookEventLogStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook log store: %v", err)
	}

	entry := core.WebhookEventLogEntry{
		ID:          "log_opaque-1",
		DirectoryID: "dir_opaque",
		Endpoint:    "https://example.com/hooks/dir_opaque",
		StatusCode:  200,
		Delivered:   true,
	}
	if err := logs.Log(ctx, entry); err != nil {
		t.Fatalf("log entry: %v", err)
	}

	entries, err := logs.List(ctx, "dir_opaque", 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "log_opaque-1" {
		t.Fatalf("expected caller log id to be preserved, got %+v", entries)
	}
}

func TestEventStore_CountByDirectory(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewEventStore(client.DB())
	if err != nil {
		t.Fatalf("new event store: %v", err)
	}

	for i, directoryID := range []string{"dir_a", "dir_a", "dir_b"} {
		event := integrationQueuedEvent(fmt.Sprintf("evt_count_%d", i), directoryID)
		if err := store.Put(ctx, event); err != nil {
			t.Fatalf("put event %d: %v", i, err)
		}
	}

	count, err := store.CountByDirectory(ctx, "dir_a")
	if err != nil {
		t.Fatalf("count by directory: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events for dir_a, got %d", count)
	}
}

func TestLockStore_AcquireContendAndExpire(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	locker, err := sqlstore.NewLockStore(client.DB())
	if err != nil {
		t.Fatalf("new lock store: %v", err)
	}

	acquired, err := locker.Acquire(ctx, "dsync:lock:events", 40*time.Millisecond)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquire to win")
	}

	contended, err := locker.Acquire(ctx, "dsync:lock:events", 40*time.Millisecond)
	if err != nil {
		t.Fatalf("contended acquire: %v", err)
	}
	if contended {
		t.Fatal("expected contended acquire to lose while the lock is live")
	}

	time.Sleep(80 * time.Millisecond)
	takeover, err := locker.Acquire(ctx, "dsync:lock:events", time.Minute)
	if err != nil {
		t.Fatalf("takeover acquire: %v", err)
	}
	if !takeover {
		t.Fatal("expected takeover of the expired lock")
	}
}

func TestLockStore_RenewAndRelease(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	locker, err := sqlstore.NewLockStore(client.DB())
	if err != nil {
		t.Fatalf("new lock store: %v", err)
	}

	if _, err := locker.Acquire(ctx, "dsync:lock:renew", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := locker.Renew(ctx, "dsync:lock:renew", time.Minute); err != nil {
		t.Fatalf("renew held lock: %v", err)
	}
	if err := locker.Release(ctx, "dsync:lock:renew"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := locker.Renew(ctx, "dsync:lock:renew", time.Minute); err == nil {
		t.Fatal("expected renew of released lock to fail")
	}

	_, held, err := locker.Holder(ctx, "dsync:lock:renew")
	if err != nil {
		t.Fatalf("holder lookup: %v", err)
	}
	if held {
		t.Fatal("expected no holder after release")
	}
}

func TestWebhookEventLogStore_LogListAndPrune(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	logs, err := sqlstore.NewWebhookEventLogStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook log store: %v", err)
	}

	now := time.Now().UTC()
	old := core.WebhookEventLogEntry{
		ID:          "log_old",
		DirectoryID: "dir_audit",
		TenantID:    "acme",
		Product:     "demo",
		Endpoint:    "https://example.com/hooks/audit",
		Payload:     map[string]any{"event": "user.created"},
		StatusCode:  200,
		Delivered:   true,
		CreatedAt:   now.Add(-48 * time.Hour),
	}
	recent := old
	recent.ID = "log_recent"
	recent.StatusCode = 502
	recent.Delivered = false
	recent.CreatedAt = now

	other := old
	other.ID = "log_other"
	other.DirectoryID = "dir_elsewhere"

	for _, entry := range []core.WebhookEventLogEntry{old, recent, other} {
		if err := logs.Log(ctx, entry); err != nil {
			t.Fatalf("log entry %s: %v", entry.ID, err)
		}
	}

	entries, err := logs.List(ctx, "dir_audit", 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for dir_audit, got %d", len(entries))
	}
	if entries[0].ID != "log_recent" || entries[1].ID != "log_old" {
		t.Fatalf("expected newest-first order, got %s then %s", entries[0].ID, entries[1].ID)
	}
	if entries[0].StatusCode != 502 || entries[0].Delivered {
		t.Fatalf("unexpected delivery outcome on %s: code=%d delivered=%v",
			entries[0].ID, entries[0].StatusCode, entries[0].Delivered)
	}
	payload, ok := entries[1].Payload.(map[string]any)
	if !ok {
		t.Fatalf("expected decoded payload map, got %T", entries[1].Payload)
	}
	if payload["event"] != "user.created" {
		t.Fatalf("unexpected payload round trip: %v", payload)
	}

	pruned, err := logs.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune old entries: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 pruned rows, got %d", pruned)
	}
	entries, err = logs.List(ctx, "dir_audit", 0)
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "log_recent" {
		t.Fatalf("expected only the recent entry to survive, got %d entries", len(entries))
	}
}

func TestCachedDirectoryResolver_HitMissAndInvalidate(t *testing.T) {
	ctx := context.Background()
	cacheService := newTestDirectoryCacheService(t)
	base := &countingDirectoryResolver{
		directory: core.Directory{
			ID:       "dir_cached",
			TenantID: "acme",
			Product:  "demo",
			Webhook: core.Webhook{
				Endpoint: "https://example.com/hooks/dir_cached",
				Secret:   "hush",
			},
		},
	}

	resolver, err := sqlstore.NewCachedDirectoryResolver(base, cacheService)
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}

	first, err := resolver.Get(ctx, "dir_cached")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.ID != "dir_cached" {
		t.Fatalf("unexpected directory %q", first.ID)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base fetch, got %d", base.getCalls)
	}

	if _, err := resolver.Get(ctx, "dir_cached"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected cache hit on second get, base calls=%d", base.getCalls)
	}

	if err := resolver.Invalidate(ctx, "dir_cached"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := resolver.Get(ctx, "dir_cached"); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected refetch after invalidate, base calls=%d", base.getCalls)
	}
}

func TestCachedDirectoryResolver_PropagatesNotFound(t *testing.T) {
	resolver, err := sqlstore.NewCachedDirectoryResolver(
		&countingDirectoryResolver{err: core.ErrDirectoryNotFound},
		newTestDirectoryCacheService(t),
	)
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}

	_, err = resolver.Get(context.Background(), "dir_missing")
	if !core.IsDirectoryNotFound(err) {
		t.Fatalf("expected directory-not-found propagation, got %v", err)
	}
}

func TestRepositoryFactory_BuildsStoresFromPersistenceClient(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new factory from persistence: %v", err)
	}
	if factory.EventStore() == nil || factory.Locker() == nil || factory.WebhookEventLogger() == nil {
		t.Fatal("expected factory to expose all stores")
	}

	event := integrationQueuedEvent("evt_factory", "dir_factory")
	if err := factory.EventStore().Put(ctx, event); err != nil {
		t.Fatalf("put through factory store: %v", err)
	}
	count, err := factory.EventStore().Count(ctx)
	if err != nil {
		t.Fatalf("count through factory store: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 queued event, got %d", count)
	}

	lazy := sqlstore.NewRepositoryFactory()
	if err := lazy.BuildStores(client); err != nil {
		t.Fatalf("build stores from client: %v", err)
	}
	if lazy.DB() == nil {
		t.Fatal("expected lazy factory to resolve the bun db")
	}
}

type countingDirectoryResolver struct {
	directory core.Directory
	getCalls  int
	err       error
}

func (r *countingDirectoryResolver) Get(_ context.Context, _ string) (core.Directory, error) {
	r.getCalls++
	if r.err != nil {
		return core.Directory{}, r.err
	}
	return r.directory, nil
}

func integrationQueuedEvent(id, directoryID string) core.QueuedEvent {
	return core.QueuedEvent{
		ID: id,
		Event: core.DirectorySyncEvent{
			Event:       core.EventUserCreated,
			TenantID:    "acme",
			Product:     "demo",
			DirectoryID: directoryID,
			Data: core.UserEventData{User: core.User{
				ID:     "user_1",
				Email:  "jackson@example.com",
				Active: true,
			}},
		},
	}
}

func newTestDirectoryCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:dsync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	err = dsyncmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dsyncmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, dsyncmigrations.DialectSQLite)
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
