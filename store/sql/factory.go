package sqlstore

import (
	"fmt"

	"github.com/boxyhq/go-dsync/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the bun-backed stores once over a shared db
// handle, accepting either a raw *bun.DB or a go-persistence-bun client.
type RepositoryFactory struct {
	db *bun.DB

	eventStore      *EventStore
	lockStore       *LockStore
	webhookLogStore *WebhookEventLogStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.eventStore != nil && f.lockStore != nil && f.webhookLogStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) EventStore() core.EventStore {
	if f == nil {
		return nil
	}
	return f.eventStore
}

func (f *RepositoryFactory) Locker() core.Locker {
	if f == nil {
		return nil
	}
	return f.lockStore
}

func (f *RepositoryFactory) WebhookEventLogger() core.WebhookEventLogger {
	if f == nil {
		return nil
	}
	return f.webhookLogStore
}

func (f *RepositoryFactory) WebhookEventLogStore() *WebhookEventLogStore {
	if f == nil {
		return nil
	}
	return f.webhookLogStore
}

func (f *RepositoryFactory) initStores() error {
	eventStore, err := NewEventStore(f.db)
	if err != nil {
		return err
	}
	f.eventStore = eventStore

	lockStore, err := NewLockStore(f.db)
	if err != nil {
		return err
	}
	f.lockStore = lockStore

	webhookLogStore, err := NewWebhookEventLogStore(f.db)
	if err != nil {
		return err
	}
	f.webhookLogStore = webhookLogStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
