package sqlstore

import (
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-smshook/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL stores from a bun handle. It satisfies
// core.RepositoryStoreFactory so core.NewService can resolve stores from a
// persistence client.
type RepositoryFactory struct {
	db *bun.DB

	deliveredTTL time.Duration
	cacheService repositorycache.CacheService

	partStore      *PartStore
	ledgerStore    *DeliveryLedgerStore
	deliveryLedger core.DeliveryLedger
}

type FactoryOption func(*RepositoryFactory)

func WithDeliveredTTL(ttl time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		if ttl > 0 {
			f.deliveredTTL = ttl
		}
	}
}

// WithLedgerCache fronts the delivery ledger with a read-through cache.
func WithLedgerCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.partStore != nil && f.deliveryLedger != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) PartStore() core.PartStore {
	if f == nil || f.partStore == nil {
		return nil
	}
	return f.partStore
}

func (f *RepositoryFactory) DeliveryLedger() core.DeliveryLedger {
	if f == nil {
		return nil
	}
	return f.deliveryLedger
}

// LedgerStore returns the uncached SQL ledger.
func (f *RepositoryFactory) LedgerStore() *DeliveryLedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	partStore, err := NewPartStore(f.db)
	if err != nil {
		return err
	}
	ledgerStore, err := NewDeliveryLedgerStore(f.db, f.deliveredTTL)
	if err != nil {
		return err
	}
	f.partStore = partStore
	f.ledgerStore = ledgerStore
	f.deliveryLedger = ledgerStore

	if f.cacheService != nil {
		cached, err := NewCachedDeliveryLedger(ledgerStore, f.cacheService)
		if err != nil {
			return err
		}
		f.deliveryLedger = cached
	}
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
