package main

import (
	"context"
	"io"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	smshook "github.com/goliatone/go-smshook"
	"github.com/goliatone/go-smshook/adapters/gologger"
	"github.com/goliatone/go-smshook/core"
	sqlstore "github.com/goliatone/go-smshook/store/sql"
)

type app struct {
	config  core.Config
	client  *persistence.Client
	runtime *smshook.Runtime
	logger  *gologger.SlogLogger
}

// newApp loads configuration, opens the database and wires the runtime on
// top of the SQL stores. Callers must Close the result.
func newApp(ctx context.Context, configPath string, logOut io.Writer, runMigrations bool) (*app, error) {
	cfg, provider, err := loadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	logger := gologger.NewSlogLogger(logOut, cfg.LogLevel)

	client, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if runMigrations {
		if err := migrate(ctx, client, cfg.Database.Driver); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = cfg.Reassembly.DeliveredTTLDuration()
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	factory := sqlstore.NewRepositoryFactory(
		sqlstore.WithDeliveredTTL(cfg.Reassembly.DeliveredTTLDuration()),
		sqlstore.WithLedgerCache(cacheService),
	)

	service, err := smshook.NewService(cfg,
		smshook.WithConfigProvider(provider),
		smshook.WithLoggerProvider(gologger.NewSlogProvider(logger)),
		smshook.WithPersistenceClient(client),
		smshook.WithRepositoryFactory(factory),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	runtime, err := smshook.NewRuntime(service)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &app{config: service.Config(), client: client, runtime: runtime, logger: logger}, nil
}

func (a *app) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
