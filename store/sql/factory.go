package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-transcript-intake/core"
	intakemigrations "github.com/goliatone/go-transcript-intake/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// RepositoryFactory builds the stores over one bun database.
type RepositoryFactory struct {
	db *bun.DB

	subscriptionStore *SubscriptionStore
	artifactIndex     *ArtifactIndexStore
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	return NewRepositoryFactory(client)
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	return NewRepositoryFactory(db)
}

// NewRepositoryFactory accepts a *bun.DB or anything exposing DB() *bun.DB.
func NewRepositoryFactory(persistenceClient any) (*RepositoryFactory, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	subscriptionStore, err := NewSubscriptionStore(db)
	if err != nil {
		return nil, err
	}
	artifactIndex, err := NewArtifactIndexStore(db)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{
		db:                db,
		subscriptionStore: subscriptionStore,
		artifactIndex:     artifactIndex,
	}, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) SubscriptionStore() *SubscriptionStore {
	if f == nil {
		return nil
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) ArtifactIndex() *ArtifactIndexStore {
	if f == nil {
		return nil
	}
	return f.artifactIndex
}

type persistenceConfig struct {
	driver  string
	server  string
	service string
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return c.service
}

// Open connects to the configured database, registers the embedded migrations
// for its dialect and applies them.
func Open(ctx context.Context, cfg core.DatabaseConfig, serviceName string) (*persistence.Client, error) {
	driver := strings.TrimSpace(cfg.Driver)
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, core.ConfigError("sqlstore: database.dsn is required", nil)
	}
	dialect, migrationDialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver:  driver,
		server:  dsn,
		service: serviceName,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}

	_, err = intakemigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrationDialect)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}

func dialectFor(driver string) (schema.Dialect, string, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), intakemigrations.DialectSQLite, nil
	case DriverPostgres:
		return pgdialect.New(), intakemigrations.DialectPostgres, nil
	default:
		return nil, "", core.ConfigError(fmt.Sprintf("sqlstore: unsupported database driver %q", driver), nil)
	}
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
