package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/client/migrations"
	"github.com/dmitrijs2005/keyvault/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/keyvault/internal/client/repositories/records"
	"github.com/dmitrijs2005/keyvault/internal/dbx"

	_ "modernc.org/sqlite"
)

const dialect = "sqlite3"

type Repositories struct {
	DB       *sql.DB
	Metadata metadata.Repository
	Records  *records.SQLiteStore
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return dbx.Migrate(ctx, db, dialect, migrations.Migrations)
}

// OpenDatabase opens the SQLite file at dsn and brings its schema up to date.
func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer keeps SQLite from returning SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := OpenDatabase(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		DB:       db,
		Metadata: metadata.NewSQLiteRepository(db),
		Records:  records.NewSQLiteStore(db),
	}, nil
}
