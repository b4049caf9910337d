// Package server wires the keyvault server together: configuration, the
// PostgreSQL account database, the record backend and the gRPC endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/server/blobstore"
	"github.com/dmitrijs2005/keyvault/internal/server/config"
	"github.com/dmitrijs2005/keyvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keyvault/internal/server/services"
	"github.com/dmitrijs2005/keyvault/internal/store"

	gs "github.com/dmitrijs2005/keyvault/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	accounts *services.AccountService
	records  store.RecordStore
}

var (
	openPostgres   = repomanager.OpenPostgres
	newS3API       = func(ctx context.Context, c *config.Config) (blobstore.API, error) { return blobstore.NewS3Client(ctx, c) }
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(os.Stdout, "json", c.LogLevel)

	m := newRepoManager()
	db, err := openPostgres(ctx, c.DatabaseDSN, m)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	records, err := newRecordStore(ctx, c, db, m)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info(ctx, "Record backend selected", "backend", c.RecordBackend)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		accounts: services.NewAccountService(db, m, c),
		records:  records,
	}, nil
}

// newRecordStore picks where encrypted vault data lives. Accounts always
// stay in PostgreSQL.
func newRecordStore(ctx context.Context, c *config.Config, db *sql.DB, m repomanager.RepositoryManager) (store.RecordStore, error) {
	switch c.RecordBackend {
	case config.BackendPostgres:
		return services.NewPostgresRecordStore(db, m), nil
	case config.BackendS3:
		client, err := newS3API(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		return blobstore.New(client, c.S3Bucket), nil
	default:
		return nil, fmt.Errorf("unknown record backend %q", c.RecordBackend)
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accounts, app.records, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or the server fails, then closes the
// database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
