package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/client/client"
	"github.com/dmitrijs2005/keyvault/internal/client/config"
	"github.com/dmitrijs2005/keyvault/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/filex"
	"github.com/dmitrijs2005/keyvault/internal/identity"
	"github.com/dmitrijs2005/keyvault/internal/keycache"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/store"
	"github.com/dmitrijs2005/keyvault/internal/vault"
)

type Mode string

const (
	ModeLocal   Mode = "local"
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// vaultAPI is the part of *vault.Vault the CLI drives.
type vaultAPI interface {
	State() vault.State
	UserID() string
	AutoUnlockAvailable() bool
	Failures() []vault.RecordFailure
	Load(ctx context.Context, userID string) error
	Setup(ctx context.Context, password, confirm []byte) error
	Unlock(ctx context.Context, password []byte) (*vault.FetchResult, error)
	Refresh(ctx context.Context) (*vault.FetchResult, error)
	Lock(ctx context.Context, forgetDevice bool) error
	Records() ([]models.DecryptedRecord, error)
	Record(id string) (models.DecryptedRecord, error)
	AddRecord(ctx context.Context, payload string) (models.DecryptedRecord, error)
	UpdateRecord(ctx context.Context, id, payload string) (models.DecryptedRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	ChangeMasterPassword(ctx context.Context, current, next, confirm []byte) error
	WatchSession(ctx context.Context, p identity.Provider)
}

// remoteAPI is the account side of the server client.
type remoteAPI interface {
	Ping(ctx context.Context) error
	SignUp(ctx context.Context, username, password string) (string, error)
}

// sessionAPI is implemented by *identity.Session.
type sessionAPI interface {
	identity.Provider
	SignIn(ctx context.Context, username, password string) error
	Restore(ctx context.Context, token string) error
	SignOut(ctx context.Context)
	Token() (string, error)
	Username() string
}

type App struct {
	config   *config.Config
	vault    vaultAPI
	provider identity.Provider
	session  sessionAPI
	remote   remoteAPI
	meta     metadata.Repository
	logger   logging.Logger
	reader   *bufio.Reader
	out      io.Writer
	closers  []func() error

	modeMu sync.RWMutex
	mode   Mode
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(os.Stderr, "text", c.LogLevel)

	dir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, err
	}
	c.DataDir = dir

	repos, err := client.InitDatabase(ctx, c.DatabasePath())
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	a := &App{
		config: c,
		meta:   repos.Metadata,
		logger: logger.With("module", "cli"),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	a.closers = append(a.closers, repos.Close)

	backend, err := a.keyCacheBackend(repos.Metadata)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	cache := keycache.New(backend, logger)

	var st store.RecordStore
	var mirror vault.ConfigMirror
	switch c.Mode {
	case config.ModeRemote:
		apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, c.RequestTimeout)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, apiClient.Close)

		session := identity.NewSession(apiClient, logger)
		apiClient.SetTokenSource(session.Token)

		st = apiClient
		a.remote = apiClient
		a.session = session
		a.provider = session
		a.mode = ModeOffline
		mirror = metadata.NewConfigMirror(repos.Metadata)
	default:
		st = repos.Records
		a.provider = identity.NewStatic(common.LocalUserID)
		a.mode = ModeLocal
	}

	a.vault = vault.New(st, cache, logger, vault.Options{
		MinPasswordLength: c.MinPasswordLength,
		KDF:               c.KDFParams(),
		Algorithm:         c.EncryptionAlgorithm(),
		Mirror:            mirror,
	})
	return a, nil
}

func (a *App) keyCacheBackend(repo metadata.Repository) (keycache.Backend, error) {
	switch a.config.KeyCache {
	case config.KeyCacheBolt:
		b, err := keycache.OpenBoltBackend(a.config.KeyCachePath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	case config.KeyCacheNone:
		return keycache.NoopBackend{}, nil
	default:
		return keycache.NewSQLiteBackend(repo), nil
	}
}

// Close locks the vault and releases storage and connections.
func (a *App) Close() error {
	var errs []error
	if a.vault != nil {
		errs = append(errs, a.vault.Lock(context.Background(), false))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) Mode() Mode {
	a.modeMu.RLock()
	defer a.modeMu.RUnlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.modeMu.Unlock()

	if changed {
		a.logger.Info(context.Background(), "connectivity changed", "mode", mode)
	}
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error(ctx, "shutdown", "error", err)
		}
	}()
	a.Root(ctx)
}

func (a *App) isUnlocked() bool {
	return a.vault.State() == vault.StateUnlocked
}

func (a *App) isRemote() bool {
	return a.session != nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

// StartOnlineStatusWatcher pings the server every interval and flips the
// mode between online and offline. It blocks until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.remote.Ping(pctx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
	} else {
		a.setMode(ModeOnline)
	}
}
