// Package keycache persists an already-derived vault key on this device so
// the vault can unlock without the master password on the next start.
//
// The stored key is treated as untrusted input. LoadKey re-validates it
// against the vault verifier every time and wipes the entry when the check
// fails; it never hands out a key that did not pass verification.
package keycache

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// Backend stores one opaque blob. Load returns (nil, nil) when nothing is
// stored.
type Backend interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
	Clear(ctx context.Context) error
}

type Cache struct {
	backend Backend
	logger  logging.Logger
	now     func() time.Time
}

func New(backend Backend, logger logging.Logger) *Cache {
	if backend == nil {
		backend = NoopBackend{}
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Cache{backend: backend, logger: logger.With("module", "keycache"), now: time.Now}
}

// Enabled reports whether saved keys survive a restart.
func (c *Cache) Enabled() bool {
	_, noop := c.backend.(NoopBackend)
	return !noop
}

// SaveKey stores key for userID, replacing any previous entry.
func (c *Cache) SaveKey(ctx context.Context, userID string, key *cryptox.SymmetricKey) error {
	var blob []byte
	err := key.Use(func(raw []byte) error {
		blob = encodeEntry(entry{
			Version: entryVersion,
			UserID:  userID,
			Key:     raw,
			SavedAt: c.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageWriteFailed, err)
	}
	defer common.WipeByteArray(blob)

	if err := c.backend.Save(ctx, blob); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageWriteFailed, err)
	}
	return nil
}

// LoadKey returns the cached key for userID once it has opened verifier.
// It returns (nil, nil) when the cache is empty. Any entry that cannot be
// decoded, belongs to someone else or fails verification is cleared and
// reported as common.ErrKeyCacheCorrupted.
func (c *Cache) LoadKey(ctx context.Context, userID string, verifier models.Verifier) (*cryptox.SymmetricKey, error) {
	blob, err := c.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("key cache load: %w", err)
	}
	if blob == nil {
		return nil, nil
	}
	defer common.WipeByteArray(blob)

	e, err := decodeEntry(blob)
	if err != nil {
		return nil, c.reject(ctx, "undecodable entry", err)
	}
	if e.UserID != userID {
		return nil, c.reject(ctx, "entry belongs to another user", nil)
	}

	key, err := cryptox.NewSymmetricKey(e.Key)
	if err != nil {
		return nil, c.reject(ctx, "bad key length", err)
	}
	if !cryptox.VerifyKey(key, verifier) {
		key.Destroy()
		return nil, c.reject(ctx, "verifier mismatch", nil)
	}

	c.logger.Debug(ctx, "cached key accepted", "saved_at", e.SavedAt)
	return key, nil
}

// ClearKey removes the cached key. Clearing an empty cache is not an error.
func (c *Cache) ClearKey(ctx context.Context) error {
	if err := c.backend.Clear(ctx); err != nil {
		return fmt.Errorf("key cache clear: %w", err)
	}
	return nil
}

func (c *Cache) reject(ctx context.Context, reason string, cause error) error {
	args := []any{"reason", reason}
	if cause != nil {
		args = append(args, "error", cause)
	}
	c.logger.Warn(ctx, "cached key rejected", args...)

	if err := c.backend.Clear(ctx); err != nil {
		c.logger.Error(ctx, "failed to clear rejected key", "error", err)
	}
	return common.ErrKeyCacheCorrupted
}
