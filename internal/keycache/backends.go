package keycache

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/client/repositories/metadata"
	"go.etcd.io/bbolt"
)

// NoopBackend disables the cache: nothing is stored and Load always comes
// back empty.
type NoopBackend struct{}

func (NoopBackend) Save(context.Context, []byte) error      { return nil }
func (NoopBackend) Load(context.Context) ([]byte, error)    { return nil, nil }
func (NoopBackend) Clear(context.Context) error             { return nil }

// SQLiteBackend keeps the entry in the client metadata table.
type SQLiteBackend struct {
	repo metadata.Repository
}

func NewSQLiteBackend(repo metadata.Repository) *SQLiteBackend {
	return &SQLiteBackend{repo: repo}
}

func (b *SQLiteBackend) Save(ctx context.Context, data []byte) error {
	return b.repo.Set(ctx, metadata.KeyCachedVaultKey, data)
}

func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	return b.repo.Get(ctx, metadata.KeyCachedVaultKey)
}

func (b *SQLiteBackend) Clear(ctx context.Context) error {
	return b.repo.Delete(ctx, metadata.KeyCachedVaultKey)
}

var (
	boltBucket = []byte("keycache")
	boltKey    = []byte("entry")
)

// BoltBackend keeps the entry in a dedicated bbolt file readable only by
// the owner.
type BoltBackend struct {
	db *bbolt.DB
}

func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open key cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init key cache: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Save(_ context.Context, data []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltKey, data)
	})
}

func (b *BoltBackend) Load(_ context.Context) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		// values are only valid inside the transaction
		if v := tx.Bucket(boltBucket).Get(boltKey); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (b *BoltBackend) Clear(_ context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(boltKey)
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
