// Package metadata stores small device-local values in the client database,
// such as the cached vault key entry and the last signed-in session.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyCachedVaultKey = "vault.cached_key"
	KeySessionUser    = "session.username"
	KeySessionToken   = "session.token"
)

// Repository is a flat key/value table. Get returns (nil, nil) for an
// absent key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
