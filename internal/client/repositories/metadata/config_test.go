package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMirror_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	m := NewConfigMirror(repo)

	cfg := models.VaultConfig{
		Version: models.VaultConfigVersion,
		UserID:  "user-1",
		Salt:    models.Salt{1, 2, 3, 4},
		KDF:     models.KDFParams{Algorithm: models.KDFArgon2id, Time: 3, MemoryKiB: 65536, Threads: 4, KeyLen: 32},
		Verifier: models.Verifier{
			Version: 1, Algorithm: models.AlgAES256GCM, Nonce: []byte{9, 9}, Ciphertext: []byte{7, 7, 7},
		},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.SaveConfig(ctx, cfg))

	got, err := m.LoadConfig(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cfg, *got)

	raw, err := repo.Get(ctx, KeyVaultConfigPrefix+"user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	other, err := m.LoadConfig(ctx, "user-2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestConfigMirror_CorruptValue(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	require.NoError(t, repo.Set(ctx, KeyVaultConfigPrefix+"user-1", []byte("{not json")))

	_, err := NewConfigMirror(repo).LoadConfig(ctx, "user-1")
	assert.ErrorContains(t, err, "decode vault config")
}
