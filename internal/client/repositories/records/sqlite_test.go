package records

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/client/migrations"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, dbx.Migrate(context.Background(), db, "sqlite3", migrations.Migrations))
	return NewSQLiteStore(db), db
}

func sampleConfig() models.VaultConfig {
	return models.VaultConfig{
		Version: models.VaultConfigVersion,
		UserID:  "alice",
		Salt:    models.Salt("0123456789abcdef0123456789abcdef"),
		KDF:     models.KDFParams{Algorithm: models.KDFArgon2id, Time: 3, MemoryKiB: 65536, Threads: 4, KeyLen: 32},
		Verifier: models.Verifier{
			Version:    models.VerifierVersion,
			Algorithm:  models.AlgAES256GCM,
			Nonce:      []byte("123456789012"),
			Ciphertext: []byte("verifier-ciphertext"),
		},
		CreatedAt: time.Unix(1700000000, 123).UTC(),
	}
}

func sampleRecord(id string, at time.Time) models.EncryptedRecord {
	return models.EncryptedRecord{
		ID: id, Version: 1, Algorithm: models.AlgXChaCha20Poly1305,
		Nonce: []byte("nonce-" + id), Ciphertext: []byte("ct-" + id),
		CreatedAt: at, UpdatedAt: at,
	}
}

func TestSQLiteStore_Config(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.GetConfig(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.PutConfig(ctx, "alice", sampleConfig()))
	assert.ErrorIs(t, s.PutConfig(ctx, "alice", sampleConfig()), common.ErrAlreadyExists)

	got, err := s.GetConfig(ctx, "alice")
	require.NoError(t, err)
	if diff := cmp.Diff(sampleConfig(), *got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_Records(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	t0 := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.PutRecord(ctx, "alice", sampleRecord("b", t0.Add(time.Second))))
	require.NoError(t, s.PutRecord(ctx, "alice", sampleRecord("a", t0)))
	require.NoError(t, s.PutRecord(ctx, "bob", sampleRecord("c", t0)))

	recs, err := s.ListRecords(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, sampleRecord("a", t0), recs[0])
	assert.Equal(t, "b", recs[1].ID)

	upd := sampleRecord("a", t0)
	upd.Ciphertext = []byte("replaced")
	upd.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, s.PutRecord(ctx, "alice", upd))

	recs, err = s.ListRecords(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), recs[0].Ciphertext)
	assert.Equal(t, t0, recs[0].CreatedAt, "created_at survives an update")
	assert.Equal(t, t0.Add(time.Hour), recs[0].UpdatedAt)

	require.NoError(t, s.DeleteRecord(ctx, "alice", "a"))
	assert.ErrorIs(t, s.DeleteRecord(ctx, "alice", "a"), common.ErrNotFound)
	assert.ErrorIs(t, s.DeleteRecord(ctx, "alice", "c"), common.ErrNotFound, "other user's record")
}

func TestSQLiteStore_Rotate(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	t0 := time.Unix(1700000000, 0).UTC()

	assert.ErrorIs(t, s.Rotate(ctx, "alice", sampleConfig(), nil), common.ErrNotFound)

	require.NoError(t, s.PutConfig(ctx, "alice", sampleConfig()))
	require.NoError(t, s.PutRecord(ctx, "alice", sampleRecord("old", t0)))

	cfg := sampleConfig()
	cfg.Salt = models.Salt("fedcba9876543210fedcba9876543210")
	cfg.Verifier.Ciphertext = []byte("new-verifier")
	require.NoError(t, s.Rotate(ctx, "alice", cfg, []models.EncryptedRecord{sampleRecord("old", t0), sampleRecord("new", t0.Add(time.Second))}))

	got, err := s.GetConfig(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, cfg.Salt, got.Salt)
	assert.Equal(t, []byte("new-verifier"), got.Verifier.Ciphertext)

	recs, err := s.ListRecords(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSQLiteStore_RotateRollsBack(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()
	t0 := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.PutConfig(ctx, "alice", sampleConfig()))
	require.NoError(t, s.PutRecord(ctx, "alice", sampleRecord("keep", t0)))

	// make every insert fail after the delete has run
	_, err := db.Exec(`CREATE TRIGGER no_insert BEFORE INSERT ON records BEGIN SELECT RAISE(ABORT, 'blocked'); END;`)
	require.NoError(t, err)

	cfg := sampleConfig()
	cfg.Salt = models.Salt("fedcba9876543210fedcba9876543210")
	err = s.Rotate(ctx, "alice", cfg, []models.EncryptedRecord{sampleRecord("new", t0)})
	require.Error(t, err)

	got, err := s.GetConfig(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, sampleConfig().Salt, got.Salt, "config change rolled back")

	recs, err := s.ListRecords(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "keep", recs[0].ID)
}

func TestSQLiteStore_MalformedKDF(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutConfig(ctx, "alice", sampleConfig()))

	_, err := db.Exec(`UPDATE vault_config SET kdf = 'not json'`)
	require.NoError(t, err)

	_, err = s.GetConfig(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrMalformed)
}

func TestSQLiteStore_ClosedDB(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := s.GetConfig(ctx, "alice")
	assert.ErrorContains(t, err, "failed to get vault config")
	_, err = s.ListRecords(ctx, "alice")
	assert.ErrorContains(t, err, "failed to select records")
	assert.ErrorContains(t, s.PutRecord(ctx, "alice", sampleRecord("x", time.Now())), "failed to upsert record")
	assert.ErrorContains(t, s.DeleteRecord(ctx, "alice", "x"), "failed to delete record")
}
