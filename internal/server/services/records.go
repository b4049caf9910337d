package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keyvault/internal/store"
)

// PostgresRecordStore is the default server record backend. Rotate runs
// in a single transaction.
type PostgresRecordStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

var _ store.RecordStore = (*PostgresRecordStore)(nil)

func NewPostgresRecordStore(db *sql.DB, m repomanager.RepositoryManager) *PostgresRecordStore {
	return &PostgresRecordStore{db: db, repomanager: m}
}

func (s *PostgresRecordStore) GetConfig(ctx context.Context, userID string) (*models.VaultConfig, error) {
	return s.repomanager.Records(s.db).GetConfig(ctx, userID)
}

func (s *PostgresRecordStore) PutConfig(ctx context.Context, userID string, cfg models.VaultConfig) error {
	return s.repomanager.Records(s.db).InsertConfig(ctx, userID, cfg)
}

func (s *PostgresRecordStore) ListRecords(ctx context.Context, userID string) ([]models.EncryptedRecord, error) {
	return s.repomanager.Records(s.db).List(ctx, userID)
}

func (s *PostgresRecordStore) PutRecord(ctx context.Context, userID string, rec models.EncryptedRecord) error {
	return s.repomanager.Records(s.db).Upsert(ctx, userID, rec)
}

func (s *PostgresRecordStore) DeleteRecord(ctx context.Context, userID, id string) error {
	return s.repomanager.Records(s.db).Delete(ctx, userID, id)
}

// Rotate swaps the config and replaces every record. Nothing is changed
// unless all of it succeeds.
func (s *PostgresRecordStore) Rotate(ctx context.Context, userID string, cfg models.VaultConfig, records []models.EncryptedRecord) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)
		if err := repo.UpdateConfig(ctx, userID, cfg); err != nil {
			return err
		}
		if err := repo.DeleteAll(ctx, userID); err != nil {
			return err
		}
		for _, r := range records {
			if err := repo.Upsert(ctx, userID, r); err != nil {
				return err
			}
		}
		return nil
	})
}
