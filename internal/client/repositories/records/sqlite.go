package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/store"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ store.RecordStore = (*SQLiteStore)(nil)

func (s *SQLiteStore) GetConfig(ctx context.Context, userID string) (*models.VaultConfig, error) {
	var (
		cfg       models.VaultConfig
		kdf       string
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT version, salt, kdf, verifier_version, verifier_algorithm,
		       verifier_nonce, verifier_ciphertext, created_at
		FROM vault_config WHERE user_id = ?`, userID).
		Scan(&cfg.Version, &cfg.Salt, &kdf, &cfg.Verifier.Version, &cfg.Verifier.Algorithm,
			&cfg.Verifier.Nonce, &cfg.Verifier.Ciphertext, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault config: %w", err)
	}

	if err := json.Unmarshal([]byte(kdf), &cfg.KDF); err != nil {
		return nil, fmt.Errorf("%w: kdf params: %v", common.ErrMalformed, err)
	}
	cfg.UserID = userID
	cfg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &cfg, nil
}

func (s *SQLiteStore) PutConfig(ctx context.Context, userID string, cfg models.VaultConfig) error {
	return s.writeConfig(ctx, s.db, userID, cfg, true)
}

func (s *SQLiteStore) writeConfig(ctx context.Context, db dbx.DBTX, userID string, cfg models.VaultConfig, create bool) error {
	kdf, err := json.Marshal(cfg.KDF)
	if err != nil {
		return fmt.Errorf("failed to encode kdf params: %w", err)
	}

	var res sql.Result
	if create {
		res, err = db.ExecContext(ctx, `
			INSERT INTO vault_config (user_id, version, salt, kdf, verifier_version, verifier_algorithm,
			                          verifier_nonce, verifier_ciphertext, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO NOTHING`,
			userID, cfg.Version, []byte(cfg.Salt), string(kdf), cfg.Verifier.Version, cfg.Verifier.Algorithm,
			cfg.Verifier.Nonce, cfg.Verifier.Ciphertext, cfg.CreatedAt.UnixNano())
	} else {
		res, err = db.ExecContext(ctx, `
			UPDATE vault_config
			SET version = ?, salt = ?, kdf = ?, verifier_version = ?, verifier_algorithm = ?,
			    verifier_nonce = ?, verifier_ciphertext = ?
			WHERE user_id = ?`,
			cfg.Version, []byte(cfg.Salt), string(kdf), cfg.Verifier.Version, cfg.Verifier.Algorithm,
			cfg.Verifier.Nonce, cfg.Verifier.Ciphertext, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to write vault config: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		if create {
			return common.ErrAlreadyExists
		}
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, userID string) ([]models.EncryptedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, algorithm, nonce, ciphertext, created_at, updated_at
		FROM records WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.EncryptedRecord
	for rows.Next() {
		var (
			r                    models.EncryptedRecord
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&r.ID, &r.Version, &r.Algorithm, &r.Nonce, &r.Ciphertext, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		r.UpdatedAt = time.Unix(0, updatedAt).UTC()
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) PutRecord(ctx context.Context, userID string, rec models.EncryptedRecord) error {
	return putRecord(ctx, s.db, userID, rec)
}

func putRecord(ctx context.Context, db dbx.DBTX, userID string, rec models.EncryptedRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (user_id, id, version, algorithm, nonce, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			version = excluded.version,
			algorithm = excluded.algorithm,
			nonce = excluded.nonce,
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at`,
		userID, rec.ID, rec.Version, rec.Algorithm, rec.Nonce, rec.Ciphertext,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Rotate(ctx context.Context, userID string, cfg models.VaultConfig, records []models.EncryptedRecord) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.writeConfig(ctx, tx, userID, cfg, false); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}
		for _, r := range records {
			if err := putRecord(ctx, tx, userID, r); err != nil {
				return err
			}
		}
		return nil
	})
}
