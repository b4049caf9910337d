// Package records provides the PostgreSQL repository for vault configs and
// encrypted records. Rows hold ciphertext only.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetConfig returns common.ErrNotFound when userID has no vault yet and
// common.ErrMalformed when the stored KDF parameters cannot be decoded.
func (r *PostgresRepository) GetConfig(ctx context.Context, userID string) (*models.VaultConfig, error) {
	query := `
		SELECT version, salt, kdf, verifier_version, verifier_algorithm,
		       verifier_nonce, verifier_ciphertext, created_at
		FROM vault_configs WHERE user_id = $1`

	var (
		cfg models.VaultConfig
		kdf []byte
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cfg.Version, &cfg.Salt, &kdf, &cfg.Verifier.Version, &cfg.Verifier.Algorithm,
		&cfg.Verifier.Nonce, &cfg.Verifier.Ciphertext, &cfg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(kdf, &cfg.KDF); err != nil {
		return nil, fmt.Errorf("%w: kdf params: %v", common.ErrMalformed, err)
	}
	cfg.UserID = userID
	return &cfg, nil
}

// InsertConfig is create-only: an existing config gives common.ErrAlreadyExists.
func (r *PostgresRepository) InsertConfig(ctx context.Context, userID string, cfg models.VaultConfig) error {
	kdf, err := json.Marshal(cfg.KDF)
	if err != nil {
		return fmt.Errorf("encode kdf params: %w", err)
	}

	query := `
		INSERT INTO vault_configs (user_id, version, salt, kdf, verifier_version, verifier_algorithm,
		                           verifier_nonce, verifier_ciphertext, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		userID, cfg.Version, []byte(cfg.Salt), string(kdf), cfg.Verifier.Version, cfg.Verifier.Algorithm,
		cfg.Verifier.Nonce, cfg.Verifier.Ciphertext, cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrAlreadyExists)
}

// UpdateConfig replaces the config of an existing vault. A missing vault
// gives common.ErrNotFound. CreatedAt is kept.
func (r *PostgresRepository) UpdateConfig(ctx context.Context, userID string, cfg models.VaultConfig) error {
	kdf, err := json.Marshal(cfg.KDF)
	if err != nil {
		return fmt.Errorf("encode kdf params: %w", err)
	}

	query := `
		UPDATE vault_configs
		SET version = $2, salt = $3, kdf = $4, verifier_version = $5, verifier_algorithm = $6,
		    verifier_nonce = $7, verifier_ciphertext = $8
		WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query,
		userID, cfg.Version, []byte(cfg.Salt), string(kdf), cfg.Verifier.Version, cfg.Verifier.Algorithm,
		cfg.Verifier.Nonce, cfg.Verifier.Ciphertext)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrNotFound)
}

// List returns the user's records oldest first.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]models.EncryptedRecord, error) {
	query := `
		SELECT id, version, algorithm, nonce, ciphertext, created_at, updated_at
		FROM records WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.EncryptedRecord
	for rows.Next() {
		var item models.EncryptedRecord
		if err := rows.Scan(
			&item.ID, &item.Version, &item.Algorithm, &item.Nonce, &item.Ciphertext,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert inserts rec or replaces its ciphertext. created_at is set once.
func (r *PostgresRepository) Upsert(ctx context.Context, userID string, rec models.EncryptedRecord) error {
	query := `
		INSERT INTO records (user_id, id, version, algorithm, nonce, ciphertext, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, id)
		DO UPDATE SET
			version = EXCLUDED.version,
			algorithm = EXCLUDED.algorithm,
			nonce = EXCLUDED.nonce,
			ciphertext = EXCLUDED.ciphertext,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		userID, rec.ID, rec.Version, rec.Algorithm, rec.Nonce, rec.Ciphertext, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes one record. An unknown id gives common.ErrNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrNotFound)
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return none
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
