package records

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/models"
)

// Repository stores vault configs and encrypted records per user. Bind it
// to a transaction to combine calls atomically.
type Repository interface {
	GetConfig(ctx context.Context, userID string) (*models.VaultConfig, error)
	InsertConfig(ctx context.Context, userID string, cfg models.VaultConfig) error
	UpdateConfig(ctx context.Context, userID string, cfg models.VaultConfig) error
	List(ctx context.Context, userID string) ([]models.EncryptedRecord, error)
	Upsert(ctx context.Context, userID string, rec models.EncryptedRecord) error
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) error
}
