// Package store defines the contract between the vault and wherever its
// encrypted records live. A store only ever sees ciphertext and is not
// trusted for correctness: the vault authenticates everything it reads.
package store

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/models"
)

// RecordStore persists vault configs and encrypted records per user.
//
// GetConfig returns common.ErrNotFound when the user has no vault yet.
// PutConfig is create-only and returns common.ErrAlreadyExists on a second
// call. DeleteRecord of an unknown id returns common.ErrNotFound. Rotate
// replaces the config and the whole record set in one step.
type RecordStore interface {
	GetConfig(ctx context.Context, userID string) (*models.VaultConfig, error)
	PutConfig(ctx context.Context, userID string, cfg models.VaultConfig) error
	ListRecords(ctx context.Context, userID string) ([]models.EncryptedRecord, error)
	PutRecord(ctx context.Context, userID string, rec models.EncryptedRecord) error
	DeleteRecord(ctx context.Context, userID, id string) error
	Rotate(ctx context.Context, userID string, cfg models.VaultConfig, records []models.EncryptedRecord) error
}
