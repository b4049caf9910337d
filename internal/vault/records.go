package vault

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/google/uuid"
)

// AddRecord encrypts payload under a fresh nonce and stores it as a new
// record.
func (v *Vault) AddRecord(ctx context.Context, payload string) (models.DecryptedRecord, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	now := v.now().UTC()
	return v.putLocked(ctx, models.DecryptedRecord{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// UpdateRecord re-encrypts the record with a new nonce and replaces the
// stored ciphertext as a whole.
func (v *Vault) UpdateRecord(ctx context.Context, id, payload string) (models.DecryptedRecord, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	cur, err := v.Record(id)
	if err != nil {
		return models.DecryptedRecord{}, err
	}
	cur.Payload = payload
	cur.UpdatedAt = v.now().UTC()
	return v.putLocked(ctx, cur)
}

func (v *Vault) putLocked(ctx context.Context, rec models.DecryptedRecord) (models.DecryptedRecord, error) {
	v.mu.RLock()
	state, userID, key := v.state, v.userID, v.key
	v.mu.RUnlock()

	if state != StateUnlocked {
		return models.DecryptedRecord{}, common.ErrVaultLocked
	}

	enc, err := v.encrypt(key, rec)
	if err != nil {
		return models.DecryptedRecord{}, err
	}
	if err := v.store.PutRecord(ctx, userID, enc); err != nil {
		return models.DecryptedRecord{}, fmt.Errorf("%w: %w", common.ErrStorageWriteFailed, err)
	}

	v.mu.Lock()
	v.records[rec.ID] = rec
	v.mu.Unlock()

	v.logger.Debug(ctx, "record stored", "record_id", rec.ID)
	return rec, nil
}

func (v *Vault) encrypt(key *cryptox.SymmetricKey, rec models.DecryptedRecord) (models.EncryptedRecord, error) {
	sealed, err := cryptox.EncryptDataWith(key, v.opts.Algorithm, rec.Payload)
	if err != nil {
		return models.EncryptedRecord{}, err
	}
	return models.EncryptedRecord{
		ID:         rec.ID,
		Version:    sealed.Version,
		Algorithm:  sealed.Algorithm,
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

// DeleteRecord removes a record from the store and from memory. Records
// that failed to decrypt can be deleted too.
func (v *Vault) DeleteRecord(ctx context.Context, id string) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.RLock()
	state, userID := v.state, v.userID
	v.mu.RUnlock()

	if state != StateUnlocked {
		return common.ErrVaultLocked
	}
	if err := v.store.DeleteRecord(ctx, userID, id); err != nil {
		return err
	}

	v.mu.Lock()
	delete(v.records, id)
	for i, f := range v.failures {
		if f.ID == id {
			v.failures = append(v.failures[:i], v.failures[i+1:]...)
			break
		}
	}
	v.mu.Unlock()
	return nil
}
