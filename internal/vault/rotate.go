package vault

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// ChangeMasterPassword re-keys the vault: new salt, new key, new verifier
// and every record re-encrypted, replaced in the store in one step. It
// refuses while any record failed to decrypt or the record set was never
// fetched, since those records would be lost.
// All three passwords are wiped before return.
func (v *Vault) ChangeMasterPassword(ctx context.Context, current, next, confirm []byte) error {
	defer common.WipeByteArray(current)
	defer common.WipeByteArray(next)
	defer common.WipeByteArray(confirm)

	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.RLock()
	state, userID, cfg := v.state, v.userID, v.config
	failed, loaded := len(v.failures), v.loaded
	v.mu.RUnlock()

	if state != StateUnlocked {
		return common.ErrVaultLocked
	}
	if !loaded {
		return fmt.Errorf("%w: records not loaded", common.ErrInvalidState)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d records could not be decrypted", common.ErrInvalidState, failed)
	}

	oldKey, err := cryptox.DeriveKey(current, cfg.Salt, cfg.KDF)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformed, err)
	}
	ok := cryptox.VerifyKey(oldKey, cfg.Verifier)
	oldKey.Destroy()
	if !ok {
		return common.ErrVerificationFailed
	}

	if err := validateNewPassword(next, confirm, v.opts.MinPasswordLength); err != nil {
		return err
	}

	newCfg, newKey, err := v.newConfig(next)
	if err != nil {
		return err
	}
	newCfg.UserID = userID
	newCfg.CreatedAt = cfg.CreatedAt

	plain, err := v.Records()
	if err != nil {
		newKey.Destroy()
		return err
	}
	enc := make([]models.EncryptedRecord, 0, len(plain))
	for _, r := range plain {
		e, err := v.encrypt(newKey, r)
		if err != nil {
			newKey.Destroy()
			return err
		}
		enc = append(enc, e)
	}

	if err := v.store.Rotate(ctx, userID, *newCfg, enc); err != nil {
		newKey.Destroy()
		return fmt.Errorf("%w: %w", common.ErrStorageWriteFailed, err)
	}

	v.mirrorConfig(ctx, newCfg)
	cacheFailed := v.cacheKey(ctx, userID, newKey)

	v.mu.Lock()
	if v.key != nil {
		v.key.Destroy()
	}
	v.key = newKey
	v.config = newCfg
	v.cacheFailed = cacheFailed
	v.mu.Unlock()

	v.logger.Info(ctx, "master password changed", "records", len(enc))
	return nil
}
