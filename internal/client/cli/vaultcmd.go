package cli

import (
	"context"
	"errors"
	"slices"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/vault"
)

// getPassword is an indirection over GetPassword used to facilitate testing.
var getPassword = GetPassword

// Setup asks for a new master password twice and creates the vault. A
// rejected password keeps the vault in setup; the user just runs setup
// again.
func (a *App) Setup(ctx context.Context) error {
	password, err := getPassword(a.out, "Choose master password: ")
	if err != nil {
		return err
	}
	confirm, err := getPassword(a.out, "Repeat master password: ")
	if err != nil {
		common.WipeByteArray(password)
		return err
	}

	err = a.vault.Setup(ctx, password, confirm)

	var sv *common.SetupValidationError
	switch {
	case err == nil:
		a.printf("Vault created and unlocked.")
		if !a.vault.AutoUnlockAvailable() {
			a.printf("This device will ask for the master password next time.")
		}
	case errors.As(err, &sv):
		a.printf("Password rejected: %s. Run 'setup' to try again.", sv)
	case errors.Is(err, common.ErrStorageWriteFailed):
		a.printf("Could not save the vault, nothing was created: %v", err)
	default:
		a.printf("Setup failed: %v", err)
	}
	return err
}

// Unlock asks for the master password and opens the vault.
func (a *App) Unlock(ctx context.Context) error {
	password, err := getPassword(a.out, "Master password: ")
	if err != nil {
		return err
	}

	res, err := a.vault.Unlock(ctx, password)
	switch {
	case errors.Is(err, common.ErrVerificationFailed):
		a.printf("Incorrect master password.")
		return err
	case errors.Is(err, common.ErrRecordFetchFailed):
		a.printf("Unlocked, but records could not be loaded: %v", err)
		a.printf("Run 'refresh' to retry.")
		return err
	case errors.Is(err, common.ErrRecordsUndecryptable):
		a.printf("Unlocked, but none of the %d records could be decrypted.", res.Total)
		a.printFailures()
		return err
	case err != nil:
		a.printf("Unlock failed: %v", err)
		return err
	}

	a.printf("Unlocked: %d of %d records.", len(res.Decrypted), res.Total)
	a.printFailures()
	return nil
}

// Refresh reloads the record set from the store.
func (a *App) Refresh(ctx context.Context) error {
	res, err := a.vault.Refresh(ctx)
	if err != nil {
		a.printf("Refresh failed: %v", err)
		return err
	}
	a.printf("Loaded %d of %d records.", len(res.Decrypted), res.Total)
	a.printFailures()
	return nil
}

// Lock drops the key. "lock --forget" also clears the key remembered on
// this device.
func (a *App) Lock(ctx context.Context, args []string) error {
	forget := slices.Contains(args, "--forget") || slices.Contains(args, "-f")
	if err := a.vault.Lock(ctx, forget); err != nil {
		a.printf("Locked, but the remembered key could not be cleared: %v", err)
		return err
	}
	if forget {
		a.printf("Locked. This device no longer remembers the key.")
	} else {
		a.printf("Locked.")
	}
	return nil
}

// ChangePassword rotates the master password and re-encrypts every record.
func (a *App) ChangePassword(ctx context.Context) error {
	if a.vault.State() != vault.StateUnlocked {
		a.printf("Unlock the vault first.")
		return common.ErrVaultLocked
	}

	current, err := getPassword(a.out, "Current master password: ")
	if err != nil {
		return err
	}
	next, err := getPassword(a.out, "New master password: ")
	if err != nil {
		common.WipeByteArray(current)
		return err
	}
	confirm, err := getPassword(a.out, "Repeat new master password: ")
	if err != nil {
		common.WipeByteArray(current)
		common.WipeByteArray(next)
		return err
	}

	err = a.vault.ChangeMasterPassword(ctx, current, next, confirm)

	var sv *common.SetupValidationError
	switch {
	case err == nil:
		a.printf("Master password changed.")
	case errors.Is(err, common.ErrVerificationFailed):
		a.printf("Current master password is incorrect.")
	case errors.As(err, &sv):
		a.printf("New password rejected: %s.", sv)
	case errors.Is(err, common.ErrInvalidState):
		a.printf("Some records cannot be decrypted; delete or fix them before changing the password.")
	default:
		a.printf("Password change failed, the old password still works: %v", err)
	}
	return err
}
