package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/keyvault/internal/client/client"
	"github.com/dmitrijs2005/keyvault/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/keyvault/internal/common"
)

// getSimpleText is an indirection over GetSimpleText used to facilitate
// testing.
var getSimpleText = GetSimpleText

var errLocalMode = errors.New("not available in local mode")

// askAccount prompts for the server account. The username defaults to the
// configured one. The account password is separate from the master
// password and is never used to derive the vault key.
func (a *App) askAccount() (string, []byte, error) {
	username := a.config.Username
	if username == "" {
		u, err := getSimpleText(a.reader, "Enter username", a.out)
		if err != nil {
			return "", nil, err
		}
		username = u
	}
	password, err := getPassword(a.out, "Account password: ")
	if err != nil {
		return "", nil, err
	}
	return username, password, nil
}

// SignUp creates a server account.
func (a *App) SignUp(ctx context.Context) error {
	if !a.isRemote() {
		a.printf("Accounts are %s.", errLocalMode)
		return errLocalMode
	}
	username, password, err := a.askAccount()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if _, err := a.remote.SignUp(ctx, username, string(password)); err != nil {
		switch {
		case errors.Is(err, common.ErrAlreadyExists):
			a.printf("Account %s already exists.", username)
		case errors.Is(err, client.ErrUnavailable):
			a.setMode(ModeOffline)
			a.printf("Server unavailable.")
		default:
			a.printf("Sign-up failed: %v", err)
		}
		return err
	}
	a.printf("Account created. Run 'signin'.")
	return nil
}

// SignIn authenticates against the server, remembers the session token and
// opens the vault of that account. Switching accounts locks the previous
// vault.
func (a *App) SignIn(ctx context.Context) error {
	if !a.isRemote() {
		a.printf("Accounts are %s.", errLocalMode)
		return errLocalMode
	}
	username, password, err := a.askAccount()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.session.SignIn(ctx, username, string(password)); err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			a.printf("Wrong username or account password.")
		case errors.Is(err, client.ErrUnavailable):
			a.setMode(ModeOffline)
			a.printf("Server unavailable.")
		default:
			a.printf("Sign-in failed: %v", err)
		}
		return err
	}
	a.setMode(ModeOnline)

	if token, err := a.session.Token(); err == nil {
		if err := a.meta.Set(ctx, metadata.KeySessionToken, []byte(token)); err != nil {
			a.logger.Warn(ctx, "could not remember session", "error", err)
		}
	}

	id, ok := a.session.Current()
	if !ok {
		return common.ErrUnauthorized
	}
	a.printf("Signed in as %s.", a.session.Username())
	if a.vault.UserID() != id || !a.isUnlocked() {
		a.openVault(ctx, id)
	}
	return nil
}

// SignOut ends the session and locks the vault. The remembered key stays,
// so signing in again on this device unlocks without the master password.
func (a *App) SignOut(ctx context.Context) error {
	if !a.isRemote() {
		a.printf("Accounts are %s.", errLocalMode)
		return errLocalMode
	}
	a.session.SignOut(ctx)
	if err := a.meta.Delete(ctx, metadata.KeySessionToken); err != nil {
		a.logger.Warn(ctx, "could not forget session", "error", err)
	}
	if err := a.vault.Lock(ctx, false); err != nil {
		return err
	}
	a.printf("Signed out.")
	return nil
}
