package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/vault"
)

func (a *App) getStatus() string {
	s := a.vault.State().String()
	if a.isRemote() {
		if name := a.session.Username(); name != "" {
			s = name + " " + s
		}
	}
	return fmt.Sprintf("(%s %s)", s, a.Mode())
}

// Root prints the greeting, opens the vault for the current user and runs
// the REPL until the user exits or input ends.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.printf("Welcome to keyvault CLI (type 'help' for commands)")

	if a.isRemote() {
		a.checkOnline(ctx)
		go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
		a.restoreSession(ctx)
	} else {
		a.openVault(ctx, common.LocalUserID)
	}

	// the watcher compares the session with the loaded user, so it starts
	// once the first load, auto-unlock included, is done
	go a.vault.WatchSession(ctx, a.provider)

	runREPL(ctx, a, a.getStatus, a.reader)
}

// restoreSession resumes the last server session if its token is still
// valid, and opens that user's vault.
func (a *App) restoreSession(ctx context.Context) {
	token, err := a.meta.Get(ctx, metadata.KeySessionToken)
	if err != nil || len(token) == 0 {
		a.printf("Sign in with 'signin' (or create an account with 'signup').")
		return
	}
	if err := a.session.Restore(ctx, string(token)); err != nil {
		a.logger.Info(ctx, "stored session not restored", "error", err)
		_ = a.meta.Delete(ctx, metadata.KeySessionToken)
		a.printf("Session expired. Sign in with 'signin'.")
		return
	}
	if id, ok := a.session.Current(); ok {
		a.openVault(ctx, id)
	}
}

// openVault loads the vault of userID and tells the user what to do next.
func (a *App) openVault(ctx context.Context, userID string) {
	if err := a.vault.Load(ctx, userID); err != nil {
		a.printf("Could not open vault: %v", err)
		return
	}
	a.printState()
}

func (a *App) printState() {
	switch a.vault.State() {
	case vault.StateNeedsSetup:
		a.printf("No vault yet. Run 'setup' to choose a master password.")
	case vault.StateLocked:
		a.printf("Vault is locked. Run 'unlock'.")
	case vault.StateUnlocked:
		a.printf("Vault unlocked with the key remembered on this device.")
		a.printFailures()
	}
}

func (a *App) printFailures() {
	failures := a.vault.Failures()
	if len(failures) == 0 {
		return
	}
	a.printf("%d record(s) could not be decrypted:", len(failures))
	for _, f := range failures {
		a.printf("  %s", f.ID)
	}
}

// Status prints the vault state, the user and connectivity.
func (a *App) Status(ctx context.Context) error {
	a.printf("state:       %s", a.vault.State())
	a.printf("user:        %s", a.vault.UserID())
	a.printf("mode:        %s", a.Mode())
	a.printf("auto-unlock: %t", a.vault.AutoUnlockAvailable())
	if a.isRemote() {
		a.printf("account:     %s", a.session.Username())
	}
	return nil
}
