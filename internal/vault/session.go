package vault

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/identity"
)

// WatchSession locks the vault whenever p signs out or switches to a user
// other than the one the vault was loaded for. The cache is left alone:
// locking on sign-out happens whether or not a key is cached. It blocks
// until ctx is done.
func (v *Vault) WatchSession(ctx context.Context, p identity.Provider) {
	events, cancel := p.Subscribe()
	defer cancel()

	if id, ok := p.Current(); !ok || id != v.UserID() {
		v.lockForSession(ctx, "no matching session")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Kind {
			case identity.SignedOut:
				// a switch publishes SignedOut before SignedIn; by the time it is
				// seen the vault may already be loaded for the new user
				if id, ok := p.Current(); ok && id == v.UserID() {
					continue
				}
				v.lockForSession(ctx, "signed out")
			case identity.SignedIn:
				if e.UserID != v.UserID() {
					v.lockForSession(ctx, "user switched")
				}
			}
		}
	}
}

func (v *Vault) lockForSession(ctx context.Context, reason string) {
	switch v.State() {
	case StateUnlocked, StateUnlocking:
	default:
		return
	}
	if err := v.Lock(ctx, false); err != nil {
		v.logger.Error(ctx, "lock on session change failed", "error", err)
		return
	}
	v.logger.Info(ctx, "vault locked by session change", "reason", reason)
}
