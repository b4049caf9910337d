package vault

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/models"
)

// ConfigMirror keeps a device-local copy of the vault config. Load falls
// back to it when the record store cannot be reached, so a remote vault
// can still be unlocked offline. LoadConfig returns (nil, nil) when no
// copy exists.
type ConfigMirror interface {
	SaveConfig(ctx context.Context, cfg models.VaultConfig) error
	LoadConfig(ctx context.Context, userID string) (*models.VaultConfig, error)
}

func (v *Vault) mirrorConfig(ctx context.Context, cfg *models.VaultConfig) {
	if v.opts.Mirror == nil || cfg == nil {
		return
	}
	if err := v.opts.Mirror.SaveConfig(ctx, *cfg); err != nil {
		v.logger.Warn(ctx, "could not mirror vault config", "error", err)
	}
}

// mirroredConfig returns the local copy for userID, or nil when there is
// none or it cannot be read.
func (v *Vault) mirroredConfig(ctx context.Context, userID string) *models.VaultConfig {
	if v.opts.Mirror == nil {
		return nil
	}
	cfg, err := v.opts.Mirror.LoadConfig(ctx, userID)
	if err != nil {
		v.logger.Warn(ctx, "could not read mirrored vault config", "error", err)
		return nil
	}
	if cfg != nil && cfg.UserID != userID {
		return nil
	}
	return cfg
}
