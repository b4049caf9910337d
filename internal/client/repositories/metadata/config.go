package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/models"
)

// KeyVaultConfigPrefix prefixes the local copy of a user's vault config.
const KeyVaultConfigPrefix = "vault.config:"

// ConfigMirror stores vault configs as JSON values in a Repository.
type ConfigMirror struct {
	repo Repository
}

func NewConfigMirror(repo Repository) *ConfigMirror {
	return &ConfigMirror{repo: repo}
}

func (m *ConfigMirror) SaveConfig(ctx context.Context, cfg models.VaultConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode vault config: %w", err)
	}
	return m.repo.Set(ctx, KeyVaultConfigPrefix+cfg.UserID, b)
}

func (m *ConfigMirror) LoadConfig(ctx context.Context, userID string) (*models.VaultConfig, error) {
	b, err := m.repo.Get(ctx, KeyVaultConfigPrefix+userID)
	if err != nil || b == nil {
		return nil, err
	}
	var cfg models.VaultConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode vault config: %w", err)
	}
	return &cfg, nil
}
