package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/vault"
)

// Store modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Key cache backends.
const (
	KeyCacheSQLite = "sqlite"
	KeyCacheBolt   = "bolt"
	KeyCacheNone   = "none"
)

// Config holds runtime settings for the keyvault CLI.
//
// Units: OnlineCheckInterval and RequestTimeout are time.Duration values.
type Config struct {
	Mode                string
	ServerEndpointAddr  string
	DataDir             string
	KeyCache            string
	Username            string
	MinPasswordLength   int
	Algorithm           string
	KDF                 string
	LogLevel            string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Mode = ModeLocal
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DataDir = "."
	c.KeyCache = KeyCacheSQLite
	c.MinPasswordLength = vault.DefaultMinPasswordLength
	c.Algorithm = models.AlgAES256GCM.String()
	c.KDF = models.KDFArgon2id
	c.LogLevel = "warn"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeRemote:
	default:
		return fmt.Errorf("unknown store mode %q", c.Mode)
	}
	switch c.KeyCache {
	case KeyCacheSQLite, KeyCacheBolt, KeyCacheNone:
	default:
		return fmt.Errorf("unknown key cache backend %q", c.KeyCache)
	}
	if c.MinPasswordLength < 1 {
		return fmt.Errorf("minimum password length must be positive, got %d", c.MinPasswordLength)
	}
	if _, ok := models.ParseAlgorithm(c.Algorithm); !ok {
		return fmt.Errorf("unknown encryption algorithm %q", c.Algorithm)
	}
	switch c.KDF {
	case models.KDFArgon2id, models.KDFPBKDF2SHA256:
	default:
		return fmt.Errorf("unknown key derivation function %q", c.KDF)
	}
	if c.OnlineCheckInterval <= 0 {
		return fmt.Errorf("online check interval must be positive")
	}
	return nil
}

// EncryptionAlgorithm returns the parsed Algorithm. Call Validate first.
func (c *Config) EncryptionAlgorithm() models.Algorithm {
	a, _ := models.ParseAlgorithm(c.Algorithm)
	return a
}

// KDFParams returns the parameters new vaults and rotations derive keys
// with. Existing vaults keep the parameters stored in their config.
func (c *Config) KDFParams() models.KDFParams {
	if c.KDF == models.KDFPBKDF2SHA256 {
		return cryptox.LegacyKDFParams()
	}
	return cryptox.DefaultKDFParams()
}

// DatabasePath is the SQLite file holding local records and metadata.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "vault.db")
}

// KeyCachePath is the bbolt file used when KeyCache is "bolt".
func (c *Config) KeyCachePath() string {
	return filepath.Join(c.DataDir, "keycache.db")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
