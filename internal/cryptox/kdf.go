package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// SaltSize is the length of salts produced by GenerateSalt.
const SaltSize = 32

// Lower bounds reject parameters too weak to slow down offline guessing.
// Upper bounds keep a hostile stored config from pinning the CPU or memory.
const (
	MinArgon2MemoryKiB = 19 * 1024
	MaxArgon2MemoryKiB = 1024 * 1024
	MaxArgon2Time      = 16
	MinPBKDF2Iter      = 100_000
	MaxPBKDF2Iter      = 10_000_000
)

var ErrWeakKDFParams = errors.New("kdf parameters rejected")

// DefaultKDFParams is argon2id with t=3, 64 MiB, 4 lanes.
func DefaultKDFParams() models.KDFParams {
	return models.KDFParams{
		Algorithm: models.KDFArgon2id,
		Time:      3,
		MemoryKiB: 64 * 1024,
		Threads:   4,
		KeyLen:    KeySize,
	}
}

// LegacyKDFParams is PBKDF2-HMAC-SHA256, kept for vaults created on
// platforms without argon2.
func LegacyKDFParams() models.KDFParams {
	return models.KDFParams{
		Algorithm:  models.KDFPBKDF2SHA256,
		Iterations: 600_000,
		KeyLen:     KeySize,
	}
}

// ValidateKDFParams checks p against the accepted bounds.
func ValidateKDFParams(p models.KDFParams) error {
	if p.KeyLen != KeySize {
		return fmt.Errorf("%w: key length %d", ErrWeakKDFParams, p.KeyLen)
	}

	switch p.Algorithm {
	case models.KDFArgon2id:
		if p.Time < 1 || p.Time > MaxArgon2Time {
			return fmt.Errorf("%w: argon2id time %d", ErrWeakKDFParams, p.Time)
		}
		if p.MemoryKiB < MinArgon2MemoryKiB || p.MemoryKiB > MaxArgon2MemoryKiB {
			return fmt.Errorf("%w: argon2id memory %d KiB", ErrWeakKDFParams, p.MemoryKiB)
		}
		if p.Threads < 1 {
			return fmt.Errorf("%w: argon2id threads %d", ErrWeakKDFParams, p.Threads)
		}
	case models.KDFPBKDF2SHA256:
		if p.Iterations < MinPBKDF2Iter || p.Iterations > MaxPBKDF2Iter {
			return fmt.Errorf("%w: pbkdf2 iterations %d", ErrWeakKDFParams, p.Iterations)
		}
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrWeakKDFParams, p.Algorithm)
	}
	return nil
}

// DeriveKey stretches password with salt. Identical inputs always give the
// same key. The caller owns password and should wipe it afterwards.
func DeriveKey(password []byte, salt models.Salt, params models.KDFParams) (*SymmetricKey, error) {
	if len(salt) < common.MinSaltSize {
		return nil, fmt.Errorf("salt too short: %d bytes", len(salt))
	}
	if err := ValidateKDFParams(params); err != nil {
		return nil, err
	}

	var raw []byte
	switch params.Algorithm {
	case models.KDFArgon2id:
		raw = argon2.IDKey(password, salt, params.Time, params.MemoryKiB, params.Threads, params.KeyLen)
	case models.KDFPBKDF2SHA256:
		raw = pbkdf2.Key(password, salt, params.Iterations, int(params.KeyLen), sha256.New)
	}

	return NewSymmetricKey(raw)
}

// GenerateSalt returns SaltSize bytes from crypto/rand.
func GenerateSalt() (models.Salt, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
