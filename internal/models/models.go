// Package models defines the vault data model shared by the client, the
// server and the wire API. Everything here is either public (salt, KDF
// parameters) or ciphertext; plaintext only ever lives in DecryptedRecord.
package models

import "time"

// Current versions of the persisted structures. A reader that sees a newer
// version refuses it instead of guessing.
const (
	VaultConfigVersion uint32 = 1
	RecordVersion      uint32 = 1
	VerifierVersion    uint32 = 1
)

// Algorithm identifies the AEAD construction a ciphertext was sealed with.
type Algorithm uint32

const (
	AlgUnknown           Algorithm = 0
	AlgAES256GCM         Algorithm = 1
	AlgXChaCha20Poly1305 Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case AlgAES256GCM:
		return "aes-256-gcm"
	case AlgXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a config name back to its id.
func ParseAlgorithm(s string) (Algorithm, bool) {
	switch s {
	case "aes-256-gcm", "aes":
		return AlgAES256GCM, true
	case "xchacha20-poly1305", "xchacha":
		return AlgXChaCha20Poly1305, true
	default:
		return AlgUnknown, false
	}
}

// Salt is the per-vault random input to the KDF. It is not secret.
type Salt []byte

// KDF algorithm names stored in KDFParams.Algorithm.
const (
	KDFArgon2id     = "argon2id"
	KDFPBKDF2SHA256 = "pbkdf2-sha256"
)

// KDFParams records how the vault key was stretched from the master
// password, so a later parameter upgrade can be detected per vault.
type KDFParams struct {
	Algorithm  string `json:"algorithm"`
	Time       uint32 `json:"time,omitempty"`
	MemoryKiB  uint32 `json:"memory_kib,omitempty"`
	Threads    uint8  `json:"threads,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	KeyLen     uint32 `json:"key_len"`
}

// Verifier is a random check value sealed under the vault key. Opening it
// proves knowledge of the key without storing the password.
type Verifier struct {
	Version    uint32    `json:"version"`
	Algorithm  Algorithm `json:"algorithm"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

// VaultConfig is created once per user at setup. Only master-password
// rotation replaces it.
type VaultConfig struct {
	Version   uint32    `json:"version"`
	UserID    string    `json:"user_id"`
	Salt      Salt      `json:"salt"`
	KDF       KDFParams `json:"kdf"`
	Verifier  Verifier  `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

// EncryptedRecord is one credential entry as the store sees it. Updates
// replace Ciphertext and Nonce as a whole.
type EncryptedRecord struct {
	ID         string    `json:"id"`
	Version    uint32    `json:"version"`
	Algorithm  Algorithm `json:"algorithm"`
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DecryptedRecord exists in memory only while the vault is unlocked.
type DecryptedRecord struct {
	ID        string
	Payload   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
