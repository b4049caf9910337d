package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"golang.org/x/crypto/chacha20poly1305"
)

// SealedVersion is the current layout version of Sealed.
const SealedVersion uint32 = 1

// DefaultAlgorithm is used by EncryptData.
const DefaultAlgorithm = models.AlgAES256GCM

// Sealed is one authenticated ciphertext together with everything needed to
// open it except the key.
type Sealed struct {
	Version    uint32
	Algorithm  models.Algorithm
	Nonce      []byte
	Ciphertext []byte
}

// Domain labels keep a verifier from being accepted as a record and back.
const (
	labelRecord   = "keyvault/record"
	labelVerifier = "keyvault/verifier"
)

func newAEAD(alg models.Algorithm, raw []byte) (cipher.AEAD, error) {
	switch alg {
	case models.AlgAES256GCM:
		block, err := aes.NewCipher(raw)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case models.AlgXChaCha20Poly1305:
		return chacha20poly1305.NewX(raw)
	default:
		return nil, fmt.Errorf("%w: algorithm %d", common.ErrMalformed, alg)
	}
}

func additionalData(label string, version uint32, alg models.Algorithm) []byte {
	ad := make([]byte, 0, len(label)+8)
	ad = append(ad, label...)
	ad = binary.BigEndian.AppendUint32(ad, version)
	ad = binary.BigEndian.AppendUint32(ad, uint32(alg))
	return ad
}

func seal(key *SymmetricKey, label string, alg models.Algorithm, plaintext []byte) (Sealed, error) {
	out := Sealed{Version: SealedVersion, Algorithm: alg}

	err := key.Use(func(raw []byte) error {
		aead, err := newAEAD(alg, raw)
		if err != nil {
			return err
		}

		nonce := make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("nonce: %w", err)
		}

		out.Nonce = nonce
		out.Ciphertext = aead.Seal(nil, nonce, plaintext, additionalData(label, out.Version, alg))
		return nil
	})
	if err != nil {
		return Sealed{}, err
	}
	return out, nil
}

// open returns common.ErrDecrypt for every authentication failure and for
// input too malformed to attempt one.
func open(key *SymmetricKey, label string, s Sealed) ([]byte, error) {
	if s.Version != SealedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", common.ErrDecrypt, s.Version)
	}

	var plaintext []byte
	err := key.Use(func(raw []byte) error {
		aead, err := newAEAD(s.Algorithm, raw)
		if err != nil {
			return common.ErrDecrypt
		}
		if len(s.Nonce) != aead.NonceSize() || len(s.Ciphertext) < aead.Overhead() {
			return common.ErrDecrypt
		}

		plaintext, err = aead.Open(nil, s.Nonce, s.Ciphertext, additionalData(label, s.Version, s.Algorithm))
		if err != nil {
			return common.ErrDecrypt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// EncryptData seals plaintext with DefaultAlgorithm under a fresh nonce.
func EncryptData(key *SymmetricKey, plaintext string) (Sealed, error) {
	return EncryptDataWith(key, DefaultAlgorithm, plaintext)
}

// EncryptDataWith seals plaintext with the given algorithm.
func EncryptDataWith(key *SymmetricKey, alg models.Algorithm, plaintext string) (Sealed, error) {
	return seal(key, labelRecord, alg, []byte(plaintext))
}

// DecryptData opens s. Any tampering with the header, nonce or ciphertext,
// or a wrong key, yields common.ErrDecrypt.
func DecryptData(key *SymmetricKey, s Sealed) (string, error) {
	b, err := open(key, labelRecord, s)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)
	return string(b), nil
}
