package cryptox

import (
	"crypto/rand"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

const checkValueSize = 32

// CreateKeyVerifier seals a random check value under key. The check value
// itself is wiped; only its ciphertext is kept.
func CreateKeyVerifier(key *SymmetricKey) (models.Verifier, error) {
	check := make([]byte, checkValueSize)
	if _, err := rand.Read(check); err != nil {
		return models.Verifier{}, fmt.Errorf("check value: %w", err)
	}
	defer common.WipeByteArray(check)

	s, err := seal(key, labelVerifier, DefaultAlgorithm, check)
	if err != nil {
		return models.Verifier{}, err
	}

	return models.Verifier{
		Version:    models.VerifierVersion,
		Algorithm:  s.Algorithm,
		Nonce:      s.Nonce,
		Ciphertext: s.Ciphertext,
	}, nil
}

// VerifyKey reports whether key opens v. It fails closed: a wrong key, a
// tampered or malformed verifier and an unusable key all give false.
func VerifyKey(key *SymmetricKey, v models.Verifier) bool {
	if v.Version != models.VerifierVersion {
		return false
	}

	check, err := open(key, labelVerifier, Sealed{
		Version:    SealedVersion,
		Algorithm:  v.Algorithm,
		Nonce:      v.Nonce,
		Ciphertext: v.Ciphertext,
	})
	if err != nil {
		return false
	}
	defer common.WipeByteArray(check)

	return len(check) == checkValueSize
}
