package vault

import (
	"crypto/subtle"
	"unicode/utf8"

	"github.com/dmitrijs2005/keyvault/internal/common"
)

// DefaultMinPasswordLength is the shortest master password accepted.
const DefaultMinPasswordLength = 8

// validateNewPassword applies the master password policy. Length counts
// characters, not bytes.
func validateNewPassword(password, confirm []byte, minLength int) error {
	if len(password) == 0 {
		return &common.SetupValidationError{Reason: common.ReasonEmpty, MinLength: minLength}
	}
	if utf8.RuneCount(password) < minLength {
		return &common.SetupValidationError{Reason: common.ReasonTooShort, MinLength: minLength}
	}
	if subtle.ConstantTimeCompare(password, confirm) != 1 {
		return &common.SetupValidationError{Reason: common.ReasonMismatch, MinLength: minLength}
	}
	return nil
}
