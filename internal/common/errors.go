// Package common defines shared constants and sentinel errors used across
// client and server layers of keyvault. Callers should use errors.Is and
// errors.As to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Crypto errors. ErrDecrypt is returned for every authenticated
	// decryption failure, whatever the cause.
	ErrDecrypt   = errors.New("decryption failed")
	ErrMalformed = errors.New("malformed data")

	// Vault errors.
	ErrVerificationFailed   = errors.New("incorrect master password")
	ErrKeyCacheCorrupted    = errors.New("cached key failed validation")
	ErrRecordDecryptFailed  = errors.New("record decryption failed")
	ErrRecordsUndecryptable = errors.New("no record could be decrypted")
	ErrRecordFetchFailed    = errors.New("could not load records")
	ErrStorageWriteFailed   = errors.New("storage write failed")
	ErrVaultLocked          = errors.New("vault is locked")
	ErrInvalidState         = errors.New("operation not allowed in current state")
)

// SetupReason tells the user why a chosen master password was rejected.
type SetupReason string

const (
	ReasonEmpty    SetupReason = "password is empty"
	ReasonTooShort SetupReason = "password is too short"
	ReasonMismatch SetupReason = "passwords do not match"
)

// SetupValidationError is returned when the master password chosen at setup
// (or rotation) does not satisfy the policy. It is recoverable: the user
// retries with a different password.
type SetupValidationError struct {
	Reason    SetupReason
	MinLength int
}

func (e *SetupValidationError) Error() string {
	if e.Reason == ReasonTooShort {
		return fmt.Sprintf("%s: at least %d characters required", e.Reason, e.MinLength)
	}
	return string(e.Reason)
}
