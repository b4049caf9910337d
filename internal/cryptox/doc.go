// Package cryptox holds the vault's cryptographic core: password-based key
// derivation, the key verifier and the authenticated envelope cipher used
// for every record.
//
// Keys never leave this package as plain byte slices. A derived key is
// sealed in a memguard enclave (SymmetricKey) and is only opened for the
// duration of a single seal/open call.
package cryptox
