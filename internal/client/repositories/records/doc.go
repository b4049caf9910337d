// Package records is the local SQLite implementation of store.RecordStore,
// used when the client runs without a server.
//
// Tables (see internal/client/migrations):
//
//   - vault_config: one row per user, salt, KDF parameters and verifier
//   - records:      one row per (user_id, id), ciphertext and nonce only
//
// Timestamps are stored as Unix nanoseconds. Rotate rewrites the config
// and the whole record set inside one transaction.
package records
