// Package client contains client-side building blocks for keyvault.
//
// # Overview
//
// The package provides:
//  1. GRPCClient, a store.RecordStore backed by the keyvault server. It
//     manages the connection, injects the access token of the current
//     session through an interceptor and maps gRPC status codes to the
//     sentinel errors in internal/common.
//  2. GRPCClient also implements identity.Authenticator, so a session can
//     sign in through it.
//  3. Local persistence bootstrap (OpenDatabase, RunMigrations, InitDatabase)
//     wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Remote failures are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, common.ErrUnauthorized, common.ErrNotFound and
// common.ErrAlreadyExists.
//
// The remote store acts on the user carried by the access token. The userID
// arguments of the RecordStore methods are checked against the token only
// when the server enforces it.
package client
