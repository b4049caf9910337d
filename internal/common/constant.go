// Package common contains shared constants, sentinel errors and small helpers
// used across keyvault components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// LocalUserID identifies the single vault owner when the client runs
// against its local store without a server account.
const LocalUserID = "local"

// MinSaltSize is the smallest salt accepted by the key derivation function.
const MinSaltSize = 16
