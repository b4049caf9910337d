// Package api is the wire contract between the keyvault client and server.
//
// The service is declared by hand as a grpc.ServiceDesc and its messages
// are plain Go structs carried by a JSON codec registered under the "json"
// content subtype. Record and config payloads are opaque ciphertext; the
// server never receives a master password, a vault key or plaintext.
package api
