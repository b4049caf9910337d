// Package cli provides the interactive keyvault command-line client.
//
// It wires configuration, local storage, the key cache, the record store
// (local SQLite or the keyvault server) and the vault state machine behind
// a REPL. Typical flow: open the vault for the current user, unlock it
// silently from the key remembered on this device or ask for the master
// password, then execute user commands.
//
// Key features:
//   - setup / unlock / lock [--forget] / passwd
//   - add, list, show, update, delete entries (notes, logins, cards)
//   - signup / signin / signout against the server in remote mode
//   - a background connectivity watcher in remote mode
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
