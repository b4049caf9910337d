// Package models holds the server-side persistence types.
package models

import "time"

// Account is a server login. It is unrelated to any vault master password:
// the server only ever sees the account password, and only as a hash.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
