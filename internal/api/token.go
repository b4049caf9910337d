package api

import "github.com/golang-jwt/jwt/v5"

// TokenClaims is the payload of an access token. Subject holds the user id.
type TokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}
