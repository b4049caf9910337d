// Package auth issues and checks the HS256 access tokens handed to clients
// after sign-in.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/api"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "keyvault"

// GenerateToken signs an access token for userID that expires after
// validityDuration. The expiry is returned alongside so it can be reported
// to the client.
func GenerateToken(userID, username string, secretKey []byte, validityDuration time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(validityDuration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, api.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ParseToken verifies the signature and expiry of tokenString and returns
// its claims. Expired tokens give common.ErrTokenExpired, anything else
// that fails verification gives common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*api.TokenClaims, error) {
	claims := &api.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// GetUserIDFromToken is ParseToken reduced to the subject.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
