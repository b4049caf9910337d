package api

import (
	"time"

	"github.com/dmitrijs2005/keyvault/internal/models"
)

type PingRequest struct{}

type PingResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}

// SignUpRequest creates a server account. Password is the account login
// secret, never the vault master password.
type SignUpRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignUpResponse struct {
	UserID string `json:"user_id"`
}

type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignInResponse struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type GetConfigRequest struct{}

type GetConfigResponse struct {
	Config models.VaultConfig `json:"config"`
}

type PutConfigRequest struct {
	Config models.VaultConfig `json:"config"`
}

type PutConfigResponse struct{}

type ListRecordsRequest struct{}

type ListRecordsResponse struct {
	Records []models.EncryptedRecord `json:"records"`
}

type PutRecordRequest struct {
	Record models.EncryptedRecord `json:"record"`
}

type PutRecordResponse struct{}

type DeleteRecordRequest struct {
	ID string `json:"id"`
}

type DeleteRecordResponse struct{}

type RotateRequest struct {
	Config  models.VaultConfig       `json:"config"`
	Records []models.EncryptedRecord `json:"records"`
}

type RotateResponse struct{}
