package accounts

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/server/models"
)

// Repository stores server login accounts.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
}
