package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/keyvault/internal/server/repositories/records"
)

// RepositoryManager hands out repositories bound to either the pool or a
// transaction, so services can compose them inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Records(db dbx.DBTX) records.Repository
}
