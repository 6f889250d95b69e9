// Package repomanager vends the server repositories bound to either the
// connection pool or an open transaction, and runs schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/records"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/vaultparams"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Records(db dbx.DBTX) records.Repository
	VaultParams(db dbx.DBTX) vaultparams.Repository
}
