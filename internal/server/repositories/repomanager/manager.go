package repomanager

import (
	"context"
	"database/sql"

	"github.com/LouAnabel/someContacts/internal/dbx"
	"github.com/LouAnabel/someContacts/internal/server/repositories/tokens"
	"github.com/LouAnabel/someContacts/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, and owns the schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Repository
}
