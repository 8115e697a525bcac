package repomanager

import (
	"context"

	"github.com/dmitrijs2005/anonchat/internal/server/repositories/users"
)

// TxFunc is run by WithTx against a repository bound to one transaction.
type TxFunc func(ctx context.Context, repo users.Repository) error

type RepositoryManager interface {
	// RunMigrations brings the schema up to date.
	RunMigrations(ctx context.Context) error
	// Users returns a repository whose calls each run on their own.
	Users() users.Repository
	// WithTx commits fn's writes together or not at all. A transaction that
	// lost a race with a concurrent one fails with common.ErrTxConflict and
	// may be retried by the caller.
	WithTx(ctx context.Context, fn TxFunc) error
	Close() error
}
