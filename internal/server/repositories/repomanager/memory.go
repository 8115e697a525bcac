package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/anonchat/internal/server/repositories/users"
)

// MemoryRepositoryManager keeps everything in process memory. State does not
// survive a restart, which the startup reset would discard anyway apart from
// message counters.
type MemoryRepositoryManager struct {
	store *users.MemoryStore
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{store: users.NewMemoryStore()}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) Users() users.Repository {
	return users.NewMemoryRepository(m.store)
}

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn TxFunc) (err error) {
	tx := m.store.Begin()

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	err = fn(ctx, tx)
	return err
}

func (m *MemoryRepositoryManager) Close() error { return nil }
