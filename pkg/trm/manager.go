package trm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Manager runs functions inside a pgx transaction carried by the context.
type Manager struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Manager {
	return &Manager{db: db}
}

type ctxKeyTx struct{}

var txKey = ctxKeyTx{}

// TxFrom returns the transaction stored in ctx by Do.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok && tx != nil
}

// Do executes fn within a transaction.
// Nested calls join the outer transaction; only the outermost Do commits or rolls back.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start new transaction: %w", err)
	}

	defer func() {
		// откат на отдельном контексте: контекст вызывающего мог уже истечь
		rbCtx := context.WithoutCancel(ctx)
		if p := recover(); p != nil {
			_ = tx.Rollback(rbCtx)
			panic(p)
		}

		if err != nil {
			if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("failed to rollback tx: %v (original error: %w)", rbErr, err)
			}
			return
		}

		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("failed to commit tx: %w", commitErr)
		}
	}()

	return fn(context.WithValue(ctx, txKey, tx))
}
