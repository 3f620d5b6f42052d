package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	pg "github.com/Temutjin2k/ride-pooling/pkg/postgres"
	"github.com/Temutjin2k/ride-pooling/pkg/trm"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// TxorDB returns the transaction opened by trm.Manager.Do when ctx carries one, the pool otherwise.
func TxorDB(ctx context.Context, db *pgxpool.Pool) Querier {
	if tx, ok := trm.TxFrom(ctx); ok {
		return tx
	}
	return db
}

// dbError wraps err with op and, when the driver error has a domain meaning,
// with the matching sentinel so the service can react to it.
func dbError(op string, err error) error {
	switch {
	case pg.IsSerializationFailure(err), pg.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, types.ErrConflict, err)
	case pg.IsCheckViolation(err):
		return fmt.Errorf("%s: %w: %w", op, types.ErrConstraintViolation, err)
	case pg.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, types.ErrPoolNotFound, err)
	case pg.IsConnectionError(err):
		return fmt.Errorf("%s: %w: %w", op, types.ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
