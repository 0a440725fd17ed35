package worker

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the slice of *pgxpool.Pool the workers write through.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
