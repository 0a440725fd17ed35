package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessRepository reads the access grants teachers manage for their tests.
type AccessRepository struct {
	pool *pgxpool.Pool
}

// NewAccessRepository creates a new AccessRepository.
func NewAccessRepository(pool *pgxpool.Pool) *AccessRepository {
	return &AccessRepository{pool: pool}
}

// IsEnabled reports whether a student currently has access to a test.
// A missing grant means no access.
func (r *AccessRepository) IsEnabled(ctx context.Context, testID uuid.UUID, studentID int) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx,
		`SELECT enabled FROM test_access
		 WHERE test_id = $1 AND student_id = $2`, testID, studentID,
	).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// IsParentOf reports whether parentID is linked to studentID.
func (r *AccessRepository) IsParentOf(ctx context.Context, parentID, studentID int) (bool, error) {
	var linked bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM parent_children WHERE parent_id = $1 AND student_id = $2
		 )`, parentID, studentID,
	).Scan(&linked)
	return linked, err
}
