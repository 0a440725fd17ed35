package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-player/internal/model"
)

// ResultRepository handles graded test result data access.
// Rows are written in batches by the result worker.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Exists reports whether a student already has a result for a test.
func (r *ResultRepository) Exists(ctx context.Context, testID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM test_results WHERE test_id = $1 AND student_id = $2
		 )`, testID, studentID,
	).Scan(&exists)
	return exists, err
}

// ListByStudent retrieves all results for a student, newest first.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID int) ([]model.TestResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tr.session_id, tr.test_id, t.title, tr.student_id,
		        tr.score, tr.correct_count, tr.total_count, tr.submitted_at
		 FROM test_results tr
		 JOIN tests t ON t.id = tr.test_id
		 WHERE tr.student_id = $1
		 ORDER BY tr.submitted_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var res model.TestResult
		if err := rows.Scan(&res.SessionID, &res.TestID, &res.TestTitle, &res.StudentID,
			&res.Score, &res.CorrectCount, &res.TotalCount, &res.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListByTest retrieves all results for a test, used for the monitor snapshot.
func (r *ResultRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tr.session_id, tr.test_id, t.title, tr.student_id,
		        tr.score, tr.correct_count, tr.total_count, tr.submitted_at
		 FROM test_results tr
		 JOIN tests t ON t.id = tr.test_id
		 WHERE tr.test_id = $1
		 ORDER BY tr.submitted_at`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var res model.TestResult
		if err := rows.Scan(&res.SessionID, &res.TestID, &res.TestTitle, &res.StudentID,
			&res.Score, &res.CorrectCount, &res.TotalCount, &res.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
