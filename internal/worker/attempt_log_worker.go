package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

// AttemptLogWorker consumes persist_attempts_queue and appends to submission_attempts.
type AttemptLogWorker struct {
	db  execer
	rdb *redis.Client
	log zerolog.Logger

	pollTimeout time.Duration
	retryDelay  time.Duration
}

// NewAttemptLogWorker creates a new AttemptLogWorker.
func NewAttemptLogWorker(db execer, rdb *redis.Client, log zerolog.Logger) *AttemptLogWorker {
	return &AttemptLogWorker{
		db:          db,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_log_worker").Logger(),
		pollTimeout: time.Second,
		retryDelay:  5 * time.Second,
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AttemptLogWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AttemptLogWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, w.pollTimeout, config.WorkerKey.PersistAttemptsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var attempt model.SubmissionAttempt
	if err := json.Unmarshal([]byte(result[1]), &attempt); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persist(ctx, &attempt); err != nil {
		w.log.Error().Err(err).
			Str("session_id", attempt.SessionID.String()).
			Dur("retry_in", w.retryDelay).
			Msg("Persist error, requeueing")
		w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistAttemptsQueue, result[1])

		select {
		case <-time.After(w.retryDelay):
		case <-ctx.Done():
		}
	}
}

func (w *AttemptLogWorker) persist(ctx context.Context, a *model.SubmissionAttempt) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := w.db.Exec(ctx,
		`INSERT INTO submission_attempts
			(session_id, test_id, student_id, trigger, outcome, answered, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.SessionID, a.TestID, a.StudentID, string(a.Trigger), string(a.Outcome), a.Answered, a.Error, createdAt,
	)
	return err
}

// drain persists whatever is left in the queue before shutdown.
func (w *AttemptLogWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
		if err != nil {
			break
		}

		var attempt model.SubmissionAttempt
		if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &attempt); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
