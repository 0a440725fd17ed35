package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker drains persist_results_queue into test_results in batches.
type ResultWorker struct {
	db  execer
	rdb *redis.Client
	log zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
}

func NewResultWorker(db execer, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		db:           db,
		rdb:          rdb,
		log:          log.With().Str("component", "result_worker").Logger(),
		batchSize:    ResultBatchSize,
		batchTimeout: ResultBatchTimeout,
		pollTimeout:  ResultPollTimeout,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.TestResult, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing batch")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, w.pollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var res model.TestResult
			if err := json.Unmarshal([]byte(item[1]), &res); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, &res)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.TestResult) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("size", len(batch)).Msg("Bulk insert failed, using fallback")

		for _, res := range batch {
			if err := w.insertSingle(ctx, res); err != nil {
				w.log.Error().
					Err(err).
					Str("session_id", res.SessionID.String()).
					Msg("Single insert failed, requeueing")
				raw, _ := json.Marshal(res)
				w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("size", len(batch)).Msg("Results persisted")
}

// bulkInsert writes the batch with one UNNEST insert. The first result per
// student and test wins.
func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*model.TestResult) error {
	n := len(batch)
	sessionIDs := make([]uuid.UUID, n)
	testIDs := make([]uuid.UUID, n)
	students := make([]int, n)
	scores := make([]float64, n)
	correct := make([]int, n)
	totals := make([]int, n)
	submittedAts := make([]time.Time, n)

	for i, res := range batch {
		sessionIDs[i] = res.SessionID
		testIDs[i] = res.TestID
		students[i] = res.StudentID
		scores[i] = res.Score
		correct[i] = res.CorrectCount
		totals[i] = res.TotalCount
		submittedAts[i] = submittedAt(res)
	}

	_, err := w.db.Exec(ctx, `
		INSERT INTO test_results
			(session_id, test_id, student_id, score, correct_count, total_count, submitted_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::int[],
			$4::float8[],
			$5::int[],
			$6::int[],
			$7::timestamptz[]
		)
		ON CONFLICT DO NOTHING
	`, sessionIDs, testIDs, students, scores, correct, totals, submittedAts)
	return err
}

func (w *ResultWorker) insertSingle(ctx context.Context, res *model.TestResult) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO test_results
			(session_id, test_id, student_id, score, correct_count, total_count, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT DO NOTHING`,
		res.SessionID, res.TestID, res.StudentID, res.Score, res.CorrectCount, res.TotalCount, submittedAt(res),
	)
	return err
}

func submittedAt(res *model.TestResult) time.Time {
	if res.SubmittedAt.IsZero() {
		return time.Now()
	}
	return res.SubmittedAt
}
