package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

// Domain errors
var (
	ErrTestNotFound  = errors.New("test not found or not published")
	ErrNoQuestions   = errors.New("test has no questions")
	ErrNotTestAuthor = errors.New("not the author of this test")
)

type testStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	ListPublished(ctx context.Context) ([]model.Test, error)
}

type questionStore interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
}

// PaperService serves test papers and answer keys out of Redis, falling back to
// PostgreSQL and re-warming the cache on a miss.
type PaperService struct {
	tests     testStore
	questions questionStore
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewPaperService creates a new PaperService.
func NewPaperService(tests testStore, questions questionStore, rdb *redis.Client, log zerolog.Logger) *PaperService {
	return &PaperService{
		tests:     tests,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "paper_service").Logger(),
	}
}

// GetPaper returns the student-facing paper for a published test.
func (s *PaperService) GetPaper(ctx context.Context, testID uuid.UUID) (*model.TestPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.TestPaperKey(testID.String())).Bytes()
	if err == nil {
		var paper model.TestPaper
		if err := json.Unmarshal(data, &paper); err != nil {
			return nil, fmt.Errorf("unmarshal paper: %w", err)
		}
		return &paper, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	test, err := s.publishedTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	paper, _, err := s.WarmTestCache(ctx, test)
	if err != nil {
		return nil, err
	}
	return paper, nil
}

// GetAnswerKey returns question id -> correct choice id for a test.
func (s *PaperService) GetAnswerKey(ctx context.Context, testID uuid.UUID) (map[string]string, error) {
	key, err := s.rdb.HGetAll(ctx, config.CacheKey.TestAnswerKey(testID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(key) > 0 {
		return key, nil
	}

	s.log.Debug().Str("test_id", testID.String()).Msg("Answer key cache miss")
	test, err := s.publishedTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	_, key, err = s.WarmTestCache(ctx, test)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Authorize returns the published test if authorID wrote it. authorID 0 skips
// the ownership check.
func (s *PaperService) Authorize(ctx context.Context, testID uuid.UUID, authorID int) (*model.Test, error) {
	test, err := s.publishedTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if authorID != 0 && test.AuthorID != authorID {
		return nil, ErrNotTestAuthor
	}
	return test, nil
}

// RefreshCache re-caches a published test. A test that is no longer published
// has its paper and answer key evicted so it can no longer be started.
// authorID 0 skips the ownership check.
func (s *PaperService) RefreshCache(ctx context.Context, testID uuid.UUID, authorID int) error {
	test, err := s.tests.GetByID(ctx, testID)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.EvictTestCache(ctx, testID); err != nil {
			return err
		}
		return ErrTestNotFound
	}
	if err != nil {
		return fmt.Errorf("get test: %w", err)
	}
	if authorID != 0 && test.AuthorID != authorID {
		return ErrNotTestAuthor
	}

	if test.Status != model.TestStatusPublished {
		if err := s.EvictTestCache(ctx, testID); err != nil {
			return err
		}
		s.log.Info().
			Str("test_id", testID.String()).
			Str("status", string(test.Status)).
			Msg("Cache evicted")
		return nil
	}

	if _, _, err := s.WarmTestCache(ctx, test); err != nil {
		return err
	}

	s.log.Info().Str("test_id", testID.String()).Msg("Cache refreshed")
	return nil
}

// EvictTestCache drops a test's cached paper and answer key.
func (s *PaperService) EvictTestCache(ctx context.Context, testID uuid.UUID) error {
	err := s.rdb.Del(ctx,
		config.CacheKey.TestPaperKey(testID.String()),
		config.CacheKey.TestAnswerKey(testID.String()),
	).Err()
	if err != nil {
		return fmt.Errorf("evict cache: %w", err)
	}
	return nil
}

// WarmTestCache loads a test's paper and answer key from PostgreSQL into Redis.
func (s *PaperService) WarmTestCache(ctx context.Context, test *model.Test) (*model.TestPaper, map[string]string, error) {
	questions, err := s.questions.ListByTest(ctx, test.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	paper := &model.TestPaper{
		TestID:          test.ID,
		Title:           test.Title,
		DurationSeconds: test.DurationSeconds,
		Questions:       make([]model.PaperQuestion, len(questions)),
	}
	answerKey := make(map[string]string, len(questions))
	keyFields := make(map[string]interface{}, len(questions))
	for i, q := range questions {
		paper.Questions[i] = q.ForStudent()
		answerKey[q.ID.String()] = q.CorrectChoiceID
		keyFields[q.ID.String()] = q.CorrectChoiceID
	}

	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal paper: %w", err)
	}

	keyName := config.CacheKey.TestAnswerKey(test.ID.String())
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.TestPaperKey(test.ID.String()), paperJSON, 0)
	pipe.Del(ctx, keyName)
	pipe.HSet(ctx, keyName, keyFields)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("test_id", test.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return paper, answerKey, nil
}

// PrewarmAllCaches caches every published test. Individual failures are logged and skipped.
func (s *PaperService) PrewarmAllCaches(ctx context.Context) error {
	tests, err := s.tests.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published tests: %w", err)
	}
	if len(tests) == 0 {
		s.log.Info().Msg("No published tests to prewarm")
		return nil
	}

	warmed := 0
	for i := range tests {
		if _, _, err := s.WarmTestCache(ctx, &tests[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("test_id", tests[i].ID.String()).
				Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(tests)).
		Msg("Prewarming complete")
	return nil
}

func (s *PaperService) publishedTest(ctx context.Context, testID uuid.UUID) (*model.Test, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	if test.Status != model.TestStatusPublished {
		return nil, ErrTestNotFound
	}
	return test, nil
}
