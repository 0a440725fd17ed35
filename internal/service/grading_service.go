package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/metrics"
	"github.com/stemsi/exstem-player/internal/model"
)

type answerKeySource interface {
	GetAnswerKey(ctx context.Context, testID uuid.UUID) (map[string]string, error)
}

// GradingService grades submissions in-process against the cached answer key.
type GradingService struct {
	keys answerKeySource
	log  zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(keys answerKeySource, log zerolog.Logger) *GradingService {
	return &GradingService{
		keys: keys,
		log:  log.With().Str("component", "grading_service").Logger(),
	}
}

// Submit scores sub. Answers to questions missing from the key are ignored.
func (s *GradingService) Submit(ctx context.Context, sub model.Submission) (*model.SubmissionResult, error) {
	start := time.Now()
	defer func() {
		metrics.GradingDuration.Observe(time.Since(start).Seconds())
	}()

	key, err := s.keys.GetAnswerKey(ctx, sub.TestID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	result := Grade(key, sub.Answers)

	s.log.Debug().
		Str("session_id", sub.SessionID.String()).
		Int("correct", result.CorrectCount).
		Int("total", result.TotalCount).
		Msg("Graded")
	return &result, nil
}

// Grade computes a percentage score rounded to two decimals.
func Grade(key map[string]string, answers []model.AnswerPair) model.SubmissionResult {
	correct := 0
	for _, a := range answers {
		if want, ok := key[a.QuestionID.String()]; ok && want == a.ChoiceID {
			correct++
		}
	}

	total := len(key)
	score := 0.0
	if total > 0 {
		score = math.Round(float64(correct)/float64(total)*10000) / 100
	}
	return model.SubmissionResult{
		Score:        score,
		CorrectCount: correct,
		TotalCount:   total,
	}
}
