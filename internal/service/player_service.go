package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/metrics"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/session"
)

// Player errors
var (
	ErrAccessDenied     = errors.New("access to this test is not enabled")
	ErrAlreadySubmitted = errors.New("test already submitted")
	ErrShuttingDown     = errors.New("player is shutting down")
)

// recordTimeout bounds the Redis writes made from controller hooks.
const recordTimeout = 3 * time.Second

type accessChecker interface {
	IsEnabled(ctx context.Context, testID uuid.UUID, studentID int) (bool, error)
}

type resultChecker interface {
	Exists(ctx context.Context, testID uuid.UUID, studentID int) (bool, error)
}

type paperSource interface {
	GetPaper(ctx context.Context, testID uuid.UUID) (*model.TestPaper, error)
}

type monitorPublisher interface {
	Publish(ctx context.Context, testID uuid.UUID, ev MonitorEvent) error
}

// PlayerConfig tunes the controllers created by PlayerService.
type PlayerConfig struct {
	SubmitTimeout time.Duration
	TickInterval  time.Duration
	NewTicker     func(time.Duration) session.Ticker
}

// LiveSession describes a controller currently registered for a test.
type LiveSession struct {
	SessionID uuid.UUID
	StudentID int
	Session   session.Session
}

type liveKey struct {
	testID    uuid.UUID
	studentID int
}

// PlayerService starts test-taking sessions and keeps at most one live
// controller per student and test.
type PlayerService struct {
	access  accessChecker
	results resultChecker
	papers  paperSource
	grader  session.Grader
	monitor monitorPublisher
	rdb     *redis.Client
	cfg     PlayerConfig
	log     zerolog.Logger

	mu     sync.Mutex
	live   map[liveKey]*session.Controller
	closed bool
	wg     sync.WaitGroup
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(
	access accessChecker,
	results resultChecker,
	papers paperSource,
	grader session.Grader,
	monitor monitorPublisher,
	rdb *redis.Client,
	cfg PlayerConfig,
	log zerolog.Logger,
) *PlayerService {
	return &PlayerService{
		access:  access,
		results: results,
		papers:  papers,
		grader:  grader,
		monitor: monitor,
		rdb:     rdb,
		cfg:     cfg,
		log:     log.With().Str("component", "player_service").Logger(),
		live:    make(map[liveKey]*session.Controller),
	}
}

// Start checks eligibility, loads the paper and launches a controller for the
// student. An existing live controller for the same student and test is closed.
// hooks are called after the service's own bookkeeping for each event.
func (s *PlayerService) Start(ctx context.Context, testID uuid.UUID, studentID int, hooks session.Hooks) (*session.Controller, *model.TestPaper, error) {
	if err := s.Eligible(ctx, testID, studentID); err != nil {
		return nil, nil, err
	}

	paper, err := s.papers.GetPaper(ctx, testID)
	if err != nil {
		return nil, nil, err
	}

	sessionID := uuid.New()
	log := s.log.With().
		Str("test_id", testID.String()).
		Int("student_id", studentID).
		Logger()

	ctrl, err := session.NewController(paper.Questions, paper.DurationSeconds, session.Options{
		SessionID:     sessionID,
		TestID:        testID,
		StudentID:     studentID,
		Grader:        s.grader,
		Hooks:         s.wrapHooks(sessionID, testID, studentID, len(paper.Questions), hooks),
		TickInterval:  s.cfg.TickInterval,
		SubmitTimeout: s.cfg.SubmitTimeout,
		NewTicker:     s.cfg.NewTicker,
		Log:           log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	// The controller serves Snapshot as soon as it is visible in s.live.
	ctrl.Start(ctx)

	key := liveKey{testID: testID, studentID: studentID}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ctrl.Close()
		return nil, nil, ErrShuttingDown
	}
	prev := s.live[key]
	s.live[key] = ctrl
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	go func() {
		defer s.wg.Done()
		ctrl.Wait()
		s.release(key, ctrl)
		metrics.ActiveSessions.Dec()
		s.publish(testID, MonitorEvent{Type: MonitorSessionClosed, SessionID: sessionID, StudentID: studentID})
	}()

	if prev != nil {
		log.Info().Str("replaced_session_id", prev.ID().String()).Msg("Replacing live session")
		prev.Close()
		s.publish(testID, MonitorEvent{Type: MonitorSessionReplaced, SessionID: prev.ID(), StudentID: studentID})
	}

	remaining := paper.DurationSeconds
	s.publish(testID, MonitorEvent{
		Type:      MonitorSessionStarted,
		SessionID: sessionID,
		StudentID: studentID,
		Total:     len(paper.Questions),
		Remaining: &remaining,
	})
	log.Info().Str("session_id", sessionID.String()).Msg("Session started")

	return ctrl, paper, nil
}

// Eligible returns ErrAccessDenied or ErrAlreadySubmitted when the student may
// not take the test.
func (s *PlayerService) Eligible(ctx context.Context, testID uuid.UUID, studentID int) error {
	enabled, err := s.access.IsEnabled(ctx, testID, studentID)
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	if !enabled {
		return ErrAccessDenied
	}

	submitted, err := s.HasSubmitted(ctx, testID, studentID)
	if err != nil {
		return err
	}
	if submitted {
		return ErrAlreadySubmitted
	}
	return nil
}

// HasSubmitted reports whether the student already has a graded result. The
// Redis marker is checked first, then PostgreSQL, healing the marker on a hit.
func (s *PlayerService) HasSubmitted(ctx context.Context, testID uuid.UUID, studentID int) (bool, error) {
	markerKey := config.CacheKey.StudentSubmittedKey(testID.String(), studentID)
	n, err := s.rdb.Exists(ctx, markerKey).Result()
	if err != nil {
		return false, fmt.Errorf("check submitted marker: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	exists, err := s.results.Exists(ctx, testID, studentID)
	if err != nil {
		return false, fmt.Errorf("check stored result: %w", err)
	}
	if exists {
		_ = s.rdb.Set(ctx, markerKey, 1, 0).Err()
	}
	return exists, nil
}

// Live lists the controllers currently registered for a test.
func (s *PlayerService) Live(testID uuid.UUID) []LiveSession {
	s.mu.Lock()
	ctrls := make([]*session.Controller, 0, len(s.live))
	for key, ctrl := range s.live {
		if key.testID == testID {
			ctrls = append(ctrls, ctrl)
		}
	}
	s.mu.Unlock()

	out := make([]LiveSession, 0, len(ctrls))
	for _, ctrl := range ctrls {
		snap, err := ctrl.Snapshot()
		if err != nil {
			continue
		}
		out = append(out, LiveSession{
			SessionID: ctrl.ID(),
			StudentID: ctrl.StudentID(),
			Session:   snap,
		})
	}
	return out
}

// LiveCount returns the number of registered controllers across all tests.
func (s *PlayerService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// CloseAll tears down every live controller and refuses new ones. It returns
// once all controller goroutines have exited or ctx is done.
func (s *PlayerService) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ctrls := make([]*session.Controller, 0, len(s.live))
	for _, ctrl := range s.live {
		ctrls = append(ctrls, ctrl)
	}
	s.mu.Unlock()

	s.log.Info().Int("count", len(ctrls)).Msg("Closing live sessions")
	for _, ctrl := range ctrls {
		ctrl.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *PlayerService) release(key liveKey, ctrl *session.Controller) {
	s.mu.Lock()
	if s.live[key] == ctrl {
		delete(s.live, key)
	}
	s.mu.Unlock()
}

// wrapHooks layers bookkeeping (metrics, monitor events, result and attempt
// queues) in front of the caller's hooks.
func (s *PlayerService) wrapHooks(sessionID, testID uuid.UUID, studentID, total int, user session.Hooks) session.Hooks {
	lastAnswered := 0

	return session.Hooks{
		OnChange: func(snap session.Session) {
			if answered := snap.AnsweredCount(); answered != lastAnswered {
				lastAnswered = answered
				remaining := snap.Remaining()
				s.publish(testID, MonitorEvent{
					Type:      MonitorProgress,
					SessionID: sessionID,
					StudentID: studentID,
					Answered:  answered,
					Total:     total,
					Remaining: &remaining,
				})
			}
			if user.OnChange != nil {
				user.OnChange(snap)
			}
		},
		OnTick: user.OnTick,
		OnTimeExpired: func() {
			metrics.Expiries.Inc()
			s.publish(testID, MonitorEvent{
				Type:      MonitorTimeExpired,
				SessionID: sessionID,
				StudentID: studentID,
				Answered:  lastAnswered,
				Total:     total,
			})
			if user.OnTimeExpired != nil {
				user.OnTimeExpired()
			}
		},
		OnSubmitted: func(sub model.Submission, result model.SubmissionResult) {
			s.recordResult(sub, result)
			score := result.Score
			s.publish(testID, MonitorEvent{
				Type:      MonitorSubmitted,
				SessionID: sessionID,
				StudentID: studentID,
				Answered:  len(sub.Answers),
				Total:     total,
				Score:     &score,
			})
			if user.OnSubmitted != nil {
				user.OnSubmitted(sub, result)
			}
		},
		OnFailed: func(sub model.Submission, err error) {
			s.recordAttempt(sub, model.AttemptFailed, err)
			s.publish(testID, MonitorEvent{
				Type:      MonitorSubmitFailed,
				SessionID: sessionID,
				StudentID: studentID,
				Answered:  len(sub.Answers),
				Total:     total,
				Error:     err.Error(),
			})
			if user.OnFailed != nil {
				user.OnFailed(sub, err)
			}
		},
	}
}

// recordResult marks the student as submitted and queues the result for the
// result worker.
func (s *PlayerService) recordResult(sub model.Submission, result model.SubmissionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	raw, err := json.Marshal(model.TestResult{
		SessionID:    sub.SessionID,
		TestID:       sub.TestID,
		StudentID:    sub.StudentID,
		Score:        result.Score,
		CorrectCount: result.CorrectCount,
		TotalCount:   result.TotalCount,
		SubmittedAt:  time.Now(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal result")
		return
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.StudentSubmittedKey(sub.TestID.String(), sub.StudentID), 1, 0)
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().
			Err(err).
			Str("session_id", sub.SessionID.String()).
			Msg("Failed to queue result")
	}

	s.recordAttempt(sub, model.AttemptSubmitted, nil)
}

func (s *PlayerService) recordAttempt(sub model.Submission, outcome model.AttemptOutcome, cause error) {
	metrics.Submissions.WithLabelValues(string(sub.Trigger), string(outcome)).Inc()

	attempt := model.SubmissionAttempt{
		SessionID: sub.SessionID,
		TestID:    sub.TestID,
		StudentID: sub.StudentID,
		Trigger:   sub.Trigger,
		Outcome:   outcome,
		Answered:  len(sub.Answers),
		CreatedAt: time.Now(),
	}
	if cause != nil {
		msg := cause.Error()
		attempt.Error = &msg
	}

	raw, err := json.Marshal(attempt)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal attempt")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to queue submission attempt")
	}
}

func (s *PlayerService) publish(testID uuid.UUID, ev MonitorEvent) {
	if s.monitor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.monitor.Publish(ctx, testID, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("Monitor publish failed")
	}
}
