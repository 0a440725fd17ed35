package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

// MonitorEventType enumerates what a live monitor event reports.
type MonitorEventType string

const (
	MonitorSessionStarted  MonitorEventType = "session_started"
	MonitorProgress        MonitorEventType = "progress"
	MonitorTimeExpired     MonitorEventType = "time_expired"
	MonitorSubmitted       MonitorEventType = "submitted"
	MonitorSubmitFailed    MonitorEventType = "submit_failed"
	MonitorSessionReplaced MonitorEventType = "session_replaced"
	MonitorSessionClosed   MonitorEventType = "session_closed"
)

// MonitorEvent is published on the per-test monitor channel.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	SessionID uuid.UUID        `json:"session_id"`
	StudentID int              `json:"student_id"`
	Answered  int              `json:"answered_count"`
	Total     int              `json:"total_questions"`
	Remaining *int             `json:"remaining_seconds,omitempty"`
	Score     *float64         `json:"score,omitempty"`
	Error     string           `json:"error,omitempty"`
	At        time.Time        `json:"at"`
}

type resultLister interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestResult, error)
}

// MonitorService fans session lifecycle events out to teachers over Redis Pub/Sub.
type MonitorService struct {
	rdb     *redis.Client
	results resultLister
	log     zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client, results resultLister, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb:     rdb,
		results: results,
		log:     log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev to the test's monitor channel.
func (s *MonitorService) Publish(ctx context.Context, testID uuid.UUID, ev MonitorEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(testID.String()), payload).Err(); err != nil {
		return fmt.Errorf("publish monitor event: %w", err)
	}
	return nil
}

// Subscribe attaches to the test's monitor channel. The caller closes the PubSub.
func (s *MonitorService) Subscribe(ctx context.Context, testID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.TestMonitorChannel(testID.String()))
}

// Completed returns the results already stored for a test.
func (s *MonitorService) Completed(ctx context.Context, testID uuid.UUID) ([]model.TestResult, error) {
	results, err := s.results.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}
