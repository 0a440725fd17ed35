package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccess struct{ enabled bool }

func (f fakeAccess) IsEnabled(context.Context, uuid.UUID, int) (bool, error) {
	return f.enabled, nil
}

type fakePapers struct{ paper *model.TestPaper }

func (f fakePapers) GetPaper(context.Context, uuid.UUID) (*model.TestPaper, error) {
	return f.paper, nil
}

type stubGrader struct {
	result *model.SubmissionResult
	err    error
}

func (g stubGrader) Submit(context.Context, model.Submission) (*model.SubmissionResult, error) {
	return g.result, g.err
}

type recordingMonitor struct {
	mu     sync.Mutex
	events []MonitorEvent
}

func (m *recordingMonitor) Publish(_ context.Context, _ uuid.UUID, ev MonitorEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *recordingMonitor) types() []MonitorEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MonitorEventType, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

type playerHarness struct {
	svc     *PlayerService
	rdb     *redis.Client
	monitor *recordingMonitor
	results *fakeResults
	paper   *model.TestPaper
}

func newPlayerHarness(t *testing.T, access bool, grader session.Grader) *playerHarness {
	t.Helper()
	_, rdb := newRedis(t)

	test, qs := seedTest(3, model.TestStatusPublished)
	paper := &model.TestPaper{TestID: test.ID, Title: test.Title, DurationSeconds: 60}
	for _, q := range qs {
		paper.Questions = append(paper.Questions, q.ForStudent())
	}

	h := &playerHarness{
		rdb:     rdb,
		monitor: &recordingMonitor{},
		results: &fakeResults{},
		paper:   paper,
	}
	h.svc = NewPlayerService(
		fakeAccess{enabled: access},
		h.results,
		fakePapers{paper: paper},
		grader,
		h.monitor,
		rdb,
		PlayerConfig{TickInterval: time.Hour, SubmitTimeout: time.Second},
		testLogger(),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.svc.CloseAll(ctx)
	})
	return h
}

func TestPlayerStartDeniedWithoutAccess(t *testing.T) {
	h := newPlayerHarness(t, false, stubGrader{})

	_, _, err := h.svc.Start(context.Background(), h.paper.TestID, 1, session.Hooks{})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestPlayerStartRejectsSubmittedStudent(t *testing.T) {
	ctx := context.Background()

	t.Run("redis marker", func(t *testing.T) {
		h := newPlayerHarness(t, true, stubGrader{})
		require.NoError(t, h.rdb.Set(ctx, config.CacheKey.StudentSubmittedKey(h.paper.TestID.String(), 1), 1, 0).Err())

		_, _, err := h.svc.Start(ctx, h.paper.TestID, 1, session.Hooks{})
		assert.ErrorIs(t, err, ErrAlreadySubmitted)
	})

	t.Run("stored result heals marker", func(t *testing.T) {
		h := newPlayerHarness(t, true, stubGrader{})
		h.results.exists = true

		_, _, err := h.svc.Start(ctx, h.paper.TestID, 1, session.Hooks{})
		assert.ErrorIs(t, err, ErrAlreadySubmitted)

		n, err := h.rdb.Exists(ctx, config.CacheKey.StudentSubmittedKey(h.paper.TestID.String(), 1)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestPlayerSubmitQueuesResult(t *testing.T) {
	h := newPlayerHarness(t, true, stubGrader{result: &model.SubmissionResult{Score: 100, CorrectCount: 1, TotalCount: 3}})
	ctx := context.Background()

	submitted := make(chan model.SubmissionResult, 1)
	ctrl, paper, err := h.svc.Start(ctx, h.paper.TestID, 9, session.Hooks{
		OnSubmitted: func(_ model.Submission, res model.SubmissionResult) { submitted <- res },
	})
	require.NoError(t, err)
	assert.Equal(t, h.paper, paper)

	require.NoError(t, ctrl.Select(paper.Questions[1].ID, "B"))
	require.NoError(t, ctrl.Finish())

	select {
	case res := <-submitted:
		assert.Equal(t, 100.0, res.Score)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not complete")
	}

	raw, err := h.rdb.LPop(ctx, config.WorkerKey.PersistResultsQueue).Result()
	require.NoError(t, err)
	var queued model.TestResult
	require.NoError(t, json.Unmarshal([]byte(raw), &queued))
	assert.Equal(t, ctrl.ID(), queued.SessionID)
	assert.Equal(t, 9, queued.StudentID)
	assert.Equal(t, 100.0, queued.Score)

	raw, err = h.rdb.LPop(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
	require.NoError(t, err)
	var attempt model.SubmissionAttempt
	require.NoError(t, json.Unmarshal([]byte(raw), &attempt))
	assert.Equal(t, model.AttemptSubmitted, attempt.Outcome)
	assert.Equal(t, model.TriggerManual, attempt.Trigger)
	assert.Equal(t, 1, attempt.Answered)

	done, err := h.svc.HasSubmitted(ctx, h.paper.TestID, 9)
	require.NoError(t, err)
	assert.True(t, done)

	assert.Equal(t, []MonitorEventType{MonitorSessionStarted, MonitorProgress, MonitorSubmitted}, h.monitor.types())
}

func TestPlayerFailedSubmissionLogsAttempt(t *testing.T) {
	h := newPlayerHarness(t, true, stubGrader{err: errors.New("grader down")})
	ctx := context.Background()

	failed := make(chan error, 1)
	ctrl, _, err := h.svc.Start(ctx, h.paper.TestID, 4, session.Hooks{
		OnFailed: func(_ model.Submission, err error) { failed <- err },
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Finish())

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, session.ErrSubmissionFailure)
	case <-time.After(2 * time.Second):
		t.Fatal("failure not reported")
	}

	raw, err := h.rdb.LPop(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
	require.NoError(t, err)
	var attempt model.SubmissionAttempt
	require.NoError(t, json.Unmarshal([]byte(raw), &attempt))
	assert.Equal(t, model.AttemptFailed, attempt.Outcome)
	require.NotNil(t, attempt.Error)
	assert.Contains(t, *attempt.Error, "grader down")

	n, err := h.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	done, err := h.svc.HasSubmitted(ctx, h.paper.TestID, 4)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPlayerReplacesLiveSession(t *testing.T) {
	h := newPlayerHarness(t, true, stubGrader{})
	ctx := context.Background()

	first, _, err := h.svc.Start(ctx, h.paper.TestID, 2, session.Hooks{})
	require.NoError(t, err)
	second, _, err := h.svc.Start(ctx, h.paper.TestID, 2, session.Hooks{})
	require.NoError(t, err)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("first session was not closed")
	}
	first.Wait()

	live := h.svc.Live(h.paper.TestID)
	require.Len(t, live, 1)
	assert.Equal(t, second.ID(), live[0].SessionID)
	assert.Equal(t, session.StatusActive, live[0].Session.Status())
	assert.Contains(t, h.monitor.types(), MonitorSessionReplaced)
}

func TestPlayerCloseAll(t *testing.T) {
	h := newPlayerHarness(t, true, stubGrader{})
	ctx := context.Background()

	a, _, err := h.svc.Start(ctx, h.paper.TestID, 1, session.Hooks{})
	require.NoError(t, err)
	b, _, err := h.svc.Start(ctx, h.paper.TestID, 2, session.Hooks{})
	require.NoError(t, err)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.svc.CloseAll(closeCtx))

	a.Wait()
	b.Wait()
	assert.Empty(t, h.svc.Live(h.paper.TestID))

	_, _, err = h.svc.Start(ctx, h.paper.TestID, 3, session.Hooks{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

// gatedMonitor holds session_replaced events until release is closed.
type gatedMonitor struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (m *gatedMonitor) Publish(_ context.Context, _ uuid.UUID, ev MonitorEvent) error {
	if ev.Type != MonitorSessionReplaced {
		return nil
	}
	m.once.Do(func() { close(m.entered) })
	<-m.release
	return nil
}

func TestPlayerLiveAnswersWhilePublishing(t *testing.T) {
	base := newPlayerHarness(t, true, stubGrader{})
	monitor := &gatedMonitor{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewPlayerService(
		fakeAccess{enabled: true},
		&fakeResults{},
		fakePapers{paper: base.paper},
		stubGrader{},
		monitor,
		base.rdb,
		PlayerConfig{TickInterval: time.Hour, SubmitTimeout: time.Second},
		testLogger(),
	)

	_, _, err := svc.Start(context.Background(), base.paper.TestID, 1, session.Hooks{})
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() {
		_, _, err := svc.Start(context.Background(), base.paper.TestID, 1, session.Hooks{})
		started <- err
	}()

	select {
	case <-monitor.entered:
	case <-time.After(time.Second):
		t.Fatal("replacement was never published")
	}

	live := make(chan []LiveSession, 1)
	go func() { live <- svc.Live(base.paper.TestID) }()
	select {
	case got := <-live:
		require.Len(t, got, 1)
		assert.Equal(t, session.StatusActive, got[0].Session.Status())
	case <-time.After(time.Second):
		t.Fatal("Live blocked on a registered session")
	}

	close(monitor.release)
	require.NoError(t, <-started)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.CloseAll(ctx))
}
