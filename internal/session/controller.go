package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/model"
)

const (
	DefaultTickInterval  = time.Second
	DefaultSubmitTimeout = 15 * time.Second
)

// Grader scores a submission. Implementations may call out over the network.
type Grader interface {
	Submit(ctx context.Context, sub model.Submission) (*model.SubmissionResult, error)
}

// Ticker is the countdown source. *time.Ticker satisfies it through NewTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time {
	return t.t.C
}

func (t timeTicker) Stop() {
	t.t.Stop()
}

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Hooks are invoked on the controller goroutine. They must not call back into
// the controller except Close.
type Hooks struct {
	OnChange      func(s Session)
	OnTick        func(remaining int)
	OnTimeExpired func()
	OnSubmitted   func(sub model.Submission, result model.SubmissionResult)
	OnFailed      func(sub model.Submission, err error)
}

// Options configures a Controller.
type Options struct {
	SessionID     uuid.UUID
	TestID        uuid.UUID
	StudentID     int
	Grader        Grader
	Hooks         Hooks
	TickInterval  time.Duration
	SubmitTimeout time.Duration
	NewTicker     func(time.Duration) Ticker
	Log           zerolog.Logger
}

type action struct {
	fn    func(ctx context.Context) error
	reply chan error
}

type outcome struct {
	sub    model.Submission
	result *model.SubmissionResult
	err    error
}

// Controller drives one Session from user actions, a countdown and the grader.
// All state changes happen on a single goroutine started by Start.
type Controller struct {
	id        uuid.UUID
	testID    uuid.UUID
	studentID int

	grader        Grader
	hooks         Hooks
	tickInterval  time.Duration
	submitTimeout time.Duration
	newTicker     func(time.Duration) Ticker
	log           zerolog.Logger

	state Session

	actions chan action
	results chan outcome
	done    chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// NewController initializes a session and wraps it in a controller.
// The countdown does not run until Start is called.
func NewController(questions []model.PaperQuestion, durationSeconds int, opts Options) (*Controller, error) {
	if opts.Grader == nil {
		return nil, fmt.Errorf("%w: grader is required", ErrInvalidInput)
	}
	state, err := Initialize(questions, durationSeconds)
	if err != nil {
		return nil, err
	}

	if opts.SessionID == uuid.Nil {
		opts.SessionID = uuid.New()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = DefaultSubmitTimeout
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTicker
	}

	return &Controller{
		id:            opts.SessionID,
		testID:        opts.TestID,
		studentID:     opts.StudentID,
		grader:        opts.Grader,
		hooks:         opts.Hooks,
		tickInterval:  opts.TickInterval,
		submitTimeout: opts.SubmitTimeout,
		newTicker:     opts.NewTicker,
		log: opts.Log.With().
			Str("component", "session_controller").
			Str("session_id", opts.SessionID.String()).
			Logger(),
		state:   state,
		actions: make(chan action),
		results: make(chan outcome),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// ID returns the session id.
func (c *Controller) ID() uuid.UUID { return c.id }

// TestID returns the test this session belongs to.
func (c *Controller) TestID() uuid.UUID { return c.testID }

// StudentID returns the student taking the test.
func (c *Controller) StudentID() int { return c.studentID }

// Start launches the controller goroutine and the countdown. Cancelling ctx
// has the same effect as Close.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)
	})
}

// Close tears the controller down. It is safe to call more than once and from hooks.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once Close has been called.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Wait blocks until the controller goroutine has exited and released its ticker.
func (c *Controller) Wait() { <-c.stopped }

// Snapshot returns the current session.
func (c *Controller) Snapshot() (Session, error) {
	var snap Session
	err := c.do(func(context.Context) error {
		snap = c.state
		return nil
	})
	return snap, err
}

// Select records an answer. Any question may be answered regardless of the cursor.
func (c *Controller) Select(questionID uuid.UUID, choiceID string) error {
	return c.do(func(context.Context) error {
		next, err := SelectAnswer(c.state, questionID, choiceID)
		if err != nil {
			if errors.Is(err, ErrUnknownReference) {
				c.log.Warn().Err(err).Msg("Answer ignored")
			}
			return err
		}
		c.apply(next)
		return nil
	})
}

// GoTo moves the cursor to index.
func (c *Controller) GoTo(index int) error {
	return c.do(func(context.Context) error {
		return c.move(index)
	})
}

// Next advances the cursor. On the last question it submits the test.
func (c *Controller) Next() error {
	return c.do(func(ctx context.Context) error {
		if c.state.Status() != StatusActive {
			return ErrInvalidStateTransition
		}
		if c.state.CurrentIndex() == c.state.Len()-1 {
			return c.beginSubmit(ctx, model.TriggerManual)
		}
		return c.move(c.state.CurrentIndex() + 1)
	})
}

// Previous moves the cursor back by one, stopping at the first question.
func (c *Controller) Previous() error {
	return c.do(func(context.Context) error {
		if c.state.Status() != StatusActive {
			return ErrInvalidStateTransition
		}
		if c.state.CurrentIndex() == 0 {
			return nil
		}
		return c.move(c.state.CurrentIndex() - 1)
	})
}

// Finish submits the test. A second call while a submission is in flight is a no-op.
func (c *Controller) Finish() error {
	return c.do(func(ctx context.Context) error {
		return c.beginSubmit(ctx, model.TriggerManual)
	})
}

// Retry resubmits the captured answers after a failed submission.
func (c *Controller) Retry() error {
	return c.do(func(ctx context.Context) error {
		next, err := Retry(c.state)
		if err != nil {
			return err
		}
		c.apply(next)
		c.dispatch(ctx, model.TriggerRetry)
		return nil
	})
}

func (c *Controller) do(fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case c.actions <- action{fn: fn, reply: reply}:
	case <-c.done:
		return ErrClosed
	}
	return <-reply
}

func (c *Controller) run(parent context.Context) {
	defer close(c.stopped)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ticker := c.newTicker(c.tickInterval)
	tickC := ticker.C()
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickC = nil
		}
	}
	defer stopTicker()

	c.log.Debug().Int("remaining", c.state.Remaining()).Msg("Session started")

	for {
		select {
		case <-c.done:
			c.log.Debug().Str("status", string(c.state.Status())).Msg("Session closed")
			return
		case <-ctx.Done():
			c.Close()
			return
		case a := <-c.actions:
			a.reply <- a.fn(ctx)
		case <-tickC:
			c.tick(ctx)
		case out := <-c.results:
			c.settle(out)
		}

		if c.state.Status() != StatusActive {
			stopTicker()
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	before := c.state.Remaining()
	c.state = Tick(c.state)
	if c.state.Remaining() != before && c.hooks.OnTick != nil {
		c.hooks.OnTick(c.state.Remaining())
	}

	if !c.state.Expired() {
		return
	}
	c.log.Info().Msg("Time expired")
	if c.hooks.OnTimeExpired != nil {
		c.hooks.OnTimeExpired()
	}
	if err := c.beginSubmit(ctx, model.TriggerExpiry); err != nil {
		c.log.Error().Err(err).Msg("Expiry submit rejected")
	}
}

func (c *Controller) move(index int) error {
	next, err := GoTo(c.state, index)
	if err != nil {
		return err
	}
	c.apply(next)
	return nil
}

func (c *Controller) beginSubmit(ctx context.Context, trigger model.SubmitTrigger) error {
	wasActive := c.state.Status() == StatusActive
	next, err := BeginSubmit(c.state)
	if err != nil {
		return err
	}
	if !wasActive {
		return nil
	}
	c.apply(next)
	c.dispatch(ctx, trigger)
	return nil
}

// dispatch sends the current payload to the grader off the controller goroutine.
// The outcome is handed back through c.results unless the controller is gone.
func (c *Controller) dispatch(ctx context.Context, trigger model.SubmitTrigger) {
	sub := model.Submission{
		SessionID: c.id,
		TestID:    c.testID,
		StudentID: c.studentID,
		Trigger:   trigger,
		Answers:   Payload(c.state),
	}

	c.log.Info().
		Str("trigger", string(trigger)).
		Int("answered", len(sub.Answers)).
		Msg("Submitting")

	go func() {
		submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()

		result, err := c.grader.Submit(submitCtx, sub)
		if err == nil && result == nil {
			err = errors.New("grader returned no result")
		}

		select {
		case c.results <- outcome{sub: sub, result: result, err: err}:
		case <-c.done:
			c.log.Warn().Err(err).Msg("Discarding submission response after teardown")
		}
	}()
}

func (c *Controller) settle(out outcome) {
	if out.err != nil {
		next, err := Fail(c.state, fmt.Errorf("%w: %w", ErrSubmissionFailure, out.err))
		if err != nil {
			c.log.Error().Err(err).Msg("Unexpected submission response")
			return
		}
		c.apply(next)
		c.log.Warn().Err(out.err).Msg("Submission failed")
		if c.hooks.OnFailed != nil {
			c.hooks.OnFailed(out.sub, c.state.Err())
		}
		return
	}

	next, err := Complete(c.state, *out.result)
	if err != nil {
		c.log.Error().Err(err).Msg("Unexpected submission response")
		return
	}
	c.apply(next)
	c.log.Info().
		Float64("score", out.result.Score).
		Int("correct", out.result.CorrectCount).
		Int("total", out.result.TotalCount).
		Msg("Submitted")
	if c.hooks.OnSubmitted != nil {
		c.hooks.OnSubmitted(out.sub, *out.result)
	}
}

func (c *Controller) apply(next Session) {
	c.state = next
	if c.hooks.OnChange != nil {
		c.hooks.OnChange(next)
	}
}
