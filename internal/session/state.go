package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-player/internal/model"
)

// Status enumerates session states.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusActive     Status = "ACTIVE"
	StatusSubmitting Status = "SUBMITTING"
	StatusSubmitted  Status = "SUBMITTED"
	StatusFailed     Status = "FAILED"
)

// Session is an immutable snapshot of one test-taking attempt.
// Transition functions return a new Session and never modify their argument.
type Session struct {
	questions []model.PaperQuestion
	positions map[uuid.UUID]int
	current   int
	answers   map[uuid.UUID]string
	remaining int
	status    Status
	result    *model.SubmissionResult
	err       error
}

// Initialize builds an active session over a fixed question list and duration.
func Initialize(questions []model.PaperQuestion, durationSeconds int) (Session, error) {
	if len(questions) == 0 {
		return Session{}, fmt.Errorf("%w: question list is empty", ErrInvalidInput)
	}
	if durationSeconds <= 0 {
		return Session{}, fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidInput, durationSeconds)
	}

	positions := make(map[uuid.UUID]int, len(questions))
	for i, q := range questions {
		if _, dup := positions[q.ID]; dup {
			return Session{}, fmt.Errorf("%w: duplicate question %s", ErrInvalidInput, q.ID)
		}
		if len(q.Choices) == 0 {
			return Session{}, fmt.Errorf("%w: question %s has no choices", ErrInvalidInput, q.ID)
		}
		seen := make(map[string]struct{}, len(q.Choices))
		for _, c := range q.Choices {
			if _, dup := seen[c.ID]; dup {
				return Session{}, fmt.Errorf("%w: duplicate choice %q in question %s", ErrInvalidInput, c.ID, q.ID)
			}
			seen[c.ID] = struct{}{}
		}
		positions[q.ID] = i
	}

	qs := make([]model.PaperQuestion, len(questions))
	copy(qs, questions)

	return Session{
		questions: qs,
		positions: positions,
		answers:   make(map[uuid.UUID]string),
		remaining: durationSeconds,
		status:    StatusActive,
	}, nil
}

// SelectAnswer records choiceID as the answer to questionID, replacing any earlier answer.
func SelectAnswer(s Session, questionID uuid.UUID, choiceID string) (Session, error) {
	if s.status != StatusActive {
		return s, ErrInvalidStateTransition
	}
	pos, ok := s.positions[questionID]
	if !ok {
		return s, fmt.Errorf("%w: question %s", ErrUnknownReference, questionID)
	}
	if !hasChoice(s.questions[pos], choiceID) {
		return s, fmt.Errorf("%w: choice %q in question %s", ErrUnknownReference, choiceID, questionID)
	}
	if prev, ok := s.answers[questionID]; ok && prev == choiceID {
		return s, nil
	}

	next := s
	next.answers = make(map[uuid.UUID]string, len(s.answers)+1)
	for k, v := range s.answers {
		next.answers[k] = v
	}
	next.answers[questionID] = choiceID
	return next, nil
}

// GoTo moves the cursor to index.
func GoTo(s Session, index int) (Session, error) {
	if s.status != StatusActive {
		return s, ErrInvalidStateTransition
	}
	if index < 0 || index >= len(s.questions) {
		return s, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(s.questions))
	}
	next := s
	next.current = index
	return next, nil
}

// Tick decrements the remaining time by one second, floored at zero.
// It is a no-op unless the session is active.
func Tick(s Session) Session {
	if s.status != StatusActive || s.remaining == 0 {
		return s
	}
	next := s
	next.remaining--
	return next
}

// BeginSubmit moves an active session to Submitting. Calling it again while
// already Submitting returns the session unchanged.
func BeginSubmit(s Session) (Session, error) {
	switch s.status {
	case StatusSubmitting:
		return s, nil
	case StatusActive:
		next := s
		next.status = StatusSubmitting
		return next, nil
	default:
		return s, ErrInvalidStateTransition
	}
}

// Complete records a successful grading result.
func Complete(s Session, result model.SubmissionResult) (Session, error) {
	if s.status != StatusSubmitting {
		return s, ErrInvalidStateTransition
	}
	next := s
	next.status = StatusSubmitted
	next.result = &result
	next.err = nil
	return next, nil
}

// Fail records a failed submission. Captured answers are kept for a retry.
func Fail(s Session, cause error) (Session, error) {
	if s.status != StatusSubmitting {
		return s, ErrInvalidStateTransition
	}
	next := s
	next.status = StatusFailed
	next.err = cause
	return next, nil
}

// Retry moves a failed session back to Submitting with the same answers.
func Retry(s Session) (Session, error) {
	if s.status != StatusFailed {
		return s, ErrInvalidStateTransition
	}
	next := s
	next.status = StatusSubmitting
	next.err = nil
	return next, nil
}

// Payload lists the answered questions in question order.
func Payload(s Session) []model.AnswerPair {
	pairs := make([]model.AnswerPair, 0, len(s.answers))
	for _, q := range s.questions {
		if choice, ok := s.answers[q.ID]; ok {
			pairs = append(pairs, model.AnswerPair{QuestionID: q.ID, ChoiceID: choice})
		}
	}
	return pairs
}

func hasChoice(q model.PaperQuestion, choiceID string) bool {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}

// Status reports the session status. The zero Session is NotStarted.
func (s Session) Status() Status {
	if s.status == "" {
		return StatusNotStarted
	}
	return s.status
}

// CurrentIndex is the position of the question under the cursor.
func (s Session) CurrentIndex() int {
	return s.current
}

// Remaining is the number of seconds left on the countdown.
func (s Session) Remaining() int {
	return s.remaining
}

// Len is the number of questions in the session.
func (s Session) Len() int {
	return len(s.questions)
}

// AnsweredCount is the number of questions with a selected choice.
func (s Session) AnsweredCount() int {
	return len(s.answers)
}

// Current returns the question under the cursor.
func (s Session) Current() (model.PaperQuestion, bool) {
	if len(s.questions) == 0 {
		return model.PaperQuestion{}, false
	}
	return s.questions[s.current], true
}

// Questions returns a copy of the question list.
func (s Session) Questions() []model.PaperQuestion {
	qs := make([]model.PaperQuestion, len(s.questions))
	copy(qs, s.questions)
	return qs
}

// Answer returns the selected choice for a question, if any.
func (s Session) Answer(questionID uuid.UUID) (string, bool) {
	c, ok := s.answers[questionID]
	return c, ok
}

// Answers returns a copy of the answer map.
func (s Session) Answers() map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Expired reports whether the countdown has run out on an active session.
func (s Session) Expired() bool {
	return s.status == StatusActive && s.remaining == 0
}

// Result is the grading result once Submitted.
func (s Session) Result() *model.SubmissionResult {
	return s.result
}

// Err is the submission error once Failed.
func (s Session) Err() error {
	return s.err
}
