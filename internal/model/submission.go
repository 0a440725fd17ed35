package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitTrigger records what started a submission.
type SubmitTrigger string

const (
	TriggerManual SubmitTrigger = "MANUAL"
	TriggerExpiry SubmitTrigger = "EXPIRY"
	TriggerRetry  SubmitTrigger = "RETRY"
)

// AnswerPair is one answered question in a submission payload.
type AnswerPair struct {
	QuestionID uuid.UUID `json:"question_id"`
	ChoiceID   string    `json:"choice_id"`
}

// Submission is the payload handed to the grading service.
type Submission struct {
	SessionID uuid.UUID     `json:"session_id"`
	TestID    uuid.UUID     `json:"test_id"`
	StudentID int           `json:"student_id"`
	Trigger   SubmitTrigger `json:"trigger"`
	Answers   []AnswerPair  `json:"answers"`
}

// SubmissionResult is what the grading service returns.
type SubmissionResult struct {
	Score        float64 `json:"score"`
	CorrectCount int     `json:"correct_count"`
	TotalCount   int     `json:"total_count"`
}

// TestResult is a persisted, graded submission.
type TestResult struct {
	SessionID    uuid.UUID `json:"session_id"`
	TestID       uuid.UUID `json:"test_id"`
	TestTitle    string    `json:"test_title"`
	StudentID    int       `json:"student_id"`
	Score        float64   `json:"score"`
	CorrectCount int       `json:"correct_count"`
	TotalCount   int       `json:"total_count"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// AttemptOutcome is the result of a single submission attempt.
type AttemptOutcome string

const (
	AttemptSubmitted AttemptOutcome = "SUBMITTED"
	AttemptFailed    AttemptOutcome = "FAILED"
)

// SubmissionAttempt is one entry in the submission attempt log.
type SubmissionAttempt struct {
	SessionID uuid.UUID      `json:"session_id"`
	TestID    uuid.UUID      `json:"test_id"`
	StudentID int            `json:"student_id"`
	Trigger   SubmitTrigger  `json:"trigger"`
	Outcome   AttemptOutcome `json:"outcome"`
	Answered  int            `json:"answered"`
	Error     *string        `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
