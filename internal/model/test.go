package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// Test represents an authored test.
type Test struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	DurationSeconds int        `json:"duration_seconds"`
	Status          TestStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TestPaper is the Redis-cached payload sent to students (no correct answers).
type TestPaper struct {
	TestID          uuid.UUID       `json:"test_id"`
	Title           string          `json:"title"`
	DurationSeconds int             `json:"duration_seconds"`
	Questions       []PaperQuestion `json:"questions"`
}
