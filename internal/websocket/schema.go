package websocket

import (
	"github.com/stemsi/exstem-player/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect   Action = "select"
	ActionGoTo     Action = "goto"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionFinish   Action = "finish"
	ActionRetry    Action = "retry"
	ActionPing     Action = "ping"
)

// RequestEnvelope carries every action. Fields unused by an action are ignored.
type RequestEnvelope struct {
	Action   Action `json:"action" binding:"required"`
	QID      string `json:"q_id,omitempty"`
	ChoiceID string `json:"choice_id,omitempty"`
	Index    *int   `json:"index,omitempty"`
}

// SelectRequest records an answer for any question.
type SelectRequest struct {
	QID      string `json:"q_id" binding:"required,uuid"`
	ChoiceID string `json:"choice_id" binding:"required,max=10"`
}

// GoToRequest jumps to a question by zero-based position.
type GoToRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventTick      Event = "tick"
	EventExpired   Event = "expired"
	EventSubmitted Event = "submitted"
	EventFailed    Event = "failed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse is the full view of the session, sent after every state
// change. SessionID and Title are only set on the first one.
type StateResponse struct {
	Event     Event                `json:"event"`
	SessionID string               `json:"session_id,omitempty"`
	Title     string               `json:"title,omitempty"`
	Status    string               `json:"status"`
	Current   int                  `json:"current_index"`
	Total     int                  `json:"total"`
	Remaining int                  `json:"remaining_seconds"`
	Question  *model.PaperQuestion `json:"question,omitempty"`
	Answers   map[string]string    `json:"answers"`
	Answered  int                  `json:"answered_count"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining_seconds"`
}

type ExpiredResponse struct {
	Event Event `json:"event"`
}

type SubmittedResponse struct {
	Event        Event   `json:"event"`
	Score        float64 `json:"score"`
	CorrectCount int     `json:"correct_count"`
	TotalCount   int     `json:"total_count"`
}

type FailedResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
