package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stemsi/exstem-player/internal/session"
	"github.com/stemsi/exstem-player/internal/validator"
	ws "github.com/stemsi/exstem-player/internal/websocket"
	"golang.org/x/time/rate"
)

// Close codes sent to the player before the socket is dropped.
const (
	CloseSessionEnded = 4000
	CloseRejected     = 4003
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// PlayerLimits throttles actions on a single player socket.
type PlayerLimits struct {
	ActionsPerSecond float64
	Burst            int
}

// PlayerHandler runs one test-taking session per websocket connection.
type PlayerHandler struct {
	player   *service.PlayerService
	limits   PlayerLimits
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(player *service.PlayerService, limits PlayerLimits, allowedOrigins []string, log zerolog.Logger) *PlayerHandler {
	if limits.ActionsPerSecond <= 0 {
		limits.ActionsPerSecond = 10
	}
	if limits.Burst <= 0 {
		limits.Burst = 20
	}
	return &PlayerHandler{
		player:   player,
		limits:   limits,
		log:      log.With().Str("component", "player_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Play godoc
// WS /ws/v1/student/tests/:test_id/play?token=
// The session lives exactly as long as the socket.
func (h *PlayerHandler) Play(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("test_id", testID.String()).
		Logger()

	submitted := make(chan struct{})
	ctrl, paper, err := h.player.Start(c.Request.Context(), testID, claims.UserID, h.hooks(conn, wsLog, submitted))
	if err != nil {
		_, code := serviceError(err)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Failed to start session")
		} else {
			wsLog.Info().Err(err).Msg("Session rejected")
		}
		_ = conn.WriteError(string(code), response.GetMessage(code), nil)
		_ = conn.CloseWith(CloseRejected, string(code))
		return
	}
	defer ctrl.Close()

	wsLog = wsLog.With().Str("session_id", ctrl.ID().String()).Logger()
	wsLog.Info().Msg("Student connected")

	if snap, err := ctrl.Snapshot(); err == nil {
		initial := stateResponse(snap)
		initial.SessionID = ctrl.ID().String()
		initial.Title = paper.Title
		_ = conn.WriteTyped(initial)
	}

	// Drop the socket once the result is handed off, or when the controller
	// goes away underneath us (same student elsewhere, server shutdown).
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-submitted:
			_ = conn.CloseWith(websocket.CloseNormalClosure, "submitted")
			_ = conn.Close()
		case <-ctrl.Done():
			_ = conn.CloseWith(CloseSessionEnded, "session closed")
			_ = conn.Close()
		case <-readDone:
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(h.limits.ActionsPerSecond), h.limits.Burst)

	for {
		var msg ws.RequestEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, CloseSessionEnded) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if !limiter.Allow() {
			_ = conn.WriteError(string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded), nil)
			continue
		}

		h.dispatch(conn, ctrl, wsLog, &msg)
	}
}

func (h *PlayerHandler) dispatch(conn *ws.Conn, ctrl *session.Controller, wsLog zerolog.Logger, msg *ws.RequestEnvelope) {
	var err error

	switch msg.Action {
	case ws.ActionSelect:
		req := ws.SelectRequest{QID: msg.QID, ChoiceID: msg.ChoiceID}
		if fields := validator.Struct(req); fields != nil {
			_ = conn.WriteError(string(response.ErrValidation), response.GetMessage(response.ErrValidation), fields)
			return
		}
		err = ctrl.Select(uuid.MustParse(req.QID), req.ChoiceID)
	case ws.ActionGoTo:
		req := ws.GoToRequest{Index: msg.Index}
		if fields := validator.Struct(req); fields != nil {
			_ = conn.WriteError(string(response.ErrValidation), response.GetMessage(response.ErrValidation), fields)
			return
		}
		err = ctrl.GoTo(*req.Index)
	case ws.ActionNext:
		err = ctrl.Next()
	case ws.ActionPrevious:
		err = ctrl.Previous()
	case ws.ActionFinish:
		err = ctrl.Finish()
	case ws.ActionRetry:
		err = ctrl.Retry()
	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrUnknownAction), response.GetMessage(response.ErrUnknownAction), nil)
		return
	}

	// Rejected actions are no-ops for the student; only a dead session is reported.
	if errors.Is(err, session.ErrClosed) {
		_ = conn.WriteError(string(response.ErrSessionClosed), response.GetMessage(response.ErrSessionClosed), nil)
		return
	}
	if err != nil {
		wsLog.Debug().Err(err).Str("action", string(msg.Action)).Msg("Action ignored")
	}
}

// hooks turns controller notifications into websocket events. submitted is
// closed once the result has been written.
func (h *PlayerHandler) hooks(conn *ws.Conn, wsLog zerolog.Logger, submitted chan<- struct{}) session.Hooks {
	write := func(v interface{}) {
		if err := conn.WriteTyped(v); err != nil {
			wsLog.Debug().Err(err).Msg("Event write failed")
		}
	}

	return session.Hooks{
		OnChange: func(s session.Session) {
			write(stateResponse(s))
		},
		OnTick: func(remaining int) {
			write(ws.TickResponse{Event: ws.EventTick, Remaining: remaining})
		},
		OnTimeExpired: func() {
			write(ws.ExpiredResponse{Event: ws.EventExpired})
		},
		OnSubmitted: func(_ model.Submission, result model.SubmissionResult) {
			write(ws.SubmittedResponse{
				Event:        ws.EventSubmitted,
				Score:        result.Score,
				CorrectCount: result.CorrectCount,
				TotalCount:   result.TotalCount,
			})
			close(submitted)
		},
		OnFailed: func(_ model.Submission, err error) {
			wsLog.Warn().Err(err).Msg("Submission failed, waiting for retry")
			write(ws.FailedResponse{
				Event: ws.EventFailed,
				Code:  string(response.ErrSubmissionFailed),
				Error: response.GetMessage(response.ErrSubmissionFailed),
			})
		},
	}
}

func stateResponse(s session.Session) ws.StateResponse {
	answers := make(map[string]string, s.AnsweredCount())
	for id, choice := range s.Answers() {
		answers[id.String()] = choice
	}

	resp := ws.StateResponse{
		Event:     ws.EventState,
		Status:    string(s.Status()),
		Current:   s.CurrentIndex(),
		Total:     s.Len(),
		Remaining: s.Remaining(),
		Answers:   answers,
		Answered:  s.AnsweredCount(),
	}
	if q, ok := s.Current(); ok {
		resp.Question = &q
	}
	return resp
}
