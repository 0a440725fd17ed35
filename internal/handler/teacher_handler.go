package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second
)

// TeacherHandler serves cache management and the live monitor.
type TeacherHandler struct {
	papers  *service.PaperService
	player  *service.PlayerService
	monitor *service.MonitorService
	log     zerolog.Logger
}

// NewTeacherHandler creates a new TeacherHandler.
func NewTeacherHandler(
	papers *service.PaperService,
	player *service.PlayerService,
	monitor *service.MonitorService,
	log zerolog.Logger,
) *TeacherHandler {
	return &TeacherHandler{
		papers:  papers,
		player:  player,
		monitor: monitor,
		log:     log.With().Str("component", "teacher_handler").Logger(),
	}
}

// liveStudent is one row of the monitor snapshot.
type liveStudent struct {
	SessionID uuid.UUID `json:"session_id"`
	StudentID int       `json:"student_id"`
	Status    string    `json:"status"`
	Answered  int       `json:"answered_count"`
	Remaining int       `json:"remaining_seconds"`
}

type monitorSnapshot struct {
	Type      string             `json:"type"`
	TestID    uuid.UUID          `json:"test_id"`
	Title     string             `json:"title"`
	Live      []liveStudent      `json:"live"`
	Completed []model.TestResult `json:"completed"`
}

// RefreshCache godoc
// POST /api/v1/teacher/tests/:test_id/cache
// Re-caches the paper and answer key after questions changed.
func (h *TeacherHandler) RefreshCache(c *gin.Context) {
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

	if err := h.papers.RefreshCache(c.Request.Context(), testID, authorScope(claims)); err != nil {
		status, code := serviceError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("test_id", testID.String()).Msg("Cache refresh failed")
		}
		response.Fail(c, status, code)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test_id": testID, "refreshed": true})
}

// MonitorSSE godoc
// GET /api/v1/teacher/tests/:test_id/monitor
// Streams a snapshot followed by live session events.
func (h *TeacherHandler) MonitorSSE(c *gin.Context) {
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

	reqCtx := c.Request.Context()
	test, err := h.papers.Authorize(reqCtx, testID, authorScope(claims))
	if err != nil {
		status, code := serviceError(err)
		response.Fail(c, status, code)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	pubsub := h.monitor.Subscribe(reqCtx, testID)
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Str("test_id", testID.String()).Msg("Monitor subscribe failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable)
		return
	}
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, test)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("test_id", testID.String()).Int("teacher_id", claims.UserID).Msg("Teacher attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("test_id", testID.String()).Msg("Teacher detached from live monitor")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c, []byte(msg.Payload))
		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func (h *TeacherHandler) sendSnapshot(c *gin.Context, test *model.Test) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snap := monitorSnapshot{
		Type:      "snapshot",
		TestID:    test.ID,
		Title:     test.Title,
		Live:      []liveStudent{},
		Completed: []model.TestResult{},
	}

	for _, ls := range h.player.Live(test.ID) {
		snap.Live = append(snap.Live, liveStudent{
			SessionID: ls.SessionID,
			StudentID: ls.StudentID,
			Status:    string(ls.Session.Status()),
			Answered:  ls.Session.AnsweredCount(),
			Remaining: ls.Session.Remaining(),
		})
	}

	completed, err := h.monitor.Completed(ctx, test.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("test_id", test.ID.String()).Msg("Snapshot without completed results")
	} else if completed != nil {
		snap.Completed = completed
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	writeSSE(c, data)
}

func writeSSE(c *gin.Context, data []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

// authorScope returns the author id to check ownership against. Admins see every test.
func authorScope(claims *service.Claims) int {
	if claims.Role == service.RoleAdmin {
		return 0
	}
	return claims.UserID
}
