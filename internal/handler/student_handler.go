package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

// StudentHandler serves the student's paper and results.
type StudentHandler struct {
	player  *service.PlayerService
	papers  *service.PaperService
	results *service.ResultService
	log     zerolog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(
	player *service.PlayerService,
	papers *service.PaperService,
	results *service.ResultService,
	log zerolog.Logger,
) *StudentHandler {
	return &StudentHandler{
		player:  player,
		papers:  papers,
		results: results,
		log:     log.With().Str("component", "student_handler").Logger(),
	}
}

// GetPaper godoc
// GET /api/v1/student/tests/:test_id/paper
// Returns the questions without correct answers, for preloading images.
func (h *StudentHandler) GetPaper(c *gin.Context) {
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

	ctx := c.Request.Context()
	if err := h.player.Eligible(ctx, testID, claims.UserID); err != nil {
		h.fail(c, err)
		return
	}

	paper, err := h.papers.GetPaper(ctx, testID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// ListResults godoc
// GET /api/v1/student/results
func (h *StudentHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	results, err := h.results.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}

func (h *StudentHandler) fail(c *gin.Context, err error) {
	status, code := serviceError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
