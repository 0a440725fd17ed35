package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

// ParentHandler lets parents follow their children's results.
type ParentHandler struct {
	results *service.ResultService
	log     zerolog.Logger
}

// NewParentHandler creates a new ParentHandler.
func NewParentHandler(results *service.ResultService, log zerolog.Logger) *ParentHandler {
	return &ParentHandler{
		results: results,
		log:     log.With().Str("component", "parent_handler").Logger(),
	}
}

// ListChildResults godoc
// GET /api/v1/parent/children/:student_id/results
func (h *ParentHandler) ListChildResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil || studentID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.results.ListForChild(c.Request.Context(), claims.UserID, studentID)
	if err != nil {
		status, code := serviceError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Int("student_id", studentID).Msg("List child results failed")
		}
		response.Fail(c, status, code)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}
