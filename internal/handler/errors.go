package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

// serviceError maps domain errors to an HTTP status and error code.
func serviceError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrTestNotFound):
		return http.StatusNotFound, response.ErrTestNotFound
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.Is(err, service.ErrNotTestAuthor):
		return http.StatusForbidden, response.ErrNotTestAuthor
	case errors.Is(err, service.ErrAccessDenied):
		return http.StatusForbidden, response.ErrAccessDenied
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrTestAlreadySubmitted
	case errors.Is(err, service.ErrNotParentOf):
		return http.StatusForbidden, response.ErrNotParentOf
	case errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable, response.ErrUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
