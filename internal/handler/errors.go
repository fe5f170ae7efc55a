package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/response"
	"github.com/stemsi/cefr-exam-engine/internal/service"
)

// classify maps a service error to an HTTP status and error code.
// Specific domain errors are matched before their taxonomy roots.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrLockedFromStep1):
		return http.StatusForbidden, response.ErrLockedFromStep1
	case errors.Is(err, service.ErrNotEligible):
		return http.StatusForbidden, response.ErrNotEligible
	case errors.Is(err, service.ErrSessionTimeElapsed):
		return http.StatusForbidden, response.ErrSessionExpired
	case errors.Is(err, service.ErrSessionNotActive):
		return http.StatusForbidden, response.ErrSessionNotActive
	case errors.Is(err, service.ErrQuestionCountMismatch):
		return http.StatusConflict, response.ErrQuestionMismatch
	case errors.Is(err, service.ErrQuestionNotInSession):
		return http.StatusBadRequest, response.ErrQuestionNotInExam
	case errors.Is(err, service.ErrOptionOutOfRange):
		return http.StatusBadRequest, response.ErrOptionOutOfRange
	case errors.Is(err, service.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge, response.ErrFileTooLarge

	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, response.ErrUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, response.ErrConflict
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the error envelope for err. Unclassified errors are logged.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("request failed")
		response.Fail(c, status, code)
		return
	}
	if errors.Is(err, service.ErrValidation) {
		response.FailWithFields(c, status, code, map[string]string{"detail": err.Error()})
		return
	}
	response.Fail(c, status, code)
}
