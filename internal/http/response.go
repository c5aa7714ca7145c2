package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sujalbistaa/whispr/internal/apperr"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Message: message})
}

// statusFor maps an error kind to the HTTP status it is reported with.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotAuthenticated, apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindBanned, apperr.KindInvalidKey:
		return http.StatusForbidden
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindContainsPII:
		return http.StatusUnprocessableEntity
	case apperr.KindDuplicateReport, apperr.KindAlreadyBanned, apperr.KindAddressAlreadyActivated:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindModerationService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a failure envelope. Only the user-facing
// message leaves the process; the cause is logged.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", kind.String()).Str("path", c.FullPath()).Msg("request failed")
	}

	var e *apperr.Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	fail(c, status, apperr.Message(err))
}
