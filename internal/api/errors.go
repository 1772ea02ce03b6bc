package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/backtest"
	"github.com/ajitpratap0/rebalance/internal/metrics"
	"github.com/ajitpratap0/rebalance/internal/validation"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

// statusFor maps an error to an HTTP status code
func statusFor(err error) int {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, btengine.ErrSeriesNotFound), errors.Is(err, backtest.ErrRunNotFound):
		return http.StatusNotFound
	case btengine.IsInputError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Validation errors carry
// per-field details; internal errors are logged and not echoed.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	body := gin.H{"error": err.Error()}
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		body = gin.H{"error": "validation failed", "details": verrs}
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		metrics.RecordError(metrics.NormalizeError(err), "api")
		body = gin.H{"error": "internal server error"}
	}

	c.JSON(status, body)
}
