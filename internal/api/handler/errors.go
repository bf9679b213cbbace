// Package handler exposes the threatlens core over HTTP with gin.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/analysis"
	"github.com/jmerrifield20/threatlens/internal/auditlog"
	"github.com/jmerrifield20/threatlens/internal/pattern"
	"github.com/jmerrifield20/threatlens/internal/threat"
)

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *threat.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, pattern.ErrInvalidPattern):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrMethodologyNotImplemented):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pattern.ErrPatternNotFound), errors.Is(err, auditlog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pattern.ErrDuplicatePattern):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"error": ...}. Server errors are logged and
// their detail is kept out of the body, except for stage failures whose
// processing steps are returned for diagnosis.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	code := statusFor(err)
	if code < http.StatusInternalServerError {
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	var se *threat.StageError
	if errors.As(err, &se) {
		c.JSON(code, gin.H{
			"error":           "analysis failed",
			"stage":           se.Stage,
			"processingSteps": se.Steps,
		})
		return
	}
	c.JSON(code, gin.H{"error": "internal error"})
}
