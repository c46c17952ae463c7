package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/propsnap/models"
)

// respondError maps err to an HTTP status and writes the JSON error body.
// outcomes, when present, are reported per target.
func respondError(c *gin.Context, err error, outcomes []models.ScrapeOutcome) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	body := models.ErrorResponse{
		Error: scrapeErr.Message,
		Code:  scrapeErr.Code,
	}
	if len(outcomes) > 0 {
		body.Targets = models.StatusesOf(outcomes)
	}
	c.JSON(mapErrorToStatus(scrapeErr), body)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNoImage:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowserUnavailable:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
