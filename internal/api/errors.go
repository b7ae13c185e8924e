package api

import (
	"errors"
	"net/http"

	"alcyxob/coach-schedule/internal/service"
	"alcyxob/coach-schedule/internal/timegrid"

	"github.com/gin-gonic/gin"
)

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrSlotConflict),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrLessonRecordExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrScheduleNotFound),
		errors.Is(err, service.ErrClientNotFound),
		errors.Is(err, service.ErrLessonRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrClientNameRequired),
		errors.Is(err, service.ErrInvalidSlotTime),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidDropPoint),
		errors.Is(err, timegrid.ErrInvalidViewMode):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// abortWithServiceError responds with the mapped status. Store failures are
// reported generically; the service has already logged the cause.
func abortWithServiceError(c *gin.Context, err error, fallback string) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		abortWithError(c, code, fallback)
		return
	}
	abortWithError(c, code, err.Error())
}
