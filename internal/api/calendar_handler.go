package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"alcyxob/coach-schedule/internal/service"
	"alcyxob/coach-schedule/internal/session"
	"alcyxob/coach-schedule/internal/timegrid"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/language"
)

const defaultHeartbeat = 25 * time.Second

// CalendarSessions is the part of session.Manager the calendar needs.
type CalendarSessions interface {
	Snapshot(ctx context.Context, coachID primitive.ObjectID) (session.Snapshot, error)
	Watch(coachID primitive.ObjectID) (<-chan session.Snapshot, func())
	Refresh(ctx context.Context, coachID primitive.ObjectID) bool
}

type CalendarHandler struct {
	sessions      CalendarSessions
	location      *time.Location
	defaultLocale string
	heartbeat     time.Duration
	now           func() time.Time
}

func NewCalendarHandler(sessions CalendarSessions, location *time.Location, defaultLocale string) *CalendarHandler {
	return &CalendarHandler{
		sessions:      sessions,
		location:      location,
		defaultLocale: defaultLocale,
		heartbeat:     defaultHeartbeat,
		now:           time.Now,
	}
}

type calendarQuery struct {
	mode   timegrid.ViewMode
	offset int
	locale string
}

// parseCalendarQuery reads ?mode=&offset=&locale=. Without locale the
// Accept-Language header is used, then the configured default.
func (h *CalendarHandler) parseCalendarQuery(c *gin.Context) (calendarQuery, bool) {
	mode, err := timegrid.ParseViewMode(c.Query("mode"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return calendarQuery{}, false
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "offset must be an integer")
			return calendarQuery{}, false
		}
	}
	locale := c.Query("locale")
	if locale == "" {
		if tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language")); err == nil && len(tags) > 0 {
			locale = tags[0].String()
		}
	}
	if locale == "" {
		locale = h.defaultLocale
	}
	return calendarQuery{mode: mode, offset: offset, locale: locale}, true
}

func (h *CalendarHandler) view(snap session.Snapshot, q calendarQuery) (service.CalendarView, error) {
	return service.BuildCalendarView(snap, h.now().In(h.location), q.mode, q.offset, q.locale)
}

// GetCalendar godoc
// @Summary Calendar page for the current coach
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Param mode query string false "day, threeDay, week (default) or month"
// @Param offset query int false "Periods away from the current one"
// @Param locale query string false "Display locale, e.g. en or zh-TW"
// @Success 200 {object} service.CalendarView
// @Router /coach/calendar [get]
func (h *CalendarHandler) GetCalendar(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	q, ok := h.parseCalendarQuery(c)
	if !ok {
		return
	}

	snap, err := h.sessions.Snapshot(c.Request.Context(), coachID)
	if err != nil {
		_ = c.Error(err)
		abortWithError(c, http.StatusServiceUnavailable, "Calendar data is not available.")
		return
	}
	view, err := h.view(snap, q)
	if err != nil {
		abortWithServiceError(c, err, "Failed to build calendar.")
		return
	}
	c.JSON(http.StatusOK, view)
}

// StreamCalendar sends a "calendar" server-sent event with the current page
// and another one after every change to the coach's data.
func (h *CalendarHandler) StreamCalendar(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	q, ok := h.parseCalendarQuery(c)
	if !ok {
		return
	}

	updates, stop := h.sessions.Watch(coachID)
	defer stop()

	ctx := c.Request.Context()
	snap, err := h.sessions.Snapshot(ctx, coachID)
	if err != nil {
		_ = c.Error(err)
		abortWithError(c, http.StatusServiceUnavailable, "Calendar data is not available.")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	lastVersion := snap.Version
	if !h.sendView(c, snap, q) {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.SSEvent("ping", h.now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case snap, open := <-updates:
			if !open {
				return
			}
			if snap.Version <= lastVersion {
				continue
			}
			lastVersion = snap.Version
			if !h.sendView(c, snap, q) {
				return
			}
		}
	}
}

func (h *CalendarHandler) sendView(c *gin.Context, snap session.Snapshot, q calendarQuery) bool {
	view, err := h.view(snap, q)
	if err != nil {
		_ = c.Error(err)
		return false
	}
	c.SSEvent("calendar", view)
	c.Writer.Flush()
	return true
}

// RefreshCalendar re-reads the coach's live session, e.g. when the app comes
// back to the foreground.
func (h *CalendarHandler) RefreshCalendar(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	refreshed := h.sessions.Refresh(c.Request.Context(), coachID)
	c.JSON(http.StatusOK, gin.H{"refreshed": refreshed})
}
