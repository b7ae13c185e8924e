// Package timegrid computes the calendar's bookable time slots, visible date
// windows and session end times. Everything here is pure; callers pass "now"
// explicitly so results are reproducible.
package timegrid

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"alcyxob/coach-schedule/internal/domain"
)

// DateLayout is the ISO calendar date format used for every stored date.
const DateLayout = "2006-01-02"

const (
	firstHour       = 5  // First hour cell on the grid
	lastHour        = 22 // Last hour cell; its :30 half ends at 23:30
	halfSlotMinutes = 30
	minutesPerDay   = 24 * 60
)

// Validation errors.
var (
	ErrInvalidTime     = errors.New("time must be in HH:MM format")
	ErrInvalidDate     = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidViewMode = errors.New("view mode must be one of day, threeDay, week, month")
)

// ViewMode selects how many days the calendar shows.
type ViewMode string

const (
	ViewDay      ViewMode = "day"
	ViewThreeDay ViewMode = "threeDay"
	ViewWeek     ViewMode = "week"
	ViewMonth    ViewMode = "month"
)

// ParseViewMode validates a view mode name. Empty input defaults to week.
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case "":
		return ViewWeek, nil
	case ViewDay, ViewThreeDay, ViewWeek, ViewMonth:
		return ViewMode(s), nil
	}
	return "", ErrInvalidViewMode
}

// TimeSlots returns the hour cells of the bookable day, "05:00" through "22:00".
// Each cell is split into a ":00" and a ":30" half-slot.
func TimeSlots() []string {
	slots := make([]string, 0, lastHour-firstHour+1)
	for h := firstHour; h <= lastHour; h++ {
		slots = append(slots, MinutesToTime(h*60))
	}
	return slots
}

// HalfSlots returns every bookable start time in order.
func HalfSlots() []string {
	slots := make([]string, 0, 2*(lastHour-firstHour+1))
	for m := firstHour * 60; m <= lastHour*60+halfSlotMinutes; m += halfSlotMinutes {
		slots = append(slots, MinutesToTime(m))
	}
	return slots
}

// TimeToMinutes converts "HH:MM" to minutes since midnight.
func TimeToMinutes(t string) (int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(t))
	if err != nil {
		return 0, ErrInvalidTime
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// MinutesToTime converts minutes since midnight to "HH:MM", wrapping at 24h.
func MinutesToTime(m int) string {
	m = ((m % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// EndTime returns start plus one session length.
func EndTime(start string) (string, error) {
	m, err := TimeToMinutes(start)
	if err != nil {
		return "", err
	}
	return MinutesToTime(m + int(domain.SessionLength/time.Minute)), nil
}

// IsBookable reports whether t is a half-slot aligned start time inside the grid.
func IsBookable(t string) bool {
	m, err := TimeToMinutes(t)
	if err != nil {
		return false
	}
	return m%halfSlotMinutes == 0 && m >= firstHour*60 && m <= lastHour*60+halfSlotMinutes
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// TruncateToDay returns t with time set to midnight.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// weekStart returns the Monday of the ISO week containing t.
func weekStart(t time.Time) time.Time {
	t = TruncateToDay(t)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday is the last day of the ISO week
	}
	return t.AddDate(0, 0, -(weekday - 1))
}

// DatesByViewMode returns the ordered dates visible for mode, shifted by
// offset periods from the period containing now.
//
//   - day: the single day now+offset
//   - threeDay: three days starting at now+3*offset
//   - week: Monday through Sunday of the week now+7*offset days
//   - month: every day of the month offset months away
func DatesByViewMode(now time.Time, offset int, mode ViewMode) []string {
	today := TruncateToDay(now)

	var start time.Time
	var days int
	switch mode {
	case ViewDay:
		start, days = today.AddDate(0, 0, offset), 1
	case ViewThreeDay:
		start, days = today.AddDate(0, 0, 3*offset), 3
	case ViewMonth:
		start = time.Date(today.Year(), today.Month()+time.Month(offset), 1, 0, 0, 0, 0, today.Location())
		days = start.AddDate(0, 1, -1).Day()
	default:
		start, days = weekStart(today.AddDate(0, 0, 7*offset)), 7
	}

	dates := make([]string, days)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i).Format(DateLayout)
	}
	return dates
}

// MonthStats summarises the sessions that counted against packages this month.
type MonthStats struct {
	Completed              int `json:"completed"`
	CancelledWithDeduction int `json:"cancelledWithDeduction"`
	Total                  int `json:"total"`
}

// CurrentMonthStats counts entries in now's calendar month whose status
// consumed a session.
func CurrentMonthStats(schedules []domain.ScheduleEntry, now time.Time) MonthStats {
	prefix := now.Format("2006-01") + "-"
	var stats MonthStats
	for _, s := range schedules {
		if !strings.HasPrefix(s.Date, prefix) {
			continue
		}
		switch s.Status {
		case domain.ScheduleStatusCompleted:
			stats.Completed++
		case domain.ScheduleStatusCancelledWithDeduction:
			stats.CancelledWithDeduction++
		}
	}
	stats.Total = stats.Completed + stats.CancelledWithDeduction
	return stats
}
