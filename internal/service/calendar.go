package service

import (
	"sort"
	"time"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/occupancy"
	"alcyxob/coach-schedule/internal/session"
	"alcyxob/coach-schedule/internal/timegrid"
)

// CalendarEntry is a schedule entry as shown on the calendar.
type CalendarEntry struct {
	domain.ScheduleEntry
	HasLessonRecord bool   `json:"hasLessonRecord"`
	LessonRecordID  string `json:"lessonRecordId,omitempty"`
}

// CalendarView is everything needed to draw one page of the calendar.
type CalendarView struct {
	Mode       timegrid.ViewMode    `json:"mode"`
	Offset     int                  `json:"offset"`
	Dates      []timegrid.DateLabel `json:"dates"`
	TimeSlots  []string             `json:"timeSlots"`
	FreeSlots  map[string][]string  `json:"freeSlots"` // Date -> start times nothing occupies
	Entries    []CalendarEntry      `json:"entries"`
	MonthStats timegrid.MonthStats  `json:"monthStats"`
	Loading    bool                 `json:"loading"`
	Error      string               `json:"error,omitempty"`
	Version    uint64               `json:"version"`
}

// BuildCalendarView projects a snapshot onto the dates visible in mode at
// offset. now must already be in the coach's timezone.
func BuildCalendarView(snap session.Snapshot, now time.Time, mode timegrid.ViewMode, offset int, locale string) (CalendarView, error) {
	dates := timegrid.DatesByViewMode(now, offset, mode)
	view := CalendarView{
		Mode:       mode,
		Offset:     offset,
		Dates:      make([]timegrid.DateLabel, 0, len(dates)),
		TimeSlots:  timegrid.TimeSlots(),
		FreeSlots:  make(map[string][]string, len(dates)),
		Entries:    []CalendarEntry{},
		MonthStats: timegrid.CurrentMonthStats(snap.Schedules, now),
		Loading:    snap.Loading,
		Error:      snap.LastError,
		Version:    snap.Version,
	}

	visible := make(map[string]bool, len(dates))
	for _, d := range dates {
		label, err := timegrid.FormatDate(d, now, locale)
		if err != nil {
			return CalendarView{}, err
		}
		view.Dates = append(view.Dates, label)
		visible[d] = true
	}

	startTimes := timegrid.HalfSlots()
	for _, d := range dates {
		free := make([]string, 0, len(startTimes))
		for _, t := range startTimes {
			if !occupancy.HasSchedule(snap.Schedules, d, t) {
				free = append(free, t)
			}
		}
		view.FreeSlots[d] = free
	}

	for i := range snap.Schedules {
		e := &snap.Schedules[i]
		if !visible[e.Date] {
			continue
		}
		ce := CalendarEntry{ScheduleEntry: *e}
		if record, ok := snap.Lessons.Find(e); ok {
			ce.HasLessonRecord = true
			ce.LessonRecordID = record.ID.Hex()
		}
		view.Entries = append(view.Entries, ce)
	}
	sort.Slice(view.Entries, func(i, j int) bool {
		a, b := view.Entries[i], view.Entries[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.StartTime < b.StartTime
	})
	return view, nil
}
