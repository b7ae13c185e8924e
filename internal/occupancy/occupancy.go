// Package occupancy answers whether a calendar slot is taken and maps a click
// or drop position inside an hour cell to its half-slot start time.
package occupancy

import (
	"errors"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/timegrid"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidCell is returned when the hour cell has no usable height.
var ErrInvalidCell = errors.New("cell height must be positive")

// HasSchedule reports whether any entry occupies (date, startTime).
func HasSchedule(schedules []domain.ScheduleEntry, date, startTime string) bool {
	_, ok := Find(schedules, date, startTime)
	return ok
}

// Find returns the entry occupying (date, startTime), if any.
func Find(schedules []domain.ScheduleEntry, date, startTime string) (*domain.ScheduleEntry, bool) {
	for i := range schedules {
		if schedules[i].Date == date && schedules[i].StartTime == startTime {
			return &schedules[i], true
		}
	}
	return nil, false
}

// HasConflict reports whether an entry other than excludeID already occupies
// (date, startTime). New bookings pass primitive.NilObjectID; moves pass the id
// of the entry being moved so it never collides with itself.
func HasConflict(schedules []domain.ScheduleEntry, date, startTime string, excludeID primitive.ObjectID) bool {
	for _, s := range schedules {
		if s.Date != date || s.StartTime != startTime {
			continue
		}
		if excludeID != primitive.NilObjectID && s.ID == excludeID {
			continue
		}
		return true
	}
	return false
}

// DropPoint is a vertical pointer position relative to an hour cell.
type DropPoint struct {
	CellTop    float64 `json:"cellTop"`
	CellHeight float64 `json:"cellHeight"`
	Y          float64 `json:"y"`
}

// ResolveHalfSlot maps a click or drop inside the hour cell starting at hour to
// either its ":00" or its ":30" half. The upper half is [0, height/2) and the
// lower half is [height/2, height]; a point exactly on the midpoint resolves to
// ":30". Points outside the cell are clamped to its edges.
func ResolveHalfSlot(hour string, p DropPoint) (string, error) {
	if p.CellHeight <= 0 {
		return "", ErrInvalidCell
	}
	m, err := timegrid.TimeToMinutes(hour)
	if err != nil {
		return "", err
	}
	m -= m % 60

	offset := p.Y - p.CellTop
	if offset < 0 {
		offset = 0
	}
	if offset > p.CellHeight {
		offset = p.CellHeight
	}
	if offset >= p.CellHeight/2 {
		m += 30
	}
	return timegrid.MinutesToTime(m), nil
}
