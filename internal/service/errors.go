package service

import "errors"

// --- Error Definitions ---
var (
	ErrSlotConflict         = errors.New("time slot already booked")
	ErrInvalidTransition    = errors.New("status change not allowed")
	ErrScheduleNotFound     = errors.New("schedule entry not found")
	ErrClientNotFound       = errors.New("client not found")
	ErrLessonRecordNotFound = errors.New("lesson record not found")
	ErrLessonRecordExists   = errors.New("lesson record already exists for this slot")
	ErrClientNameRequired   = errors.New("client name is required")
	ErrInvalidSlotTime      = errors.New("start time is not a bookable slot")
	ErrInvalidDate          = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidDropPoint     = errors.New("invalid drop position")
)
