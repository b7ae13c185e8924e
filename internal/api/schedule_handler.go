package api

import (
	"net/http"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/occupancy"
	"alcyxob/coach-schedule/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ScheduleHandler struct {
	scheduleService service.ScheduleService
	lessonService   service.LessonService
}

func NewScheduleHandler(scheduleService service.ScheduleService, lessonService service.LessonService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
		lessonService:   lessonService,
	}
}

// --- DTOs ---

// CreateScheduleRequest books a slot. With click set, startTime is the hour
// of the clicked cell and the half is picked from the click position.
type CreateScheduleRequest struct {
	Date       string               `json:"date" binding:"required"`
	StartTime  string               `json:"startTime" binding:"required"`
	Click      *occupancy.DropPoint `json:"click"`
	ClientID   string               `json:"clientId"`
	ClientName string               `json:"clientName"`
	PackageID  string               `json:"packageId"`
}

type MoveScheduleRequest struct {
	Date      string               `json:"date" binding:"required"`
	StartTime string               `json:"startTime" binding:"required"`
	Drop      *occupancy.DropPoint `json:"drop"`
}

type CancelScheduleRequest struct {
	DeductSession bool `json:"deductSession"`
}

type EditClientRequest struct {
	ClientID string `json:"clientId" binding:"required"`
}

// CreateLessonRecordResponse returns the saved record with the entry it
// belongs to, which may have just been completed.
type CreateLessonRecordResponse struct {
	LessonRecord *domain.LessonRecord  `json:"lessonRecord"`
	Schedule     *domain.ScheduleEntry `json:"schedule"`
}

// --- Handler Methods ---

// CreateSchedule godoc
// @Summary Book a slot
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateScheduleRequest true "Booking"
// @Success 201 {object} domain.ScheduleEntry
// @Failure 400 {object} gin.H "Validation error"
// @Failure 409 {object} gin.H "Slot already booked"
// @Router /coach/schedules [post]
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	input := service.CreateBookingInput{
		Date:       req.Date,
		StartTime:  req.StartTime,
		Click:      req.Click,
		ClientName: req.ClientName,
	}
	if req.ClientID != "" {
		id, err := primitive.ObjectIDFromHex(req.ClientID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid clientId format.")
			return
		}
		input.ClientID = id
	}
	if req.PackageID != "" {
		id, err := primitive.ObjectIDFromHex(req.PackageID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid packageId format.")
			return
		}
		input.PackageID = &id
	}

	entry, err := h.scheduleService.CreateBooking(c.Request.Context(), coachID, input)
	if err != nil {
		abortWithServiceError(c, err, "Failed to create booking.")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// MoveSchedule godoc
// @Summary Move a booking by drag and drop
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Param request body MoveScheduleRequest true "Target slot"
// @Success 200 {object} domain.ScheduleEntry
// @Failure 409 {object} gin.H "Target slot already booked"
// @Router /coach/schedules/{id}/move [patch]
func (h *ScheduleHandler) MoveSchedule(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req MoveScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	entry, err := h.scheduleService.MoveBooking(c.Request.Context(), coachID, scheduleID, service.MoveBookingInput{
		TargetDate: req.Date,
		TargetTime: req.StartTime,
		Drop:       req.Drop,
	})
	if err != nil {
		abortWithServiceError(c, err, "Failed to move booking.")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// CompleteSchedule marks a booking as held.
func (h *ScheduleHandler) CompleteSchedule(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	entry, err := h.scheduleService.Complete(c.Request.Context(), coachID, scheduleID)
	if err != nil {
		abortWithServiceError(c, err, "Failed to complete booking.")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// CancelSchedule cancels a booking; an empty body cancels without deduction.
func (h *ScheduleHandler) CancelSchedule(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req CancelScheduleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	entry, err := h.scheduleService.Cancel(c.Request.Context(), coachID, scheduleID, req.DeductSession)
	if err != nil {
		abortWithServiceError(c, err, "Failed to cancel booking.")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.scheduleService.Delete(c.Request.Context(), coachID, scheduleID); err != nil {
		abortWithServiceError(c, err, "Failed to delete booking.")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) EditClient(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req EditClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	clientID, err := primitive.ObjectIDFromHex(req.ClientID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid clientId format.")
		return
	}

	entry, err := h.scheduleService.EditClient(c.Request.Context(), coachID, scheduleID, clientID)
	if err != nil {
		abortWithServiceError(c, err, "Failed to change client.")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// CreateLessonRecord godoc
// @Summary Save a lesson record for a booking
// @Description Completes a scheduled booking (charging its package) and saves the record in one step.
// @Tags Lesson Records
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Param request body service.LessonRecordInput true "Lesson record"
// @Success 201 {object} CreateLessonRecordResponse
// @Failure 409 {object} gin.H "Cancelled booking or record already exists"
// @Router /coach/schedules/{id}/lesson-record [post]
func (h *ScheduleHandler) CreateLessonRecord(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req service.LessonRecordInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	record, entry, err := h.lessonService.CreateForSlot(c.Request.Context(), coachID, scheduleID, req)
	if err != nil {
		abortWithServiceError(c, err, "Failed to save lesson record.")
		return
	}
	c.JSON(http.StatusCreated, CreateLessonRecordResponse{LessonRecord: record, Schedule: entry})
}

// GetLessonRecordForSchedule returns the record linked to a booking, or 404
// when none has been written yet.
func (h *ScheduleHandler) GetLessonRecordForSchedule(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	record, err := h.lessonService.RecordForSlot(c.Request.Context(), coachID, scheduleID)
	if err != nil {
		abortWithServiceError(c, err, "Failed to load lesson record.")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *ScheduleHandler) GetLessonRecord(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	recordID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	record, err := h.lessonService.GetRecord(c.Request.Context(), coachID, recordID)
	if err != nil {
		abortWithServiceError(c, err, "Failed to load lesson record.")
		return
	}
	c.JSON(http.StatusOK, record)
}
