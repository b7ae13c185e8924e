package api

import (
	"net/http"

	"alcyxob/coach-schedule/internal/domain"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Schedule  *ScheduleHandler
	Calendar  *CalendarHandler
	Reconcile *ReconcileHandler
}

func SetupRoutes(router *gin.Engine, jwtSecret string, h Handlers) {
	ping := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	}
	router.GET("/ping", ping)

	apiV1 := router.Group("/api/v1")
	apiV1.GET("/ping", ping)

	// All coach routes need a valid token with the coach or admin role.
	coach := apiV1.Group("/coach")
	coach.Use(AuthMiddleware(jwtSecret), RoleMiddleware(domain.RoleCoach, domain.RoleAdmin))
	{
		calendar := coach.Group("/calendar")
		{
			calendar.GET("", h.Calendar.GetCalendar)
			calendar.GET("/stream", h.Calendar.StreamCalendar)
			calendar.POST("/refresh", h.Calendar.RefreshCalendar)
		}

		schedules := coach.Group("/schedules")
		{
			schedules.POST("", h.Schedule.CreateSchedule)
			schedules.PATCH("/:id/move", h.Schedule.MoveSchedule)
			schedules.POST("/:id/complete", h.Schedule.CompleteSchedule)
			schedules.POST("/:id/cancel", h.Schedule.CancelSchedule)
			schedules.DELETE("/:id", h.Schedule.DeleteSchedule)
			schedules.PATCH("/:id/client", h.Schedule.EditClient)
			schedules.POST("/:id/lesson-record", h.Schedule.CreateLessonRecord)
			schedules.GET("/:id/lesson-record", h.Schedule.GetLessonRecordForSchedule)
		}

		coach.GET("/lesson-records/:id", h.Schedule.GetLessonRecord)
		coach.POST("/packages/reconcile", h.Reconcile.ReconcilePackages)
	}
}
