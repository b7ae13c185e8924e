package api

import (
	"net/http"

	"alcyxob/coach-schedule/internal/service"

	"github.com/gin-gonic/gin"
)

type ReconcileHandler struct {
	reconcileService service.ReconcileService
}

func NewReconcileHandler(reconcileService service.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{reconcileService: reconcileService}
}

type ReconcileRequest struct {
	DryRun bool `json:"dryRun"`
}

// ReconcilePackages godoc
// @Summary Recompute package balances from lesson records
// @Tags Packages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ReconcileRequest false "Options"
// @Success 200 {object} service.ReconcileReport
// @Router /coach/packages/reconcile [post]
func (h *ReconcileHandler) ReconcilePackages(c *gin.Context) {
	coachID, ok := coachIDFromContext(c)
	if !ok {
		return
	}
	var req ReconcileRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	report, err := h.reconcileService.Reconcile(c.Request.Context(), coachID, req.DryRun)
	if err != nil {
		abortWithServiceError(c, err, "Failed to reconcile packages.")
		return
	}
	c.JSON(http.StatusOK, report)
}
