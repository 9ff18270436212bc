package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/auswanderer-plattform/backend/internal/catalog"
	apierrors "github.com/auswanderer-plattform/backend/internal/errors"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/middleware"
	"github.com/auswanderer-plattform/backend/internal/models"
)

func (s *APIServer) handleCatalogOverview(c *gin.Context) {
	ctx := c.Request.Context()

	pending, err := s.deps.Catalog.PendingUpdates(ctx)
	if err != nil {
		respondInternal(c, err, "catalog", "pending_updates")
		return
	}
	checks, err := s.deps.Catalog.RecentChecks(ctx, catalog.RecentChecksLimit)
	if err != nil {
		respondInternal(c, err, "catalog", "recent_checks")
		return
	}

	resp := gin.H{
		"pendingUpdates": pending,
		"recentChecks":   checks,
		"lastCheck":      nil,
	}
	if len(checks) > 0 {
		resp["lastCheck"] = checks[0]
	}
	if s.deps.Scheduler != nil {
		resp["scheduler"] = s.deps.Scheduler.Status()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleManualCheck(c *gin.Context) {
	adminID := middleware.GetUserIDFromContext(c)
	result, err := s.deps.Catalog.RunCatalogCheck(c.Request.Context(), &adminID, models.TriggerManual)
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "catalog", "manual_check")
		respondError(c, apierrors.ErrCatalogCheckFailedError.WithDetails(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"checkId":      result.CheckID,
		"updatesFound": result.UpdatesFound,
		"summary":      result.Summary,
	})
}

// handleCronCheck runs a scheduled check. The agent notifies the admin itself.
func (s *APIServer) handleCronCheck(c *gin.Context) {
	result, err := s.deps.Catalog.RunCatalogCheck(c.Request.Context(), nil, models.TriggerCron)
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "catalog", "cron_check")
		respondError(c, apierrors.ErrCatalogCheckFailedError.WithDetails(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"checkId":      result.CheckID,
		"updatesFound": result.UpdatesFound,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

type updateActionRequest struct {
	UpdateID string `json:"updateId"`
	Reason   string `json:"reason"`
}

func bindUpdateAction(c *gin.Context) (uuid.UUID, *updateActionRequest, bool) {
	var req updateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return uuid.Nil, nil, false
	}
	if req.UpdateID == "" {
		respondError(c, apierrors.NewValidationError("updateId erforderlich"))
		return uuid.Nil, nil, false
	}
	id, err := uuid.Parse(req.UpdateID)
	if err != nil {
		respondError(c, apierrors.ErrUpdateNotFoundError)
		return uuid.Nil, nil, false
	}
	return id, &req, true
}

func (s *APIServer) handleApplyUpdate(c *gin.Context) {
	id, _, ok := bindUpdateAction(c)
	if !ok {
		return
	}

	if err := s.deps.Catalog.ApplyModelUpdate(c.Request.Context(), id, middleware.GetUserIDFromContext(c)); err != nil {
		respondUpdateError(c, err, "apply_update")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *APIServer) handleDismissUpdate(c *gin.Context) {
	id, req, ok := bindUpdateAction(c)
	if !ok {
		return
	}

	if err := s.deps.Catalog.DismissModelUpdate(c.Request.Context(), id, middleware.GetUserIDFromContext(c), req.Reason); err != nil {
		respondUpdateError(c, err, "dismiss_update")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func respondUpdateError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, catalog.ErrUpdateNotFound):
		respondError(c, apierrors.ErrUpdateNotFoundError)
	case errors.Is(err, catalog.ErrUpdateNotPending):
		respondError(c, apierrors.ErrUpdateNotPendingError)
	case errors.Is(err, catalog.ErrModelNotFound):
		respondError(c, apierrors.ErrModelNotFoundError)
	case errors.Is(err, catalog.ErrModelExists):
		respondError(c, apierrors.ErrModelExistsError)
	default:
		respondInternal(c, err, "catalog", operation)
	}
}
