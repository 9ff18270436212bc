package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/aisettings"
	"github.com/auswanderer-plattform/backend/internal/analysis"
	apierrors "github.com/auswanderer-plattform/backend/internal/errors"
	"github.com/auswanderer-plattform/backend/internal/middleware"
	"github.com/auswanderer-plattform/backend/internal/models"
)

func (s *APIServer) handleAnalyze(c *gin.Context) {
	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	for id, weight := range req.CriteriaRatings {
		if weight < 1 || weight > 5 {
			respondError(c, apierrors.NewValidationError(gin.H{"criterion": id, "reason": "weight must be between 1 and 5"}))
			return
		}
	}

	result, err := s.deps.Analyzer.AnalyzeEmigration(c.Request.Context(), req)
	if err != nil {
		respondError(c, analysisError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// analysisError maps provider failures onto API errors
func analysisError(err error) *apierrors.APIError {
	var exhausted *ai.ExhaustedError
	var vendor *ai.VendorError
	switch {
	case errors.As(err, &exhausted):
		return apierrors.ErrProvidersExhaustedError.WithDetails(exhausted.Failures)
	case ai.IsTimeout(err):
		return apierrors.ErrUpstreamTimeoutError
	case errors.As(err, &vendor):
		return apierrors.NewUpstreamError(string(vendor.Provider), vendor.StatusCode)
	case errors.Is(err, ai.ErrNoProviders):
		return apierrors.ErrUpstreamUnavailableError
	case errors.Is(err, analysis.ErrNoJSON), errors.Is(err, analysis.ErrInvalidResponse):
		return apierrors.NewUpstreamError("", 0).WithMessage("AI provider returned an unusable answer")
	default:
		return apierrors.ErrInternalServerError
	}
}

func (s *APIServer) handleListSettings(c *gin.Context) {
	overview, err := s.deps.Settings.List(c.Request.Context())
	if err != nil {
		respondInternal(c, err, "aisettings", "list")
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *APIServer) handleUpdateSettings(c *gin.Context) {
	var req aisettings.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	actor := aisettings.Actor{
		ID:   middleware.GetUserIDFromContext(c),
		Role: middleware.GetRoleFromContext(c),
	}
	if err := s.deps.Settings.Update(c.Request.Context(), req, actor); err != nil {
		switch {
		case errors.Is(err, aisettings.ErrForbidden):
			respondError(c, apierrors.ErrSuperAdminRequiredError)
		case errors.Is(err, aisettings.ErrIDRequired):
			respondError(c, apierrors.NewValidationError("ID erforderlich"))
		case errors.Is(err, aisettings.ErrInvalidProvider):
			respondError(c, apierrors.ErrInvalidProviderError)
		case errors.Is(err, aisettings.ErrInvalidPriority):
			respondError(c, apierrors.NewValidationError(err.Error()))
		case errors.Is(err, aisettings.ErrConfigNotFound):
			respondError(c, apierrors.ErrProviderNotFoundError)
		default:
			respondInternal(c, err, "aisettings", "update")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type testProviderRequest struct {
	Provider models.Provider `json:"provider" binding:"required"`
	Model    string          `json:"model"`
}

func (s *APIServer) handleTestProvider(c *gin.Context) {
	var req testProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.deps.Settings.Test(c.Request.Context(), req.Provider, req.Model)
	if err != nil {
		if errors.Is(err, aisettings.ErrInvalidProvider) {
			respondError(c, apierrors.ErrInvalidProviderError)
			return
		}
		respondInternal(c, err, "aisettings", "test")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *APIServer) handleListModels(c *gin.Context) {
	provider := models.Provider(c.Query("provider"))
	if provider != "" && !provider.Valid() {
		respondError(c, apierrors.ErrInvalidProviderError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": s.deps.Models.AvailableModels(c.Request.Context(), provider)})
}
