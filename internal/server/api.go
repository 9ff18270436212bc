package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/auswanderer-plattform/backend/internal/aisettings"
	"github.com/auswanderer-plattform/backend/internal/analysis"
	"github.com/auswanderer-plattform/backend/internal/auth"
	"github.com/auswanderer-plattform/backend/internal/catalog"
	"github.com/auswanderer-plattform/backend/internal/config"
	apierrors "github.com/auswanderer-plattform/backend/internal/errors"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/middleware"
	"github.com/auswanderer-plattform/backend/internal/models"
	"github.com/auswanderer-plattform/backend/internal/monitoring"
)

// AuthService logs admins in and validates their tokens
type AuthService interface {
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error)
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Analyzer runs emigration analyses
type Analyzer interface {
	AnalyzeEmigration(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

// CatalogService runs catalog checks and reviews their proposals
type CatalogService interface {
	RunCatalogCheck(ctx context.Context, triggeredBy *string, trigger models.TriggerType) (*catalog.CheckResult, error)
	ApplyModelUpdate(ctx context.Context, id uuid.UUID, appliedBy string) error
	DismissModelUpdate(ctx context.Context, id uuid.UUID, dismissedBy, reason string) error
	PendingUpdates(ctx context.Context) ([]models.ModelUpdate, error)
	RecentChecks(ctx context.Context, limit int) ([]models.CatalogCheck, error)
}

// SettingsService manages the provider configs
type SettingsService interface {
	List(ctx context.Context) (*aisettings.Overview, error)
	Update(ctx context.Context, req aisettings.UpdateRequest, actor aisettings.Actor) error
	Test(ctx context.Context, provider models.Provider, model string) (*aisettings.TestResult, error)
}

// ModelLister lists the available catalog models
type ModelLister interface {
	AvailableModels(ctx context.Context, provider models.Provider) []models.ModelCatalogEntry
}

// SchedulerStatus reports the in-process catalog scheduler
type SchedulerStatus interface {
	Status() *catalog.SchedulerStatus
}

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the API. Limiter, Scheduler, DB and Redis may be nil.
type Deps struct {
	Auth      AuthService
	Analyzer  Analyzer
	Catalog   CatalogService
	Settings  SettingsService
	Models    ModelLister
	Limiter   middleware.Limiter
	Scheduler SchedulerStatus
	DB        Pinger
	Redis     Pinger
}

// APIServer represents the main API server
type APIServer struct {
	config *config.Config
	router *gin.Engine
	deps   Deps
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, deps Deps) *APIServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config: cfg,
		router: router,
		deps:   deps,
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/login", s.handleLogin)

		analyze := []gin.HandlerFunc{}
		if s.deps.Limiter != nil {
			analyze = append(analyze, middleware.RateLimit(s.deps.Limiter, "analysis"))
		}
		v1.POST("/analyze", append(analyze, s.handleAnalyze)...)

		v1.GET("/cron/check-ai-models",
			middleware.CronAuth(s.config.Cron.Secret, s.config.IsProduction()),
			s.handleCronCheck)

		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(s.deps.Auth))
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/ai-settings", s.handleListSettings)
			admin.PUT("/ai-settings", middleware.RequireSuperAdmin(), s.handleUpdateSettings)
			admin.POST("/ai-settings/test", s.handleTestProvider)
			admin.GET("/ai-models", s.handleListModels)

			admin.GET("/ai-catalog", s.handleCatalogOverview)
			admin.POST("/ai-catalog/check", s.handleManualCheck)
			admin.POST("/ai-catalog/apply", middleware.RequireSuperAdmin(), s.handleApplyUpdate)
			admin.POST("/ai-catalog/dismiss", s.handleDismissUpdate)
		}
	}
}

// healthCheck reports liveness plus the state of Postgres and Redis
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(ctx); err != nil {
			checks["database"] = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
	}
	if s.deps.Redis != nil {
		// Redis only backs rate limiting and invalidation
		if err := s.deps.Redis.Ping(ctx); err != nil {
			checks["redis"] = "degraded"
		} else {
			checks["redis"] = "healthy"
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": "auswanderer-ai",
		"checks":  checks,
	})
}

func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.deps.Auth.Login(c.Request.Context(), &req)
	if err != nil {
		if err == auth.ErrInvalidCredentials {
			logging.LogSecurityEvent("login_failed", "", c.ClientIP(), req.Email)
			respondError(c, apierrors.ErrInvalidCredentialsError)
		} else {
			respondInternal(c, err, "auth", "login")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	middleware.RespondWithError(c, err)
}

// respondInternal logs err and answers with a generic 500
func respondInternal(c *gin.Context, err error, component, operation string) {
	logging.LogError(err, middleware.GetRequestIDFromContext(c), component, operation)
	respondError(c, apierrors.ErrInternalServerError)
}
