package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/handler"
	"github.com/stemsi/cefr-exam-engine/internal/middleware"
	"github.com/stemsi/cefr-exam-engine/internal/model"
	"github.com/stemsi/cefr-exam-engine/internal/response"
	"github.com/stemsi/cefr-exam-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Video   *handler.VideoHandler
	WS      *handler.WSHandler
	Setting *handler.SettingHandler
	Health  *handler.HealthHandler
}

// Dependencies are the non-handler collaborators the middleware chain needs.
type Dependencies struct {
	Auth        *service.AuthService
	Settings    service.ConfigProvider
	RateLimiter *middleware.RateLimiter
	Log         zerolog.Logger
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(deps Dependencies, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization", "X-Request-ID",
		middleware.HeaderConfigKeyHash, middleware.HeaderRequestHash,
	}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)

	fallbackMode := model.ProctoringMode(cfg.ProctoringMode)

	// ─── 1. Exam Group (JWT, per-user rate limit) ──────────────────────
	exam := router.Group("/api/v1/exam")
	exam.Use(
		middleware.RequireJWT(deps.Auth),
		middleware.NoStore(),
		deps.RateLimiter.Middleware("exam"),
	)
	{
		exam.POST("/start",
			middleware.ProctoringGuard(deps.Settings, fallbackMode, deps.Log),
			handlers.Exam.StartSession,
		)
		exam.POST("/answer", handlers.Exam.SubmitAnswer)
		exam.POST("/violation", handlers.Exam.RecordViolation)
		exam.POST("/submit", handlers.Exam.SubmitSession)
		exam.GET("/status/:sessionId", handlers.Exam.GetStatus)
		exam.GET("/result/latest", handlers.Exam.GetLatestResult)

		// Chunks arrive every few seconds during a session and get their own bucket.
		exam.POST("/video/chunk", deps.RateLimiter.Middleware("video"), handlers.Video.UploadChunk)
	}

	// ─── 2. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(deps.Auth))
	{
		ws.GET("/sessions", handlers.WS.SessionStream)
	}

	// ─── 3. Admin Group (JWT + admin role) ─────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(
		middleware.RequireJWT(deps.Auth),
		middleware.RequireRole(model.RoleAdmin),
		middleware.NoStore(),
	)
	{
		admin.GET("/settings", handlers.Setting.GetSettings)
		admin.PUT("/settings", handlers.Setting.UpdateSettings)
	}

	return router
}
