package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/handler"
	"github.com/stemsi/exstem-player/internal/metrics"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Student *handler.StudentHandler
	Parent  *handler.ParentHandler
	Teacher *handler.TeacherHandler
	Player  *handler.PlayerHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set, otherwise allow all for dev.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	// ─── 1. Student Group ──────────────────────────────────────────────
	studentAPI := api.Group("/student")
	studentAPI.Use(middleware.RequireRole(authService, service.RoleStudent))
	{
		studentAPI.GET("/tests/:test_id/paper",
			middleware.Brotli(5),
			middleware.CacheControl("private, max-age=300"),
			handlers.Student.GetPaper,
		)
		studentAPI.GET("/results", handlers.Student.ListResults)
	}

	// ─── 2. Parent Group ───────────────────────────────────────────────
	parentAPI := api.Group("/parent")
	parentAPI.Use(middleware.RequireRole(authService, service.RoleParent))
	{
		parentAPI.GET("/children/:student_id/results", handlers.Parent.ListChildResults)
	}

	// ─── 3. Teacher Group ──────────────────────────────────────────────
	teacherAPI := api.Group("/teacher")
	teacherAPI.Use(middleware.RequireRole(authService, service.RoleTeacher, service.RoleAdmin))
	{
		teacherAPI.POST("/tests/:test_id/cache", handlers.Teacher.RefreshCache)
		teacherAPI.GET("/tests/:test_id/monitor", handlers.Teacher.MonitorSSE)
	}

	// ─── 4. Admin Group ────────────────────────────────────────────────
	adminAPI := api.Group("/admin")
	adminAPI.Use(middleware.RequireRole(authService, service.RoleAdmin))
	{
		adminAPI.GET("/system", handlers.System.Snapshot)
	}

	// ─── 5. WebSocket Group ────────────────────────────────────────────
	// Browsers cannot set headers on the upgrade, so the token rides in ?token=.
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireRole(authService, service.RoleStudent))
	{
		ws.GET("/student/tests/:test_id/play", handlers.Player.Play)
	}

	return router
}
