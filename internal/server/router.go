package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wgelabs/lms-backend/internal/handlers"
	"github.com/wgelabs/lms-backend/internal/middleware"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/services"
)

type RouterConfig struct {
	ServiceName         string
	AllowedOrigins      []string
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
	EventHandler        *handlers.EventHandler
	SignalHandler       *handlers.SignalHandler
	CourseHandler       *handlers.CourseHandler
	LeaderboardHandler  *handlers.LeaderboardHandler
	AdminHandler        *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Idempotency-Key"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", "X-Idempotent-Replay"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// Ingestion routes run their own rate classes in the handler (events vs
	// quiz submissions), so only the catch-all class is applied elsewhere.
	api.POST("/events", cfg.EventHandler.IngestEvent)
	api.POST("/events/batch", cfg.EventHandler.IngestBatch)

	reads := api.Group("")
	reads.Use(cfg.RateLimitMiddleware.Limit(services.RouteClassDefault))
	reads.GET("/signals/:courseId", cfg.SignalHandler.GetCourseSignals)
	reads.GET("/courses/:courseId", cfg.CourseHandler.GetCourse)
	reads.GET("/leaderboard", cfg.LeaderboardHandler.GetLeaderboard)

	admin := api.Group("/admin")
	admin.Use(cfg.RateLimitMiddleware.Limit(services.RouteClassDefault))
	admin.Use(cfg.AuthMiddleware.RequireRole(requestdata.RoleAdmin))
	admin.POST("/reset", cfg.AdminHandler.ResetProgress)
	admin.GET("/stats", cfg.AdminHandler.GetStats)
	admin.GET("/events", cfg.AdminHandler.GetActorClassEvents)

	return router
}
