package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wgelabs/lms-backend/internal/clients/redis"
	"github.com/wgelabs/lms-backend/internal/db"
	"github.com/wgelabs/lms-backend/internal/handlers"
	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/middleware"
	"github.com/wgelabs/lms-backend/internal/observability"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/server"
	"github.com/wgelabs/lms-backend/internal/services"
	"github.com/wgelabs/lms-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	port := utils.GetEnv("PORT", "8080", log)
	allowedOrigins := utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log)
	seedPath := utils.GetEnv("SEED_COURSES_PATH", "", log)
	videoThreshold := utils.GetEnvAsFloat("VIDEO_COMPLETE_THRESHOLD", 0.90, log)
	quizThreshold := utils.GetEnvAsFloat("QUIZ_PASS_THRESHOLD", 0.80, log)
	idempotencyTTL := utils.GetEnvAsInt("IDEMPOTENCY_TTL_SEC", 60, log)
	rateLimits := services.RateLimits{
		EventsPerMin:  utils.GetEnvAsInt("RATE_EVENTS_PER_MIN", 60, log),
		QuizPerMin:    utils.GetEnvAsInt("RATE_QUIZ_PER_MIN", 20, log),
		DefaultPerMin: utils.GetEnvAsInt("RATE_DEFAULT_PER_MIN", 100, log),
	}
	rewardPoints := services.RewardPoints{
		VideoComplete: utils.GetEnvAsInt("XP_VIDEO_COMPLETE", 10, log),
		QuizPassed:    utils.GetEnvAsInt("XP_QUIZ_PASSED", 20, log),
		StepComplete:  utils.GetEnvAsInt("XP_STEP_COMPLETE", 5, log),
	}

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "lms-backend",
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis
	rdb, err := redis.NewClient(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}

	// Repos
	userRepo := repos.NewUserRepo(thePG, log)
	courseRepo := repos.NewCourseRepo(thePG, log)
	eventRepo := repos.NewEventRepo(thePG, log)
	signalRepo := repos.NewSignalRepo(thePG, log)
	awardRepo := repos.NewAwardRepo(thePG, log)
	videoPositionRepo := repos.NewVideoPositionRepo(thePG, log)

	// Services
	catalogService := services.NewCatalogService(thePG, log, courseRepo)
	if seedPath != "" {
		if err := catalogService.SeedFromYAML(context.Background(), seedPath); err != nil {
			log.Fatal("Course seed failed", "error", err, "path", seedPath)
		}
	}
	authService := services.NewAuthService(thePG, log, userRepo, jwtSecretKey)
	idempotencyService := services.NewIdempotencyService(rdb, log, time.Duration(idempotencyTTL)*time.Second)
	rateLimitService := services.NewRateLimitService(rdb, log, rateLimits)
	projectorService := services.NewProjectorService(thePG, log, signalRepo, videoPositionRepo, catalogService, videoThreshold, quizThreshold)
	progressionService := services.NewProgressionService(thePG, log, catalogService, signalRepo, videoPositionRepo)
	rewardService := services.NewRewardService(thePG, log, awardRepo, rewardPoints)
	ingestService := services.NewIngestService(thePG, log, eventRepo, signalRepo, catalogService, projectorService, progressionService, rewardService)
	resetService := services.NewResetService(thePG, log, catalogService, eventRepo, signalRepo, awardRepo, videoPositionRepo)
	statsService := services.NewStatsService(thePG, log, userRepo, courseRepo, eventRepo)
	leaderboardService := services.NewLeaderboardService(thePG, log, awardRepo)

	// Handlers
	eventHandler := handlers.NewEventHandler(log, ingestService, rateLimitService, idempotencyService)
	signalHandler := handlers.NewSignalHandler(log, progressionService)
	courseHandler := handlers.NewCourseHandler(log, catalogService)
	leaderboardHandler := handlers.NewLeaderboardHandler(log, leaderboardService)
	adminHandler := handlers.NewAdminHandler(log, resetService, statsService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(log, rateLimitService)

	// Router
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	}
	router := server.NewRouter(server.RouterConfig{
		ServiceName:         "lms-backend",
		AllowedOrigins:      origins,
		AuthMiddleware:      authMiddleware,
		RateLimitMiddleware: rateLimitMiddleware,
		EventHandler:        eventHandler,
		SignalHandler:       signalHandler,
		CourseHandler:       courseHandler,
		LeaderboardHandler:  leaderboardHandler,
		AdminHandler:        adminHandler,
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
