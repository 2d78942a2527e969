package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/univ-academic-api/api/swagger"
	"github.com/noah-isme/univ-academic-api/internal/academic"
	"github.com/noah-isme/univ-academic-api/internal/handler"
	internalmiddleware "github.com/noah-isme/univ-academic-api/internal/middleware"
	"github.com/noah-isme/univ-academic-api/internal/repository"
	"github.com/noah-isme/univ-academic-api/internal/service"
	"github.com/noah-isme/univ-academic-api/pkg/cache"
	"github.com/noah-isme/univ-academic-api/pkg/config"
	"github.com/noah-isme/univ-academic-api/pkg/database"
	"github.com/noah-isme/univ-academic-api/pkg/jobs"
	"github.com/noah-isme/univ-academic-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/univ-academic-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/univ-academic-api/pkg/middleware/requestid"
)

// @title University Academic Records API
// @version 1.0.0
// @description Enrollment, grading and exam scheduling for the university portal.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, GPA cache disabled", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	examRepo := repository.NewExamRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	notifications := service.NewNotificationService(notificationRepo, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	})
	notifications.Start(ctx)
	defer notifications.Stop()

	policy := academic.NewPolicy(academic.Limits{
		MaxCoursesPerSemester: cfg.Enrollment.MaxCoursesPerSemester,
		MaxCreditsPerSemester: cfg.Enrollment.MaxCreditsPerSemester,
		DropWindow:            cfg.Enrollment.DropWindow,
	})

	enrollmentSvc := service.NewEnrollmentService(db, enrollmentRepo, courseRepo, policy, notifications, metrics, validate, logr)
	gradeSvc := service.NewGradeService(db, gradeRepo, cacheSvc, notifications, validate, logr)
	examSvc := service.NewExamService(db, examRepo, courseRepo, enrollmentRepo, notifications, metrics, validate, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, logr)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiry: cfg.JWT.Expiration})

	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	handler.RegisterRoutes(api, tokens, handler.Handlers{
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Grades:      handler.NewGradeHandler(gradeSvc),
		Exams:       handler.NewExamHandler(examSvc),
		Semesters:   handler.NewSemesterHandler(semesterSvc),
		Metrics:     metricsHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
