package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lara-bellatin/awd-final/internal/handler"
	"github.com/lara-bellatin/awd-final/internal/middleware"
	"github.com/lara-bellatin/awd-final/internal/models"
	"github.com/lara-bellatin/awd-final/internal/repository"
	"github.com/lara-bellatin/awd-final/internal/scheduler"
	"github.com/lara-bellatin/awd-final/internal/service"
	"github.com/lara-bellatin/awd-final/pkg/cache"
	"github.com/lara-bellatin/awd-final/pkg/config"
	"github.com/lara-bellatin/awd-final/pkg/database"
	"github.com/lara-bellatin/awd-final/pkg/jobs"
	"github.com/lara-bellatin/awd-final/pkg/logger"
	corsmiddleware "github.com/lara-bellatin/awd-final/pkg/middleware/cors"
	reqidmiddleware "github.com/lara-bellatin/awd-final/pkg/middleware/requestid"
	"github.com/lara-bellatin/awd-final/pkg/storage"
)

// @title E-Learning Platform API
// @version 1.0.0
// @description Course, enrollment and progress lifecycle API
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Repositories.
	txRunner := repository.NewTxRunner(db)
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	notificationSvc := service.NewNotificationService(notificationRepo, cacheRepo, metricsSvc, logr)
	lifecycleSvc := service.NewLifecycleService(
		txRunner,
		enrollmentRepo,
		courseRepo,
		progressRepo,
		submissionRepo,
		assignmentRepo,
		userRepo,
		notificationSvc,
		metricsSvc,
		logr,
	)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, lifecycleSvc, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, enrollmentRepo, cacheRepo, notificationSvc, nil, logr, cfg.Catalog.CacheTTL)
	enrollmentSvc := service.NewEnrollmentService(txRunner, enrollmentRepo, courseRepo, userRepo, lifecycleSvc, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, nil, logr)
	submissionSvc := service.NewSubmissionService(txRunner, submissionRepo, assignmentRepo, courseRepo, enrollmentRepo, lifecycleSvc, nil, logr)
	progressSvc := service.NewProgressService(txRunner, progressRepo, courseRepo, enrollmentRepo, lifecycleSvc, nil, logr)
	reviewSvc := service.NewReviewService(reviewRepo, enrollmentRepo, nil, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Report-card worker.
	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}

		reportSvc = service.NewReportService(reportRepo, lifecycleSvc, store, logr)
		reportQueue = jobs.NewQueue("reports", reportSvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.BindQueue(reportQueue)
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
	}

	// Deadline sweep.
	if cfg.Sweep.Enabled {
		sweep := scheduler.NewSweepScheduler(lifecycleSvc, logr)
		if err := sweep.Start(cfg.Sweep.CronSpec); err != nil {
			logr.Sugar().Fatalw("failed to start deadline sweep", "error", err)
		}
		defer sweep.Stop()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, reviewSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, lifecycleSvc, progressSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc, submissionSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	adminHandler := handler.NewAdminHandler(lifecycleSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		users := authed.Group("/users")
		{
			users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id/role", middleware.RequireRoles(models.RoleAdmin), userHandler.ChangeRole)
			users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)
			users.POST("/blocks", userHandler.Block)
		}

		courses := authed.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.GET("/:id", courseHandler.Get)
			courses.POST("", middleware.RequireRoles(models.RoleTeacher), courseHandler.Create)
			courses.PUT("/:id", middleware.RequireRoles(models.RoleTeacher), courseHandler.Update)
			courses.POST("/:id/publish", middleware.RequireRoles(models.RoleTeacher), courseHandler.Publish)
			courses.GET("/:id/assignments", assignmentHandler.ListByCourse)
			courses.GET("/:id/reviews", courseHandler.ListReviews)
			courses.POST("/:id/enrollments", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Enroll)
			courses.DELETE("/:id/enrollments", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Cancel)
			courses.GET("/:id/progress", enrollmentHandler.Progress)
			courses.GET("/:id/status-updates", enrollmentHandler.ListStatusUpdates)
		}

		authed.POST("/modules", middleware.RequireRoles(models.RoleTeacher), courseHandler.AddModule)
		authed.POST("/lessons", middleware.RequireRoles(models.RoleTeacher), courseHandler.AddLesson)
		authed.PUT("/lessons/:id/progress", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.MarkLesson)
		authed.POST("/status-updates", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.PostStatusUpdate)
		authed.POST("/reviews", middleware.RequireRoles(models.RoleStudent), courseHandler.CreateReview)
		authed.GET("/enrollments", enrollmentHandler.List)

		assignments := authed.Group("/assignments")
		{
			assignments.POST("", middleware.RequireRoles(models.RoleTeacher), assignmentHandler.Create)
			assignments.GET("/:id", assignmentHandler.Get)
			assignments.PUT("/:id", middleware.RequireRoles(models.RoleTeacher), assignmentHandler.Update)
			assignments.POST("/:id/submissions", middleware.RequireRoles(models.RoleStudent), assignmentHandler.Submit)
			assignments.GET("/:id/submissions/me", middleware.RequireRoles(models.RoleStudent), assignmentHandler.GetSubmission)
		}

		authed.PUT("/submissions/:id/grade", middleware.RequireRoles(models.RoleTeacher), assignmentHandler.Grade)

		notifications := authed.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
			notifications.PUT("/read-all", notificationHandler.MarkAllRead)
		}

		if reportSvc != nil {
			reportHandler := handler.NewReportHandler(reportSvc)
			reports := authed.Group("/reports", middleware.RequireRoles(models.RoleStudent))
			{
				reports.POST("", reportHandler.Request)
				reports.GET("/:id", reportHandler.Status)
				reports.GET("/:id/download", reportHandler.Download)
			}
		}

		authed.POST("/admin/sweep", middleware.RequireRoles(models.RoleAdmin), adminHandler.RunDeadlineSweep)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
