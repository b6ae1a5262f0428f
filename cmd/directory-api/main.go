package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusdir/directory-api/api/swagger"
	"github.com/campusdir/directory-api/internal/handler"
	"github.com/campusdir/directory-api/internal/middleware"
	"github.com/campusdir/directory-api/internal/models"
	"github.com/campusdir/directory-api/internal/repository"
	"github.com/campusdir/directory-api/internal/service"
	"github.com/campusdir/directory-api/pkg/cache"
	"github.com/campusdir/directory-api/pkg/config"
	"github.com/campusdir/directory-api/pkg/database"
	"github.com/campusdir/directory-api/pkg/logger"
	corsmiddleware "github.com/campusdir/directory-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusdir/directory-api/pkg/middleware/requestid"
)

// @title Campus Directory API
// @version 1.0.0
// @description Role-based administration backend for the campus directory
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	identityRepo := repository.NewIdentityRepository(db)
	pinRepo := repository.NewPinRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sessionStore := repository.NewSessionStore(redisClient, cfg.Session.IdleTimeout)
	stagingStore := repository.NewStagingStore(redisClient, cfg.Staging.TTL)

	auditRecorder := service.NewAuditRecorder(auditRepo, logr)
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(identityRepo, pinRepo, sessionStore, auditRecorder, metricsSvc, validate, logr, cfg.Session.IdleTimeout)
	pinSvc := service.NewPinService(pinRepo, auditRecorder, metricsSvc, validate, logr, cfg.Pin.MaxAttempts, cfg.Pin.LockDuration)
	resetSvc := service.NewResetService(identityRepo, tokenRepo, auditRecorder, validate, logr, cfg.Reset.TokenTTL)
	accountSvc := service.NewAccountService(identityRepo, pinRepo, auditRecorder, validate, logr)
	gatewaySvc := service.NewGatewayService(stagingStore, accountSvc, pinSvc, auditRecorder, validate, logr, cfg.Staging.Secret)
	exportSvc := service.NewExportService(auditRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc, accountSvc, resetSvc)
	userHandler := handler.NewUserHandler(accountSvc, gatewaySvc)
	approvalHandler := handler.NewApprovalHandler(accountSvc)
	pinHandler := handler.NewPinHandler(pinSvc)
	auditHandler := handler.NewAuditHandler(exportSvc, cfg.Export.Enabled)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.GET("/reset-password/:token", authHandler.VerifyResetToken)
	auth.POST("/reset-password", authHandler.ResetPassword)

	sessionGuard := middleware.Session(sessionStore)
	auth.POST("/logout", sessionGuard, authHandler.Logout)
	auth.GET("/me", sessionGuard, authHandler.Me)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	users := api.Group("/users", sessionGuard)
	users.GET("", adminOnly, userHandler.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
	users.POST("/stage", adminOnly, userHandler.StageCreate)
	users.PUT("/:id/stage", adminOnly, userHandler.StageUpdate)
	users.DELETE("/:id/stage", adminOnly, userHandler.StageDelete)
	users.POST("/confirm", adminOnly, userHandler.Confirm)

	approvals := api.Group("/approvals", sessionGuard, adminOnly)
	approvals.GET("", approvalHandler.List)
	approvals.POST("/:id", approvalHandler.Decide)

	api.POST("/pin", sessionGuard, adminOnly, pinHandler.Change)
	api.GET("/audit/export", sessionGuard, adminOnly, auditHandler.Export)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
