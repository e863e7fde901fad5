package main

import (
	"context"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"membership-service/internal/handler"
	"membership-service/internal/middleware"
	"membership-service/internal/service"
	"membership-service/internal/store"
	"membership-service/pkg/config"
	"membership-service/pkg/database"
	"membership-service/pkg/jwtutil"
	"membership-service/pkg/logger"
	"membership-service/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting membership service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Wire the domain services around the persistent store
	st := store.NewPostgresStore(database.GetDB())
	members := service.NewMembershipService(st, log)
	invites := service.NewInvitationService(st, members, cfg.Invite.TTL, log)
	quota := service.NewQuotaService(st, cfg.Quota.DefaultPlan, log)
	tenants := service.NewTenantService(st, members, invites, quota, log)
	h := handler.New(tenants, members, invites, quota)

	if err := quota.EnsureCatalog(context.Background()); err != nil {
		log.Fatal("Failed to seed plan catalog", zap.Error(err))
	}

	// Background maintenance: expire lapsed invitations and roll over the
	// monthly documents counter
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Invite.SweepSchedule, func() {
		swept, err := invites.SweepExpired(context.Background(), 0)
		if err != nil {
			log.Error("Invitation sweep failed", zap.Error(err))
			return
		}
		if swept > 0 {
			log.Info("Expired invitations swept", zap.Int64("count", swept))
		}
	}); err != nil {
		log.Fatal("Invalid invitation sweep schedule", zap.Error(err))
	}
	if _, err := scheduler.AddFunc(cfg.Quota.ResetSchedule, func() {
		reset, err := quota.SweepDueResets(context.Background())
		if err != nil {
			log.Error("Quota period reset failed", zap.Error(err))
			return
		}
		if reset > 0 {
			log.Info("Quota period counters reset", zap.Int64("count", reset))
		}
	}); err != nil {
		log.Fatal("Invalid quota reset schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)
	e.GET("/plans", h.ListPlans)

	// Invitee-facing routes, addressed by token so no account is needed
	e.GET("/invitations/:token", h.GetInvitationByToken)
	e.POST("/invitations/:token/reject", h.RejectInvitation)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// Identity lifecycle
	api.POST("/identity/confirm", h.ConfirmIdentity)
	api.GET("/tenant-allowance", h.TenantAllowance)

	// Tenant selection - after login but before accessing tenant-specific resources
	tenantAuth := api.Group("/tenant-auth")
	tenantAuth.POST("/switch", h.SwitchTenant)

	// Tenant management
	tenantRoutes := api.Group("/tenants")
	tenantRoutes.POST("", h.CreateTenant)
	tenantRoutes.GET("", h.ListUserTenants)
	tenantRoutes.GET("/:id", h.GetTenant)
	tenantRoutes.PATCH("/:id", h.UpdateTenant)

	// Membership roster
	tenantRoutes.GET("/:id/members", h.ListMembers)
	tenantRoutes.POST("/:id/members", h.AddMember)
	tenantRoutes.POST("/:id/member-count/refresh", h.RefreshMemberCount)

	memberships := api.Group("/memberships")
	memberships.PATCH("/:id/role", h.ChangeRole)
	memberships.DELETE("/:id", h.RemoveMember)

	// Invitation workflow
	tenantRoutes.GET("/:id/invitations", h.ListInvitations)
	tenantRoutes.POST("/:id/invitations", h.CreateInvitation)
	tenantRoutes.POST("/:id/invitations/sweep", h.SweepInvitations)

	invitations := api.Group("/invitations")
	invitations.POST("/accept", h.AcceptInvitation)
	invitations.DELETE("/:id", h.CancelInvitation)
	invitations.POST("/:id/resend", h.ResendInvitation)

	// Quota ledger
	tenantRoutes.GET("/:id/quota", h.GetQuota)
	tenantRoutes.GET("/:id/quota/:resource", h.CheckQuota)
	tenantRoutes.POST("/:id/quota/increment", h.IncrementQuota)
	tenantRoutes.POST("/:id/quota/decrement", h.DecrementQuota)
	tenantRoutes.POST("/:id/quota/provision", h.ProvisionQuota)
	tenantRoutes.POST("/:id/quota/plan", h.ChangePlan)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
