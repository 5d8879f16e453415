// Package api provides HTTP routing and server configuration for the
// certificate manager. It wires together handlers, middleware, and services
// to create the application's API endpoints.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/tince250/IB-certificate-manager/internal/api/handlers"
	"github.com/tince250/IB-certificate-manager/internal/api/middleware"
	"github.com/tince250/IB-certificate-manager/internal/config"
	"github.com/tince250/IB-certificate-manager/internal/database"
	"github.com/tince250/IB-certificate-manager/internal/otp"
	"github.com/tince250/IB-certificate-manager/internal/service"
	"github.com/tince250/IB-certificate-manager/internal/sms"
	"go.uber.org/zap"
)

// NewRouter creates and configures the HTTP router. The OTP store and SMS
// sender are injected so tests can substitute fakes.
func NewRouter(cfg *config.Config, db *database.Database, store otp.Store, sender sms.Sender, logger *zap.Logger) *gin.Engine {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg))

	// Initialize services
	userService := service.NewUserService(db, cfg, logger)
	certService := service.NewCertificateService(db, cfg, logger)
	requestService := service.NewRequestService(db, certService, userService, logger)
	verificationService := service.NewVerificationService(userService, store, sender, cfg.OTP.ValidityWindow, logger)
	passwordService := service.NewPasswordService(db, userService, verificationService, cfg.Security.PasswordHistoryLimit, logger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, logger)
	verificationHandler := handlers.NewVerificationHandler(verificationService, passwordService, userService, logger)
	requestHandler := handlers.NewRequestHandler(requestService, userService, logger)
	certHandler := handlers.NewCertificateHandler(certService, userService, logger)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.POST("/users", authHandler.Register)
		public.POST("/auth/login", authHandler.Login)

		// Account activation by SMS code
		public.POST("/users/activation/send", verificationHandler.SendCode)
		public.POST("/users/activation/resend", verificationHandler.ResendCode)
		public.POST("/users/activation", verificationHandler.Activate)

		// Code-gated password reset
		public.POST("/users/password/reset/send", verificationHandler.SendResetCode)
		public.POST("/users/password/reset", verificationHandler.ResetPassword)
	}

	// Protected routes (require authentication)
	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.PUT("/users/password", verificationHandler.ChangePassword)

		// Certificate requests
		protected.GET("/requests", requestHandler.List)
		protected.POST("/requests", requestHandler.Create)
		protected.PUT("/requests/:id/accept", requestHandler.Accept)
		protected.PUT("/requests/:id/deny", requestHandler.Deny)

		// Certificates
		protected.GET("/certificates", certHandler.List)
		protected.GET("/certificates/:serial", certHandler.GetBySerial)
		protected.POST("/certificates/root", middleware.RequireRole("admin"), certHandler.GenerateRoot)
	}

	return router
}
