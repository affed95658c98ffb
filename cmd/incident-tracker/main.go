package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/incidentops/incident-tracker/internal/config"
	httpserver "github.com/incidentops/incident-tracker/internal/http"
	"github.com/incidentops/incident-tracker/internal/notification"
	"github.com/incidentops/incident-tracker/pkg/audit"
	"github.com/incidentops/incident-tracker/pkg/auth"
	"github.com/incidentops/incident-tracker/pkg/repository"
	"github.com/incidentops/incident-tracker/pkg/service"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Run migrations
	if err := repository.Migrate(db, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	accountsRepo := repository.NewAccountsRepository(db)
	backupCodesRepo := repository.NewBackupCodesRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	incidentsRepo := repository.NewIncidentsRepository(db)
	categoriesRepo := repository.NewCategoriesRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txRunner := repository.NewTxRunner(db)

	// Initialize services
	passwordPolicy := &auth.PasswordPolicy{
		MinLength:        cfg.PasswordPolicy.MinLength,
		RequireUppercase: cfg.PasswordPolicy.RequireUppercase,
		RequireLowercase: cfg.PasswordPolicy.RequireLowercase,
		RequireDigit:     cfg.PasswordPolicy.RequireDigit,
		RequireSpecial:   cfg.PasswordPolicy.RequireSpecial,
	}
	tokenService := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	totpEngine := auth.NewTOTPEngine(cfg.JWTIssuer, cfg.TOTPPeriod, cfg.TOTPSkew)

	var mailer auth.ResetMailer
	if cfg.HasSMTP() {
		mailer = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		logger.Info("email service enabled")
	}

	sessionService := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
	}, sessionsRepo, accountsRepo)

	passwordService := auth.NewPasswordService(
		auth.PasswordConfig{
			MaxFailedLogins: cfg.MaxFailedLogins,
			LockoutDuration: cfg.LockoutDuration,
			ResetTokenTTL:   cfg.ResetTokenTTL,
			ResetBaseURL:    cfg.AppBaseURL,
			Argon2: auth.Argon2Params{
				Time:    uint32(cfg.Argon2.Time),
				Memory:  uint32(cfg.Argon2.MemoryKB),
				Threads: uint8(cfg.Argon2.Threads),
				KeyLen:  uint32(cfg.Argon2.KeyLen),
			},
		},
		accountsRepo,
		backupCodesRepo,
		tokenService,
		totpEngine,
		passwordPolicy,
		mailer,
		sessionService,
		logger,
	)

	mfaService := auth.NewMFAService(accountsRepo, backupCodesRepo, totpEngine, sessionService, logger)

	auditRecorder := audit.NewRecorder(auditRepo)
	incidentService := service.NewIncidentService(incidentsRepo, categoriesRepo, auditRecorder, txRunner, logger)
	categoryService := service.NewCategoryService(categoriesRepo, incidentsRepo, auditRecorder, txRunner, logger)

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:             logger,
		PasswordService:    passwordService,
		SessionService:     sessionService,
		MFAService:         mfaService,
		IncidentService:    incidentService,
		CategoryService:    categoryService,
		AuditRecorder:      auditRecorder,
		RateLimitConfig:    cfg.RateLimit,
		SecurityHeaders:    cfg.SecurityHeaders,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
