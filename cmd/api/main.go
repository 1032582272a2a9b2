package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/background"
	"github.com/BradenHooton/wazgo/internal/config"
	"github.com/BradenHooton/wazgo/internal/database"
	"github.com/BradenHooton/wazgo/internal/handlers"
	middlewareCustom "github.com/BradenHooton/wazgo/internal/middleware"
	"github.com/BradenHooton/wazgo/internal/repositories"
	"github.com/BradenHooton/wazgo/internal/routes"
	"github.com/BradenHooton/wazgo/internal/services"
	"github.com/BradenHooton/wazgo/internal/session"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize storage; Redis is dialed only when it holds sessions
	connectCtx, connectCancel := context.WithTimeout(context.Background(), time.Minute)
	db, err := database.Open(connectCtx, database.Targets{
		Postgres: &cfg.Database,
		RedisURL: cfg.Session.RedisURL,
	}, logger)
	connectCancel()
	if err != nil {
		logger.Error("failed to connect to storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	hasher := pkgauth.NewBcryptHasher(pkgauth.BcryptCost)
	accountRepo := repositories.NewAccountRepository(db, hasher)

	healthChecks := make(map[string]handlers.HealthCheck)
	for name, check := range db.Checks() {
		healthChecks[name] = check
	}

	// Session store: Redis when configured, otherwise in process with a sweeper
	var (
		store          session.Store
		cleanupManager *background.CleanupManager
	)
	if db.Redis != nil {
		store = session.NewRedisStore(db.Redis)
	} else {
		memoryStore := session.NewMemoryStore()
		store = memoryStore
		cleanupManager = background.NewCleanupManager(memoryStore, logger, cfg.Session.CleanupInterval)
		logger.Warn("using in-memory session store; sessions do not survive restarts")
	}
	sessions := session.NewManager(store, cfg.Session.TTL)

	// Initialize security components
	auditLogger := pkglogger.NewAuditLogger(logger)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer, cfg.Auth.TOTPSkew)
	if err != nil {
		logger.Error("failed to initialize totp manager", slog.Any("error", err))
		os.Exit(1)
	}

	loginLockout := auth.NewLockoutPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration)
	codeLockout := auth.NewLockoutPolicy(cfg.Auth.TwoFactorMaxAttempts, cfg.Auth.TwoFactorLockoutDuration)
	timingDelay := auth.NewTimingDelay(cfg.Auth.TimingDelayBase, cfg.Auth.TimingDelayRandom)

	var notifier services.SecurityNotifier = services.NopNotifier{}
	if cfg.Email.Enabled() {
		sesNotifier, err := services.NewSESNotifier(context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	loginService := services.NewLoginService(accountRepo, hasher, loginLockout, timingDelay, sessions,
		cfg.Auth.EmailCaseInsensitive, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(accountRepo, totpManager, codeLockout, sessions,
		notifier, logger, auditLogger)
	passwordService := services.NewPasswordService(accountRepo, hasher, loginLockout, sessions, notifier,
		logger, auditLogger)
	adminService := services.NewAdminService(accountRepo, hasher, loginLockout, sessions, cfg.Auth.EmailCaseInsensitive,
		logger, auditLogger)

	// Bootstrap the main admin if configured
	if cfg.Admin.Email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := adminService.EnsureMainAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password)
		cancel()
		switch {
		case err != nil:
			logger.Error("failed to ensure main admin", slog.Any("error", err))
		case created:
			logger.Info("main admin created")
		default:
			logger.Info("admins already exist, skipping bootstrap")
		}
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.ClientContext(pkghttp.NewIPConfig(cfg.Server.TrustedProxies)))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		Sessions: sessions,
		Cookie: session.CookieConfig{
			Name:     cfg.Session.CookieName,
			Secure:   cfg.Session.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		},
		Accounts:  accountRepo,
		Auth:      handlers.NewAuthHandler(loginService, passwordService, sessions),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactorService),
		Admin:     handlers.NewAdminHandler(adminService),
		Health:    handlers.NewHealthHandler(healthChecks),
		Logger:    logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	if cleanupManager != nil {
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
