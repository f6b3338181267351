package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	directoryapp "github.com/facturo/backend/internal/application/directory"
	fiscalapp "github.com/facturo/backend/internal/application/fiscal"
	partnerapp "github.com/facturo/backend/internal/application/partner"
	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/infrastructure/config"
	"github.com/facturo/backend/internal/infrastructure/event"
	"github.com/facturo/backend/internal/infrastructure/logger"
	"github.com/facturo/backend/internal/infrastructure/persistence"
	"github.com/facturo/backend/internal/infrastructure/registry"
	"github.com/facturo/backend/internal/infrastructure/telemetry"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/facturo/backend/internal/interfaces/http/handler"
	"github.com/facturo/backend/internal/interfaces/http/middleware"
	"github.com/facturo/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// version is stamped at build time
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting facturo backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	// Landlord registry, the only shared datastore
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	landlord, err := registry.NewDatabaseWithLogger(&cfg.Landlord, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to landlord registry", zap.Error(err))
	}
	defer func() {
		if err := landlord.Close(); err != nil {
			log.Error("Error closing landlord registry", zap.Error(err))
		}
	}()
	if err := landlord.AutoMigrate(); err != nil {
		log.Fatal("Failed to migrate landlord registry", zap.Error(err))
	}
	log.Info("Landlord registry connected")

	// Traces and metrics ship to the same collector
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.App.Env != "production",
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}, log)
	if err := dbTracing.Register(landlord.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Per-tenant datastore routing. Tenant datastore credentials resolve
	// through the credential reference on the tenant's locator, never
	// through request input.
	connRouter := tenancy.NewConnectionRouter(tenancy.RouterConfig{
		MaxHandles:     cfg.Router.MaxHandles,
		IdleTTL:        cfg.Router.IdleTTL,
		MaxRetries:     cfg.Router.MaxRetries,
		RetryBackoff:   cfg.Router.RetryBackoff,
		PasswordLookup: envPasswordLookup(cfg),
	}, log)
	defer connRouter.Close()
	if err := connRouter.RegisterMetrics(otel.Meter(telemetry.MeterName)); err != nil {
		log.Warn("Router pool gauge unavailable", zap.Error(err))
	}

	// Registry repositories
	tenantRepo := registry.NewGormTenantRepository(landlord.DB)
	userRepo := registry.NewGormUserRepository(landlord.DB)
	var credRepo directory.CredentialRepository = registry.NewGormCredentialRepository(landlord.DB)

	// Optional Redis cache in front of credential resolution; every
	// authenticated request hits this path
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		credRepo = registry.NewCachedCredentialRepository(credRepo, redisClient, 5*time.Minute, log)
		log.Info("Credential cache enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	// Tenant datastore repositories; each call resolves its handle from the
	// request's TenancyContext
	resetPolicy := fiscal.ResetYearly
	if cfg.Fiscal.SeriesReset == "never" {
		resetPolicy = fiscal.ResetNever
	}
	docRepo := persistence.NewGormDocumentRepository(resetPolicy)
	relationRepo := persistence.NewGormRelationRepository()
	seriesRepo := persistence.NewGormSeriesRepository()
	customerRepo := persistence.NewGormCustomerRepository()

	// In-process event bus carrying the audit trail
	eventBus := event.NewBus(log)
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		_ = eventBus.Stop(context.Background())
	}()

	// Application services
	tenantService := directoryapp.NewTenantService(tenantRepo, connRouter, nil, eventBus, log)
	authService := directoryapp.NewAuthService(userRepo, credRepo, tenantRepo, directoryapp.AuthConfig{
		CredentialTTL: cfg.Auth.CredentialTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
	}, log)
	documentService := fiscalapp.NewDocumentService(docRepo, relationRepo, seriesRepo, eventBus, log)
	customerService := partnerapp.NewCustomerService(customerRepo, eventBus, log)

	// Background maintenance
	stopMaintenance := make(chan struct{})
	go sweepLoop(connRouter, cfg.Router.SweepInterval, stopMaintenance)
	go purgeLoop(authService, log, stopMaintenance)
	defer close(stopMaintenance)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order: request id first so every later stage can log it;
	// tracing and tenancy before the handlers; tenant attributes after
	// tenancy has resolved the tenant.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer rateLimiter.Stop()
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Tenancy(middleware.TenancyConfig{
		Resolver:    authService,
		Slugs:       authService,
		Binder:      connRouter,
		BaseDomain:  cfg.App.BaseDomain,
		PublicPaths: cfg.HTTP.PublicRoutes,
		Logger:      log,
	}))
	engine.Use(middleware.TenancyAttributes())
	engine.Use(middleware.SpanErrorMarker())

	router.SetupRoutes(engine, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Tenant:   handler.NewTenantHandler(tenantService),
		Document: handler.NewDocumentHandler(documentService),
		Customer: handler.NewCustomerHandler(customerService),
		System:   handler.NewSystemHandler(landlord, connRouter, version),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// envPasswordLookup resolves a tenant datastore credential reference to the
// environment variable it names, expected to hold "user:password". An empty
// reference falls back to the landlord credentials, which covers
// single-cluster deployments where every tenant database shares one role.
func envPasswordLookup(cfg *config.Config) func(credentialRef string) (string, string, error) {
	return func(credentialRef string) (string, string, error) {
		if credentialRef == "" {
			return cfg.Landlord.User, cfg.Landlord.Password, nil
		}
		raw := os.Getenv(credentialRef)
		if raw == "" {
			return "", "", fmt.Errorf("credential reference %q is not set in the environment", credentialRef)
		}
		user, password, found := strings.Cut(raw, ":")
		if !found {
			return "", "", fmt.Errorf("credential reference %q must hold user:password", credentialRef)
		}
		return user, password, nil
	}
}

// sweepLoop evicts idle tenant datastore handles
func sweepLoop(connRouter *tenancy.ConnectionRouter, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			connRouter.Sweep()
		case <-stop:
			return
		}
	}
}

// purgeLoop reclaims expired and revoked credentials from the registry
func purgeLoop(authService *directoryapp.AuthService, log *zap.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deleted, err := authService.PurgeExpiredCredentials(context.Background())
			if err != nil {
				log.Warn("Credential purge failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				log.Info("Purged expired credentials", zap.Int64("deleted", deleted))
			}
		case <-stop:
			return
		}
	}
}
