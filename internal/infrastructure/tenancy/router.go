package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenFunc opens a datastore handle for a tenant locator. Swappable in
// tests to back tenants with in-memory databases.
type OpenFunc func(locator directory.DatastoreLocator) (*gorm.DB, error)

// DropFunc destroys the datastore a locator points at. Swappable in tests.
type DropFunc func(ctx context.Context, locator directory.DatastoreLocator) error

// RouterConfig configures the connection router
type RouterConfig struct {
	// MaxHandles bounds the number of pooled tenant handles; the least
	// recently used handle is evicted when the bound is hit
	MaxHandles int
	// IdleTTL evicts handles not used for this long
	IdleTTL time.Duration
	// MaxRetries bounds retries of transient open errors; auth errors are
	// never retried
	MaxRetries int
	// RetryBackoff is the initial backoff, doubled per attempt
	RetryBackoff time.Duration
	// PasswordLookup resolves a locator's credential reference to the
	// actual datastore password
	PasswordLookup func(credentialRef string) (user, password string, err error)
	// Open opens a handle; defaults to a postgres open from the locator
	Open OpenFunc
	// Drop destroys a tenant datastore on teardown; defaults to a postgres
	// DROP DATABASE through the locator's maintenance connection
	Drop DropFunc
}

type pooledHandle struct {
	tenantID uuid.UUID
	db       *gorm.DB
	lastUsed time.Time
}

// ConnectionRouter owns the per-tenant datastore handle pool. Handles are
// keyed strictly by tenant id and only ever handed out inside a
// TenancyContext carrying the same id, so a request resolved to tenant A
// can never observe a handle bound to tenant B. The pool and the tenant
// directory are the only process-wide state shared between requests.
type ConnectionRouter struct {
	mu      sync.Mutex
	pool    map[uuid.UUID]*pooledHandle
	cfg     RouterConfig
	baseLog *zap.Logger
}

// NewConnectionRouter creates a router with the given configuration
func NewConnectionRouter(cfg RouterConfig, log *zap.Logger) *ConnectionRouter {
	if cfg.MaxHandles <= 0 {
		cfg.MaxHandles = 64
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Open == nil {
		cfg.Open = defaultOpen(cfg, log)
	}
	if cfg.Drop == nil {
		cfg.Drop = defaultDrop(cfg)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnectionRouter{
		pool:    make(map[uuid.UUID]*pooledHandle),
		cfg:     cfg,
		baseLog: log,
	}
}

// Bind returns a datastore handle for the tenant, reusing a pooled handle
// or opening a new one. The handle must only travel inside the request's
// TenancyContext. Inactive tenants are refused before any dial happens.
func (r *ConnectionRouter) Bind(ctx context.Context, tenant *directory.Tenant) (*gorm.DB, error) {
	if tenant == nil {
		return nil, shared.ErrTenantNotFound
	}
	if !tenant.IsActive() {
		return nil, shared.ErrTenantInactive
	}

	r.mu.Lock()
	if handle, ok := r.pool[tenant.ID]; ok {
		handle.lastUsed = time.Now()
		db := handle.db
		r.mu.Unlock()
		return db, nil
	}
	r.mu.Unlock()

	// Open outside the lock so one slow tenant dial cannot stall binds for
	// every other tenant.
	db, err := r.openWithRetry(ctx, tenant.Locator)
	if err != nil {
		logger.L(ctx).Error("tenant datastore bind failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeDatastoreBind,
			fmt.Sprintf("Cannot bind datastore for tenant %s", tenant.Slug))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent bind for the same tenant may have won the race
	if handle, ok := r.pool[tenant.ID]; ok {
		closeHandle(db)
		handle.lastUsed = time.Now()
		return handle.db, nil
	}
	r.evictLocked(time.Now())
	r.pool[tenant.ID] = &pooledHandle{tenantID: tenant.ID, db: db, lastUsed: time.Now()}
	return db, nil
}

// Release returns a handle to the pool. Handles are shared per tenant and
// stay pooled; release only refreshes the idle clock.
func (r *ConnectionRouter) Release(tenantID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.pool[tenantID]; ok {
		handle.lastUsed = time.Now()
	}
}

// Evict drops a tenant's handle, closing the underlying connections. Used
// on tenant deactivation and teardown.
func (r *ConnectionRouter) Evict(tenantID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.pool[tenantID]; ok {
		closeHandle(handle.db)
		delete(r.pool, tenantID)
	}
}

// Teardown evicts the tenant's pooled handle and destroys its datastore.
// The drop is idempotent, so a teardown that failed halfway can be retried.
func (r *ConnectionRouter) Teardown(ctx context.Context, tenant *directory.Tenant) error {
	if tenant == nil {
		return shared.ErrTenantNotFound
	}
	r.Evict(tenant.ID)
	return r.cfg.Drop(ctx, tenant.Locator)
}

// Sweep evicts idle handles; call it periodically
func (r *ConnectionRouter) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(time.Now())
}

// Size returns the number of pooled handles
func (r *ConnectionRouter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}

// RegisterMetrics exposes the pool size as an observable gauge
func (r *ConnectionRouter) RegisterMetrics(meter metric.Meter) error {
	gauge, err := meter.Int64ObservableGauge("facturo.router.pooled_handles",
		metric.WithDescription("Tenant datastore handles currently held by the connection router"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(r.Size()))
		return nil
	}, gauge)
	return err
}

// Close drops every pooled handle
func (r *ConnectionRouter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, handle := range r.pool {
		closeHandle(handle.db)
		delete(r.pool, id)
	}
}

// evictLocked drops idle handles and, if the pool is still at its bound,
// the least recently used one. Caller holds r.mu.
func (r *ConnectionRouter) evictLocked(now time.Time) {
	for id, handle := range r.pool {
		if now.Sub(handle.lastUsed) > r.cfg.IdleTTL {
			closeHandle(handle.db)
			delete(r.pool, id)
		}
	}
	for len(r.pool) >= r.cfg.MaxHandles {
		var oldest *pooledHandle
		for _, handle := range r.pool {
			if oldest == nil || handle.lastUsed.Before(oldest.lastUsed) {
				oldest = handle
			}
		}
		if oldest == nil {
			return
		}
		closeHandle(oldest.db)
		delete(r.pool, oldest.tenantID)
	}
}

// openWithRetry retries transient dial failures a bounded number of times
// with exponential backoff. Auth failures against the tenant datastore
// fail immediately: retrying against wrong datastore state is unsafe.
func (r *ConnectionRouter) openWithRetry(ctx context.Context, locator directory.DatastoreLocator) (*gorm.DB, error) {
	backoff := r.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		db, err := r.cfg.Open(locator)
		if err == nil {
			return db, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// isTransient reports whether an open error is worth retrying. Network
// timeouts and refused dials are; authentication and authorization
// failures never are.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password authentication failed") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "authentication") {
		return false
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporarily unavailable")
}

func closeHandle(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// defaultOpen opens a postgres handle from the locator, resolving the
// datastore credentials through the configured lookup.
func defaultOpen(cfg RouterConfig, log *zap.Logger) OpenFunc {
	return func(locator directory.DatastoreLocator) (*gorm.DB, error) {
		if locator.Driver != "postgres" {
			return nil, fmt.Errorf("unsupported datastore driver %q", locator.Driver)
		}
		user, password := "postgres", ""
		if cfg.PasswordLookup != nil {
			var err error
			user, password, err = cfg.PasswordLookup(locator.CredentialRef)
			if err != nil {
				return nil, fmt.Errorf("resolve datastore credential: %w", err)
			}
		}

		dsn := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(user, password),
			Host:     fmt.Sprintf("%s:%d", locator.Host, locator.Port),
			Path:     locator.DatabaseName,
			RawQuery: "sslmode=disable",
		}

		var zapGorm gormlogger.Interface = gormlogger.Default.LogMode(gormlogger.Silent)
		if log != nil {
			zapGorm = logger.NewGormLogger(log, gormlogger.Warn)
		}

		db, err := gorm.Open(postgres.Open(dsn.String()), &gorm.Config{
			Logger:                 zapGorm,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		})
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)

		if err := sqlDB.Ping(); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	}
}

// defaultDrop connects to the maintenance database on the locator's host and
// drops the tenant database. DROP DATABASE cannot run against the database
// being dropped, hence the separate connection. FORCE disconnects any
// session still attached, and IF EXISTS makes a retried teardown a no-op.
func defaultDrop(cfg RouterConfig) DropFunc {
	return func(ctx context.Context, locator directory.DatastoreLocator) error {
		if locator.Driver != "postgres" {
			return fmt.Errorf("unsupported datastore driver %q", locator.Driver)
		}
		if strings.ContainsAny(locator.DatabaseName, `"'`) {
			return fmt.Errorf("refusing to drop datastore with unsafe name %q", locator.DatabaseName)
		}
		user, password := "postgres", ""
		if cfg.PasswordLookup != nil {
			var err error
			user, password, err = cfg.PasswordLookup(locator.CredentialRef)
			if err != nil {
				return fmt.Errorf("resolve datastore credential: %w", err)
			}
		}

		dsn := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(user, password),
			Host:     fmt.Sprintf("%s:%d", locator.Host, locator.Port),
			Path:     "postgres",
			RawQuery: "sslmode=disable",
		}
		db, err := gorm.Open(postgres.Open(dsn.String()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return err
		}
		defer closeHandle(db)

		return db.WithContext(ctx).Exec(
			fmt.Sprintf(`DROP DATABASE IF EXISTS %q WITH (FORCE)`, locator.DatabaseName)).Error
	}
}
