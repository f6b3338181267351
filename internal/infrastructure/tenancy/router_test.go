package tenancy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqliteOpen backs each tenant with a named in-memory database carrying a
// marker row, so tests can check which tenant a handle belongs to.
func sqliteOpen(t *testing.T) OpenFunc {
	t.Helper()
	return func(locator directory.DatastoreLocator) (*gorm.DB, error) {
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", locator.DatabaseName)
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, err
		}
		if err := db.Exec("CREATE TABLE IF NOT EXISTS tenant_marker (name TEXT NOT NULL)").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("DELETE FROM tenant_marker").Error; err != nil {
			return nil, err
		}
		return db, db.Exec("INSERT INTO tenant_marker (name) VALUES (?)", locator.DatabaseName).Error
	}
}

func newTestTenant(t *testing.T, slug string) *directory.Tenant {
	t.Helper()
	tenant, err := directory.NewTenant(slug, "Tenant "+slug, "", directory.DatastoreLocator{
		Driver:       "sqlite",
		Host:         "local",
		Port:         1,
		DatabaseName: "tenant_" + slug,
	})
	require.NoError(t, err)
	return tenant
}

func markerOf(t *testing.T, db *gorm.DB) string {
	t.Helper()
	var name string
	require.NoError(t, db.Raw("SELECT name FROM tenant_marker LIMIT 1").Scan(&name).Error)
	return name
}

func TestBindReusesHandlePerTenant(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{Open: sqliteOpen(t)}, nil)
	defer router.Close()
	tenant := newTestTenant(t, "alpha")

	first, err := router.Bind(context.Background(), tenant)
	require.NoError(t, err)
	second, err := router.Bind(context.Background(), tenant)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, router.Size())
}

func TestBindIsolatesTenants(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{Open: sqliteOpen(t)}, nil)
	defer router.Close()

	alpha := newTestTenant(t, "alpha")
	beta := newTestTenant(t, "beta")

	dbA, err := router.Bind(context.Background(), alpha)
	require.NoError(t, err)
	dbB, err := router.Bind(context.Background(), beta)
	require.NoError(t, err)

	assert.NotSame(t, dbA, dbB)
	assert.Equal(t, "tenant_alpha", markerOf(t, dbA))
	assert.Equal(t, "tenant_beta", markerOf(t, dbB))
}

func TestBindRefusesInactiveTenant(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{Open: sqliteOpen(t)}, nil)
	defer router.Close()

	tenant := newTestTenant(t, "gone")
	require.NoError(t, tenant.Deactivate())

	_, err := router.Bind(context.Background(), tenant)
	assert.Error(t, err)
	assert.Equal(t, 0, router.Size())
}

func TestBindRefusesNilTenant(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{Open: sqliteOpen(t)}, nil)
	_, err := router.Bind(context.Background(), nil)
	assert.Error(t, err)
}

func TestBindRetriesTransientErrors(t *testing.T) {
	attempts := 0
	open := sqliteOpen(t)
	router := NewConnectionRouter(RouterConfig{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Open: func(locator directory.DatastoreLocator) (*gorm.DB, error) {
			attempts++
			if attempts <= 2 {
				return nil, errors.New("dial tcp: connection refused")
			}
			return open(locator)
		},
	}, nil)
	defer router.Close()

	_, err := router.Bind(context.Background(), newTestTenant(t, "flaky"))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBindDoesNotRetryAuthErrors(t *testing.T) {
	attempts := 0
	router := NewConnectionRouter(RouterConfig{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Open: func(locator directory.DatastoreLocator) (*gorm.DB, error) {
			attempts++
			return nil, errors.New("pq: password authentication failed for user")
		},
	}, nil)

	_, err := router.Bind(context.Background(), newTestTenant(t, "locked"))
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBindGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	router := NewConnectionRouter(RouterConfig{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Open: func(locator directory.DatastoreLocator) (*gorm.DB, error) {
			attempts++
			return nil, errors.New("dial tcp: i/o timeout")
		},
	}, nil)

	_, err := router.Bind(context.Background(), newTestTenant(t, "down"))
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestSweepEvictsIdleHandles(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{
		IdleTTL: 10 * time.Millisecond,
		Open:    sqliteOpen(t),
	}, nil)
	defer router.Close()

	_, err := router.Bind(context.Background(), newTestTenant(t, "idle"))
	require.NoError(t, err)
	require.Equal(t, 1, router.Size())

	time.Sleep(20 * time.Millisecond)
	router.Sweep()
	assert.Equal(t, 0, router.Size())
}

func TestPoolBoundEvictsLRU(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{
		MaxHandles: 2,
		Open:       sqliteOpen(t),
	}, nil)
	defer router.Close()

	ctx := context.Background()
	_, err := router.Bind(ctx, newTestTenant(t, "one"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = router.Bind(ctx, newTestTenant(t, "two"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = router.Bind(ctx, newTestTenant(t, "three"))
	require.NoError(t, err)

	assert.LessOrEqual(t, router.Size(), 2)
}

func TestEvictDropsTenantHandle(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{Open: sqliteOpen(t)}, nil)
	tenant := newTestTenant(t, "bye")

	_, err := router.Bind(context.Background(), tenant)
	require.NoError(t, err)
	router.Evict(tenant.ID)
	assert.Equal(t, 0, router.Size())
}

func TestTeardownEvictsHandleAndDropsDatastore(t *testing.T) {
	var dropped []string
	router := NewConnectionRouter(RouterConfig{
		Open: sqliteOpen(t),
		Drop: func(ctx context.Context, locator directory.DatastoreLocator) error {
			dropped = append(dropped, locator.DatabaseName)
			return nil
		},
	}, nil)
	tenant := newTestTenant(t, "torn")

	_, err := router.Bind(context.Background(), tenant)
	require.NoError(t, err)

	require.NoError(t, router.Teardown(context.Background(), tenant))
	assert.Equal(t, 0, router.Size(), "the pooled handle must not outlive the datastore")
	assert.Equal(t, []string{"tenant_torn"}, dropped)

	assert.Error(t, router.Teardown(context.Background(), nil))
}

func TestPoolGaugeTracksHandleCount(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{Open: sqliteOpen(t)}, nil)
	defer router.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()
	require.NoError(t, router.RegisterMetrics(provider.Meter("router-test")))

	observe := func() int64 {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		for _, scope := range rm.ScopeMetrics {
			for _, m := range scope.Metrics {
				if m.Name != "facturo.router.pooled_handles" {
					continue
				}
				gauge, ok := m.Data.(metricdata.Gauge[int64])
				require.True(t, ok)
				require.Len(t, gauge.DataPoints, 1)
				return gauge.DataPoints[0].Value
			}
		}
		t.Fatal("pooled_handles gauge not reported")
		return 0
	}

	assert.Equal(t, int64(0), observe())

	tenant := newTestTenant(t, "gauged")
	_, err := router.Bind(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(1), observe())

	router.Evict(tenant.ID)
	assert.Equal(t, int64(0), observe())
}

// Interleaved requests for two tenants must never observe the other
// tenant's datastore through their bound handle.
func TestConcurrentBindNoCrossTenantLeak(t *testing.T) {
	router := NewConnectionRouter(RouterConfig{Open: sqliteOpen(t)}, nil)
	defer router.Close()

	alpha := newTestTenant(t, "conc-alpha")
	beta := newTestTenant(t, "conc-beta")

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		for _, tenant := range []*directory.Tenant{alpha, beta} {
			wg.Add(1)
			go func(tenant *directory.Tenant) {
				defer wg.Done()
				db, err := router.Bind(context.Background(), tenant)
				if err != nil {
					errs <- err
					return
				}
				var name string
				if err := db.Raw("SELECT name FROM tenant_marker LIMIT 1").Scan(&name).Error; err != nil {
					errs <- err
					return
				}
				if name != "tenant_"+tenant.Slug {
					errs <- fmt.Errorf("tenant %s observed datastore %s", tenant.Slug, name)
				}
			}(tenant)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, isTransient(errors.New("read: connection reset by peer")))
	assert.True(t, isTransient(errors.New("i/o timeout")))
	assert.False(t, isTransient(errors.New("pq: password authentication failed")))
	assert.False(t, isTransient(errors.New("pq: permission denied for database")))
	assert.False(t, isTransient(errors.New("database \"missing\" does not exist")))
}
