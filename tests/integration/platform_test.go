package integration

import (
	"context"
	"testing"
	"time"

	directoryapp "github.com/facturo/backend/internal/application/directory"
	fiscalapp "github.com/facturo/backend/internal/application/fiscal"
	partnerapp "github.com/facturo/backend/internal/application/partner"
	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/infrastructure/event"
	"github.com/facturo/backend/internal/infrastructure/persistence"
	"github.com/facturo/backend/internal/infrastructure/registry"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/facturo/backend/tests/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// platform wires the registry, the connection router and the application
// services against containerized databases, the same way cmd/server does
// in production.
type platform struct {
	reg        *TestRegistry
	router     *tenancy.ConnectionRouter
	tenantRepo directory.TenantRepository
	tenants    *directoryapp.TenantService
	documents  *fiscalapp.DocumentService
	customers  *partnerapp.CustomerService
	audit      *testutil.MockEventHandler
}

func newPlatform(t *testing.T) *platform {
	t.Helper()

	reg := StartRegistry(t)

	router := tenancy.NewConnectionRouter(tenancy.RouterConfig{
		MaxHandles:   8,
		IdleTTL:      time.Minute,
		MaxRetries:   2,
		RetryBackoff: 50 * time.Millisecond,
		PasswordLookup: func(credentialRef string) (string, string, error) {
			return reg.User, reg.Password, nil
		},
	}, zap.NewNop())
	t.Cleanup(router.Close)

	bus := event.NewBus(zap.NewNop())
	audit := testutil.NewMockEventHandler()
	bus.Subscribe(audit)

	tenantRepo := registry.NewGormTenantRepository(reg.DB)
	return &platform{
		reg:        reg,
		router:     router,
		tenantRepo: tenantRepo,
		tenants:    directoryapp.NewTenantService(tenantRepo, router, nil, bus, nil),
		documents: fiscalapp.NewDocumentService(
			persistence.NewGormDocumentRepository(fiscal.ResetYearly),
			persistence.NewGormRelationRepository(),
			persistence.NewGormSeriesRepository(),
			bus,
			nil,
		),
		customers: partnerapp.NewCustomerService(persistence.NewGormCustomerRepository(), bus, nil),
		audit:     audit,
	}
}

// provisionTenant creates the tenant's database in the container, registers
// the tenant and returns the registry aggregate.
func (p *platform) provisionTenant(t *testing.T, slug, dbName string) *directory.Tenant {
	t.Helper()

	p.reg.CreateTenantDatabase(t, dbName)
	resp, err := p.tenants.Provision(context.Background(), directoryapp.CreateTenantRequest{
		Slug: slug,
		Name: slug,
		Datastore: directoryapp.DatastoreRequest{
			Host:         p.reg.Host,
			Port:         p.reg.Port,
			DatabaseName: dbName,
		},
	})
	require.NoError(t, err, "Failed to provision tenant %s", slug)

	tenant, err := p.tenantRepo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	return tenant
}

// tenantCtx binds the tenant's datastore and returns a context scoped to it
func (p *platform) tenantCtx(t *testing.T, tenant *directory.Tenant) context.Context {
	t.Helper()

	db, err := p.router.Bind(context.Background(), tenant)
	require.NoError(t, err, "Failed to bind tenant datastore")
	return tenancy.NewContext(context.Background(), &tenancy.TenancyContext{
		TenantID: tenant.ID,
		DB:       db,
	})
}
