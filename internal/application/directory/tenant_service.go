package directory

import (
	"context"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/infrastructure/persistence"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SchemaMigrator prepares the schema of a freshly provisioned tenant
// datastore
type SchemaMigrator func(db *gorm.DB) error

// TenantService handles tenant lifecycle operations on the landlord
// registry: provisioning, deactivation and removal. Tenant business data
// is never touched here; only the registry row and the datastore schema.
type TenantService struct {
	tenantRepo directory.TenantRepository
	router     *tenancy.ConnectionRouter
	migrate    SchemaMigrator
	events     shared.EventPublisher
	logger     *zap.Logger
}

// NewTenantService creates a new TenantService. A nil migrator defaults to
// the tenant datastore auto-migration; a nil publisher disables event
// publication.
func NewTenantService(tenantRepo directory.TenantRepository, router *tenancy.ConnectionRouter, migrate SchemaMigrator, events shared.EventPublisher, logger *zap.Logger) *TenantService {
	if migrate == nil {
		migrate = persistence.AutoMigrateTenant
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantService{
		tenantRepo: tenantRepo,
		router:     router,
		migrate:    migrate,
		events:     events,
		logger:     logger,
	}
}

func (s *TenantService) publishEvents(ctx context.Context, tenant *directory.Tenant) {
	if s.events == nil {
		return
	}
	if evts := tenant.GetDomainEvents(); len(evts) > 0 {
		if err := s.events.Publish(ctx, evts...); err != nil {
			s.logger.Warn("Event publication failed", zap.Error(err))
		}
		tenant.ClearDomainEvents()
	}
}

// Provision registers a tenant and initializes the schema of its dedicated
// datastore. The datastore itself must already exist; creating databases is
// an operator concern, wiring them into the platform is ours.
func (s *TenantService) Provision(ctx context.Context, req CreateTenantRequest) (*TenantResponse, error) {
	exists, err := s.tenantRepo.ExistsBySlug(ctx, req.Slug)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Tenant with this slug already exists")
	}

	driver := req.Datastore.Driver
	if driver == "" {
		driver = "postgres"
	}
	tenant, err := directory.NewTenant(req.Slug, req.Name, req.FiscalID, directory.DatastoreLocator{
		Driver:        driver,
		Host:          req.Datastore.Host,
		Port:          req.Datastore.Port,
		CredentialRef: req.Datastore.CredentialRef,
		DatabaseName:  req.Datastore.DatabaseName,
	})
	if err != nil {
		return nil, err
	}

	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return nil, err
	}

	// Bind once to verify the locator actually reaches a datastore, then
	// bring the schema up. A failure here rolls the registration back so a
	// half-provisioned tenant is not left resolvable.
	db, err := s.router.Bind(ctx, tenant)
	if err != nil {
		s.logger.Error("Tenant datastore unreachable, rolling back registration",
			zap.String("slug", tenant.Slug), zap.Error(err))
		if delErr := s.tenantRepo.Delete(ctx, tenant.ID); delErr != nil {
			s.logger.Error("Failed to roll back tenant registration", zap.Error(delErr))
		}
		return nil, err
	}
	if err := s.migrate(db); err != nil {
		s.logger.Error("Tenant schema migration failed, rolling back registration",
			zap.String("slug", tenant.Slug), zap.Error(err))
		s.router.Evict(tenant.ID)
		if delErr := s.tenantRepo.Delete(ctx, tenant.ID); delErr != nil {
			s.logger.Error("Failed to roll back tenant registration", zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("Tenant provisioned",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
		zap.String("database", tenant.Locator.DatabaseName))
	s.publishEvents(ctx, tenant)

	response := ToTenantResponse(tenant)
	return &response, nil
}

// GetByID retrieves a tenant by ID
func (s *TenantService) GetByID(ctx context.Context, id uuid.UUID) (*TenantResponse, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToTenantResponse(tenant)
	return &response, nil
}

// List retrieves tenants with pagination
func (s *TenantService) List(ctx context.Context, filter shared.Filter) ([]TenantResponse, int64, error) {
	tenants, err := s.tenantRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.tenantRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]TenantResponse, len(tenants))
	for i := range tenants {
		responses[i] = ToTenantResponse(&tenants[i])
	}
	return responses, total, nil
}

// Rename updates a tenant's display name
func (s *TenantService) Rename(ctx context.Context, id uuid.UUID, req UpdateTenantRequest) (*TenantResponse, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenant.Rename(req.Name); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return nil, err
	}
	response := ToTenantResponse(tenant)
	return &response, nil
}

// Deactivate soft-deletes a tenant. Its pooled datastore handle is evicted
// immediately so in-flight binds stop resolving.
func (s *TenantService) Deactivate(ctx context.Context, id uuid.UUID) error {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := tenant.Deactivate(); err != nil {
		return err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return err
	}
	s.router.Evict(tenant.ID)

	s.logger.Info("Tenant deactivated", zap.String("tenant_id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	s.publishEvents(ctx, tenant)
	return nil
}

// Activate re-activates a previously deactivated tenant
func (s *TenantService) Activate(ctx context.Context, id uuid.UUID) error {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := tenant.Activate(); err != nil {
		return err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return err
	}
	s.publishEvents(ctx, tenant)
	return nil
}

// Remove hard-deletes a tenant: its dedicated datastore is torn down first,
// then the registry row. Teardown-before-delete keeps a failed removal
// retryable; the row survives and the idempotent drop simply runs again.
func (s *TenantService) Remove(ctx context.Context, id uuid.UUID) error {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if tenant.IsActive() {
		return shared.NewDomainError("TENANT_ACTIVE", "Deactivate the tenant before removing it")
	}
	if err := s.router.Teardown(ctx, tenant); err != nil {
		s.logger.Error("Tenant datastore teardown failed",
			zap.String("tenant_id", id.String()),
			zap.String("database", tenant.Locator.DatabaseName),
			zap.Error(err))
		return err
	}
	if err := s.tenantRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Tenant removed",
		zap.String("tenant_id", id.String()),
		zap.String("slug", tenant.Slug),
		zap.String("database", tenant.Locator.DatabaseName))
	if s.events != nil {
		if err := s.events.Publish(ctx, directory.NewTenantDeletedEvent(tenant)); err != nil {
			s.logger.Warn("Event publication failed", zap.Error(err))
		}
	}
	return nil
}
