package directory

import (
	"strings"
	"time"

	"github.com/facturo/backend/internal/domain/shared"
)

// TenantStatus represents the status of a tenant
type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

// DatastoreLocator describes where a tenant's isolated datastore lives.
// It is written once at provisioning time and never updated afterwards;
// moving a tenant's data is a migration procedure, not a field update.
type DatastoreLocator struct {
	Driver        string `json:"driver" gorm:"column:locator_driver;type:varchar(20);not null"`
	Host          string `json:"host" gorm:"column:locator_host;type:varchar(200);not null"`
	Port          int    `json:"port" gorm:"column:locator_port;not null"`
	CredentialRef string `json:"credential_ref" gorm:"column:locator_credential_ref;type:varchar(200)"`
	DatabaseName  string `json:"database_name" gorm:"column:locator_database;type:varchar(100);not null"`
}

// Validate checks the locator for the fields a connection needs
func (l DatastoreLocator) Validate() error {
	if l.Driver == "" {
		return shared.NewDomainError("INVALID_LOCATOR", "Locator driver cannot be empty")
	}
	if l.Host == "" {
		return shared.NewDomainError("INVALID_LOCATOR", "Locator host cannot be empty")
	}
	if l.DatabaseName == "" {
		return shared.NewDomainError("INVALID_LOCATOR", "Locator database name cannot be empty")
	}
	return nil
}

// Tenant is the landlord-side registry record for one isolated customer
// organization. It is the aggregate root of the tenant directory.
type Tenant struct {
	shared.BaseAggregateRoot
	Slug     string           `gorm:"type:varchar(63);not null;uniqueIndex"`
	Name     string           `gorm:"type:varchar(200);not null"`
	FiscalID string           `gorm:"type:varchar(50)"`
	Status   TenantStatus     `gorm:"type:varchar(20);not null;default:'active';index"`
	Locator  DatastoreLocator `gorm:"embedded"`
}

// TableName returns the table name for GORM
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates a new active tenant with its datastore locator
func NewTenant(slug, name, fiscalID string, locator DatastoreLocator) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_NAME", "Tenant name cannot exceed 200 characters")
	}
	if err := locator.Validate(); err != nil {
		return nil, err
	}

	tenant := &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Slug:              slug,
		Name:              name,
		FiscalID:          fiscalID,
		Status:            TenantStatusActive,
		Locator:           locator,
	}

	tenant.AddDomainEvent(NewTenantCreatedEvent(tenant))

	return tenant, nil
}

// Rename updates the tenant's display name
func (t *Tenant) Rename(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot exceed 200 characters")
	}

	t.Name = name
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	return nil
}

// Activate re-activates an inactive tenant
func (t *Tenant) Activate() error {
	if t.Status == TenantStatusActive {
		return shared.NewDomainError("ALREADY_ACTIVE", "Tenant is already active")
	}

	t.Status = TenantStatusActive
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	t.AddDomainEvent(NewTenantStatusChangedEvent(t, TenantStatusInactive, TenantStatusActive))

	return nil
}

// Deactivate soft-deletes the tenant. The datastore is left intact.
func (t *Tenant) Deactivate() error {
	if t.Status == TenantStatusInactive {
		return shared.NewDomainError("ALREADY_INACTIVE", "Tenant is already inactive")
	}

	t.Status = TenantStatusInactive
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	t.AddDomainEvent(NewTenantStatusChangedEvent(t, TenantStatusActive, TenantStatusInactive))

	return nil
}

// IsActive returns true if the tenant is active
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

func validateSlug(slug string) error {
	if slug == "" {
		return shared.NewDomainError("INVALID_SLUG", "Tenant slug cannot be empty")
	}
	if len(slug) > 63 {
		return shared.NewDomainError("INVALID_SLUG", "Tenant slug cannot exceed 63 characters")
	}
	for i, r := range slug {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || (r == '-' && i > 0 && i < len(slug)-1)
		if !ok {
			return shared.NewDomainError("INVALID_SLUG", "Tenant slug must be a valid DNS label")
		}
	}
	return nil
}
