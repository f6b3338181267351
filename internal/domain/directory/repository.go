package directory

import (
	"context"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// TenantRepository defines the interface for the landlord tenant registry
type TenantRepository interface {
	// FindByID finds a tenant by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// FindBySlug finds a tenant by its subdomain slug
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)

	// FindAll finds all tenants matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Tenant, error)

	// Save creates or updates a tenant
	Save(ctx context.Context, tenant *Tenant) error

	// Delete hard-deletes a tenant registry row
	Delete(ctx context.Context, id uuid.UUID) error

	// Count counts tenants matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// ExistsBySlug checks if a tenant with the given slug exists
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
}

// CredentialRepository defines the interface for issued access credentials
type CredentialRepository interface {
	// FindByTokenHash finds a credential by the SHA-256 hash of its token
	FindByTokenHash(ctx context.Context, tokenHash string) (*AccessCredential, error)

	// Save creates or updates a credential
	Save(ctx context.Context, cred *AccessCredential) error

	// RevokeByTokenHash marks the credential revoked
	RevokeByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteExpired removes credentials expired or revoked before the cutoff
	DeleteExpired(ctx context.Context) (int64, error)
}

// UserRepository defines the interface for the landlord login index
type UserRepository interface {
	// FindByEmail finds a directory user by email (single indexed read)
	FindByEmail(ctx context.Context, email string) (*DirectoryUser, error)

	// FindByID finds a directory user by ID
	FindByID(ctx context.Context, id uuid.UUID) (*DirectoryUser, error)

	// FindByTenant lists directory users belonging to a tenant
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]DirectoryUser, error)

	// Save creates or updates a directory user
	Save(ctx context.Context, user *DirectoryUser) error

	// Delete removes a directory user
	Delete(ctx context.Context, id uuid.UUID) error

	// ExistsByEmail checks if an email is already registered
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
