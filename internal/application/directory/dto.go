package directory

import (
	"time"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/google/uuid"
)

// DatastoreRequest carries the connection coordinates of a new tenant's
// dedicated datastore. The credential reference points into the secrets
// store; raw passwords never pass through the API.
type DatastoreRequest struct {
	Driver        string `json:"driver"`
	Host          string `json:"host" binding:"required"`
	Port          int    `json:"port" binding:"required"`
	CredentialRef string `json:"credential_ref"`
	DatabaseName  string `json:"database_name" binding:"required"`
}

// CreateTenantRequest is the payload for provisioning a tenant
type CreateTenantRequest struct {
	Slug      string           `json:"slug" binding:"required"`
	Name      string           `json:"name" binding:"required"`
	FiscalID  string           `json:"fiscal_id"`
	Datastore DatastoreRequest `json:"datastore" binding:"required"`
}

// UpdateTenantRequest is the payload for renaming a tenant
type UpdateTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

// TenantResponse is the API representation of a tenant. The datastore
// locator is partially redacted: coordinates are operator-facing, the
// credential reference is not.
type TenantResponse struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	FiscalID  string    `json:"fiscal_id,omitempty"`
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToTenantResponse converts a tenant to its API representation
func ToTenantResponse(tenant *directory.Tenant) TenantResponse {
	return TenantResponse{
		ID:        tenant.ID,
		Slug:      tenant.Slug,
		Name:      tenant.Name,
		FiscalID:  tenant.FiscalID,
		Status:    string(tenant.Status),
		Database:  tenant.Locator.DatabaseName,
		CreatedAt: tenant.CreatedAt,
		UpdatedAt: tenant.UpdatedAt,
	}
}

// RegisterUserRequest is the payload for registering a directory user
type RegisterUserRequest struct {
	Email        string   `json:"email" binding:"required,email"`
	Password     string   `json:"password" binding:"required,min=8"`
	DisplayName  string   `json:"display_name"`
	TenantSlug   string   `json:"tenant_slug" binding:"required"`
	Capabilities []string `json:"capabilities"`
}

// UserResponse is the API representation of a directory user
type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Capabilities []string  `json:"capabilities"`
	Active       bool      `json:"active"`
}

// ToUserResponse converts a directory user to its API representation
func ToUserResponse(user *directory.DirectoryUser) UserResponse {
	caps := user.CapabilitySet()
	capStrings := make([]string, len(caps))
	for i, c := range caps {
		capStrings[i] = string(c)
	}
	return UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		TenantID:     user.TenantID,
		Capabilities: capStrings,
		Active:       user.Active,
	}
}

// LoginRequest is the payload for a login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued bearer credential. The raw token
// appears here exactly once; only its hash is stored.
type LoginResponse struct {
	Token        string     `json:"token"`
	TokenPrefix  string     `json:"token_prefix"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	TenantSlug   string     `json:"tenant_slug"`
	Capabilities []string   `json:"capabilities"`
}
