package directory

import (
	"strings"
	"time"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DirectoryUser is the landlord-side login index: one row per user email,
// mapping it to the owning tenant. It is maintained at registration time so
// login is a single indexed read instead of a scan across tenant datastores.
type DirectoryUser struct {
	shared.BaseEntity
	Email        string    `gorm:"type:varchar(200);not null;uniqueIndex"`
	PasswordHash string    `gorm:"type:varchar(100);not null"`
	DisplayName  string    `gorm:"type:varchar(100)"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Capabilities string    `gorm:"type:text;not null"`
	Active       bool      `gorm:"not null;default:true"`
	LastLoginAt  *time.Time
}

// TableName returns the table name for GORM
func (DirectoryUser) TableName() string {
	return "directory_users"
}

// NewDirectoryUser creates a new login-index entry for a tenant user
func NewDirectoryUser(email, passwordHash, displayName string, tenantID uuid.UUID, caps CapabilitySet) (*DirectoryUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, shared.NewDomainError("INVALID_EMAIL", "Email address is invalid")
	}
	if passwordHash == "" {
		return nil, shared.NewDomainError("INVALID_PASSWORD_HASH", "Password hash cannot be empty")
	}
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT_ID", "Tenant ID cannot be empty")
	}

	return &DirectoryUser{
		BaseEntity:   shared.NewBaseEntity(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		TenantID:     tenantID,
		Capabilities: caps.String(),
		Active:       true,
	}, nil
}

// CapabilitySet returns the parsed capability set granted to the user
func (u *DirectoryUser) CapabilitySet() CapabilitySet {
	return ParseCapabilitySet(u.Capabilities)
}

// RecordLogin stamps the last successful login time
func (u *DirectoryUser) RecordLogin() {
	now := time.Now()
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// Deactivate disables the login entry
func (u *DirectoryUser) Deactivate() {
	u.Active = false
	u.UpdatedAt = time.Now()
}
