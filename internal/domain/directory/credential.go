package directory

import (
	"time"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AccessCredential is the landlord-side record of one issued opaque bearer
// token. Only the SHA-256 hash of the token is stored; the raw token is
// returned to the caller exactly once, at login. The credential is the
// sole authenticated link between an API request and a tenant.
type AccessCredential struct {
	shared.BaseEntity
	TokenHash    string     `gorm:"type:char(64);not null;uniqueIndex"`
	TokenPrefix  string     `gorm:"type:varchar(8);not null"`
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Capabilities string     `gorm:"type:text;not null"`
	IssuedAt     time.Time  `gorm:"not null"`
	ExpiresAt    *time.Time `gorm:"index"`
	RevokedAt    *time.Time
}

// TableName returns the table name for GORM
func (AccessCredential) TableName() string {
	return "access_credentials"
}

// NewAccessCredential creates a credential record for an already-hashed token.
// A zero ttl means the credential never expires.
func NewAccessCredential(tokenHash, tokenPrefix string, tenantID, userID uuid.UUID, caps CapabilitySet, ttl time.Duration) (*AccessCredential, error) {
	if len(tokenHash) != 64 {
		return nil, shared.NewDomainError("INVALID_TOKEN_HASH", "Token hash must be a 64-character SHA-256 hex digest")
	}
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT_ID", "Tenant ID cannot be empty")
	}

	now := time.Now()
	cred := &AccessCredential{
		BaseEntity:   shared.NewBaseEntity(),
		TokenHash:    tokenHash,
		TokenPrefix:  tokenPrefix,
		TenantID:     tenantID,
		UserID:       userID,
		Capabilities: caps.String(),
		IssuedAt:     now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		cred.ExpiresAt = &expires
	}
	return cred, nil
}

// CapabilitySet returns the parsed capability set of the credential
func (c *AccessCredential) CapabilitySet() CapabilitySet {
	return ParseCapabilitySet(c.Capabilities)
}

// IsExpired returns true if the credential has passed its expiry
func (c *AccessCredential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// IsRevoked returns true if the credential was explicitly revoked
func (c *AccessCredential) IsRevoked() bool {
	return c.RevokedAt != nil
}

// Revoke marks the credential revoked (logout)
func (c *AccessCredential) Revoke() {
	if c.RevokedAt != nil {
		return
	}
	now := time.Now()
	c.RevokedAt = &now
	c.UpdatedAt = now
}

// Validate checks that the credential is currently usable
func (c *AccessCredential) Validate(now time.Time) error {
	if c.IsRevoked() || c.IsExpired(now) {
		return shared.ErrCredentialExpired
	}
	return nil
}
