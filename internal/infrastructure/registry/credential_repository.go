package registry

import (
	"context"
	"errors"
	"time"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormCredentialRepository implements directory.CredentialRepository on the
// landlord registry database
type GormCredentialRepository struct {
	db *gorm.DB
}

var _ directory.CredentialRepository = (*GormCredentialRepository)(nil)

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// FindByTokenHash finds a credential by the SHA-256 hash of its token.
// This is the hot path of every authenticated request; the token_hash
// column carries a unique index.
func (r *GormCredentialRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*directory.AccessCredential, error) {
	if tokenHash == "" {
		return nil, shared.ErrCredentialInvalid
	}
	var cred directory.AccessCredential
	if err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrCredentialInvalid
		}
		return nil, err
	}
	return &cred, nil
}

// Save creates or updates a credential
func (r *GormCredentialRepository) Save(ctx context.Context, cred *directory.AccessCredential) error {
	return r.db.WithContext(ctx).Save(cred).Error
}

// RevokeByTokenHash marks the credential revoked. Revoking an unknown
// hash is not an error so logout stays idempotent.
func (r *GormCredentialRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Model(&directory.AccessCredential{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Update("revoked_at", time.Now().UTC()).Error
}

// DeleteExpired removes credentials that expired or were revoked, returning
// the number of rows reclaimed
func (r *GormCredentialRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("(expires_at IS NOT NULL AND expires_at < ?) OR revoked_at IS NOT NULL", time.Now().UTC()).
		Delete(&directory.AccessCredential{})
	return result.RowsAffected, result.Error
}
