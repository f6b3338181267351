package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormUserRepository implements directory.UserRepository on the landlord
// registry database. The directory user table exists so a login can find
// its tenant with one indexed read instead of probing tenant datastores.
type GormUserRepository struct {
	db *gorm.DB
}

var _ directory.UserRepository = (*GormUserRepository)(nil)

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// FindByEmail finds a directory user by email
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*directory.DirectoryUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, shared.ErrNotFound
	}
	var user directory.DirectoryUser
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByID finds a directory user by ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*directory.DirectoryUser, error) {
	var user directory.DirectoryUser
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByTenant lists directory users belonging to a tenant
func (r *GormUserRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]directory.DirectoryUser, error) {
	var users []directory.DirectoryUser
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("email ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Save creates or updates a directory user
func (r *GormUserRepository) Save(ctx context.Context, user *directory.DirectoryUser) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// Delete removes a directory user
func (r *GormUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&directory.DirectoryUser{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ExistsByEmail checks if an email is already registered
func (r *GormUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&directory.DirectoryUser{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
