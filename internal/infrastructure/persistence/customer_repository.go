package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/facturo/backend/internal/domain/partner"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCustomerRepository implements partner.CustomerRepository on the
// tenant datastore
type GormCustomerRepository struct{}

var _ partner.CustomerRepository = (*GormCustomerRepository)(nil)

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository() *GormCustomerRepository {
	return &GormCustomerRepository{}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.Customer, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var customer partner.Customer
	if err := db.First(&customer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

// FindByCode finds a customer by its unique code
func (r *GormCustomerRepository) FindByCode(ctx context.Context, code string) (*partner.Customer, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var customer partner.Customer
	if err := db.
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

// FindAll finds all customers matching the filter
func (r *GormCustomerRepository) FindAll(ctx context.Context, filter shared.Filter) ([]partner.Customer, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var customers []partner.Customer
	query := db.Model(&partner.Customer{})

	if filter.Search != "" {
		keyword := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR code LIKE ? OR fiscal_id LIKE ?", keyword, keyword, keyword)
	}

	sortField := validateSortField(filter.OrderBy, customerSortFields, "created_at")
	sortOrder := validateSortOrder(filter.OrderDir)
	query = query.Order(sortField + " " + sortOrder)

	limit := filter.PageSize
	if limit <= 0 {
		limit = 20
	}
	query = query.Offset(filter.Offset()).Limit(limit)

	if err := query.Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

// Save creates or updates a customer
func (r *GormCustomerRepository) Save(ctx context.Context, customer *partner.Customer) error {
	db, err := tenantDB(ctx)
	if err != nil {
		return err
	}
	return db.Save(customer).Error
}

// Delete removes a customer
func (r *GormCustomerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := tenantDB(ctx)
	if err != nil {
		return err
	}
	result := db.Delete(&partner.Customer{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts customers matching the filter
func (r *GormCustomerRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	query := db.Model(&partner.Customer{})
	if filter.Search != "" {
		keyword := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR code LIKE ?", keyword, keyword)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByCode checks if a customer with the given code exists
func (r *GormCustomerRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&partner.Customer{}).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
