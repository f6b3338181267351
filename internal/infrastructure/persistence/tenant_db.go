package persistence

import (
	"context"
	"strings"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/domain/partner"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"gorm.io/gorm"
)

// tenantDB returns the tenant datastore handle bound to the request. The
// TenancyContext is the ONLY source of a datastore handle in this package;
// repositories hold no connection of their own, so a repository can never
// outlive or bypass the tenant binding.
func tenantDB(ctx context.Context) (*gorm.DB, error) {
	tcx, err := tenancy.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return tcx.DB.WithContext(ctx), nil
}

// AutoMigrateTenant creates or updates the schema of one tenant datastore.
// It runs at tenant provisioning and is safe to re-run. Note the absence of
// any tenant id column: the datastore itself is the tenant boundary.
func AutoMigrateTenant(db *gorm.DB) error {
	return db.AutoMigrate(
		&fiscal.FiscalDocument{},
		&fiscal.DocumentLine{},
		&fiscal.DocumentRelation{},
		&fiscal.StateChange{},
		&fiscal.SeriesCounter{},
		&partner.Customer{},
	)
}

// validateSortOrder normalizes the sort order to ASC or DESC, defaulting
// to DESC for anything invalid.
func validateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// validateSortField checks the sort field against a whitelist to keep user
// input out of the ORDER BY clause.
func validateSortField(field string, allowed map[string]bool, fallback string) string {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" || !allowed[trimmed] {
		return fallback
	}
	return trimmed
}

var documentSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"updated_at":      true,
	"series":          true,
	"sequence_number": true,
	"state":           true,
	"issue_date":      true,
	"due_date":        true,
	"net_total":       true,
}

var customerSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"code":       true,
	"name":       true,
	"status":     true,
}
