package registry

import "strings"

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

var tenantSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"slug":       true,
	"name":       true,
	"status":     true,
}
