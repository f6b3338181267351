package dto

import (
	"net/http"

	"github.com/facturo/backend/internal/domain/shared"
)

// General error codes used by the HTTP layer itself
const (
	ErrCodeInternal    = "INTERNAL_ERROR"
	ErrCodeBadRequest  = "BAD_REQUEST"
	ErrCodeInvalidJSON = "INVALID_JSON"
	ErrCodeRateLimited = "RATE_LIMIT_EXCEEDED"
	ErrCodeTooLarge    = "REQUEST_TOO_LARGE"
)

// errorCodeHTTPStatus maps domain error codes to HTTP status codes. The
// tenancy and fiscal integrity codes get deliberate statuses: a halted
// series is 423 Locked (the resource exists but refuses writes), a failed
// datastore bind is 502 (the platform, not the caller, is at fault), and a
// hash chain mismatch is 500 because it signals our own data is no longer
// trustworthy.
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeInvalidJSON: http.StatusBadRequest,
	ErrCodeRateLimited: http.StatusTooManyRequests,
	ErrCodeTooLarge:    http.StatusRequestEntityTooLarge,

	"NOT_FOUND":            http.StatusNotFound,
	"ALREADY_EXISTS":       http.StatusConflict,
	"INVALID_INPUT":        http.StatusBadRequest,
	"CONCURRENCY_CONFLICT": http.StatusConflict,
	"UNAUTHORIZED":         http.StatusUnauthorized,
	"FORBIDDEN":            http.StatusForbidden,
	"INVALID_STATE":        http.StatusUnprocessableEntity,

	shared.CodeTenantNotFound:     http.StatusNotFound,
	shared.CodeTenantInactive:     http.StatusForbidden,
	shared.CodeCredentialInvalid:  http.StatusUnauthorized,
	shared.CodeCredentialExpired:  http.StatusUnauthorized,
	shared.CodeDatastoreBind:      http.StatusBadGateway,
	shared.CodeSeriesLockTimeout:  http.StatusServiceUnavailable,
	shared.CodeSeriesHalted:       http.StatusLocked,
	shared.CodeInvalidTransition:  http.StatusUnprocessableEntity,
	shared.CodeHashChainMismatch:  http.StatusInternalServerError,
	shared.CodeDuplicateSequence:  http.StatusInternalServerError,
	shared.CodeCapabilityRequired: http.StatusForbidden,

	"TENANT_ACTIVE":         http.StatusConflict,
	"INVALID_DOCUMENT":      http.StatusBadRequest,
	"INVALID_CURRENCY":      http.StatusBadRequest,
	"INVALID_DOCUMENT_TYPE": http.StatusBadRequest,
	"INVALID_LINE":          http.StatusBadRequest,
	"INVALID_SETTLEMENT":    http.StatusUnprocessableEntity,
	"INVALID_CANCEL_REASON": http.StatusBadRequest,
	"INVALID_ORIGIN":        http.StatusUnprocessableEntity,
	"INVALID_RELATION":      http.StatusBadRequest,
	"INVALID_EMAIL":         http.StatusBadRequest,
	"INVALID_CODE":          http.StatusBadRequest,
	"INVALID_NAME":          http.StatusBadRequest,
	"INVALID_FISCAL_ID":     http.StatusBadRequest,
	"INVALID_CONTACT_NAME":  http.StatusBadRequest,
	"INVALID_PHONE":         http.StatusBadRequest,
	"INVALID_CUSTOMER_TYPE": http.StatusBadRequest,
	"INVALID_SLUG":          http.StatusBadRequest,
	"INVALID_LOCATOR":       http.StatusBadRequest,
	"ALREADY_INACTIVE":      http.StatusConflict,
	"ALREADY_ACTIVE":        http.StatusConflict,
	"ALREADY_EMITTED":       http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status for a domain error code, defaulting
// to 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
