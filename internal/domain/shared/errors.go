package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Tenancy and fiscal error codes. These are the correctness-critical failures
// of the core: they must never be downgraded to a generic error on the way out.
const (
	CodeTenantNotFound     = "TENANT_NOT_FOUND"
	CodeTenantInactive     = "TENANT_INACTIVE"
	CodeCredentialInvalid  = "CREDENTIAL_INVALID"
	CodeCredentialExpired  = "CREDENTIAL_EXPIRED"
	CodeDatastoreBind      = "DATASTORE_BIND_FAILED"
	CodeSeriesLockTimeout  = "SERIES_LOCK_TIMEOUT"
	CodeSeriesHalted       = "SERIES_HALTED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeHashChainMismatch  = "HASH_CHAIN_MISMATCH"
	CodeDuplicateSequence  = "DUPLICATE_SEQUENCE"
	CodeCapabilityRequired = "CAPABILITY_REQUIRED"
)

var (
	// ErrTenantNotFound is returned when a credential or host resolves to no tenant
	ErrTenantNotFound = NewDomainError(CodeTenantNotFound, "Tenant not found")
	// ErrTenantInactive is returned when the resolved tenant has been deactivated
	ErrTenantInactive = NewDomainError(CodeTenantInactive, "Tenant is inactive")
	// ErrCredentialInvalid is returned for malformed or unknown access credentials
	ErrCredentialInvalid = NewDomainError(CodeCredentialInvalid, "Access credential is invalid")
	// ErrCredentialExpired is returned for expired or revoked access credentials
	ErrCredentialExpired = NewDomainError(CodeCredentialExpired, "Access credential has expired")
	// ErrSeriesLockTimeout is returned when the per-series critical section
	// cannot be acquired within the emitting transaction's lock timeout
	ErrSeriesLockTimeout = NewDomainError(CodeSeriesLockTimeout, "Timed out waiting for the series lock")
	// ErrHashChainMismatch signals a data-integrity alarm on a document series
	ErrHashChainMismatch = NewDomainError(CodeHashChainMismatch, "Document hash chain mismatch detected")
	// ErrDuplicateSequence should be structurally impossible; it is a fatal integrity error
	ErrDuplicateSequence = NewDomainError(CodeDuplicateSequence, "Duplicate document sequence number")
)

// NewInvalidTransition builds the typed error for a rejected document state
// transition, naming the attempted transition and the blocking condition.
func NewInvalidTransition(from, to, blocking string) *DomainError {
	return NewDomainError(CodeInvalidTransition,
		"Invalid transition "+from+" -> "+to+": "+blocking)
}
