package tenancy

import (
	"context"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenancyContext is the request-scoped carrier of the resolved tenant and
// its bound datastore handle. It is created once per request, immediately
// after binding, and passed explicitly to every downstream operation. No
// subsystem may read "the current tenant" from anywhere else; there is no
// ambient or global current-connection state.
type TenancyContext struct {
	TenantID     uuid.UUID
	DB           *gorm.DB
	CallerID     uuid.UUID
	RequestID    string
	Capabilities directory.CapabilitySet
}

// HasCapability reports whether the caller holds the capability
func (t *TenancyContext) HasCapability(c directory.Capability) bool {
	return t.Capabilities.Has(c)
}

type contextKey struct{}

// NewContext stores the tenancy context in ctx
func NewContext(ctx context.Context, tcx *TenancyContext) context.Context {
	return context.WithValue(ctx, contextKey{}, tcx)
}

// FromContext retrieves the tenancy context, or nil when the request was
// not bound to a tenant (public routes)
func FromContext(ctx context.Context) *TenancyContext {
	tcx, _ := ctx.Value(contextKey{}).(*TenancyContext)
	return tcx
}

// MustFromContext retrieves the tenancy context or fails with the typed
// bind error. Tenant-scoped repositories call this to obtain the only
// datastore handle they are allowed to use.
func MustFromContext(ctx context.Context) (*TenancyContext, error) {
	tcx := FromContext(ctx)
	if tcx == nil || tcx.DB == nil {
		return nil, shared.NewDomainError(shared.CodeDatastoreBind, "No tenant datastore bound to request")
	}
	return tcx, nil
}
