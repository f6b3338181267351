package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/infrastructure/auth"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/facturo/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CredentialResolver maps a raw bearer token to its tenant and credential
type CredentialResolver interface {
	ResolveCredential(ctx context.Context, rawToken string) (*directory.Tenant, *directory.AccessCredential, error)
}

// SlugResolver maps a host subdomain slug to its tenant
type SlugResolver interface {
	ResolveSlug(ctx context.Context, slug string) (*directory.Tenant, error)
}

// DatastoreBinder binds a resolved tenant to its datastore handle
type DatastoreBinder interface {
	Bind(ctx context.Context, tenant *directory.Tenant) (*gorm.DB, error)
}

// TenancyConfig configures the tenancy middleware
type TenancyConfig struct {
	Resolver CredentialResolver
	// Slugs resolves subdomain-only requests; nil disables the host path
	Slugs  SlugResolver
	Binder DatastoreBinder
	// BaseDomain is the apex under which tenant subdomains resolve. Empty
	// disables host-based resolution.
	BaseDomain string
	// PublicPaths bypass credential resolution entirely
	PublicPaths []string
	Logger      *zap.Logger
}

// DefaultPublicPaths are the routes reachable without a credential
var DefaultPublicPaths = []string{
	"/health",
	"/api/v1/auth/login",
	"/api/v1/auth/register",
}

// Tenancy is the authentication and tenant-binding middleware. It resolves
// the request to exactly one tenant - by bearer token for API traffic, by
// host subdomain for browser traffic - binds the tenant's datastore and
// stores the TenancyContext in the request context. Everything downstream
// reads the tenant exclusively from there; a request that fails here never
// touches a tenant datastore. A subdomain-only request carries no
// credential, so it reaches only routes without a capability gate.
func Tenancy(cfg TenancyConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	public := cfg.PublicPaths
	if public == nil {
		public = DefaultPublicPaths
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range public {
			if path == p || strings.HasPrefix(path, p+"/") {
				c.Next()
				return
			}
		}

		ctx := c.Request.Context()
		rawToken := bearerToken(c)
		slug := hostSlug(c.Request.Host, cfg.BaseDomain)

		var (
			tenant *directory.Tenant
			cred   *directory.AccessCredential
			err    error
		)
		switch {
		case rawToken != "":
			tenant, cred, err = cfg.Resolver.ResolveCredential(ctx, rawToken)
			if err != nil {
				// The prefix is safe to log; the token itself never is
				log.Warn("Request authentication failed",
					zap.String("token_prefix", auth.SafePrefix(rawToken)),
					zap.String("path", path),
					zap.String("client_ip", c.ClientIP()))
				abortWithDomainError(c, err)
				return
			}
			// Token and subdomain must name the same tenant
			if slug != "" && slug != tenant.Slug {
				log.Warn("Credential tenant does not match request host",
					zap.String("tenant_id", tenant.ID.String()),
					zap.String("host_slug", slug))
				abortWithDomainError(c, shared.ErrTenantNotFound)
				return
			}
		case slug != "" && cfg.Slugs != nil:
			tenant, err = cfg.Slugs.ResolveSlug(ctx, slug)
			if err != nil {
				log.Warn("Host resolution failed",
					zap.String("host_slug", slug),
					zap.String("path", path))
				abortWithDomainError(c, err)
				return
			}
		default:
			abortWithDomainError(c, shared.ErrCredentialInvalid)
			return
		}

		db, err := cfg.Binder.Bind(ctx, tenant)
		if err != nil {
			log.Error("Tenant datastore bind failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err))
			abortWithDomainError(c, err)
			return
		}

		tcx := &tenancy.TenancyContext{
			TenantID:  tenant.ID,
			DB:        db,
			RequestID: GetRequestID(c),
		}
		if cred != nil {
			tcx.CallerID = cred.UserID
			tcx.Capabilities = cred.CapabilitySet()
		}
		c.Request = c.Request.WithContext(tenancy.NewContext(ctx, tcx))
		c.Set("tenant_id", tenant.ID.String())
		c.Set("tenant_slug", tenant.Slug)
		c.Next()
	}
}

// RequireCapability gates a route on one capability of the authenticated
// credential
func RequireCapability(capability directory.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		tcx := tenancy.FromContext(c.Request.Context())
		if tcx == nil {
			abortWithDomainError(c, shared.ErrCredentialInvalid)
			return
		}
		if !tcx.HasCapability(capability) {
			abortWithDomainError(c, shared.NewDomainError(shared.CodeCapabilityRequired,
				"Credential lacks capability "+string(capability)))
			return
		}
		c.Next()
	}
}

// hostSlug extracts the tenant slug from a request host of the form
// <slug>.<base domain>. Hosts outside the base domain, the apex itself and
// nested subdomains yield "".
func hostSlug(host, baseDomain string) string {
	if baseDomain == "" {
		return ""
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	slug, found := strings.CutSuffix(host, "."+baseDomain)
	if !found || slug == "" || strings.Contains(slug, ".") {
		return ""
	}
	return slug
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func abortWithDomainError(c *gin.Context, err error) {
	code := dto.ErrCodeInternal
	message := "An unexpected error occurred"
	if derr, ok := err.(*shared.DomainError); ok {
		code = derr.Code
		message = derr.Message
	}
	status := dto.GetHTTPStatus(code)
	if status == http.StatusInternalServerError && code == dto.ErrCodeInternal {
		message = "An unexpected error occurred"
	}
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message, GetRequestID(c)))
}
