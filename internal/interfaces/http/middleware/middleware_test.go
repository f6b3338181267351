package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.NotEmpty(t, w.Body.String())
		assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
	})

	t.Run("honors a caller-supplied id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", "trace-me-123")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, "trace-me-123", w.Body.String())
	})

	t.Run("replaces an oversized id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.NotEqual(t, strings.Repeat("x", 200), w.Body.String())
	})
}

func TestCORS(t *testing.T) {
	newEngine := func(cfg CORSConfig) *gin.Engine {
		engine := gin.New()
		engine.Use(CORSWithConfig(cfg))
		engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		return engine
	}

	t.Run("default config allows no origins", func(t *testing.T) {
		engine := newEngine(DefaultCORSConfig())
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed origin is echoed", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"https://app.example"}
		engine := newEngine(cfg)

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "https://app.example")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"*"}
		engine := newEngine(cfg)

		req := httptest.NewRequest("OPTIONS", "/", nil)
		req.Header.Set("Origin", "https://app.example")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestBodyLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(BodyLimit(16))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 64)))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	engine := gin.New()
	engine.Use(RateLimit(limiter))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	limiter.Stop()
	limiter.Stop() // idempotent
}

type stubResolver struct {
	tenant *directory.Tenant
	cred   *directory.AccessCredential
	err    error
}

func (s *stubResolver) ResolveCredential(ctx context.Context, rawToken string) (*directory.Tenant, *directory.AccessCredential, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.tenant, s.cred, nil
}

type stubSlugResolver struct {
	tenant *directory.Tenant
	err    error
}

func (s *stubSlugResolver) ResolveSlug(ctx context.Context, slug string) (*directory.Tenant, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tenant, nil
}

type stubBinder struct {
	db  *gorm.DB
	err error
}

func (s *stubBinder) Bind(ctx context.Context, tenant *directory.Tenant) (*gorm.DB, error) {
	return s.db, s.err
}

func tenancyEngine(resolver CredentialResolver, binder DatastoreBinder) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID())
	engine.Use(Tenancy(TenancyConfig{Resolver: resolver, Binder: binder}))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/api/v1/documents", func(c *gin.Context) {
		tcx := tenancy.FromContext(c.Request.Context())
		if tcx == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, tcx.TenantID.String())
	})
	return engine
}

func TestTenancyMiddleware(t *testing.T) {
	tenant := &directory.Tenant{}
	tenant.ID = uuid.New()
	cred := &directory.AccessCredential{
		UserID:       uuid.New(),
		Capabilities: directory.DefaultCapabilities.String(),
	}

	t.Run("public paths bypass resolution", func(t *testing.T) {
		engine := tenancyEngine(&stubResolver{err: shared.ErrCredentialInvalid}, &stubBinder{})
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		engine := tenancyEngine(&stubResolver{tenant: tenant, cred: cred}, &stubBinder{db: &gorm.DB{}})
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/documents", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("resolved tenant lands in the request context", func(t *testing.T) {
		engine := tenancyEngine(&stubResolver{tenant: tenant, cred: cred}, &stubBinder{db: &gorm.DB{}})
		req := httptest.NewRequest("GET", "/api/v1/documents", nil)
		req.Header.Set("Authorization", "Bearer fct_sometoken")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenant.ID.String(), w.Body.String())
	})

	t.Run("subdomain resolves the tenant for browser traffic", func(t *testing.T) {
		browserTenant := &directory.Tenant{Slug: "acme"}
		browserTenant.ID = uuid.New()

		engine := gin.New()
		engine.Use(RequestID())
		engine.Use(Tenancy(TenancyConfig{
			Resolver:   &stubResolver{err: shared.ErrCredentialInvalid},
			Slugs:      &stubSlugResolver{tenant: browserTenant},
			Binder:     &stubBinder{db: &gorm.DB{}},
			BaseDomain: "facturo.test",
		}))
		engine.GET("/api/v1/documents", func(c *gin.Context) {
			tcx := tenancy.FromContext(c.Request.Context())
			require.NotNil(t, tcx)
			assert.Empty(t, tcx.Capabilities, "subdomain traffic carries no credential")
			c.String(http.StatusOK, tcx.TenantID.String())
		})

		req := httptest.NewRequest("GET", "/api/v1/documents", nil)
		req.Host = "acme.facturo.test"
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, browserTenant.ID.String(), w.Body.String())
	})

	t.Run("token and host subdomain must name the same tenant", func(t *testing.T) {
		apiTenant := &directory.Tenant{Slug: "acme"}
		apiTenant.ID = uuid.New()

		engine := gin.New()
		engine.Use(RequestID())
		engine.Use(Tenancy(TenancyConfig{
			Resolver:   &stubResolver{tenant: apiTenant, cred: cred},
			Binder:     &stubBinder{db: &gorm.DB{}},
			BaseDomain: "facturo.test",
		}))
		engine.GET("/api/v1/documents", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("GET", "/api/v1/documents", nil)
		req.Host = "globex.facturo.test"
		req.Header.Set("Authorization", "Bearer fct_sometoken")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bind failure is a gateway error", func(t *testing.T) {
		engine := tenancyEngine(
			&stubResolver{tenant: tenant, cred: cred},
			&stubBinder{err: shared.NewDomainError(shared.CodeDatastoreBind, "unreachable")})
		req := httptest.NewRequest("GET", "/api/v1/documents", nil)
		req.Header.Set("Authorization", "Bearer fct_sometoken")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestHostSlug(t *testing.T) {
	assert.Equal(t, "acme", hostSlug("acme.facturo.test", "facturo.test"))
	assert.Equal(t, "acme", hostSlug("acme.facturo.test:8080", "facturo.test"))
	assert.Empty(t, hostSlug("facturo.test", "facturo.test"), "apex is not a tenant")
	assert.Empty(t, hostSlug("a.b.facturo.test", "facturo.test"), "nested subdomains are rejected")
	assert.Empty(t, hostSlug("evil.example.com", "facturo.test"))
	assert.Empty(t, hostSlug("acme.facturo.test", ""), "empty base domain disables the host path")
}

func TestRequireCapability(t *testing.T) {
	newEngine := func(caps directory.CapabilitySet) *gin.Engine {
		engine := gin.New()
		engine.Use(func(c *gin.Context) {
			tcx := &tenancy.TenancyContext{
				TenantID:     uuid.New(),
				DB:           &gorm.DB{},
				Capabilities: caps,
			}
			c.Request = c.Request.WithContext(tenancy.NewContext(c.Request.Context(), tcx))
			c.Next()
		})
		engine.POST("/emit", RequireCapability(directory.CapabilityFiscalEmit), func(c *gin.Context) {
			c.Status(http.StatusCreated)
		})
		return engine
	}

	t.Run("allows the holder", func(t *testing.T) {
		engine := newEngine(directory.CapabilitySet{directory.CapabilityFiscalEmit})
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("POST", "/emit", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("rejects a credential without the capability", func(t *testing.T) {
		engine := newEngine(directory.CapabilitySet{directory.CapabilityFiscalRead})
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("POST", "/emit", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
