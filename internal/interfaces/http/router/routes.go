package router

import (
	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/interfaces/http/handler"
	"github.com/facturo/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers bundles the handler set mounted by SetupRoutes
type Handlers struct {
	Auth     *handler.AuthHandler
	Tenant   *handler.TenantHandler
	Document *handler.DocumentHandler
	Customer *handler.CustomerHandler
	System   *handler.SystemHandler
}

// SetupRoutes mounts the full API surface. Capability gates are declared
// here, next to the routes they protect, so the whole authorization matrix
// reads in one place.
func SetupRoutes(engine *gin.Engine, h Handlers) {
	engine.GET("/health", h.System.Health)

	r := NewRouter(engine)
	r.Register(authRoutes(h.Auth))
	r.Register(tenantRoutes(h.Tenant))
	r.Register(documentRoutes(h.Document))
	r.Register(seriesRoutes(h.Document))
	r.Register(customerRoutes(h.Customer))
	r.Setup()
}

func authRoutes(h *handler.AuthHandler) *DomainGroup {
	g := NewDomainGroup("auth", "/auth")
	g.POST("/register", h.Register).
		POST("/login", h.Login).
		POST("/logout", h.Logout)
	return g
}

func tenantRoutes(h *handler.TenantHandler) *DomainGroup {
	g := NewDomainGroup("tenants", "/tenants")
	g.Use(middleware.RequireCapability(directory.CapabilityTenantAdmin))
	g.POST("", h.Provision).
		GET("", h.List).
		GET("/:id", h.Get).
		PUT("/:id", h.Rename).
		POST("/:id/deactivate", h.Deactivate).
		POST("/:id/activate", h.Activate).
		DELETE("/:id", h.Remove)
	return g
}

func documentRoutes(h *handler.DocumentHandler) *DomainGroup {
	emit := middleware.RequireCapability(directory.CapabilityFiscalEmit)
	settle := middleware.RequireCapability(directory.CapabilityFiscalSettle)
	cancel := middleware.RequireCapability(directory.CapabilityFiscalCancel)
	read := middleware.RequireCapability(directory.CapabilityFiscalRead)

	g := NewDomainGroup("documents", "/documents")
	g.POST("", emit, h.Emit).
		GET("", read, h.List).
		GET("/number/:series/:number", read, h.GetByNumber).
		GET("/:id", read, h.Get).
		GET("/:id/history", read, h.History).
		GET("/:id/graph", read, h.Graph).
		POST("/:id/settlements", settle, h.Settle).
		POST("/:id/advances", settle, h.ApplyAdvance).
		POST("/:id/cancel", cancel, h.Cancel).
		POST("/:id/convert", emit, h.Convert).
		POST("/:id/credit-note", emit, h.CreditNote).
		POST("/:id/debit-note", emit, h.DebitNote)
	return g
}

func seriesRoutes(h *handler.DocumentHandler) *DomainGroup {
	read := middleware.RequireCapability(directory.CapabilityFiscalRead)
	admin := middleware.RequireCapability(directory.CapabilityTenantAdmin)

	g := NewDomainGroup("series", "/series")
	g.GET("", read, h.ListSeries).
		GET("/:series", read, h.GetSeries).
		GET("/:series/documents", read, h.ListSeriesDocuments).
		POST("/:series/verify", read, h.VerifySeries).
		POST("/:series/halt", admin, h.HaltSeries).
		POST("/:series/reopen", admin, h.ReopenSeries)
	return g
}

func customerRoutes(h *handler.CustomerHandler) *DomainGroup {
	write := middleware.RequireCapability(directory.CapabilityPartnerWrite)
	read := middleware.RequireCapability(directory.CapabilityPartnerRead)

	g := NewDomainGroup("customers", "/customers")
	g.POST("", write, h.Create).
		GET("", read, h.List).
		GET("/code/:code", read, h.GetByCode).
		GET("/:id", read, h.Get).
		PUT("/:id", write, h.Update).
		POST("/:id/deactivate", write, h.Deactivate).
		POST("/:id/activate", write, h.Activate).
		DELETE("/:id", write, h.Delete)
	return g
}
