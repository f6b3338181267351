package handler

import (
	appdirectory "github.com/facturo/backend/internal/application/directory"
	"github.com/gin-gonic/gin"
)

// TenantHandler handles tenant administration endpoints. All routes are
// gated on the tenant:admin capability by the router.
type TenantHandler struct {
	BaseHandler
	tenantService *appdirectory.TenantService
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenantService *appdirectory.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// Provision registers a tenant and initializes its datastore schema
func (h *TenantHandler) Provision(c *gin.Context) {
	var req appdirectory.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid tenant payload: "+err.Error())
		return
	}

	tenant, err := h.tenantService.Provision(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tenant)
}

// List returns registered tenants with pagination
func (h *TenantHandler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid list parameters: "+err.Error())
		return
	}

	tenants, total, err := h.tenantService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, tenants, total, filter.Page, filter.PageSize)
}

// Get returns a single tenant by id
func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid tenant id")
		return
	}

	tenant, err := h.tenantService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// Rename updates a tenant's display name
func (h *TenantHandler) Rename(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid tenant id")
		return
	}
	var req appdirectory.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid tenant payload: "+err.Error())
		return
	}

	tenant, err := h.tenantService.Rename(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// Deactivate suspends a tenant and evicts its pooled datastore handle
func (h *TenantHandler) Deactivate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid tenant id")
		return
	}
	if err := h.tenantService.Deactivate(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Tenant deactivated"})
}

// Activate re-activates a suspended tenant
func (h *TenantHandler) Activate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid tenant id")
		return
	}
	if err := h.tenantService.Activate(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Tenant activated"})
}

// Remove deletes a deactivated tenant's registry row
func (h *TenantHandler) Remove(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid tenant id")
		return
	}
	if err := h.tenantService.Remove(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
