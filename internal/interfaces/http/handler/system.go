package handler

import (
	"net/http"
	"time"

	"github.com/facturo/backend/internal/infrastructure/registry"
	"github.com/gin-gonic/gin"
)

// RegistryHealth is the slice of the landlord registry the health endpoint
// needs
type RegistryHealth interface {
	Ping() error
	Stats() (registry.ConnectionStats, error)
}

// RouterHealth reports the tenant connection pool size
type RouterHealth interface {
	Size() int
}

// SystemHandler serves the unauthenticated health endpoint
type SystemHandler struct {
	BaseHandler
	registry RegistryHealth
	router   RouterHealth
	version  string
	started  time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(reg RegistryHealth, router RouterHealth, version string) *SystemHandler {
	return &SystemHandler{
		registry: reg,
		router:   router,
		version:  version,
		started:  time.Now(),
	}
}

// Health reports service liveness plus registry and tenant-pool status. A
// registry outage degrades the response to 503; tenant pool size is
// informational only.
func (h *SystemHandler) Health(c *gin.Context) {
	status := "ok"
	httpStatus := http.StatusOK

	registryStatus := gin.H{"status": "ok"}
	if h.registry != nil {
		if err := h.registry.Ping(); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			registryStatus = gin.H{"status": "unreachable"}
		} else if stats, err := h.registry.Stats(); err == nil {
			registryStatus["open_connections"] = stats.OpenConnections
			registryStatus["in_use"] = stats.InUse
			registryStatus["idle"] = stats.Idle
		}
	}

	body := gin.H{
		"status":   status,
		"version":  h.version,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"registry": registryStatus,
	}
	if h.router != nil {
		body["tenant_pool"] = gin.H{"bound_handles": h.router.Size()}
	}

	c.JSON(httpStatus, body)
}
