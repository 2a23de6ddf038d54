// Package controlplane implements the admin HTTP surface: tenant, fleet,
// and API-key lifecycle management plus usage reporting and health checks,
// authenticated by admin API keys.
package controlplane

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/ringforge/internal/agent"
	"github.com/streamspace-dev/ringforge/internal/cache"
	apperrors "github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/fleet"
	"github.com/streamspace-dev/ringforge/internal/middleware"
	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/quota"
	"github.com/streamspace-dev/ringforge/internal/tenant"
)

// Deps bundles every collaborator the control plane dispatches into.
type Deps struct {
	Store       ports.MetadataStore
	Audit       ports.AuditSink
	Tenants     *tenant.Service
	Fleets      *fleet.Service
	Agents      *agent.Service
	Quota       *quota.Gate
	Cache       *cache.Cache
	DBPing      func(ctx context.Context) error
	AuditBodies bool
	// AdminRateLimitPerSec/AdminRateLimitBurst configure the per-IP token
	// bucket guarding the admin surface. Zero means "use the package
	// default" rather than "disabled" — an admin API with no rate limit at
	// all is not a supported configuration.
	AdminRateLimitPerSec float64
	AdminRateLimitBurst  int
}

// NewRouter assembles the gin engine with its middleware chain in order:
// request ID, recovery, structured logging, timeout, per-IP rate limiting,
// method restriction, security headers, input validation, size limit,
// audit logging, compression.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()

	perSec, burst := deps.AdminRateLimitPerSec, deps.AdminRateLimitBurst
	if perSec <= 0 {
		perSec = 10
	}
	if burst <= 0 {
		burst = 20
	}

	router.Use(middleware.RequestID())
	router.Use(apperrors.Recovery())
	router.Use(middleware.StructuredLoggerWithConfigFunc(middleware.DefaultStructuredLoggerConfig()))
	router.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	router.Use(middleware.NewRateLimiter(perSec, burst).Middleware())
	router.Use(middleware.AllowedHTTPMethods())
	router.Use(middleware.SecurityHeaders())

	inputValidator := middleware.NewInputValidator()
	router.Use(inputValidator.Middleware())
	router.Use(inputValidator.SanitizeJSONMiddleware())
	router.Use(middleware.RequestSizeLimiter(1 << 20))

	auditLogger := middleware.NewAuditLogger(deps.Audit, deps.AuditBodies)
	router.Use(auditLogger.Middleware())
	router.Use(middleware.GzipWithExclusions(middleware.DefaultCompression, []string{"/health"}))

	router.GET("/health", healthHandler)
	router.GET("/health/live", healthHandler)
	router.GET("/health/ready", readyHandler(deps))

	s := &server{deps: deps}

	v1 := router.Group("/api/v1")
	v1.Use(adminAuth(deps.Store))
	{
		v1.POST("/tenants", s.createTenant)
		v1.GET("/tenants/:id", s.getTenant)
		v1.PATCH("/tenants/:id", s.updateTenant)

		v1.POST("/tenants/:id/fleets", s.createFleet)
		v1.GET("/tenants/:id/fleets", s.listFleets)
		v1.DELETE("/tenants/:id/fleets/:fleetID", s.deleteFleet)

		v1.POST("/tenants/:id/keys", s.mintKey)
		v1.POST("/keys/:keyID/rotate", s.rotateKey)
		v1.DELETE("/keys/:keyID", s.revokeKey)

		v1.GET("/tenants/:id/usage", s.usage)
		v1.GET("/tenants/:id/agents", s.listAgents)
	}

	return router
}

type server struct {
	deps Deps
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if deps.DBPing != nil {
			if err := deps.DBPing(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "database"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		apperrors.AbortWithError(c, appErr)
		return
	}
	apperrors.AbortWithError(c, apperrors.InternalServer(err.Error()))
}
