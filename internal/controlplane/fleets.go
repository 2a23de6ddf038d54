package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/quota"
	"github.com/streamspace-dev/ringforge/internal/validator"
)

func (s *server) createFleet(c *gin.Context) {
	var req createFleetRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	tenantID := c.Param("id")

	tenant, terr := s.deps.Tenants.Get(c.Request.Context(), tenantID)
	if terr != nil {
		respondError(c, terr)
		return
	}
	if _, qerr := s.deps.Quota.CheckAndIncrement(c.Request.Context(), tenantID, tenant.Plan, quota.CounterFleets, 1); qerr != nil {
		errors.AbortWithError(c, qerr)
		return
	}

	f, err := s.deps.Fleets.Create(c.Request.Context(), tenantID, req.Name)
	if err != nil {
		_ = s.deps.Quota.Decrement(c.Request.Context(), tenantID, quota.CounterFleets, 1)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toFleetResponse(f))
}

func (s *server) listFleets(c *gin.Context) {
	fs, err := s.deps.Fleets.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]fleetResponse, 0, len(fs))
	for _, f := range fs {
		out = append(out, toFleetResponse(f))
	}
	c.JSON(http.StatusOK, gin.H{"fleets": out})
}

func (s *server) deleteFleet(c *gin.Context) {
	tenantID := c.Param("id")
	if err := s.deps.Fleets.Delete(c.Request.Context(), tenantID, c.Param("fleetID")); err != nil {
		respondError(c, err)
		return
	}
	_ = s.deps.Quota.Decrement(c.Request.Context(), tenantID, quota.CounterFleets, 1)
	c.Status(http.StatusNoContent)
}

func toFleetResponse(f *ports.Fleet) fleetResponse {
	return fleetResponse{ID: f.ID, TenantID: f.TenantID, Name: f.Name, CreatedAt: f.CreatedAt}
}
