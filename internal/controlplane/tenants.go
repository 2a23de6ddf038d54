package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/validator"
)

func (s *server) createTenant(c *gin.Context) {
	var req createTenantRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	t, err := s.deps.Tenants.Create(c.Request.Context(), req.Plan, req.Email, "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTenantResponse(t))
}

func (s *server) getTenant(c *gin.Context) {
	t, err := s.deps.Tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTenantResponse(t))
}

func (s *server) updateTenant(c *gin.Context) {
	var req updateTenantRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	t, err := s.deps.Tenants.UpdatePlan(c.Request.Context(), c.Param("id"), req.Plan)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTenantResponse(t))
}

func toTenantResponse(t *ports.Tenant) tenantResponse {
	return tenantResponse{
		ID:        t.ID,
		Plan:      t.Plan,
		Email:     t.Email,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
