package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/quota"
)

func (s *server) usage(c *gin.Context) {
	tenantID := c.Param("id")
	ctx := c.Request.Context()

	t, err := s.deps.Tenants.Get(ctx, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	concurrent, _ := s.deps.Quota.Usage(ctx, tenantID, quota.CounterConcurrentAgents)
	messages, _ := s.deps.Quota.Usage(ctx, tenantID, quota.CounterMessagesToday)
	memEntries, _ := s.deps.Quota.Usage(ctx, tenantID, quota.CounterMemoryEntries)
	fleets, _ := s.deps.Quota.Usage(ctx, tenantID, quota.CounterFleets)
	storage, _ := s.deps.Quota.Usage(ctx, tenantID, quota.CounterStorageBytes)

	c.JSON(http.StatusOK, usageResponse{
		TenantID:         tenantID,
		Plan:             t.Plan,
		ConcurrentAgents: concurrent,
		MessagesToday:    messages,
		MemoryEntries:    memEntries,
		Fleets:           fleets,
		StorageBytes:     storage,
	})
}

func (s *server) listAgents(c *gin.Context) {
	tenantID := c.Param("id")
	fleetID := c.Query("fleet_id")
	if fleetID == "" {
		fs, err := s.deps.Fleets.List(c.Request.Context(), tenantID)
		if err != nil {
			respondError(c, err)
			return
		}
		var out []agentResponse
		for _, f := range fs {
			as, err := s.deps.Agents.List(c.Request.Context(), tenantID, f.ID)
			if err != nil {
				respondError(c, err)
				return
			}
			for _, a := range as {
				out = append(out, toAgentResponse(a))
			}
		}
		c.JSON(http.StatusOK, gin.H{"agents": out})
		return
	}

	as, err := s.deps.Agents.List(c.Request.Context(), tenantID, fleetID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]agentResponse, 0, len(as))
	for _, a := range as {
		out = append(out, toAgentResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func toAgentResponse(a *ports.Agent) agentResponse {
	return agentResponse{
		ID:           a.ID,
		FleetID:      a.FleetID,
		Name:         a.Name,
		DisplayName:  a.DisplayName,
		Framework:    a.Framework,
		Capabilities: a.Capabilities,
		LastSeenAt:   a.LastSeenAt,
		CreatedAt:    a.CreatedAt,
	}
}
