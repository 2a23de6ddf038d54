package controlplane

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/apikey"
	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/validator"
)

func (s *server) mintKey(c *gin.Context) {
	var req mintKeyRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	tenantID := c.Param("id")

	minted, err := apikey.Mint()
	if err != nil {
		errors.AbortWithError(c, errors.InternalServer("unable to mint key"))
		return
	}

	var expiresAt *time.Time
	if req.TTL != "" {
		d, perr := time.ParseDuration(req.TTL)
		if perr != nil {
			errors.AbortWithError(c, errors.InvalidMessage("invalid ttl duration"))
			return
		}
		exp := time.Now().Add(d)
		expiresAt = &exp
	}

	rec := &ports.APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		FleetID:   req.FleetID,
		Type:      req.Type,
		Prefix:    minted.Prefix,
		Hash:      minted.Hash,
		ExpiresAt: expiresAt,
		CreatedAt: minted.CreatedAt,
	}
	if err := s.deps.Store.CreateAPIKey(c.Request.Context(), rec); err != nil {
		respondError(c, errors.DatabaseError(err))
		return
	}

	c.JSON(http.StatusCreated, mintKeyResponse{
		ID: rec.ID, Key: minted.Plaintext, Prefix: rec.Prefix, Type: rec.Type, ExpiresAt: expiresAt,
	})
}

// rotateKey mints a fresh key sharing the same tenant/fleet/type as the
// one being rotated, then revokes the old one before responding: the old
// key stops authenticating as soon as this request succeeds.
func (s *server) rotateKey(c *gin.Context) {
	keyID := c.Param("keyID")
	tenantID, _ := c.Get("tenant_id")

	keys, err := s.deps.Store.ListAPIKeys(c.Request.Context(), tenantID.(string))
	if err != nil {
		respondError(c, errors.DatabaseError(err))
		return
	}
	var old *ports.APIKey
	for _, k := range keys {
		if k.ID == keyID {
			old = k
			break
		}
	}
	if old == nil {
		errors.AbortWithError(c, errors.NotFound("api key"))
		return
	}

	minted, merr := apikey.Mint()
	if merr != nil {
		errors.AbortWithError(c, errors.InternalServer("unable to mint key"))
		return
	}
	rec := &ports.APIKey{
		ID:        uuid.NewString(),
		TenantID:  old.TenantID,
		FleetID:   old.FleetID,
		Type:      old.Type,
		Prefix:    minted.Prefix,
		Hash:      minted.Hash,
		ExpiresAt: old.ExpiresAt,
		CreatedAt: minted.CreatedAt,
	}
	if err := s.deps.Store.CreateAPIKey(c.Request.Context(), rec); err != nil {
		respondError(c, errors.DatabaseError(err))
		return
	}
	if err := s.deps.Store.RevokeAPIKey(c.Request.Context(), old.ID); err != nil {
		respondError(c, errors.DatabaseError(err))
		return
	}

	c.JSON(http.StatusCreated, mintKeyResponse{
		ID: rec.ID, Key: minted.Plaintext, Prefix: rec.Prefix, Type: rec.Type, ExpiresAt: rec.ExpiresAt,
	})
}

func (s *server) revokeKey(c *gin.Context) {
	keyID := c.Param("keyID")
	tenantID, _ := c.Get("tenant_id")

	keys, err := s.deps.Store.ListAPIKeys(c.Request.Context(), tenantID.(string))
	if err != nil {
		respondError(c, errors.DatabaseError(err))
		return
	}
	found := false
	for _, k := range keys {
		if k.ID == keyID {
			found = true
			break
		}
	}
	if !found {
		errors.AbortWithError(c, errors.NotFound("api key"))
		return
	}

	if err := s.deps.Store.RevokeAPIKey(c.Request.Context(), keyID); err != nil {
		respondError(c, errors.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}
