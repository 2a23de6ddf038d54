package controlplane

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/ringforge/internal/apikey"
	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// adminAuth validates the bearer API key against the store, requires it be
// an admin-scoped key, and binds its tenant onto the gin context so
// handlers and the audit logger can read it without a second lookup. A
// request for :id must belong to the key's own tenant, except for
// tenant-creation which has no :id yet.
func adminAuth(store ports.TenantStore) gin.HandlerFunc {
	keyStore, ok := store.(ports.APIKeyStore)
	if !ok {
		panic("controlplane: store does not implement APIKeyStore")
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		plaintext := strings.TrimPrefix(header, "Bearer ")
		if plaintext == "" || plaintext == header {
			errors.AbortWithError(c, errors.Unauthorized("missing bearer admin key"))
			return
		}
		if err := apikey.ValidateFormat(plaintext); err != nil {
			errors.AbortWithError(c, errors.Unauthorized("malformed api key"))
			return
		}

		rec, err := keyStore.GetAPIKeyByPrefix(c.Request.Context(), apikey.Prefix(plaintext))
		if err != nil || rec == nil || !apikey.Compare(plaintext, rec.Hash) {
			errors.AbortWithError(c, errors.Unauthorized("invalid api key"))
			return
		}
		if rec.Type != apikey.TypeAdmin {
			errors.AbortWithError(c, errors.Forbidden("key is not admin-scoped"))
			return
		}
		if !apikey.Live(rec, time.Now()) {
			errors.AbortWithError(c, errors.Unauthorized("api key revoked or expired"))
			return
		}

		if id := c.Param("id"); id != "" && id != rec.TenantID {
			errors.AbortWithError(c, errors.Forbidden("admin key scoped to a different tenant"))
			return
		}

		c.Set("actor", rec.ID)
		c.Set("tenant_id", rec.TenantID)
		c.Next()
	}
}
