// Package api exposes the HTTP surface: health, the collaborator-facing
// notify endpoint and the WebSocket route binding.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/dispatch"
	"github.com/mossy-p/storefront-realtime/internal/models"
)

// NotifyRequest selects one dispatch primitive. Target names the identity,
// role or storefront code for the scoped variants and is ignored for the
// broadcast ones.
type NotifyRequest struct {
	Scope  string `json:"scope" binding:"required"`
	Target string `json:"target,omitempty"`
	Event  string `json:"event" binding:"required"`
	Data   any    `json:"data,omitempty"`
}

const (
	ScopeIdentity   = "identity"
	ScopeRole       = "role"
	ScopeAdmins     = "admins"
	ScopeClients    = "clients"
	ScopeStorefront = "storefront"
)

// Notify is how domain services push events after committing a mutation.
// They never touch the registry or call-room state directly.
func Notify(d *dispatch.Dispatcher, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "api").Logger()

	return func(c *gin.Context) {
		var req NotifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		switch req.Scope {
		case ScopeIdentity:
			if req.Target == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "target is required for identity scope"})
				return
			}
			d.NotifyIdentity(req.Target, req.Event, req.Data)
		case ScopeRole:
			if req.Target == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "target is required for role scope"})
				return
			}
			d.NotifyRole(models.Role(req.Target), req.Event, req.Data)
		case ScopeAdmins:
			d.NotifyAdmins(req.Event, req.Data)
		case ScopeClients:
			d.NotifyClients(req.Event, req.Data)
		case ScopeStorefront:
			if req.Target == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "target is required for storefront scope"})
				return
			}
			d.NotifyStorefront(req.Target, req.Event, req.Data)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scope: " + req.Scope})
			return
		}

		log.Debug().Str("scope", req.Scope).Str("event", req.Event).
			Str("service", c.GetString("service")).Msg("notification accepted")
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}
