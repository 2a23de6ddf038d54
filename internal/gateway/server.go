// Package gateway implements the connection gateway (C1): the WebSocket
// accept loop, the five-state session lifecycle, envelope dispatch across
// every coordination service, and the cross-cutting quota/rate-limit/
// idempotency gates in front of each mutating action. Generalized from the
// teacher's hub/readPump/writePump shape (internal/websocket/hub.go,
// internal/websocket/agent_hub.go) from a browser/agent notification
// relay to the full bidirectional coordination protocol.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/ringforge/internal/agent"
	"github.com/streamspace-dev/ringforge/internal/apikey"
	"github.com/streamspace-dev/ringforge/internal/config"
	"github.com/streamspace-dev/ringforge/internal/directmsg"
	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/eventlog"
	"github.com/streamspace-dev/ringforge/internal/fleet"
	"github.com/streamspace-dev/ringforge/internal/idempotency"
	"github.com/streamspace-dev/ringforge/internal/logger"
	"github.com/streamspace-dev/ringforge/internal/memory"
	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/presence"
	"github.com/streamspace-dev/ringforge/internal/quota"
	"github.com/streamspace-dev/ringforge/internal/ratelimit"
	"github.com/streamspace-dev/ringforge/internal/session"
	"github.com/streamspace-dev/ringforge/internal/task"
)

// Deps bundles every collaborator the gateway dispatches into. Constructed
// once at boot and shared by every connection.
type Deps struct {
	Store        ports.MetadataStore
	EventLog     *eventlog.Log
	Bus          *fleet.Bus
	Presence     *presence.Index
	Memory       *memory.Service
	MemSubs      *memory.Subscriptions
	DirectQueues *directmsg.Queues
	DirectRouter *directmsg.Router
	Tasks        *task.Router
	Sessions     *session.Service
	Agents       *agent.Service
	Fleets       *fleet.Service
	Challenges   *session.ChallengeIssuer
	Quota        *quota.Gate
	RateLimit    *ratelimit.Limiter
	Idempotency  *idempotency.Store
	Blobs        ports.BlobSigner
	Config       *config.Config
}

// Server accepts WebSocket connections and spins up one Connection per
// socket.
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func NewServer(deps Deps) *Server {
	return &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Gateway().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConnection(s, conn, r.RemoteAddr)
	go c.writePump()
	c.readPump()
}

// resolveAPIKey validates a plaintext API key against the store, returning
// the stored record if it is live (not revoked or expired).
func (s *Server) resolveAPIKey(ctx context.Context, plaintext string) (*ports.APIKey, *errors.AppError) {
	if err := apikey.ValidateFormat(plaintext); err != nil {
		return nil, errors.Unauthorized("malformed api key")
	}
	prefix := apikey.Prefix(plaintext)
	rec, err := s.deps.Store.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil || rec == nil {
		return nil, errors.Unauthorized("invalid api key")
	}
	if !apikey.Compare(plaintext, rec.Hash) {
		return nil, errors.Unauthorized("invalid api key")
	}
	if !apikey.Live(rec, time.Now()) {
		return nil, errors.Unauthorized("api key revoked or expired")
	}
	if rec.Type == apikey.TypeAdmin {
		return nil, errors.Forbidden("admin keys cannot authenticate agent connections")
	}
	return rec, nil
}
