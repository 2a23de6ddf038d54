package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/fleet"
	"github.com/streamspace-dev/ringforge/internal/logger"
	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/session"
	"github.com/streamspace-dev/ringforge/internal/wire"
)

const outChanSize = 256

// Connection is one live WebSocket socket and the session state machine
// riding on top of it.
type Connection struct {
	srv  *Server
	conn *websocket.Conn

	remoteAddr string
	out        chan []byte

	mu        sync.Mutex
	state     session.State
	tenantID  string
	fleetID   string
	fleetName string
	agentID   string
	sessionID string
	plan      string

	// pendingAgent/pendingKey hold context between the first auth.request
	// (api key validated) and the second (challenge signature) when the
	// agent has a registered public key.
	pendingAgent *ports.Agent
	pendingKey   *ports.APIKey

	sub *fleet.Subscriber

	closeOnce        sync.Once
	closeReasonField string
}

func newConnection(srv *Server, conn *websocket.Conn, remoteAddr string) *Connection {
	return &Connection{
		srv:        srv,
		conn:       conn,
		remoteAddr: remoteAddr,
		out:        make(chan []byte, outChanSize),
		state:      session.StateNew,
	}
}

func (c *Connection) send(env *wire.Envelope) {
	frame, err := wire.Encode(env)
	if err != nil {
		return
	}
	select {
	case c.out <- frame:
	default:
		logger.Gateway().Warn().Str("session", c.sessionID).Msg("dropping outbound frame: connection backpressured")
	}
}

func (c *Connection) sendError(ref string, appErr *errors.AppError) {
	c.send(wire.NewError(ref, appErr))
}

// forward copies a fleet subscriber's mailbox into this connection's single
// outbound channel for as long as the subscriber is alive.
func (c *Connection) forward(sub *fleet.Subscriber) {
	for frame := range sub.Outbox {
		select {
		case c.out <- frame:
		default:
			logger.Gateway().Warn().Str("session", c.sessionID).Msg("dropping fanned-out frame: connection backpressured")
		}
	}
}

// readPump decodes inbound frames and dispatches them, enforcing the
// heartbeat deadline and closing the connection on any transport error.
func (c *Connection) readPump() {
	defer c.teardown(session.ReasonGraceful)

	cfg := c.srv.deps.Config
	authTimeout := cfg.AuthTimeout
	heartbeatTimeout := cfg.HeartbeatTimeout

	c.conn.SetReadLimit(wire.MaxEnvelopeBytes + 1024)
	c.conn.SetReadDeadline(time.Now().Add(authTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		c.touchPresenceHeartbeat()
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Gateway().Debug().Err(err).Str("session", c.sessionID).Msg("connection read error")
			}
			if c.currentState() == session.StateActive {
				c.mu.Lock()
				c.closeReasonField = session.ReasonHeartbeatTimeout
				c.mu.Unlock()
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))

		env, appErr := wire.Decode(frame)
		if appErr != nil {
			c.sendError("", appErr)
			continue
		}
		c.dispatch(env)
	}
}

// writePump drains the connection's outbound channel and sends periodic
// pings.
func (c *Connection) writePump() {
	interval := c.srv.deps.Config.HeartbeatInterval
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) currentState() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) touchPresenceHeartbeat() {
	c.mu.Lock()
	fleetID, agentID, active := c.fleetID, c.agentID, c.state == session.StateActive
	c.mu.Unlock()
	if active {
		c.srv.deps.Presence.Heartbeat(fleetID, agentID)
	}
}

// teardown runs once per connection: unsubscribes from the bus, drops
// presence, ends the durable session record, and closes the socket.
func (c *Connection) teardown(defaultReason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		state := c.state
		tenantID, fleetID, agentID, sessionID := c.tenantID, c.fleetID, c.agentID, c.sessionID
		reason := c.closeReasonField
		c.state = session.StateClosed
		c.mu.Unlock()

		if reason == "" {
			reason = defaultReason
		}

		if state == session.StateActive {
			c.srv.deps.Bus.Unsubscribe(tenantID, fleetID, sessionID)
			c.srv.deps.Presence.Leave(fleetID, agentID)
			c.srv.deps.MemSubs.Unsubscribe(sessionID)
			_ = c.srv.deps.Sessions.End(bgCtx(), sessionID, reason)
			_ = c.srv.deps.Quota.Decrement(bgCtx(), tenantID, "concurrent_agents", 1)

			left := wire.PresenceEntry{AgentID: agentID}
			_, _ = c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, "left", left)
			leftFrame, _ := wire.NewEvent(wire.TypePresence, wire.ActionPresenceLeft, left)
			rawLeft, _ := wire.Encode(leftFrame)
			_ = c.srv.deps.Bus.Publish(tenantID, fleetID, rawLeft, fleet.FleetScope())

			logger.Gateway().Info().Str("agent", agentID).Str("fleet", fleetID).Str("reason", reason).Msg("session closed")
		}

		close(c.out)
	})
}
