package gateway

import (
	"context"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/fleet"
	"github.com/streamspace-dev/ringforge/internal/logger"
	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/quota"
	"github.com/streamspace-dev/ringforge/internal/ratelimit"
	"github.com/streamspace-dev/ringforge/internal/session"
	"github.com/streamspace-dev/ringforge/internal/wire"
)

// handleAuth processes the auth family. The first leg validates the API
// key and resolves tenant/fleet/agent; if the agent already has a
// registered public key, a challenge is issued and a second leg (carrying
// the signed nonce) is required before the session goes active.
func (c *Connection) handleAuth(env *wire.Envelope) {
	ctx := bgCtx()

	if ok, appErr := c.srv.deps.RateLimit.Allow(ctx, ratelimit.ScopeAuth, c.remoteAddr); appErr != nil || !ok {
		if appErr == nil {
			appErr = errors.RateLimited("too many auth attempts")
		}
		c.sendError(env.Ref, appErr)
		c.teardown(session.ReasonAuthFailed)
		return
	}

	var req wire.AuthRequest
	if appErr := wire.DecodePayload(env, &req); appErr != nil {
		c.sendError(env.Ref, appErr)
		return
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == session.StateAwaitingAuth && req.ChallengeToken != "" {
		c.completeChallenge(env.Ref, req)
		return
	}

	if _, appErr := session.Transition(state, "auth_req"); appErr != nil {
		c.sendError(env.Ref, appErr)
		return
	}

	key, appErr := c.srv.resolveAPIKey(ctx, req.APIKey)
	if appErr != nil {
		c.sendError(env.Ref, appErr)
		c.teardown(session.ReasonAuthFailed)
		return
	}

	tenant, err := c.srv.deps.Store.GetTenant(ctx, key.TenantID)
	if err != nil {
		c.sendError(env.Ref, errors.Unauthorized("tenant not found"))
		c.teardown(session.ReasonAuthFailed)
		return
	}

	fleetID := key.FleetID
	var fleetName string
	if fleetID == "" {
		if req.FleetName == "" {
			c.sendError(env.Ref, errors.InvalidMessage("fleet_name required"))
			c.teardown(session.ReasonAuthFailed)
			return
		}
		f, ferr := c.srv.deps.Fleets.GetByName(ctx, tenant.ID, req.FleetName)
		if ferr != nil {
			c.sendError(env.Ref, errors.Unauthorized("unknown fleet"))
			c.teardown(session.ReasonAuthFailed)
			return
		}
		fleetID = f.ID
		fleetName = f.Name
	}

	if req.AgentName == "" {
		c.sendError(env.Ref, errors.InvalidMessage("agent_name required"))
		c.teardown(session.ReasonAuthFailed)
		return
	}

	ag, aerr := c.srv.deps.Agents.Resolve(ctx, tenant.ID, fleetID, req.AgentName, req.Framework, req.Capabilities)
	if aerr != nil {
		c.sendError(env.Ref, errors.Unauthorized("unable to resolve agent identity"))
		c.teardown(session.ReasonAuthFailed)
		return
	}

	c.mu.Lock()
	c.tenantID = tenant.ID
	c.fleetID = fleetID
	c.fleetName = fleetName
	c.plan = tenant.Plan
	c.mu.Unlock()

	if ag.PublicKey != "" {
		c.challengeAndWait(env.Ref, ag, key)
		return
	}

	if req.PublicKey != "" {
		_ = c.srv.deps.Agents.RegisterPublicKey(ctx, ag, req.PublicKey)
	}

	c.finalizeAuth(ctx, env.Ref, ag, key)
}

func (c *Connection) challengeAndWait(ref string, ag *ports.Agent, key *ports.APIKey) {
	token, nonce, err := c.srv.deps.Challenges.Issue(ag.ID)
	if err != nil {
		logger.Gateway().Error().Err(err).Msg("failed to issue reconnect challenge")
		c.sendError(ref, errors.InternalServer("unable to issue challenge"))
		c.teardown(session.ReasonAuthFailed)
		return
	}

	c.mu.Lock()
	c.state = session.StateAwaitingAuth
	c.pendingAgent = ag
	c.pendingKey = key
	c.mu.Unlock()

	env, _ := wire.NewResponse(wire.TypeAuth, wire.ActionAuthChallenge, ref, wire.AuthChallenge{
		ChallengeToken: token,
		Nonce:          encodeNonce(nonce),
	})
	c.send(env)
}

func (c *Connection) completeChallenge(ref string, req wire.AuthRequest) {
	c.mu.Lock()
	ag, key := c.pendingAgent, c.pendingKey
	c.mu.Unlock()

	if ag == nil || !c.srv.deps.Challenges.Verify(req.ChallengeToken, ag.ID, req.Signature, ag.PublicKey) {
		c.sendError(ref, errors.Unauthorized("challenge verification failed"))
		c.teardown(session.ReasonAuthFailed)
		return
	}
	c.finalizeAuth(bgCtx(), ref, ag, key)
}

// finalizeAuth transitions the connection to active, records presence,
// subscribes to the fleet bus, drains any queued direct messages, and
// replies with auth.result.
func (c *Connection) finalizeAuth(_ context.Context, ref string, ag *ports.Agent, key *ports.APIKey) {
	realCtx := bgCtx()

	c.mu.Lock()
	tenantID, fleetID, plan := c.tenantID, c.fleetID, c.plan
	c.mu.Unlock()

	if _, qerr := c.srv.deps.Quota.CheckAndIncrement(realCtx, tenantID, plan, quota.CounterConcurrentAgents, 1); qerr != nil {
		c.sendError(ref, qerr)
		c.teardown(session.ReasonAuthFailed)
		return
	}

	sess, err := c.srv.deps.Sessions.Start(realCtx, ag.ID, c.remoteAddr)
	if err != nil {
		c.sendError(ref, errors.InternalServer("unable to start session"))
		c.teardown(session.ReasonAuthFailed)
		return
	}

	c.mu.Lock()
	c.state = session.StateActive
	c.agentID = ag.ID
	c.sessionID = sess.ID
	c.mu.Unlock()

	entry := c.srv.deps.Presence.Join(fleetID, ag.ID, ag.DisplayName, ag.Capabilities)

	joined := wire.PresenceEntry{
		AgentID: ag.ID, Name: entry.Name, State: entry.State, Capabilities: entry.Capabilities,
	}
	_, _ = c.srv.deps.EventLog.Append(realCtx, fleetID, ag.ID, "join", joined)
	joinFrame, _ := wire.NewEvent(wire.TypePresence, wire.ActionPresenceJoined, joined)
	rawJoin, _ := wire.Encode(joinFrame)
	_ = c.srv.deps.Bus.Publish(tenantID, fleetID, rawJoin, fleet.FleetScope())

	c.srv.deps.Tasks.Reassess(fleetID, c.buildCandidates(fleetID), nil)

	// Drain the offline queue and deliver it directly before subscribing
	// to the fleet bus: subscribing starts a goroutine forwarding live
	// frames into c.out, and if that started first a broadcast landing
	// between subscribe and drain could reach the client ahead of queued
	// messages that were enqueued earlier.
	for _, msg := range c.srv.deps.DirectRouter.Drain(fleetID, ag.ID) {
		env, _ := wire.NewEvent(wire.TypeDirect, wire.ActionDirectDelivered, wire.DirectDelivered{
			EventEnvelope: wire.EventEnvelope{EventID: msg.ID, Timestamp: msg.EnqueuedAt},
			From:          msg.From,
			To:            msg.To,
			Payload:       decodeRaw(msg.Payload),
			Correlation:   msg.Correlation,
			State:         "delivered",
		})
		c.send(env)
	}

	sub := c.srv.deps.Bus.Subscribe(tenantID, fleetID, sess.ID, ag.ID)
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	go c.forward(sub)

	resp, _ := wire.NewResponse(wire.TypeAuth, wire.ActionAuthResult, ref, wire.AuthResult{
		OK: true, AgentID: ag.ID, FleetID: fleetID, SessionID: sess.ID,
	})
	c.send(resp)

	logger.Gateway().Info().Str("agent", ag.ID).Str("fleet", fleetID).Str("state", entry.State).Msg("session authenticated")
}
