package gateway

import (
	"encoding/json"
	"time"

	"github.com/streamspace-dev/ringforge/internal/activity"
	"github.com/streamspace-dev/ringforge/internal/directmsg"
	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/eventlog"
	"github.com/streamspace-dev/ringforge/internal/fleet"
	"github.com/streamspace-dev/ringforge/internal/logger"
	"github.com/streamspace-dev/ringforge/internal/memory"
	"github.com/streamspace-dev/ringforge/internal/presence"
	"github.com/streamspace-dev/ringforge/internal/quota"
	"github.com/streamspace-dev/ringforge/internal/ratelimit"
	"github.com/streamspace-dev/ringforge/internal/session"
	"github.com/streamspace-dev/ringforge/internal/task"
	"github.com/streamspace-dev/ringforge/internal/wire"
)

// dispatch routes one decoded envelope to its family handler. Every family
// except auth requires an active session; auth.request on an already-active
// connection is rejected rather than silently re-authenticating mid-session.
func (c *Connection) dispatch(env *wire.Envelope) {
	if env.Type == wire.TypeAuth {
		if c.currentState() == session.StateActive {
			c.sendError(env.Ref, errors.InvalidMessage("already authenticated"))
			return
		}
		c.handleAuth(env)
		return
	}

	if c.currentState() != session.StateActive {
		c.sendError(env.Ref, errors.Unauthorized("connection is not authenticated"))
		return
	}

	if ok, appErr := c.srv.deps.RateLimit.Allow(bgCtx(), ratelimit.ScopeMessage, c.identity()); appErr != nil || !ok {
		if appErr == nil {
			appErr = errors.RateLimited("message rate limit exceeded")
		}
		c.sendError(env.Ref, appErr)
		return
	}

	switch env.Type {
	case wire.TypePresence:
		c.handlePresence(env)
	case wire.TypeActivity:
		c.handleActivity(env)
	case wire.TypeMemory:
		c.handleMemory(env)
	case wire.TypeDirect:
		c.handleDirect(env)
	case wire.TypeTask:
		c.handleTask(env)
	case wire.TypeReplay:
		c.handleReplay(env)
	case wire.TypeFile:
		c.handleFile(env)
	case wire.TypeSystem:
		c.handleSystem(env)
	default:
		c.sendError(env.Ref, errors.InvalidMessage("unknown envelope type: "+env.Type))
	}
}

// identity returns the connection's current agent id, read under the
// connection's lock.
func (c *Connection) identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

func (c *Connection) scope() (tenantID, fleetID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tenantID, c.fleetID, c.agentID
}

// ---- presence ----

func (c *Connection) handlePresence(env *wire.Envelope) {
	_, fleetID, agentID := c.scope()

	switch env.Action {
	case wire.ActionPresenceRoster:
		entries := c.srv.deps.Presence.Roster(fleetID)
		payload := wire.PresenceRoster{Entries: make([]wire.PresenceEntry, 0, len(entries))}
		for _, e := range entries {
			payload.Entries = append(payload.Entries, toWirePresence(e))
		}
		resp, _ := wire.NewResponse(wire.TypePresence, wire.ActionPresenceRoster, env.Ref, payload)
		c.send(resp)

	case wire.ActionPresenceUpdate:
		var req wire.PresenceUpdate
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		entry, appErr := c.srv.deps.Presence.Update(fleetID, agentID, req.State, req.CurrentTask)
		if appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		c.appendAndBroadcast(fleetID, agentID, eventlog.KindPresenceChanged, toWirePresence(*entry),
			wire.TypePresence, wire.ActionPresenceChanged, fleet.FleetScope())
		resp, _ := wire.NewResponse(wire.TypePresence, wire.ActionPresenceUpdate, env.Ref, toWirePresence(*entry))
		c.send(resp)

		c.reassessTasks(fleetID)

	default:
		c.sendError(env.Ref, errors.InvalidMessage("unknown presence action: "+env.Action))
	}
}

func toWirePresence(e presence.Entry) wire.PresenceEntry {
	return wire.PresenceEntry{
		AgentID:      e.AgentID,
		Name:         e.Name,
		State:        e.State,
		CurrentTask:  e.CurrentTask,
		Capabilities: e.Capabilities,
	}
}

// ---- activity ----

func (c *Connection) handleActivity(env *wire.Envelope) {
	if env.Action != wire.ActionActivityPublish {
		c.sendError(env.Ref, errors.InvalidMessage("unknown activity action: "+env.Action))
		return
	}
	tenantID, fleetID, agentID := c.scope()

	if cached := c.replayIfSeen(env.Ref); cached {
		return
	}

	var req wire.ActivityPublish
	if appErr := wire.DecodePayload(env, &req); appErr != nil {
		c.sendError(env.Ref, appErr)
		return
	}
	ev, appErr := activity.New(fleetID, agentID, req.Kind, req.Description, req.Tags, req.Data)
	if appErr != nil {
		c.sendError(env.Ref, appErr)
		return
	}

	if _, qerr := c.checkMessageQuota(env.Ref); qerr {
		return
	}

	scope := activity.ResolveScope(req.Scope, req.Tags, req.TargetAgent)
	broadcast := wire.ActivityBroadcast{
		EventEnvelope: wire.EventEnvelope{EventID: ev.ID, Timestamp: ev.Timestamp},
		Origin:        ev.Origin,
		Kind:          ev.Kind,
		Description:   ev.Description,
		Tags:          ev.Tags,
		Data:          ev.Data,
	}

	if _, err := c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, eventlog.KindActivity, broadcast); err != nil {
		c.sendError(env.Ref, errors.Unavailable("event log"))
		return
	}

	frame, _ := wire.NewEvent(wire.TypeActivity, wire.ActionActivityBroadcast, broadcast)
	raw, _ := wire.Encode(frame)
	_ = c.srv.deps.Bus.Publish(tenantID, fleetID, raw, scope)

	resp, _ := wire.NewResponse(wire.TypeActivity, wire.ActionActivityBroadcast, env.Ref, broadcast)
	c.rememberResult(env.Ref, resp, false)
	c.send(resp)
}

// ---- memory ----

func (c *Connection) handleMemory(env *wire.Envelope) {
	tenantID, fleetID, agentID := c.scope()

	switch env.Action {
	case wire.ActionMemorySet:
		if c.replayIfSeen(env.Ref) {
			return
		}
		var req wire.MemorySet
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		if ok, appErr := c.srv.deps.RateLimit.Allow(bgCtx(), ratelimit.ScopeMemoryWrite, agentID); appErr != nil || !ok {
			if appErr == nil {
				appErr = errors.RateLimited("memory write rate limit exceeded")
			}
			c.sendError(env.Ref, appErr)
			return
		}
		var ttl *time.Duration
		if req.TTLSeconds > 0 {
			d := time.Duration(req.TTLSeconds) * time.Second
			ttl = &d
		}

		existing, hadExisting := c.srv.deps.Memory.Peek(fleetID, req.Key)
		if !hadExisting {
			if _, blocked := c.checkQuota(env.Ref, quota.CounterMemoryEntries, 1); blocked {
				return
			}
		}
		oldSize := int64(0)
		if hadExisting {
			oldSize = int64(len(existing.Value))
		}
		if sizeDelta := int64(len(req.Value)) - oldSize; sizeDelta != 0 {
			if _, blocked := c.checkQuota(env.Ref, quota.CounterStorageBytes, sizeDelta); blocked {
				if !hadExisting {
					_ = c.srv.deps.Quota.Decrement(bgCtx(), tenantID, quota.CounterMemoryEntries, 1)
				}
				return
			}
		}

		entry, appErr := c.srv.deps.Memory.Set(fleetID, req.Key, req.Value, req.ValueType, agentID, req.Tags, ttl, req.Metadata)
		if appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		wireEntry := toWireMemory(entry)
		if _, err := c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, eventlog.KindMemorySet, wireEntry); err != nil {
			c.sendError(env.Ref, errors.Unavailable("event log"))
			return
		}
		resp, _ := wire.NewResponse(wire.TypeMemory, wire.ActionMemorySet, env.Ref, wireEntry)
		c.rememberResult(env.Ref, resp, false)
		c.send(resp)
		c.notifyMemoryChange(tenantID, fleetID, memory.Change{Fleet: fleetID, Key: req.Key, Kind: memory.ChangeSet, Entry: entry})

	case wire.ActionMemoryGet:
		var req wire.MemoryGet
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		entry, appErr := c.srv.deps.Memory.Get(fleetID, req.Key)
		if appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		resp, _ := wire.NewResponse(wire.TypeMemory, wire.ActionMemoryGet, env.Ref, toWireMemory(entry))
		c.send(resp)

	case wire.ActionMemoryDelete:
		if c.replayIfSeen(env.Ref) {
			return
		}
		var req wire.MemoryDelete
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		deleted, hadExisting := c.srv.deps.Memory.Peek(fleetID, req.Key)
		if appErr := c.srv.deps.Memory.Delete(fleetID, req.Key, ""); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		if hadExisting {
			_ = c.srv.deps.Quota.Decrement(bgCtx(), tenantID, quota.CounterMemoryEntries, 1)
			_ = c.srv.deps.Quota.Decrement(bgCtx(), tenantID, quota.CounterStorageBytes, int64(len(deleted.Value)))
		}
		if _, err := c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, eventlog.KindMemoryDelete, req); err != nil {
			c.sendError(env.Ref, errors.Unavailable("event log"))
			return
		}
		resp, _ := wire.NewResponse(wire.TypeMemory, wire.ActionMemoryDelete, env.Ref, req)
		c.rememberResult(env.Ref, resp, false)
		c.send(resp)
		c.notifyMemoryChange(tenantID, fleetID, memory.Change{Fleet: fleetID, Key: req.Key, Kind: memory.ChangeDelete})

	case wire.ActionMemoryQuery:
		var req wire.MemoryQuery
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		entries, total := c.srv.deps.Memory.Query(fleetID, memory.Query{
			Tags: req.Tags, Text: req.Text, Author: req.Author, Since: req.Since,
			Sort: req.Sort, Limit: req.Limit, Offset: req.Offset,
		})
		result := wire.MemoryQueryResult{Entries: make([]wire.MemoryEntry, 0, len(entries)), Total: total}
		for _, e := range entries {
			result.Entries = append(result.Entries, toWireMemory(e))
		}
		resp, _ := wire.NewResponse(wire.TypeMemory, wire.ActionMemoryQuery, env.Ref, result)
		c.send(resp)

	case wire.ActionMemorySubscribe:
		var req wire.MemorySubscribe
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		c.mu.Lock()
		sessionID := c.sessionID
		c.mu.Unlock()
		c.srv.deps.MemSubs.Subscribe(sessionID, req.Pattern, req.Events)
		resp, _ := wire.NewResponse(wire.TypeMemory, wire.ActionMemorySubscribe, env.Ref, req)
		c.send(resp)

	default:
		c.sendError(env.Ref, errors.InvalidMessage("unknown memory action: "+env.Action))
	}
}

func toWireMemory(e *memory.Entry) wire.MemoryEntry {
	return wire.MemoryEntry{
		Key: e.Key, Value: e.Value, ValueType: e.ValueType, Tags: e.Tags,
		Author: e.Author, Version: e.Version, CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt, Metadata: e.Metadata,
	}
}

// notifyMemoryChange fans a memory change out to every session in the
// fleet whose glob-pattern subscription matches, addressing them directly
// through the bus (subscriptions are keyed by session id, not by scope).
func (c *Connection) notifyMemoryChange(tenantID, fleetID string, chg memory.Change) {
	PublishMemoryChange(c.srv.deps.Bus, c.srv.deps.MemSubs, tenantID, fleetID, chg)
}

// PublishMemoryChange is the shared fan-out path for a memory mutation:
// every live session subscribed with a pattern matching chg.Key and kind
// gets a direct unicast. Exported so the TTL sweeper (which has no live
// connection to hang the call off of) can drive the same path as an
// in-flight set/delete.
func PublishMemoryChange(bus *fleet.Bus, subs *memory.Subscriptions, tenantID, fleetID string, chg memory.Change) {
	sessionIDs := subs.Matching(chg.Key, chg.Kind)
	if len(sessionIDs) == 0 {
		return
	}
	var wireEntry *wire.MemoryEntry
	if chg.Entry != nil {
		e := toWireMemory(chg.Entry)
		wireEntry = &e
	}
	env, _ := wire.NewEvent(wire.TypeMemory, wire.ActionMemoryChanged, wire.MemoryChanged{
		EventEnvelope: wire.EventEnvelope{EventID: chg.Key, Timestamp: time.Now()},
		Key:           chg.Key,
		Kind:          chg.Kind,
		Reason:        chg.Reason,
		Entry:         wireEntry,
	})
	raw, _ := wire.Encode(env)
	bus.Unicast(tenantID, fleetID, sessionIDs, raw)
}

// ---- direct ----

func (c *Connection) handleDirect(env *wire.Envelope) {
	if env.Action != wire.ActionDirectSend {
		c.sendError(env.Ref, errors.InvalidMessage("unknown direct action: "+env.Action))
		return
	}
	tenantID, fleetID, agentID := c.scope()

	if c.replayIfSeen(env.Ref) {
		return
	}

	var req wire.DirectSend
	if appErr := wire.DecodePayload(env, &req); appErr != nil {
		c.sendError(env.Ref, appErr)
		return
	}
	if req.To == "" {
		c.sendError(env.Ref, errors.InvalidMessage("direct.send requires a recipient"))
		return
	}
	if _, qerr := c.checkMessageQuota(env.Ref); qerr {
		return
	}

	payloadBytes, err := json.Marshal(req.Payload)
	if err != nil {
		c.sendError(env.Ref, errors.InvalidMessage("unable to encode payload"))
		return
	}

	state, queuedMsg := c.srv.deps.DirectRouter.Send(tenantID, fleetID, agentID, req.To, req.Correlation, payloadBytes)

	eventID := ""
	enqueuedAt := time.Now()
	if queuedMsg != nil {
		eventID = queuedMsg.ID
		enqueuedAt = queuedMsg.EnqueuedAt
	}

	delivered := wire.DirectDelivered{
		EventEnvelope: wire.EventEnvelope{EventID: eventID, Timestamp: enqueuedAt},
		From:          agentID,
		To:            req.To,
		Payload:       req.Payload,
		Correlation:   req.Correlation,
		State:         state,
	}

	if _, err := c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, eventlog.KindDirectMessage, delivered); err != nil {
		c.sendError(env.Ref, errors.Unavailable("event log"))
		return
	}

	if state == directmsg.StateDelivered {
		frame, _ := wire.NewEvent(wire.TypeDirect, wire.ActionDirectDelivered, delivered)
		raw, _ := wire.Encode(frame)
		_ = c.srv.deps.Bus.Publish(tenantID, fleetID, raw, fleet.DirectScope(req.To))
	}

	resp, _ := wire.NewResponse(wire.TypeDirect, wire.ActionDirectDelivered, env.Ref, delivered)
	c.rememberResult(env.Ref, resp, false)
	c.send(resp)
}

// ---- task ----

func (c *Connection) handleTask(env *wire.Envelope) {
	_, fleetID, agentID := c.scope()

	switch env.Action {
	case wire.ActionTaskSubmit:
		if c.replayIfSeen(env.Ref) {
			return
		}
		var req wire.TaskSubmit
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		if ok, appErr := c.srv.deps.RateLimit.Allow(bgCtx(), ratelimit.ScopeTaskSubmit, agentID); appErr != nil || !ok {
			if appErr == nil {
				appErr = errors.RateLimited("task submission rate limit exceeded")
			}
			c.sendError(env.Ref, appErr)
			return
		}
		ttl := time.Duration(req.TTLSeconds) * time.Second
		grace := time.Duration(req.ClaimGraceSeconds) * time.Second
		candidates := c.buildCandidates(fleetID)
		t := c.srv.deps.Tasks.Submit(fleetID, agentID, req.Type, req.Capabilities, req.Payload, ttl, grace, candidates, nil)

		if _, err := c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, eventlog.KindTaskTransition, t); err != nil {
			c.sendError(env.Ref, errors.Unavailable("event log"))
			return
		}

		assigned := wire.TaskAssigned{TaskID: t.ID, Type: t.Type, Payload: t.Payload, Deadline: t.ClaimDeadline, Status: t.Status}
		if t.Assignee != "" {
			c.notifyAssignee(fleetID, t.Assignee, assigned)
		}
		resp, _ := wire.NewResponse(wire.TypeTask, wire.ActionTaskAssigned, env.Ref, assigned)
		c.rememberResult(env.Ref, resp, false)
		c.send(resp)

	case wire.ActionTaskClaim:
		var req wire.TaskClaim
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		if appErr := c.srv.deps.Tasks.Claim(req.TaskID, agentID); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		c.ackTask(env.Ref, req.TaskID, fleetID, agentID)

	case wire.ActionTaskStart:
		var req wire.TaskStart
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		if appErr := c.srv.deps.Tasks.Start(req.TaskID, agentID); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		c.ackTask(env.Ref, req.TaskID, fleetID, agentID)

	case wire.ActionTaskComplete:
		var req wire.TaskComplete
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		if appErr := c.srv.deps.Tasks.Complete(req.TaskID, agentID, req.Success, req.Result); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		c.ackTask(env.Ref, req.TaskID, fleetID, agentID)

	default:
		c.sendError(env.Ref, errors.InvalidMessage("unknown task action: "+env.Action))
	}
}

func (c *Connection) ackTask(ref, taskID, fleetID, agentID string) {
	t, ok := c.srv.deps.Tasks.Get(taskID)
	if !ok {
		c.sendError(ref, errors.NotFound("task"))
		return
	}
	if _, err := c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, eventlog.KindTaskTransition, t); err != nil {
		logger.Gateway().Warn().Err(err).Str("task", taskID).Msg("failed to append task transition to event log")
	}
	resp, _ := wire.NewResponse(wire.TypeTask, wire.ActionTaskAssigned, ref, wire.TaskAssigned{
		TaskID: t.ID, Type: t.Type, Payload: t.Payload, Deadline: t.ClaimDeadline, Status: t.Status,
	})
	c.send(resp)
}

func (c *Connection) notifyAssignee(fleetID, assigneeAgentID string, assigned wire.TaskAssigned) {
	tenantID, _, _ := c.scope()
	env, _ := wire.NewEvent(wire.TypeTask, wire.ActionTaskAssigned, assigned)
	raw, _ := wire.Encode(env)
	_ = c.srv.deps.Bus.Publish(tenantID, fleetID, raw, fleet.DirectScope(assigneeAgentID))
}

// buildCandidates reads a snapshot of the fleet's currently online agents
// from the presence index for task candidate selection.
// Load and LastAssigned come from the router's own bookkeeping so scoring
// and the anti-starvation tie-break act on real in-flight task counts
// instead of zero values.
func (c *Connection) buildCandidates(fleetID string) []task.Candidate {
	entries := c.srv.deps.Presence.Roster(fleetID)
	loads := c.srv.deps.Tasks.LoadSnapshot()
	out := make([]task.Candidate, 0, len(entries))
	for _, e := range entries {
		cand := task.Candidate{
			AgentID:      e.AgentID,
			Capabilities: e.Capabilities,
			State:        e.State,
		}
		if l, ok := loads[e.AgentID]; ok {
			cand.Load = l.Load
			cand.LastAssigned = l.LastAssigned
		}
		out = append(out, cand)
	}
	return out
}

func (c *Connection) reassessTasks(fleetID string) {
	c.srv.deps.Tasks.Reassess(fleetID, c.buildCandidates(fleetID), nil)
}

// ---- replay ----

func (c *Connection) handleReplay(env *wire.Envelope) {
	if env.Action != wire.ActionReplayRequest {
		c.sendError(env.Ref, errors.InvalidMessage("unknown replay action: "+env.Action))
		return
	}
	_, fleetID, _ := c.scope()

	var req wire.ReplayRequest
	if appErr := wire.DecodePayload(env, &req); appErr != nil {
		c.sendError(env.Ref, appErr)
		return
	}

	delivered, err := c.srv.deps.EventLog.Replay(bgCtx(), fleetID, eventlog.Request{
		From: req.From, To: req.To, Kinds: req.Kinds, Tags: req.Tags, Agents: req.Agents, Limit: req.Limit,
	}, c.srv.deps.Config.MessageRateLimitPerSec, func(item eventlog.Item) error {
		var payload interface{}
		_ = json.Unmarshal(item.Record.Payload, &payload)
		out, _ := wire.NewEvent(wire.TypeReplay, wire.ActionReplayItem, wire.ReplayItem{
			Index: item.Index, Position: item.Record.Position, Kind: item.Record.Kind,
			Origin: item.Record.Origin, Timestamp: item.Record.Timestamp, Payload: payload,
		})
		out.Ref = env.Ref
		c.send(out)
		return nil
	})
	if err != nil {
		c.sendError(env.Ref, errors.Unavailable("event log replay"))
		return
	}

	end, _ := wire.NewResponse(wire.TypeReplay, wire.ActionReplayEnd, env.Ref, wire.ReplayEnd{Delivered: delivered})
	c.send(end)
}

// ---- file (blob presign) ----

func (c *Connection) handleFile(env *wire.Envelope) {
	if c.srv.deps.Blobs == nil {
		c.sendError(env.Ref, errors.Unavailable("blob storage"))
		return
	}
	switch env.Action {
	case wire.ActionFilePresignPut:
		var req wire.FilePresignPutRequest
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		fileID, url, expires, err := c.srv.deps.Blobs.PresignedPut(bgCtx(), req.Filename, req.ContentType, req.Size)
		if err != nil {
			c.sendError(env.Ref, errors.Unavailable("blob signer"))
			return
		}
		resp, _ := wire.NewResponse(wire.TypeFile, wire.ActionFilePresignPut, env.Ref, wire.FilePresignResult{FileID: fileID, URL: url, Expires: expires})
		c.send(resp)

	case wire.ActionFilePresignGet:
		var req wire.FilePresignGetRequest
		if appErr := wire.DecodePayload(env, &req); appErr != nil {
			c.sendError(env.Ref, appErr)
			return
		}
		url, expires, err := c.srv.deps.Blobs.PresignedGet(bgCtx(), req.FileID)
		if err != nil {
			c.sendError(env.Ref, errors.Unavailable("blob signer"))
			return
		}
		resp, _ := wire.NewResponse(wire.TypeFile, wire.ActionFilePresignGet, env.Ref, wire.FilePresignResult{URL: url, Expires: expires})
		c.send(resp)

	default:
		c.sendError(env.Ref, errors.InvalidMessage("unknown file action: "+env.Action))
	}
}

// ---- system ----

func (c *Connection) handleSystem(env *wire.Envelope) {
	switch env.Action {
	case wire.ActionSystemHeartbeat:
		c.touchPresenceHeartbeat()
		pong, _ := wire.NewResponse(wire.TypeSystem, wire.ActionSystemPong, env.Ref, struct{}{})
		c.send(pong)
	default:
		c.sendError(env.Ref, errors.InvalidMessage("unknown system action: "+env.Action))
	}
}

// ---- cross-cutting helpers ----

// appendAndBroadcast durably appends an event before fanning it out,
// keeping every mutation fail-closed: a failed append means no broadcast.
func (c *Connection) appendAndBroadcast(fleetID, agentID, kind string, payload interface{}, typ, action string, scope fleet.Scope) {
	if _, err := c.srv.deps.EventLog.Append(bgCtx(), fleetID, agentID, kind, payload); err != nil {
		logger.Gateway().Warn().Err(err).Str("fleet", fleetID).Str("kind", kind).Msg("failed to append event to event log")
		return
	}
	env, _ := wire.NewEvent(typ, action, payload)
	raw, _ := wire.Encode(env)
	tenantID, _, _ := c.scope()
	_ = c.srv.deps.Bus.Publish(tenantID, fleetID, raw, scope)
}

// checkMessageQuota increments the tenant's messages-today counter. It is a
// thin wrapper over checkQuota kept under its original name since every
// messaging family (direct, broadcast) calls it by that name.
func (c *Connection) checkMessageQuota(ref string) (quota.Result, bool) {
	return c.checkQuota(ref, quota.CounterMessagesToday, 1)
}

// checkQuota atomically increments a tenant's named counter, emitting a
// soft-threshold warning to the triggering session and rejecting (sending
// the error itself) on a hard breach. blocked is true if the caller
// already got its error response and must stop processing without
// applying the mutation the counter was reserving room for.
func (c *Connection) checkQuota(ref, counter string, delta int64) (quota.Result, bool) {
	tenantID, _, _ := c.scope()
	c.mu.Lock()
	plan := c.plan
	c.mu.Unlock()

	result, appErr := c.srv.deps.Quota.CheckAndIncrement(bgCtx(), tenantID, plan, counter, delta)
	if appErr != nil {
		c.sendError(ref, appErr)
		return result, true
	}
	if result.Warn {
		warn, _ := wire.NewEvent(wire.TypeSystem, wire.ActionSystemQuotaWarning, wire.SystemQuotaWarning{
			Counter: counter, Current: result.Current, Limit: result.Limit,
		})
		c.send(warn)
	}
	return result, false
}

// replayIfSeen checks the idempotency cache for (agent, ref) and, if a
// prior call already completed, replays its cached envelope verbatim
// instead of letting the caller re-run the mutation.
func (c *Connection) replayIfSeen(ref string) bool {
	if ref == "" {
		return false
	}
	agentID := c.identity()
	resp, isErr, found := c.srv.deps.Idempotency.Claim(bgCtx(), agentID, ref)
	if !found {
		return false
	}
	m, ok := resp.(map[string]interface{})
	if !ok {
		return false
	}
	typ, _ := m["type"].(string)
	action, _ := m["action"].(string)
	raw, _ := json.Marshal(m["payload"])
	if isErr {
		c.send(&wire.Envelope{Type: wire.TypeError, Ref: ref, Payload: raw})
		return true
	}
	c.send(&wire.Envelope{Type: typ, Action: action, Ref: ref, Payload: raw})
	return true
}

// rememberResult caches env under (agent, ref) so a retried envelope with
// the same ref replays this outcome instead of re-applying the mutation.
func (c *Connection) rememberResult(ref string, env *wire.Envelope, isErr bool) {
	if ref == "" {
		return
	}
	agentID := c.identity()
	var payload interface{}
	_ = json.Unmarshal(env.Payload, &payload)
	stored := map[string]interface{}{"type": env.Type, "action": env.Action, "payload": payload}
	_ = c.srv.deps.Idempotency.Store(bgCtx(), agentID, ref, stored, isErr)
}
