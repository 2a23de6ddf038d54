package wire

import "time"

// Actions within each envelope Type.
const (
	ActionAuthRequest  = "request"
	ActionAuthChallenge = "challenge"
	ActionAuthResult   = "result"

	ActionPresenceUpdate = "update"
	ActionPresenceRoster = "roster"
	ActionPresenceJoined = "joined"
	ActionPresenceLeft   = "left"
	ActionPresenceChanged = "changed"

	ActionActivityPublish   = "publish"
	ActionActivityBroadcast = "broadcast"

	ActionMemorySet     = "set"
	ActionMemoryGet     = "get"
	ActionMemoryDelete  = "delete"
	ActionMemoryQuery   = "query"
	ActionMemorySubscribe = "subscribe"
	ActionMemoryChanged = "changed"

	ActionDirectSend      = "send"
	ActionDirectDelivered = "delivered"

	ActionTaskSubmit   = "submit"
	ActionTaskClaim    = "claim"
	ActionTaskStart    = "start"
	ActionTaskComplete = "complete"
	ActionTaskAssigned = "assigned"

	ActionReplayRequest = "request"
	ActionReplayItem    = "item"
	ActionReplayEnd     = "end"

	ActionSystemHeartbeat     = "heartbeat"
	ActionSystemQuotaWarning  = "quota_warning"
	ActionSystemPong          = "pong"

	ActionFilePresignPut = "presign_put"
	ActionFilePresignGet = "presign_get"
)

// AuthRequest is the auth.request payload sent as the first frame of a
// connection: either a fresh API-key login or a public-key reconnect.
type AuthRequest struct {
	APIKey       string `json:"api_key,omitempty"`
	FleetName    string `json:"fleet_name,omitempty"`
	AgentName    string `json:"agent_name"`
	Framework    string `json:"framework,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	PublicKey    string `json:"public_key,omitempty"`

	// Reconnect challenge-response fields, populated on the second
	// auth.request of a two-step reconnect.
	ChallengeToken string `json:"challenge_token,omitempty"`
	Signature      string `json:"signature,omitempty"`
}

// AuthChallenge is the server's auth.challenge response when the agent has
// a registered public key and must prove possession of the private key.
type AuthChallenge struct {
	ChallengeToken string `json:"challenge_token"`
	Nonce          string `json:"nonce"`
}

// AuthResult is the terminal auth.result response.
type AuthResult struct {
	OK        bool   `json:"ok"`
	AgentID   string `json:"agent_id,omitempty"`
	FleetID   string `json:"fleet_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// PresenceUpdate is presence.update, sent by an agent to change its own
// state and optionally current task.
type PresenceUpdate struct {
	State       string `json:"state"`
	CurrentTask string `json:"current_task,omitempty"`
}

// PresenceEntry mirrors one presence.Entry for roster/changed payloads.
type PresenceEntry struct {
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	State        string   `json:"state"`
	CurrentTask  string   `json:"current_task,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// PresenceRoster is the presence.roster snapshot response.
type PresenceRoster struct {
	Entries []PresenceEntry `json:"entries"`
}

// ActivityPublish is activity.publish, an agent's outbound broadcast.
type ActivityPublish struct {
	Kind        string                 `json:"kind"`
	Description string                 `json:"description,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Scope       string                 `json:"scope,omitempty"` // fleet | tagged | direct
	TargetAgent string                 `json:"target_agent,omitempty"`
}

// ActivityBroadcast is the fanned-out activity.broadcast delivered to peers.
type ActivityBroadcast struct {
	EventEnvelope
	Origin      string                 `json:"origin"`
	Kind        string                 `json:"kind"`
	Description string                 `json:"description,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// MemorySet is memory.set.
type MemorySet struct {
	Key       string                 `json:"key"`
	Value     string                 `json:"value"`
	ValueType string                 `json:"value_type,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	TTLSeconds int                   `json:"ttl_seconds,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MemoryEntry mirrors memory.Entry for get/query/changed payloads.
type MemoryEntry struct {
	Key       string                 `json:"key"`
	Value     string                 `json:"value"`
	ValueType string                 `json:"value_type"`
	Tags      []string               `json:"tags,omitempty"`
	Author    string                 `json:"author"`
	Version   int64                  `json:"version"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MemoryGet is memory.get.
type MemoryGet struct {
	Key string `json:"key"`
}

// MemoryDelete is memory.delete.
type MemoryDelete struct {
	Key string `json:"key"`
}

// MemoryQuery is memory.query.
type MemoryQuery struct {
	Tags   []string  `json:"tags,omitempty"`
	Text   string    `json:"text,omitempty"`
	Author string    `json:"author,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Sort   string    `json:"sort,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// MemoryQueryResult is the memory.query response.
type MemoryQueryResult struct {
	Entries []MemoryEntry `json:"entries"`
	Total   int           `json:"total"`
}

// MemorySubscribe is memory.subscribe, registering interest in a glob key
// pattern for set/delete notifications.
type MemorySubscribe struct {
	Pattern string   `json:"pattern"`
	Events  []string `json:"events,omitempty"`
}

// MemoryChanged is the fanned-out memory.changed notification.
type MemoryChanged struct {
	EventEnvelope
	Key    string       `json:"key"`
	Kind   string       `json:"kind"`
	Reason string       `json:"reason,omitempty"`
	Entry  *MemoryEntry `json:"entry,omitempty"`
}

// DirectSend is direct.send.
type DirectSend struct {
	To          string      `json:"to"`
	Payload     interface{} `json:"payload"`
	Correlation string      `json:"correlation,omitempty"`
}

// DirectDelivered is the direct.delivered response to the sender and the
// inbound frame delivered to the recipient.
type DirectDelivered struct {
	EventEnvelope
	From        string      `json:"from"`
	To          string      `json:"to"`
	Payload     interface{} `json:"payload"`
	Correlation string      `json:"correlation,omitempty"`
	State       string      `json:"state"`
}

// TaskSubmit is task.submit.
type TaskSubmit struct {
	Type         string      `json:"type"`
	Capabilities []string    `json:"capabilities,omitempty"`
	Payload      interface{} `json:"payload,omitempty"`
	TTLSeconds   int         `json:"ttl_seconds,omitempty"`
	ClaimGraceSeconds int    `json:"claim_grace_seconds,omitempty"`
}

// TaskAssigned is the task.assigned notice to the chosen assignee, and the
// response payload for task.submit.
type TaskAssigned struct {
	TaskID   string      `json:"task_id"`
	Type     string      `json:"type"`
	Payload  interface{} `json:"payload,omitempty"`
	Deadline time.Time   `json:"deadline,omitempty"`
	Status   string      `json:"status"`
}

// TaskClaim is task.claim.
type TaskClaim struct {
	TaskID string `json:"task_id"`
}

// TaskStart is task.start.
type TaskStart struct {
	TaskID string `json:"task_id"`
}

// TaskComplete is task.complete.
type TaskComplete struct {
	TaskID  string      `json:"task_id"`
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
}

// ReplayRequest is replay.request.
type ReplayRequest struct {
	From  time.Time `json:"from,omitempty"`
	To    time.Time `json:"to,omitempty"`
	Kinds []string  `json:"kinds,omitempty"`
	Tags  []string  `json:"tags,omitempty"`
	Agents []string `json:"agents,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// ReplayItem is one replay.item frame.
type ReplayItem struct {
	Index     int             `json:"index"`
	Position  int64           `json:"position"`
	Kind      string          `json:"kind"`
	Origin    string          `json:"origin"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload"`
}

// ReplayEnd is the terminal replay.end frame.
type ReplayEnd struct {
	Delivered int `json:"delivered"`
}

// SystemQuotaWarning is system.quota_warning, sent only to the triggering
// session when a counter crosses its soft threshold.
type SystemQuotaWarning struct {
	Counter string `json:"counter"`
	Current int64  `json:"current"`
	Limit   int64  `json:"limit"`
}

// FilePresignPutRequest is file.presign_put: a request for a time-limited
// upload URL into the out-of-band blob store referenced by a
// blob-reference memory value.
type FilePresignPutRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// FilePresignResult answers both presign_put and presign_get; FileID is
// empty on a presign_get response since the caller already supplied it.
type FilePresignResult struct {
	FileID  string    `json:"file_id,omitempty"`
	URL     string    `json:"url"`
	Expires time.Time `json:"expires"`
}

// FilePresignGetRequest is file.presign_get.
type FilePresignGetRequest struct {
	FileID string `json:"file_id"`
}
