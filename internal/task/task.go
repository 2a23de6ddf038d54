// Package task implements capability-weighted task routing: given a task
// requiring a capability set, it selects one assignee from the fleet's
// currently-online agents, ranked by a weighted multi-factor score, and
// reassigns on claim-grace miss.
package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/agent"
	"github.com/streamspace-dev/ringforge/internal/errors"
)

// Status values in the task lifecycle.
const (
	StatusPending  = "pending"
	StatusAssigned = "assigned"
	StatusClaimed  = "claimed"
	StatusRunning  = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// DefaultClaimGrace is how long an assignee has to claim before
// reassignment (configurable).
const DefaultClaimGrace = 10 * time.Second

// Scoring weights, sum to 1.0.
const (
	weightStateFit = 0.30
	weightLoad     = 0.25
	weightLatency  = 0.20
	weightSuccess  = 0.15
	weightCost     = 0.10
)

// Task is a unit of work routed to one capable agent.
type Task struct {
	ID               string
	FleetID          string
	Requester        string
	RequiredCaps     []string
	Type             string
	Payload          interface{}
	Assignee         string
	Status           string
	Result           interface{}
	CreatedAt        time.Time
	TTL              time.Duration
	ClaimDeadline    time.Time
	ClaimGrace       time.Duration
	AssignedAt       time.Time
}

func (t *Task) expired(now time.Time) bool {
	return t.TTL > 0 && now.After(t.CreatedAt.Add(t.TTL))
}

// Candidate is a presence-roster entry augmented with the metadata needed
// to score it against a task.
type Candidate struct {
	AgentID      string
	Capabilities []string
	State        string // online | busy
	Load         float64
	LastAssigned time.Time
}

// Stats supplies the historical signals scoring needs beyond presence: per
// task-type completion latency and success rate, and per-agent cost.
// Implementations back it with whatever store tracks task history; tests
// pass stubs, and production wires the in-process *MemoryStats.
type Stats interface {
	AvgLatency(agentID, taskType string) time.Duration
	SuccessRate(agentID string) float64
	Cost(agentID string) float64
}

// score computes the weighted multi-factor rank for a candidate against a
// task. Higher is better.
func score(c Candidate, taskType string, stats Stats, maxLatency time.Duration) float64 {
	stateFit := 0.0
	switch {
	case c.State == "online":
		stateFit = 1.0
	case c.State == "busy" && c.Load < 0.8:
		stateFit = 0.5
	}

	loadScore := 1.0 - c.Load
	if loadScore < 0 {
		loadScore = 0
	}

	latencyScore := 1.0
	if stats != nil && maxLatency > 0 {
		lat := stats.AvgLatency(c.AgentID, taskType)
		latencyScore = 1.0 - float64(lat)/float64(maxLatency)
		if latencyScore < 0 {
			latencyScore = 0
		}
	}

	successScore := 1.0
	if stats != nil {
		successScore = stats.SuccessRate(c.AgentID)
	}

	costScore := 1.0
	if stats != nil {
		cost := stats.Cost(c.AgentID)
		costScore = 1.0 / (1.0 + cost)
	}

	return weightStateFit*stateFit + weightLoad*loadScore +
		weightLatency*latencyScore + weightSuccess*successScore + weightCost*costScore
}

// Select ranks candidates whose capabilities are a superset of required,
// returning the best by weighted score, breaking ties by oldest
// last-assigned-at (anti-starvation). ok is false if no candidate
// qualifies.
func Select(candidates []Candidate, required []string, taskType string, stats Stats) (Candidate, bool) {
	var qualified []Candidate
	for _, c := range candidates {
		if agent.HasCapabilities(c.Capabilities, required) {
			qualified = append(qualified, c)
		}
	}
	if len(qualified) == 0 {
		return Candidate{}, false
	}

	const maxLatencyWindow = 10 * time.Minute
	sort.SliceStable(qualified, func(i, j int) bool {
		si := score(qualified[i], taskType, stats, maxLatencyWindow)
		sj := score(qualified[j], taskType, stats, maxLatencyWindow)
		if si != sj {
			return si > sj
		}
		return qualified[i].LastAssigned.Before(qualified[j].LastAssigned)
	})
	return qualified[0], true
}

// Router tracks pending/in-flight tasks and re-evaluates parked tasks on
// every presence change, per fleet.
type Router struct {
	mu    sync.Mutex
	tasks map[string]*Task
	stats Stats
}

func NewRouter() *Router {
	return &Router{tasks: make(map[string]*Task)}
}

// SetStats installs the default historical-signal source used whenever a
// caller passes a nil Stats to Submit, Reassess, or CheckClaimTimeouts.
// Production wiring installs a *MemoryStats; tests keep passing their own
// stub explicitly and never need this.
func (r *Router) SetStats(stats Stats) { r.stats = stats }

func (r *Router) statsOrDefault(stats Stats) Stats {
	if stats != nil {
		return stats
	}
	return r.stats
}

// Submit creates a task and attempts immediate routing against the given
// candidate snapshot. If none qualify, the task is parked pending and
// re-evaluated by Reassess on every presence change until a candidate
// appears or the TTL elapses.
func (r *Router) Submit(fleetID, requester, taskType string, required []string, payload interface{}, ttl time.Duration, claimGrace time.Duration, candidates []Candidate, stats Stats) *Task {
	stats = r.statsOrDefault(stats)
	if claimGrace <= 0 {
		claimGrace = DefaultClaimGrace
	}
	t := &Task{
		ID:           uuid.NewString(),
		FleetID:      fleetID,
		Requester:    requester,
		RequiredCaps: required,
		Type:         taskType,
		Payload:      payload,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
		TTL:          ttl,
		ClaimGrace:   claimGrace,
	}
	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	if cand, ok := Select(candidates, required, taskType, stats); ok {
		r.assign(t, cand.AgentID)
	}
	return t
}

func (r *Router) assign(t *Task, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Assignee = agentID
	t.Status = StatusAssigned
	t.AssignedAt = time.Now()
	t.ClaimDeadline = t.AssignedAt.Add(t.ClaimGrace)
}

// Reassess re-routes every pending task in a fleet against a fresh
// candidate snapshot, called on presence change events. Tasks whose TTL
// has elapsed are failed with no_capable_agent.
func (r *Router) Reassess(fleetID string, candidates []Candidate, stats Stats) {
	stats = r.statsOrDefault(stats)
	now := time.Now()
	r.mu.Lock()
	var pending []*Task
	for _, t := range r.tasks {
		if t.FleetID == fleetID && t.Status == StatusPending {
			pending = append(pending, t)
		}
	}
	r.mu.Unlock()

	for _, t := range pending {
		if t.expired(now) {
			r.mu.Lock()
			t.Status = StatusFailed
			t.Result = "no_capable_agent"
			r.mu.Unlock()
			continue
		}
		if cand, ok := Select(candidates, t.RequiredCaps, t.Type, stats); ok {
			r.assign(t, cand.AgentID)
		}
	}
}

// CheckClaimTimeouts reassigns any assigned task whose claim grace elapsed
// without an ack, re-selecting from candidates immediately; a task with no
// qualifying candidate stays pending for the next presence change. It
// returns every task whose claim lapsed, reassigned or not.
func (r *Router) CheckClaimTimeouts(candidates []Candidate, stats Stats) []*Task {
	stats = r.statsOrDefault(stats)
	now := time.Now()
	r.mu.Lock()
	var missed []*Task
	for _, t := range r.tasks {
		if t.Status == StatusAssigned && now.After(t.ClaimDeadline) {
			t.Status = StatusPending
			t.Assignee = ""
			missed = append(missed, t)
		}
	}
	r.mu.Unlock()

	for _, t := range missed {
		if cand, ok := Select(candidates, t.RequiredCaps, t.Type, stats); ok {
			r.assign(t, cand.AgentID)
		}
	}
	return missed
}

// Claim moves assigned -> claimed when the assignee acknowledges within
// the grace window.
func (r *Router) Claim(taskID, agentID string) *errors.AppError {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return errors.NotFound("task")
	}
	if t.Status != StatusAssigned || t.Assignee != agentID {
		return errors.Conflict("task is not assigned to this agent")
	}
	if time.Now().After(t.ClaimDeadline) {
		return errors.Conflict("claim grace elapsed")
	}
	t.Status = StatusClaimed
	return nil
}

// Start moves claimed -> running.
func (r *Router) Start(taskID, agentID string) *errors.AppError {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return errors.NotFound("task")
	}
	if t.Status != StatusClaimed || t.Assignee != agentID {
		return errors.Conflict("task is not claimed by this agent")
	}
	t.Status = StatusRunning
	return nil
}

// Complete moves running -> completed|failed with a result.
func (r *Router) Complete(taskID, agentID string, success bool, result interface{}) *errors.AppError {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return errors.NotFound("task")
	}
	if t.Status != StatusRunning || t.Assignee != agentID {
		return errors.Conflict("task is not running for this agent")
	}
	t.Result = result
	if success {
		t.Status = StatusCompleted
	} else {
		t.Status = StatusFailed
	}
	if rec, ok := r.stats.(StatsRecorder); ok && !t.AssignedAt.IsZero() {
		rec.Record(agentID, t.Type, time.Since(t.AssignedAt), success)
	}
	return nil
}

func (r *Router) Get(taskID string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	return t, ok
}

// maxConcurrentTasksPerAgent bounds the load score: an agent holding this
// many in-flight tasks scores as fully loaded (Load == 1.0).
const maxConcurrentTasksPerAgent = 5

// AgentLoad is one agent's current scoring inputs derived from the
// router's own task bookkeeping, rather than anything self-reported.
type AgentLoad struct {
	Load         float64
	LastAssigned time.Time
}

// LoadSnapshot computes, for every agent the router has ever assigned a
// task to, its current load (the fraction of maxConcurrentTasksPerAgent
// slots occupied by assigned/claimed/running tasks) and the time of its
// most recent assignment, the anti-starvation tie-break Select uses.
// Candidates absent from the result have never been assigned a task and
// score Load 0 / LastAssigned zero, which already sorts first on ties.
func (r *Router) LoadSnapshot() map[string]AgentLoad {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := make(map[string]int)
	lastAssigned := make(map[string]time.Time)
	for _, t := range r.tasks {
		if t.Assignee == "" {
			continue
		}
		if t.Status == StatusAssigned || t.Status == StatusClaimed || t.Status == StatusRunning {
			active[t.Assignee]++
		}
		if t.AssignedAt.After(lastAssigned[t.Assignee]) {
			lastAssigned[t.Assignee] = t.AssignedAt
		}
	}
	out := make(map[string]AgentLoad, len(lastAssigned))
	for agentID, la := range lastAssigned {
		out[agentID] = AgentLoad{
			Load:         float64(active[agentID]) / float64(maxConcurrentTasksPerAgent),
			LastAssigned: la,
		}
	}
	return out
}
