package task

import (
	"testing"
	"time"
)

type zeroStats struct{}

func (zeroStats) AvgLatency(agentID, taskType string) time.Duration { return 0 }
func (zeroStats) SuccessRate(agentID string) float64                 { return 1 }
func (zeroStats) Cost(agentID string) float64                        { return 0 }

func TestSelectPrefersLowerLoad(t *testing.T) {
	candidates := []Candidate{
		{AgentID: "busy-loaded", Capabilities: []string{"code"}, State: "busy", Load: 0.4},
		{AgentID: "busy-light", Capabilities: []string{"code"}, State: "busy", Load: 0.1},
	}
	cand, ok := Select(candidates, []string{"code"}, "build", zeroStats{})
	if !ok {
		t.Fatal("expected a candidate")
	}
	if cand.AgentID != "busy-light" {
		t.Fatalf("expected busy-light to win on lower load, got %s", cand.AgentID)
	}
}

func TestSelectFiltersByCapability(t *testing.T) {
	candidates := []Candidate{
		{AgentID: "no-cap", Capabilities: []string{"writing"}, State: "online"},
	}
	_, ok := Select(candidates, []string{"code"}, "build", zeroStats{})
	if ok {
		t.Fatal("expected no qualifying candidate")
	}
}

func TestSubmitParksWhenNoCandidateThenReassesses(t *testing.T) {
	r := NewRouter()
	tk := r.Submit("fleet-1", "requester", "build", []string{"code"}, nil, time.Minute, 0, nil, zeroStats{})
	if tk.Status != StatusPending {
		t.Fatalf("expected pending, got %s", tk.Status)
	}

	r.Reassess("fleet-1", []Candidate{{AgentID: "a", Capabilities: []string{"code"}, State: "online"}}, zeroStats{})

	got, _ := r.Get(tk.ID)
	if got.Status != StatusAssigned || got.Assignee != "a" {
		t.Fatalf("expected assignment to a, got %+v", got)
	}
}

func TestClaimTimeoutReassigns(t *testing.T) {
	r := NewRouter()
	tk := r.Submit("fleet-1", "requester", "build", []string{"code"}, nil, time.Minute, time.Millisecond, []Candidate{
		{AgentID: "a", Capabilities: []string{"code"}, State: "online"},
	}, zeroStats{})
	if tk.Assignee != "a" {
		t.Fatalf("expected initial assignment to a, got %s", tk.Assignee)
	}

	time.Sleep(5 * time.Millisecond)
	missed := r.CheckClaimTimeouts([]Candidate{
		{AgentID: "b", Capabilities: []string{"code"}, State: "online"},
	}, zeroStats{})
	if len(missed) != 1 {
		t.Fatalf("expected one missed claim, got %d", len(missed))
	}

	got, _ := r.Get(tk.ID)
	if got.Assignee != "b" {
		t.Fatalf("expected reassignment to b, got %s", got.Assignee)
	}
}
