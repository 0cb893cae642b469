// Package agent defines the agent model: a worker with a skill set, a
// concurrency capacity, and a running performance history.
package agent

import "time"

// Status represents the availability of an agent. Only active agents are
// eligible for delegation.
type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// Agent is a worker entity that receives delegated tasks.
type Agent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Skills         []string  `json:"skills"`
	Capacity       int       `json:"capacity"`     // max concurrent tasks
	CurrentLoad    int       `json:"current_load"` // open assignments
	SuccessRate    float64   `json:"success_rate"` // running mean in [0,1]
	TotalCompleted int       `json:"total_completed"`
	Status         Status    `json:"status"`
	LastSeen       time.Time `json:"last_seen"`
}

// HasAnySkill reports whether the agent's skill set intersects the required
// set. Matching is exact tag equality; both sides are expected to be
// normalized lower-case.
func (a *Agent) HasAnySkill(required []string) bool {
	if len(required) == 0 {
		return false
	}
	have := make(map[string]struct{}, len(a.Skills))
	for _, s := range a.Skills {
		have[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; ok {
			return true
		}
	}
	return false
}

// UnderCapacity reports whether the agent can take more work without
// exceeding its capacity. Capacity is soft: an over-capacity agent is still
// eligible, it just loses the scoring bonus.
func (a *Agent) UnderCapacity() bool {
	return a.CurrentLoad < a.Capacity
}
