package delegation

import (
	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/task"
)

// Scoring weights. The composition is additive over a flat base, so a fully
// loaded agent with no matching skills still scores 0.5 and stays eligible.
const (
	baseScore     = 0.5
	skillBonus    = 0.3
	capacityBonus = 0.1
	successWeight = 0.1
	urgentBonus   = 0.1
)

// Score computes the match score for a (task, agent) pair. It is pure and
// deterministic. The result is not clamped and can exceed 1.0: a perfect
// candidate for an urgent task scores 0.5 + 0.3 + 0.1 + 0.1 + 0.1 = 1.1.
//
// Skill matching is exact set intersection over normalized tags.
func Score(t *task.Task, a *agent.Agent) float64 {
	score := baseScore
	if a.HasAnySkill(t.RequiredSkills) {
		score += skillBonus
	}
	if a.UnderCapacity() {
		score += capacityBonus
	}
	score += a.SuccessRate * successWeight
	if t.Priority == task.PriorityUrgent {
		score += urgentBonus
	}
	return score
}
