// Package report builds read-only dashboard aggregations over the store.
package report

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/task"
)

// Source is the subset of the store the reporter reads from.
type Source interface {
	TaskStatusCounts() (map[task.Status]int, error)
	TopAgents(limit int) ([]*agent.Agent, error)
	OpenAssignmentCount(agentID string) (int, error)
}

// AgentLine is one dashboard row per agent. OpenAssignments is the load
// derived from unresolved assignment records; it matches CurrentLoad unless
// the stored counter has drifted.
type AgentLine struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Status          agent.Status `json:"status"`
	Capacity        int          `json:"capacity"`
	CurrentLoad     int          `json:"current_load"`
	OpenAssignments int          `json:"open_assignments"`
	SuccessRate     float64      `json:"success_rate"`
	TotalCompleted  int          `json:"total_completed"`
}

// Summary is the dashboard aggregate.
type Summary struct {
	GeneratedAt     time.Time           `json:"generated_at"`
	TasksByStatus   map[task.Status]int `json:"tasks_by_status"`
	TotalTasks      int                 `json:"total_tasks"`
	OpenAssignments int                 `json:"open_assignments"`
	Agents          []AgentLine         `json:"agents"`
}

// Build assembles a Summary with the top agents by completed work.
func Build(src Source, topN int) (*Summary, error) {
	counts, err := src.TaskStatusCounts()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	agents, err := src.TopAgents(topN)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	sum := &Summary{
		GeneratedAt:   time.Now().UTC(),
		TasksByStatus: counts,
		TotalTasks:    total,
	}
	for _, a := range agents {
		open, err := src.OpenAssignmentCount(a.ID)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		sum.OpenAssignments += open
		sum.Agents = append(sum.Agents, AgentLine{
			ID:              a.ID,
			Name:            a.Name,
			Status:          a.Status,
			Capacity:        a.Capacity,
			CurrentLoad:     a.CurrentLoad,
			OpenAssignments: open,
			SuccessRate:     a.SuccessRate,
			TotalCompleted:  a.TotalCompleted,
		})
	}
	return sum, nil
}
