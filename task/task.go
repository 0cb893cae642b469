// Package task defines the task model and its lifecycle.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority weighs into agent scoring; urgent tasks earn a selection bonus.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a unit of work delegated to an agent.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	RequiredSkills []string   `json:"required_skills"`
	Priority       Priority   `json:"priority"`
	Complexity     int        `json:"complexity"` // 1-10, advisory
	Status         Status     `json:"status"`
	AssignedTo     string     `json:"assigned_to,omitempty"` // agent ID
	CreatedAt      time.Time  `json:"created_at"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// Duration fields are in minutes, advisory.
	EstimatedDuration int `json:"estimated_duration,omitempty"`
	ActualDuration    int `json:"actual_duration,omitempty"`
}

// NewID generates a collision-resistant task ID from the current timestamp
// plus a random suffix.
func NewID() string {
	return fmt.Sprintf("task-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

// NormalizeSkills lower-cases, trims, and de-duplicates a skill tag list,
// preserving first-seen order.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// transitions lists the allowed status changes. A task is delegated exactly
// once; terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAssigned},
	StatusAssigned:   {StatusInProgress, StatusCompleted, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal status.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}
