package delegation

import (
	"time"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/task"
)

// Assignment is the append-only audit record binding one task to one agent,
// with the score that selected the agent and the eventual outcome.
type Assignment struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	AgentID     string     `json:"agent_id"`
	Score       float64    `json:"score"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Success     *bool      `json:"success,omitempty"` // nil until resolved
}

// Open reports whether the assignment has not been resolved yet.
func (a *Assignment) Open() bool { return a.CompletedAt == nil }

// Resolution describes the settled state after a completion or failure.
type Resolution struct {
	TaskID         string      `json:"task_id"`
	AgentID        string      `json:"agent_id"`
	TaskStatus     task.Status `json:"task_status"`
	SuccessRate    float64     `json:"success_rate"`
	TotalCompleted int         `json:"total_completed"`
	CurrentLoad    int         `json:"current_load"`
}

// TaskFilter controls which tasks ListTasks returns.
type TaskFilter struct {
	Status     *task.Status
	AssignedTo string
	Limit      int
}

// Store is the persistence contract the engine runs against. Compound
// updates (CommitAssignment, ResolveAssignment) must be atomic: either every
// entity they touch is updated, or none is.
type Store interface {
	// CreateTask persists a new task and returns its assigned ID.
	CreateTask(t *task.Task) (string, error)

	// GetTask retrieves a task by ID.
	GetTask(id string) (*task.Task, error)

	// UpdateTaskStatus moves a task from one status to another, failing if
	// the task is not currently in the expected status.
	UpdateTaskStatus(id string, from, to task.Status) error

	// ListTasks returns tasks matching the filter, newest first.
	ListTasks(f TaskFilter) ([]*task.Task, error)

	// RegisterAgent inserts an agent if no agent with the same ID exists.
	// Registering an existing ID is a no-op.
	RegisterAgent(a *agent.Agent) error

	// GetAgent retrieves an agent by ID.
	GetAgent(id string) (*agent.Agent, error)

	// SetAgentStatus changes an agent's availability.
	SetAgentStatus(id string, status agent.Status) error

	// ActiveAgents returns all active agents in registration order. The
	// order is the engine's tie-break order and must be stable.
	ActiveAgents() ([]*agent.Agent, error)

	// CommitAssignment atomically marks the task assigned, increments the
	// agent's load, and records the assignment.
	CommitAssignment(taskID, agentID string, score float64, at time.Time) (*Assignment, error)

	// ResolveAssignment atomically settles the task's open assignment:
	// terminal task status, agent load decrement and statistics update, and
	// the assignment outcome.
	ResolveAssignment(taskID string, success bool, at time.Time) (*Resolution, error)

	// AssignmentsForTask returns all assignment records for a task.
	AssignmentsForTask(taskID string) ([]*Assignment, error)

	// OpenAssignmentCount returns the number of unresolved assignments held
	// by an agent. This is the derived form of the agent's current load.
	OpenAssignmentCount(agentID string) (int, error)

	// TaskStatusCounts returns the number of tasks per status.
	TaskStatusCounts() (map[task.Status]int, error)

	// TopAgents returns agents ordered by total completed work.
	TopAgents(limit int) ([]*agent.Agent, error)
}
