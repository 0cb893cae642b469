// Package store provides the SQLite-backed implementation of the delegation
// Store contract.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/delegation"
	"github.com/GoCodeAlone/dispatch/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	skills          TEXT NOT NULL DEFAULT '[]',
	capacity        INTEGER NOT NULL,
	current_load    INTEGER NOT NULL DEFAULT 0,
	success_rate    REAL NOT NULL DEFAULT 0,
	total_completed INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	last_seen       DATETIME NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	required_skills    TEXT NOT NULL DEFAULT '[]',
	priority           TEXT NOT NULL,
	complexity         INTEGER NOT NULL DEFAULT 5,
	status             TEXT NOT NULL,
	assigned_to        TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	assigned_at        DATETIME,
	completed_at       DATETIME,
	estimated_duration INTEGER NOT NULL DEFAULT 0,
	actual_duration    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS assignments (
	id           TEXT PRIMARY KEY,
	task_id      TEXT NOT NULL,
	agent_id     TEXT NOT NULL,
	score        REAL NOT NULL,
	assigned_at  DATETIME NOT NULL,
	completed_at DATETIME,
	success      BOOLEAN
);

CREATE INDEX IF NOT EXISTS idx_assignments_task ON assignments(task_id);
CREATE INDEX IF NOT EXISTS idx_assignments_agent_open ON assignments(agent_id) WHERE completed_at IS NULL;
`

// SQLiteStore persists agents, tasks, and assignments in a SQLite database.
// A single connection serializes the compound updates.
type SQLiteStore struct {
	db *sql.DB
}

var _ delegation.Store = (*SQLiteStore)(nil)

// New opens (or creates) a SQLite database at dbPath and ensures the schema
// exists. The caller is responsible for calling Close.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// DB exposes the underlying database for collaborators that share it, such
// as the skill catalog.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// --- Tasks ---

// CreateTask persists a new task and sets its ID, CreatedAt, and Status
// defaults.
func (s *SQLiteStore) CreateTask(t *task.Task) (string, error) {
	if t.ID == "" {
		t.ID = task.NewID()
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	t.CreatedAt = time.Now().UTC()
	t.RequiredSkills = task.NormalizeSkills(t.RequiredSkills)
	skills, _ := json.Marshal(t.RequiredSkills)

	_, err := s.db.Exec(`
		INSERT INTO tasks
			(id, title, description, required_skills, priority, complexity, status,
			 assigned_to, created_at, assigned_at, completed_at, estimated_duration, actual_duration)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, string(skills), string(t.Priority), t.Complexity,
		string(t.Status), t.AssignedTo, t.CreatedAt,
		nullTime(t.AssignedAt), nullTime(t.CompletedAt),
		t.EstimatedDuration, t.ActualDuration,
	)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return t.ID, nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(id string) (*task.Task, error) {
	row := s.db.QueryRow(`SELECT * FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, delegation.ErrNotFound)
	}
	return t, err
}

// UpdateTaskStatus moves a task from one status to another. The update is
// guarded: it only applies if the task is still in the expected status.
func (s *SQLiteStore) UpdateTaskStatus(id string, from, to task.Status) error {
	if !task.CanTransition(from, to) {
		return fmt.Errorf("task %s: %s -> %s: %w", id, from, to, delegation.ErrInvalidTransition)
	}
	res, err := s.db.Exec(`UPDATE tasks SET status=? WHERE id=? AND status=?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var current string
		err := s.db.QueryRow(`SELECT status FROM tasks WHERE id=?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, delegation.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("task %s is %s, expected %s: %w", id, current, from, delegation.ErrInvalidTransition)
	}
	return nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *SQLiteStore) ListTasks(f delegation.TaskFilter) ([]*task.Task, error) {
	q := strings.Builder{}
	q.WriteString("SELECT * FROM tasks WHERE 1=1")
	args := []any{}

	if f.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*f.Status))
	}
	if f.AssignedTo != "" {
		q.WriteString(" AND assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	q.WriteString(" ORDER BY created_at DESC")
	if f.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", f.Limit))
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- Agents ---

// RegisterAgent inserts the agent if absent; registering an existing ID is a
// no-op, which makes seeding idempotent.
func (s *SQLiteStore) RegisterAgent(a *agent.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("register agent: empty id")
	}
	if a.Status == "" {
		a.Status = agent.StatusActive
	}
	now := time.Now().UTC()
	if a.LastSeen.IsZero() {
		a.LastSeen = now
	}
	a.Skills = task.NormalizeSkills(a.Skills)
	skills, _ := json.Marshal(a.Skills)

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO agents
			(id, name, skills, capacity, current_load, success_rate, total_completed, status, last_seen, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, string(skills), a.Capacity, a.CurrentLoad,
		a.SuccessRate, a.TotalCompleted, string(a.Status), a.LastSeen, now,
	)
	if err != nil {
		return fmt.Errorf("register agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(id string) (*agent.Agent, error) {
	row := s.db.QueryRow(`SELECT id, name, skills, capacity, current_load, success_rate, total_completed, status, last_seen FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, delegation.ErrNotFound)
	}
	return a, err
}

// SetAgentStatus changes an agent's availability.
func (s *SQLiteStore) SetAgentStatus(id string, status agent.Status) error {
	res, err := s.db.Exec(`UPDATE agents SET status=?, last_seen=? WHERE id=?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set agent status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("agent %s: %w", id, delegation.ErrNotFound)
	}
	return nil
}

// ActiveAgents returns all active agents in registration order. This order
// is the engine's tie-break order.
func (s *SQLiteStore) ActiveAgents() ([]*agent.Agent, error) {
	rows, err := s.db.Query(`SELECT id, name, skills, capacity, current_load, success_rate, total_completed, status, last_seen
		FROM agents WHERE status=? ORDER BY created_at ASC, id ASC`, string(agent.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}
	defer rows.Close()

	var agents []*agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// --- Compound updates ---

// CommitAssignment atomically marks the task assigned, increments the
// agent's load, and inserts the assignment record. The task update is
// guarded on status=pending so two concurrent delegations of the same task
// cannot both commit.
func (s *SQLiteStore) CommitAssignment(taskID, agentID string, score float64, at time.Time) (*delegation.Assignment, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "commit assignment", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`UPDATE tasks SET status=?, assigned_to=?, assigned_at=? WHERE id=? AND status=?`,
		string(task.StatusAssigned), agentID, at, taskID, string(task.StatusPending))
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "commit assignment: update task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current string
		err := tx.QueryRow(`SELECT status FROM tasks WHERE id=?`, taskID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", taskID, delegation.ErrNotFound)
		}
		if err != nil {
			return nil, &delegation.ConsistencyError{Op: "commit assignment", Err: err}
		}
		return nil, fmt.Errorf("task %s is %s: %w", taskID, current, delegation.ErrInvalidTransition)
	}

	res, err = tx.Exec(`UPDATE agents SET current_load=current_load+1, last_seen=? WHERE id=? AND status=?`,
		at, agentID, string(agent.StatusActive))
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "commit assignment: update agent", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Agent went inactive between scoring and commit; the rollback
		// leaves the task pending and retryable.
		return nil, fmt.Errorf("agent %s no longer active: %w", agentID, delegation.ErrNoAgentAvailable)
	}

	asg := &delegation.Assignment{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		AgentID:    agentID,
		Score:      score,
		AssignedAt: at,
	}
	if _, err := tx.Exec(`INSERT INTO assignments (id, task_id, agent_id, score, assigned_at) VALUES (?,?,?,?,?)`,
		asg.ID, asg.TaskID, asg.AgentID, asg.Score, asg.AssignedAt); err != nil {
		return nil, &delegation.ConsistencyError{Op: "commit assignment: insert record", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &delegation.ConsistencyError{Op: "commit assignment", Err: err}
	}
	return asg, nil
}

// ResolveAssignment atomically settles a task's open assignment: terminal
// task status, agent load decrement (floored at zero) plus statistics
// update, and the assignment outcome. The success-rate update folds the
// outcome into the running mean using the pre-increment completion count.
func (s *SQLiteStore) ResolveAssignment(taskID string, success bool, at time.Time) (*delegation.Resolution, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	var status, assignedTo string
	var assignedAt sql.NullTime
	err = tx.QueryRow(`SELECT status, assigned_to, assigned_at FROM tasks WHERE id=?`, taskID).
		Scan(&status, &assignedTo, &assignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, delegation.ErrNotFound)
	}
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment: load task", Err: err}
	}

	terminal := task.StatusCompleted
	if !success {
		terminal = task.StatusFailed
	}
	if !task.CanTransition(task.Status(status), terminal) {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, status, delegation.ErrInvalidTransition)
	}

	actual := 0
	if assignedAt.Valid {
		actual = int(at.Sub(assignedAt.Time).Minutes())
	}
	res, err := tx.Exec(`UPDATE tasks SET status=?, completed_at=?, actual_duration=? WHERE id=? AND status=?`,
		string(terminal), at, actual, taskID, status)
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment: update task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment",
			Err: fmt.Errorf("task %s changed status mid-transaction", taskID)}
	}

	var rate float64
	var total, load int
	err = tx.QueryRow(`SELECT success_rate, total_completed, current_load FROM agents WHERE id=?`, assignedTo).
		Scan(&rate, &total, &load)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", assignedTo, delegation.ErrNotFound)
	}
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment: load agent", Err: err}
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	newRate := (rate*float64(total) + outcome) / float64(total+1)
	newLoad := load - 1
	if newLoad < 0 {
		newLoad = 0
	}
	if _, err := tx.Exec(`UPDATE agents SET current_load=?, total_completed=?, success_rate=?, last_seen=? WHERE id=?`,
		newLoad, total+1, newRate, at, assignedTo); err != nil {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment: update agent", Err: err}
	}

	res, err = tx.Exec(`UPDATE assignments SET completed_at=?, success=? WHERE task_id=? AND completed_at IS NULL`,
		at, success, taskID)
	if err != nil {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment: update record", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment",
			Err: fmt.Errorf("no open assignment for task %s", taskID)}
	}

	if err := tx.Commit(); err != nil {
		return nil, &delegation.ConsistencyError{Op: "resolve assignment", Err: err}
	}
	return &delegation.Resolution{
		TaskID:         taskID,
		AgentID:        assignedTo,
		TaskStatus:     terminal,
		SuccessRate:    newRate,
		TotalCompleted: total + 1,
		CurrentLoad:    newLoad,
	}, nil
}

// --- Queries ---

// AssignmentsForTask returns all assignment records for a task, oldest
// first.
func (s *SQLiteStore) AssignmentsForTask(taskID string) ([]*delegation.Assignment, error) {
	rows, err := s.db.Query(`SELECT id, task_id, agent_id, score, assigned_at, completed_at, success
		FROM assignments WHERE task_id=? ORDER BY assigned_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*delegation.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// OpenAssignmentCount returns the number of unresolved assignments held by
// an agent, the derived form of its current load.
func (s *SQLiteStore) OpenAssignmentCount(agentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assignments WHERE agent_id=? AND completed_at IS NULL`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open assignments: %w", err)
	}
	return n, nil
}

// TaskStatusCounts returns the number of tasks per status.
func (s *SQLiteStore) TaskStatusCounts() (map[task.Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[task.Status(st)] = n
	}
	return counts, rows.Err()
}

// TopAgents returns agents ordered by total completed work, then success
// rate.
func (s *SQLiteStore) TopAgents(limit int) ([]*agent.Agent, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(`SELECT id, name, skills, capacity, current_load, success_rate, total_completed, status, last_seen
		FROM agents ORDER BY total_completed DESC, success_rate DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top agents: %w", err)
	}
	defer rows.Close()

	var agents []*agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// --- Scanning ---

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*task.Task, error) {
	var t task.Task
	var status, priority, skillsJSON string
	var assignedAt, completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &skillsJSON, &priority, &t.Complexity,
		&status, &t.AssignedTo, &t.CreatedAt, &assignedAt, &completedAt,
		&t.EstimatedDuration, &t.ActualDuration,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	_ = json.Unmarshal([]byte(skillsJSON), &t.RequiredSkills)

	if assignedAt.Valid {
		t.AssignedAt = &assignedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func scanAgent(s scanner) (*agent.Agent, error) {
	var a agent.Agent
	var status, skillsJSON string

	err := s.Scan(
		&a.ID, &a.Name, &skillsJSON, &a.Capacity, &a.CurrentLoad,
		&a.SuccessRate, &a.TotalCompleted, &status, &a.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	a.Status = agent.Status(status)
	_ = json.Unmarshal([]byte(skillsJSON), &a.Skills)
	return &a, nil
}

func scanAssignment(s scanner) (*delegation.Assignment, error) {
	var a delegation.Assignment
	var completedAt sql.NullTime
	var success sql.NullBool

	err := s.Scan(&a.ID, &a.TaskID, &a.AgentID, &a.Score, &a.AssignedAt, &completedAt, &success)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if success.Valid {
		a.Success = &success.Bool
	}
	return &a, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
