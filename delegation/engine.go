// Package delegation implements the task delegation engine: scoring agents
// against pending tasks, committing assignments, and settling outcomes.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/eventlog"
	"github.com/GoCodeAlone/dispatch/task"
)

// AssignmentResult reports a successful delegation.
type AssignmentResult struct {
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	AgentName  string    `json:"agent_name"`
	Score      float64   `json:"score"`
	AssignedAt time.Time `json:"assigned_at"`
}

// SubmitResult reports a task submission. Assignment is nil when no agent
// was available; the task remains pending and can be delegated later.
type SubmitResult struct {
	TaskID     string            `json:"task_id"`
	Assignment *AssignmentResult `json:"assignment,omitempty"`
}

// Engine orchestrates task submission, agent selection, assignment commit,
// and completion accounting against a Store.
type Engine struct {
	store    Store
	logger   *slog.Logger
	events   eventlog.Logger // optional, fire-and-forget
	minScore float64

	// delegateMu serializes candidate scoring with the assignment commit,
	// so a delegation never scores an agent against stale load state.
	delegateMu sync.Mutex
}

// New creates an Engine backed by the given store.
func New(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// SetEventLogger attaches an external event logger. Logging is best-effort:
// a failing or absent logger never affects delegation.
func (e *Engine) SetEventLogger(l eventlog.Logger) { e.events = l }

// SetMinScore sets the minimum acceptance score. Candidates scoring below it
// are not viable. Zero (the default) accepts any best candidate.
func (e *Engine) SetMinScore(v float64) { e.minScore = v }

// Submit validates and persists a new task, then attempts delegation.
// No agent being available is not a submission failure: the task stays
// pending and the returned result carries a nil Assignment.
func (e *Engine) Submit(title, description string, requiredSkills []string, priority task.Priority, complexity int) (*SubmitResult, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	skills := task.NormalizeSkills(requiredSkills)
	if len(skills) == 0 {
		return nil, &ValidationError{Field: "required_skills", Reason: "must not be empty"}
	}
	if priority == "" {
		priority = task.PriorityMedium
	}
	if !task.ValidPriority(priority) {
		return nil, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", priority)}
	}
	if complexity == 0 {
		complexity = 5
	}
	if complexity < 1 || complexity > 10 {
		return nil, &ValidationError{Field: "complexity", Reason: "must be between 1 and 10"}
	}

	t := &task.Task{
		Title:          strings.TrimSpace(title),
		Description:    description,
		RequiredSkills: skills,
		Priority:       priority,
		Complexity:     complexity,
		Status:         task.StatusPending,
	}
	id, err := e.store.CreateTask(t)
	if err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}
	e.logger.Info("task submitted",
		slog.String("task", id),
		slog.String("priority", string(priority)),
	)

	res, err := e.Delegate(id)
	if err != nil {
		if errors.Is(err, ErrNoAgentAvailable) {
			e.logger.Warn("no agent available, task left pending", slog.String("task", id))
			return &SubmitResult{TaskID: id}, nil
		}
		return nil, err
	}
	return &SubmitResult{TaskID: id, Assignment: res}, nil
}

// Delegate selects the best-scoring active agent for a pending task and
// commits the assignment atomically. On failure the task is left pending so
// delegation can be retried without residue from the failed attempt.
func (e *Engine) Delegate(taskID string) (*AssignmentResult, error) {
	e.delegateMu.Lock()
	defer e.delegateMu.Unlock()

	t, err := e.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusPending {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, t.Status, ErrInvalidTransition)
	}

	candidates, err := e.store.ActiveAgents()
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNoAgentAvailable)
	}

	best, bestScore := pickBest(t, candidates)
	if bestScore < e.minScore {
		return nil, fmt.Errorf("task %s: best score %.2f below threshold %.2f: %w",
			taskID, bestScore, e.minScore, ErrNoAgentAvailable)
	}

	asg, err := e.store.CommitAssignment(taskID, best.ID, bestScore, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	e.logger.Info("task delegated",
		slog.String("task", taskID),
		slog.String("agent", best.ID),
		slog.Float64("score", bestScore),
	)
	e.emitDelegated(t, best, bestScore)

	return &AssignmentResult{
		TaskID:     taskID,
		AgentID:    best.ID,
		AgentName:  best.Name,
		Score:      bestScore,
		AssignedAt: asg.AssignedAt,
	}, nil
}

// pickBest scans candidates in store order and keeps the first agent with a
// strictly greater score than the running best, so ties resolve to the
// earliest-registered agent. The scan order must be stable for reproducible
// selection.
func pickBest(t *task.Task, candidates []*agent.Agent) (*agent.Agent, float64) {
	var best *agent.Agent
	bestScore := -1.0
	for _, a := range candidates {
		if s := Score(t, a); s > bestScore {
			best = a
			bestScore = s
		}
	}
	return best, bestScore
}

// Complete settles an assigned or in-progress task. On success the task ends
// completed, otherwise failed; either way the agent's load drops, its
// completion count rises, and its success rate is folded into the running
// mean using the pre-increment count.
func (e *Engine) Complete(taskID string, success bool) (*Resolution, error) {
	t, err := e.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if t.AssignedTo == "" {
		return nil, fmt.Errorf("task %s has no assigned agent: %w", taskID, ErrNotFound)
	}
	if _, err := e.store.GetAgent(t.AssignedTo); err != nil {
		return nil, err
	}
	terminal := task.StatusCompleted
	if !success {
		terminal = task.StatusFailed
	}
	if !task.CanTransition(t.Status, terminal) {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, t.Status, ErrInvalidTransition)
	}

	res, err := e.store.ResolveAssignment(taskID, success, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	e.logger.Info("task resolved",
		slog.String("task", taskID),
		slog.String("agent", res.AgentID),
		slog.Bool("success", success),
		slog.Float64("success_rate", res.SuccessRate),
	)
	return res, nil
}

// MarkInProgress records an externally signalled start of work. The engine
// exposes the transition but nothing inside it triggers one.
func (e *Engine) MarkInProgress(taskID string) error {
	return e.store.UpdateTaskStatus(taskID, task.StatusAssigned, task.StatusInProgress)
}

// emitDelegated publishes a task-delegated event without blocking the
// caller. Errors are swallowed: the event log is an optional collaborator.
func (e *Engine) emitDelegated(t *task.Task, a *agent.Agent, score float64) {
	if e.events == nil {
		return
	}
	ev := &eventlog.Event{
		Kind:    eventlog.KindTaskDelegated,
		Subject: t.ID,
		Message: fmt.Sprintf("delegated %q to %s (score %.2f)", t.Title, a.Name, score),
		Tags:    append([]string{string(t.Priority), a.ID}, t.RequiredSkills...),
	}
	go func() {
		if err := e.events.Log(context.Background(), ev); err != nil {
			e.logger.Debug("event log publish failed", slog.Any("err", err))
		}
	}()
}
