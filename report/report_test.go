package report

import (
	"errors"
	"testing"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/task"
)

type fakeSource struct {
	counts map[task.Status]int
	agents []*agent.Agent
	open   map[string]int
	err    error
}

func (f *fakeSource) TaskStatusCounts() (map[task.Status]int, error) {
	return f.counts, f.err
}

func (f *fakeSource) TopAgents(limit int) ([]*agent.Agent, error) {
	if limit < len(f.agents) {
		return f.agents[:limit], nil
	}
	return f.agents, nil
}

func (f *fakeSource) OpenAssignmentCount(agentID string) (int, error) {
	return f.open[agentID], nil
}

func TestBuild(t *testing.T) {
	src := &fakeSource{
		counts: map[task.Status]int{
			task.StatusPending:   3,
			task.StatusAssigned:  2,
			task.StatusCompleted: 5,
		},
		agents: []*agent.Agent{
			{ID: "healer", Name: "Healer", Status: agent.StatusActive, Capacity: 5, CurrentLoad: 2, SuccessRate: 0.9, TotalCompleted: 4},
			{ID: "sage", Name: "Sage", Status: agent.StatusIdle, Capacity: 3, CurrentLoad: 0, SuccessRate: 1.0, TotalCompleted: 1},
		},
		open: map[string]int{"healer": 2},
	}

	sum, err := Build(src, 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sum.TotalTasks != 10 {
		t.Errorf("TotalTasks = %d, want 10", sum.TotalTasks)
	}
	if sum.OpenAssignments != 2 {
		t.Errorf("OpenAssignments = %d, want 2", sum.OpenAssignments)
	}
	if len(sum.Agents) != 2 {
		t.Fatalf("Agents = %d, want 2", len(sum.Agents))
	}
	healer := sum.Agents[0]
	if healer.ID != "healer" || healer.CurrentLoad != 2 || healer.OpenAssignments != 2 {
		t.Errorf("healer line = %+v", healer)
	}
	if sum.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestBuild_TopNLimitsAgents(t *testing.T) {
	src := &fakeSource{
		counts: map[task.Status]int{},
		agents: []*agent.Agent{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		},
		open: map[string]int{},
	}
	sum, err := Build(src, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sum.Agents) != 2 {
		t.Errorf("Agents = %d, want 2", len(sum.Agents))
	}
}

func TestBuild_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db gone")}
	if _, err := Build(src, 5); err == nil {
		t.Fatal("Build should propagate source errors")
	}
}
