package delegation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/delegation"
	"github.com/GoCodeAlone/dispatch/eventlog"
	"github.com/GoCodeAlone/dispatch/store"
	"github.com/GoCodeAlone/dispatch/task"
)

func newTestEngine(t *testing.T) (*delegation.Engine, *store.SQLiteStore) {
	t.Helper()
	f, err := os.CreateTemp("", "dispatch-engine-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	f.Close()
	path := f.Name()
	t.Cleanup(func() { os.Remove(path) })

	st, err := store.New(path)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return delegation.New(st, logger), st
}

func seedAgent(t *testing.T, st *store.SQLiteStore, a *agent.Agent) {
	t.Helper()
	if err := st.RegisterAgent(a); err != nil {
		t.Fatalf("RegisterAgent %s: %v", a.ID, err)
	}
}

func TestSubmit_Validation(t *testing.T) {
	e, _ := newTestEngine(t)

	cases := []struct {
		name       string
		title      string
		skills     []string
		priority   task.Priority
		complexity int
		field      string
	}{
		{"empty title", "  ", []string{"x"}, task.PriorityLow, 5, "title"},
		{"no skills", "t", nil, task.PriorityLow, 5, "required_skills"},
		{"blank skills", "t", []string{" ", ""}, task.PriorityLow, 5, "required_skills"},
		{"bad priority", "t", []string{"x"}, "critical", 5, "priority"},
		{"complexity too high", "t", []string{"x"}, task.PriorityLow, 11, "complexity"},
		{"complexity negative", "t", []string{"x"}, task.PriorityLow, -1, "complexity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Submit(tc.title, "", tc.skills, tc.priority, tc.complexity)
			var verr *delegation.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("Field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestSubmit_Defaults(t *testing.T) {
	e, st := newTestEngine(t)

	res, err := e.Submit("t", "", []string{"x"}, "", 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := st.GetTask(res.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Priority != task.PriorityMedium {
		t.Errorf("Priority = %s, want medium default", got.Priority)
	}
	if got.Complexity != 5 {
		t.Errorf("Complexity = %d, want 5 default", got.Complexity)
	}
}

func TestSubmit_NoAgents_LeavesPending(t *testing.T) {
	e, st := newTestEngine(t)

	res, err := e.Submit("orphan", "", []string{"debugging"}, task.PriorityHigh, 3)
	if err != nil {
		t.Fatalf("Submit with no agents should not fail: %v", err)
	}
	if res.Assignment != nil {
		t.Errorf("Assignment = %+v, want nil", res.Assignment)
	}
	got, _ := st.GetTask(res.TaskID)
	if got.Status != task.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
}

func TestSubmit_AutoDelegates(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "healer", Name: "Healer", Skills: []string{"debugging"}, Capacity: 5})

	res, err := e.Submit("fix it", "", []string{"debugging"}, task.PriorityUrgent, 5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Assignment == nil {
		t.Fatal("Assignment = nil, want auto-delegation")
	}
	if res.Assignment.AgentID != "healer" {
		t.Errorf("AgentID = %s, want healer", res.Assignment.AgentID)
	}
	got, _ := st.GetTask(res.TaskID)
	if got.Status != task.StatusAssigned || got.AssignedTo != "healer" {
		t.Errorf("task = status %s assigned_to %q", got.Status, got.AssignedTo)
	}
}

func TestSubmit_DistinctIDs(t *testing.T) {
	e, _ := newTestEngine(t)

	r1, err := e.Submit("same", "", []string{"x"}, task.PriorityLow, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r2, err := e.Submit("same", "", []string{"x"}, task.PriorityLow, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r1.TaskID == r2.TaskID {
		t.Errorf("identical submissions shared ID %s", r1.TaskID)
	}
}

func TestDelegate_PicksBestScore(t *testing.T) {
	e, st := newTestEngine(t)
	// healer: 0.5 + 0.3 skill + 0.1 capacity + 0.09 success + 0.1 urgent = 1.09
	// guardian: 0.5 + 0.1 capacity + 0.05 success + 0.1 urgent = 0.75
	seedAgent(t, st, &agent.Agent{ID: "guardian", Name: "Guardian", Skills: []string{"monitoring"}, Capacity: 10, SuccessRate: 0.5})
	seedAgent(t, st, &agent.Agent{ID: "healer", Name: "Healer", Skills: []string{"debugging"}, Capacity: 5, SuccessRate: 0.9})

	id, err := st.CreateTask(&task.Task{Title: "login 500s", RequiredSkills: []string{"debugging"}, Priority: task.PriorityUrgent, Complexity: 5})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	res, err := e.Delegate(id)
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if res.AgentID != "healer" {
		t.Errorf("AgentID = %s, want healer", res.AgentID)
	}
	if res.Score < 1.0899 || res.Score > 1.0901 {
		t.Errorf("Score = %v, want 1.09", res.Score)
	}
}

func TestDelegate_Invariants(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"x"}, Capacity: 3})

	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Delegate(id); err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	a, _ := st.GetAgent("a1")
	if a.CurrentLoad != 1 {
		t.Errorf("CurrentLoad = %d, want 1", a.CurrentLoad)
	}
	asgs, _ := st.AssignmentsForTask(id)
	if len(asgs) != 1 || !asgs[0].Open() {
		t.Errorf("assignments = %d (open=%v), want exactly one open", len(asgs), len(asgs) > 0 && asgs[0].Open())
	}
}

func TestDelegate_AlreadyAssigned(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"x"}, Capacity: 3})

	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Delegate(id); err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if _, err := e.Delegate(id); !errors.Is(err, delegation.ErrInvalidTransition) {
		t.Fatalf("second Delegate err = %v, want ErrInvalidTransition", err)
	}
	a, _ := st.GetAgent("a1")
	if a.CurrentLoad != 1 {
		t.Errorf("CurrentLoad after rejected delegate = %d, want 1", a.CurrentLoad)
	}
}

func TestDelegate_UnknownTask(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Delegate("ghost"); !errors.Is(err, delegation.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelegate_NoActiveAgents(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "off", Name: "Off", Skills: []string{"x"}, Capacity: 3, Status: agent.StatusOffline})

	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Delegate(id); !errors.Is(err, delegation.ErrNoAgentAvailable) {
		t.Fatalf("err = %v, want ErrNoAgentAvailable", err)
	}
	got, _ := st.GetTask(id)
	if got.Status != task.StatusPending {
		t.Errorf("Status = %s, want pending after failed delegation", got.Status)
	}
}

func TestDelegate_MinScoreThreshold(t *testing.T) {
	e, st := newTestEngine(t)
	e.SetMinScore(0.95)
	// No skill match: 0.5 + 0.1 capacity + 0.1 success = 0.7, below threshold.
	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"frontend"}, Capacity: 3, SuccessRate: 1.0})

	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"backend"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Delegate(id); !errors.Is(err, delegation.ErrNoAgentAvailable) {
		t.Fatalf("err = %v, want ErrNoAgentAvailable below threshold", err)
	}
	a, _ := st.GetAgent("a1")
	if a.CurrentLoad != 0 {
		t.Errorf("CurrentLoad = %d, want 0", a.CurrentLoad)
	}
	asgs, _ := st.AssignmentsForTask(id)
	if len(asgs) != 0 {
		t.Errorf("assignments = %d, want 0", len(asgs))
	}
}

func TestDelegate_EmitsEvent(t *testing.T) {
	e, st := newTestEngine(t)
	log := eventlog.NewInMemoryLog()
	e.SetEventLogger(log)

	got := make(chan *eventlog.Event, 1)
	log.Subscribe(eventlog.KindTaskDelegated, func(_ context.Context, ev *eventlog.Event) error {
		select {
		case got <- ev:
		default:
		}
		return nil
	})

	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"x"}, Capacity: 3})
	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Delegate(id); err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Subject != id {
			t.Errorf("event subject = %s, want %s", ev.Subject, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delegation event within 2s")
	}
}

func TestComplete_SuccessAccounting(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"x"}, Capacity: 5, SuccessRate: 0.75, TotalCompleted: 4})

	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Delegate(id); err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	res, err := e.Complete(id, true)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.TaskStatus != task.StatusCompleted {
		t.Errorf("TaskStatus = %s, want completed", res.TaskStatus)
	}
	// (0.75*4 + 1) / 5 = 0.8
	if res.SuccessRate < 0.7999 || res.SuccessRate > 0.8001 {
		t.Errorf("SuccessRate = %v, want 0.8", res.SuccessRate)
	}
	if res.TotalCompleted != 5 {
		t.Errorf("TotalCompleted = %d, want 5", res.TotalCompleted)
	}
	if res.CurrentLoad != 0 {
		t.Errorf("CurrentLoad = %d, want 0", res.CurrentLoad)
	}
}

func TestComplete_FailureEndsFailed(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"x"}, Capacity: 5, SuccessRate: 1.0, TotalCompleted: 1})

	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Delegate(id); err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	res, err := e.Complete(id, false)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.TaskStatus != task.StatusFailed {
		t.Errorf("TaskStatus = %s, want failed", res.TaskStatus)
	}
	if res.TotalCompleted != 2 {
		t.Errorf("TotalCompleted = %d, want 2 (failures count as attempts)", res.TotalCompleted)
	}
	got, _ := st.GetTask(id)
	if got.Status != task.StatusFailed {
		t.Errorf("task status = %s, want failed", got.Status)
	}
}

func TestComplete_Guards(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"x"}, Capacity: 5})

	// Pending task has no assigned agent.
	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	if _, err := e.Complete(id, true); !errors.Is(err, delegation.ErrNotFound) {
		t.Fatalf("unassigned Complete err = %v, want ErrNotFound", err)
	}

	if _, err := e.Delegate(id); err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if _, err := e.Complete(id, true); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := e.Complete(id, true); !errors.Is(err, delegation.ErrInvalidTransition) {
		t.Fatalf("double Complete err = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkInProgress(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "a1", Name: "A", Skills: []string{"x"}, Capacity: 5})

	id, _ := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityLow, Complexity: 1})
	// Pending tasks can't start work.
	if err := e.MarkInProgress(id); !errors.Is(err, delegation.ErrInvalidTransition) {
		t.Fatalf("pending MarkInProgress err = %v, want ErrInvalidTransition", err)
	}

	if _, err := e.Delegate(id); err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if err := e.MarkInProgress(id); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	got, _ := st.GetTask(id)
	if got.Status != task.StatusInProgress {
		t.Errorf("Status = %s, want in_progress", got.Status)
	}

	// in_progress still resolves normally.
	if _, err := e.Complete(id, true); err != nil {
		t.Fatalf("Complete from in_progress: %v", err)
	}
}

func TestDelegate_ConcurrentLoadsStayConsistent(t *testing.T) {
	e, st := newTestEngine(t)
	seedAgent(t, st, &agent.Agent{ID: "small", Name: "Small", Skills: []string{"x"}, Capacity: 2})
	seedAgent(t, st, &agent.Agent{ID: "big", Name: "Big", Skills: []string{"x"}, Capacity: 50})

	const n = 10
	ids := make([]string, n)
	for i := range ids {
		id, err := st.CreateTask(&task.Task{Title: "t", RequiredSkills: []string{"x"}, Priority: task.PriorityMedium, Complexity: 1})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		ids[i] = id
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := e.Delegate(id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Delegate: %v", err)
	}

	small, _ := st.GetAgent("small")
	big, _ := st.GetAgent("big")
	if small.CurrentLoad > small.Capacity {
		t.Errorf("small load %d exceeds capacity %d", small.CurrentLoad, small.Capacity)
	}
	if small.CurrentLoad+big.CurrentLoad != n {
		t.Errorf("total load = %d, want %d", small.CurrentLoad+big.CurrentLoad, n)
	}
	for _, id := range ids {
		got, _ := st.GetTask(id)
		if got.Status != task.StatusAssigned {
			t.Errorf("task %s = %s, want assigned", id, got.Status)
		}
	}
}
