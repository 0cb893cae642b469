package task

import (
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusAssigned},
		{StatusAssigned, StatusInProgress},
		{StatusAssigned, StatusCompleted},
		{StatusAssigned, StatusFailed},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusFailed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusCompleted},
		{StatusPending, StatusInProgress},
		{StatusAssigned, StatusAssigned},
		{StatusAssigned, StatusPending},
		{StatusCompleted, StatusFailed},
		{StatusCompleted, StatusAssigned},
		{StatusFailed, StatusPending},
		{StatusInProgress, StatusPending},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !Terminal(StatusCompleted) || !Terminal(StatusFailed) {
		t.Error("completed and failed should be terminal")
	}
	if Terminal(StatusPending) || Terminal(StatusAssigned) || Terminal(StatusInProgress) {
		t.Error("non-terminal status reported terminal")
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if !strings.HasPrefix(id, "task-") {
			t.Fatalf("NewID() = %q, want task- prefix", id)
		}
		if seen[id] {
			t.Fatalf("NewID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestNormalizeSkills(t *testing.T) {
	got := NormalizeSkills([]string{" Debugging", "debugging", "API", "", "  "})
	want := []string{"debugging", "api"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeSkills = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeSkills[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent} {
		if !ValidPriority(p) {
			t.Errorf("ValidPriority(%s) = false", p)
		}
	}
	if ValidPriority("critical") {
		t.Error("ValidPriority(critical) = true, want false")
	}
}
