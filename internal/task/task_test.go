package task

import (
	"strings"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAnalyzing, true},
		{StatusAnalyzing, StatusDecomposed, true},
		{StatusDecomposed, StatusExecuting, true},
		{StatusExecuting, StatusValidating, true},
		{StatusValidating, StatusImproving, true},
		{StatusValidating, StatusCompleted, true},
		{StatusImproving, StatusExecuting, true},
		{StatusExecuting, StatusPending, false},
		{StatusCompleted, StatusExecuting, false},
		{StatusPending, StatusFailed, true},
		{StatusExecuting, StatusFailed, true},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusFailed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	task := New("write a poem")
	if task.Status != StatusPending {
		t.Fatalf("new task status = %s, want pending", task.Status)
	}

	if err := task.Transition(StatusAnalyzing); err != nil {
		t.Fatalf("pending → analyzing: %v", err)
	}
	err := task.Transition(StatusPending)
	if err == nil {
		t.Fatal("analyzing → pending should be rejected")
	}
	if !strings.Contains(err.Error(), "illegal task transition") {
		t.Errorf("unexpected error: %v", err)
	}
	if task.Status != StatusAnalyzing {
		t.Errorf("status changed on rejected transition: %s", task.Status)
	}
}

func TestTerminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
	if StatusExecuting.Terminal() {
		t.Error("executing must not be terminal")
	}
}
