package orderfsm

import (
	"errors"
	"testing"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/models"
)

func TestHappyPath(t *testing.T) {
	t.Parallel()
	status := models.StatusProposed
	for _, to := range []string{models.StatusApproved, models.StatusCommitted, models.StatusInTransit, models.StatusReceived} {
		next, err := Transition(status, to)
		if err != nil {
			t.Fatalf("%s -> %s: %v", status, to, err)
		}
		status = next
	}
	if status != models.StatusReceived {
		t.Fatalf("expected received, got %s", status)
	}
	if !IsTerminal(status) {
		t.Fatal("received should be terminal")
	}
}

func TestCancelFromAnyNonTerminal(t *testing.T) {
	t.Parallel()
	for _, from := range []string{models.StatusProposed, models.StatusApproved, models.StatusCommitted, models.StatusInTransit} {
		if !CanTransition(from, models.StatusCancelled) {
			t.Fatalf("cancel should be reachable from %s", from)
		}
	}
	for _, from := range []string{models.StatusReceived, models.StatusCancelled} {
		if CanTransition(from, models.StatusCancelled) {
			t.Fatalf("cancel must not be reachable from terminal %s", from)
		}
	}
}

func TestInvalidTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct{ from, to string }{
		{models.StatusProposed, models.StatusCommitted},
		{models.StatusProposed, models.StatusReceived},
		{models.StatusApproved, models.StatusInTransit},
		{models.StatusReceived, models.StatusApproved},
		{models.StatusCancelled, models.StatusApproved},
		{"bogus", models.StatusCancelled},
	}
	for _, tt := range tests {
		if CanTransition(tt.from, tt.to) {
			t.Fatalf("transition %s -> %s should be invalid", tt.from, tt.to)
		}
		if _, err := Transition(tt.from, tt.to); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for %s -> %s, got %v", tt.from, tt.to, err)
		}
	}
}

func TestTransitionKeepsFromOnError(t *testing.T) {
	t.Parallel()
	got, err := Transition(models.StatusProposed, models.StatusReceived)
	if err == nil || got != models.StatusProposed {
		t.Fatalf("expected original status back, got %s err %v", got, err)
	}
}
