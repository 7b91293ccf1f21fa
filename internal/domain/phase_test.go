package domain

import (
	"errors"
	"testing"
)

func TestPhaseNextWalksForward(t *testing.T) {
	p := FirstPhase(4)
	want := []string{"intermediate(2)", "intermediate(3)", "final"}
	for _, w := range want {
		next, err := p.Next()
		if err != nil {
			t.Fatalf("Next from %s: %v", p, err)
		}
		if next.String() != w {
			t.Fatalf("Next from %s = %s, want %s", p, next, w)
		}
		p = next
	}
	if !p.IsTerminal() {
		t.Fatalf("expected terminal phase, got %s", p)
	}
	if _, err := p.Next(); !errors.Is(err, ErrNoTransition) {
		t.Fatalf("expected ErrNoTransition, got %v", err)
	}
}

func TestPhaseNextTwoTurns(t *testing.T) {
	next, err := FirstPhase(2).Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Kind != PhaseFinal || next.Iteration != 2 {
		t.Fatalf("unexpected phase: %+v", next)
	}
}

func TestPhaseMarkers(t *testing.T) {
	if got := FirstPhase(4).OpeningMarker(); got != MarkerResearchPlan {
		t.Fatalf("first opening = %q", got)
	}
	if got := FirstPhase(4).ClosingMarker(); got != MarkerNextSteps {
		t.Fatalf("first closing = %q", got)
	}
	if got := IntermediatePhase(3, 4).OpeningMarker(); got != "## Research Update 3" {
		t.Fatalf("intermediate opening = %q", got)
	}
	if got := FinalPhase(4).ClosingMarker(); got != "" {
		t.Fatalf("final closing = %q", got)
	}
}

func TestConcludesNext(t *testing.T) {
	cases := []struct {
		phase Phase
		want  bool
	}{
		{FirstPhase(4), false},
		{IntermediatePhase(2, 4), false},
		{IntermediatePhase(3, 4), true},
		{FinalPhase(4), false},
	}
	for _, c := range cases {
		if got := c.phase.ConcludesNext(); got != c.want {
			t.Errorf("%s.ConcludesNext() = %v, want %v", c.phase, got, c.want)
		}
	}
}

func TestEnvelopeWithRepairDoesNotMutate(t *testing.T) {
	phase := FinalPhase(4)
	env := &Envelope{
		Goal:    GoalThreatModel,
		Phase:   &phase,
		Query:   "q",
		History: []Exchange{{Query: "a", Response: "b"}},
	}
	repaired := env.WithRepair("missing property 'scope'")
	if env.Repair != "" {
		t.Fatalf("original envelope mutated: %q", env.Repair)
	}
	repaired.History[0].Response = "changed"
	repaired.Phase.Iteration = 9
	if env.History[0].Response != "b" || env.Phase.Iteration != 4 {
		t.Fatalf("copy shares state with original")
	}
}

func TestRepoNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/AsyncFuncAI/deepwiki-open":     "deepwiki-open",
		"https://github.com/AsyncFuncAI/deepwiki-open.git": "deepwiki-open",
		"https://gitlab.com/group/sub/project/":            "project",
		"/local/path/repo":                                 "repo",
	}
	for in, want := range cases {
		if got := RepoNameFromURL(in); got != want {
			t.Errorf("RepoNameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseGoal(t *testing.T) {
	if g, err := ParseGoal(" Threat_Model "); err != nil || g != GoalThreatModel {
		t.Fatalf("ParseGoal = %q, %v", g, err)
	}
	_, err := ParseGoal("poem")
	var uge *UnsupportedGoalError
	if !errors.As(err, &uge) || !errors.Is(err, ErrUnsupportedGoal) {
		t.Fatalf("expected UnsupportedGoalError, got %v", err)
	}
}
