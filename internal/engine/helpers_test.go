package engine

import "testing"

// mustArchetype registers an archetype and fails the test on error — used
// throughout to keep schema setup out of the assertions under test.
func mustArchetype(t *testing.T, e *Engine, label string, bases []*Archetype, template map[*Traittype]any) *Archetype {
	t.Helper()
	a, err := e.RegisterArchetype(label, bases, template)
	if err != nil {
		t.Fatalf("RegisterArchetype(%q): %v", label, err)
	}
	return a
}

func mustTraittype(t *testing.T, e *Engine, tt *Traittype) *Traittype {
	t.Helper()
	got, err := e.RegisterTraittype(tt)
	if err != nil {
		t.Fatalf("RegisterTraittype(%q): %v", tt.Label, err)
	}
	return got
}

// locationSchema installs a minimal Location/Actor schema with a
// non-composable Subject-valued "location" trait, the shape the
// rev_trait/tavern-occupants family of scenarios needs.
func locationSchema(t *testing.T, e *Engine) (location *Archetype, actor *Archetype, locationTT *Traittype) {
	t.Helper()
	location = mustArchetype(t, e, "Location", nil, nil)
	locationTT = mustTraittype(t, e, &Traittype{Label: "location", DataType: DataSubject})
	actor = mustArchetype(t, e, "Actor", nil, map[*Traittype]any{locationTT: nil})
	return location, actor, locationTT
}

// newActorAt creates a locked-ready Actor belief at loc, adds it to s, and
// returns it. s must still be unlocked.
func newActorAt(t *testing.T, e *Engine, s *State, actor *Archetype, locationTT *Traittype, loc *Belief) *Belief {
	t.Helper()
	b, err := e.BeliefFromTemplate(actor, s, s.InMind, map[*Traittype]any{locationTT: loc.Subject})
	if err != nil {
		t.Fatalf("BeliefFromTemplate(Actor): %v", err)
	}
	if err := s.AddBelief(b); err != nil {
		t.Fatalf("AddBelief: %v", err)
	}
	return b
}
