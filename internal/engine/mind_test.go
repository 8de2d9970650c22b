package engine

import "testing"

func TestNewMindGetsAnEmptyUnlockedCurrentState(t *testing.T) {
	e := New()
	m := e.NewMind(nil, "scout")
	if m.Current == nil {
		t.Fatal("expected a Current state")
	}
	if m.Current.Locked {
		t.Fatal("expected the initial state to be unlocked")
	}
}

func TestCreateStateLocksAndBranchesCurrent(t *testing.T) {
	e := New()
	m := e.NewMind(nil, "scout")
	first := m.Current
	next, err := m.CreateState(e)
	if err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	if !first.Locked {
		t.Fatal("expected the old Current to be locked")
	}
	if m.Current != next || next.Base != first {
		t.Fatal("expected Current to advance to a state branched off the old one")
	}
}

func TestResolveMindTemplateCopiesOnlyNamedTraits(t *testing.T) {
	e := New()
	nameTT := mustTraittype(t, e, &Traittype{Label: "name", DataType: DataString})
	secretTT := mustTraittype(t, e, &Traittype{Label: "secret", DataType: DataString})
	actor := mustArchetype(t, e, "Actor", nil, map[*Traittype]any{nameTT: nil, secretTT: nil})

	world := e.NewMind(nil, "world")
	src, err := e.BeliefFromTemplate(actor, world.Current, world, map[*Traittype]any{
		nameTT:   "Gustav",
		secretTT: "hoards gold",
	})
	if err != nil {
		t.Fatalf("BeliefFromTemplate: %v", err)
	}
	if err := src.SetLabel(e, "gustav"); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	if err := world.Current.AddBelief(src); err != nil {
		t.Fatalf("AddBelief: %v", err)
	}

	spec := MindTemplateSpec{"gustav": {"name"}}
	m, err := ResolveMindTemplate(e, world, spec, e.NewSubject(world), world.Current)
	if err != nil {
		t.Fatalf("ResolveMindTemplate: %v", err)
	}

	var copied *Belief
	for b := range m.Current.GetBeliefs(e) {
		copied = b
	}
	if copied == nil {
		t.Fatal("expected the template to have copied a belief into the new mind")
	}
	name, err := copied.GetTrait(e, m.Current, nameTT)
	if err != nil || name != "Gustav" {
		t.Fatalf("copied name = %v, %v; want Gustav", name, err)
	}
	secret, err := copied.GetTrait(e, m.Current, secretTT)
	if err != nil {
		t.Fatalf("GetTrait(secret): %v", err)
	}
	if secret != nil {
		t.Fatalf("expected secret to NOT be copied, got %v", secret)
	}
}

func TestComposeMindConvergesComponentsInOrder(t *testing.T) {
	e := New()
	_, actor, _ := locationSchema(t, e)

	a := e.NewMind(nil, "a")
	b := e.NewMind(nil, "b")

	shared := e.NewSubject(nil)
	va := e.NewBelief(shared, a.Current, a)
	va.Archetypes = []*Archetype{actor}
	if err := a.Current.AddBelief(va); err != nil {
		t.Fatalf("AddBelief(a): %v", err)
	}
	a.Current.Lock()

	vb := e.NewBelief(shared, b.Current, b)
	vb.Archetypes = []*Archetype{actor}
	if err := b.Current.AddBelief(vb); err != nil {
		t.Fatalf("AddBelief(b): %v", err)
	}
	b.Current.Lock()

	tt := &Traittype{Label: "agreement", DataType: DataMind, Composable: true}
	composed, err := ComposeMind(e, tt, nil, []*Mind{a, b})
	if err != nil {
		t.Fatalf("ComposeMind: %v", err)
	}
	got, ok := composed.Current.GetBeliefBySubject(e, shared)
	if !ok || got != va {
		t.Fatal("expected the first mind's version to win the convergence")
	}
}

// TestRecallByArchetypeAggregatesAcrossBranches exercises the branch-fanning
// and Fuzzy-aggregation semantics of recall: two scouts independently
// perceive the same bartender and disagree on mood, and recall_by_archetype
// must pool both observations into one normalized Fuzzy rather than
// reporting only one branch or the unmerged raw values.
func TestRecallByArchetypeAggregatesAcrossBranches(t *testing.T) {
	e := New()
	moodTT := mustTraittype(t, e, &Traittype{Label: "mood", DataType: DataString})
	actor := mustArchetype(t, e, "Actor", nil, map[*Traittype]any{moodTT: nil})

	world := e.NewMind(nil, "world")
	bartender, err := e.BeliefFromTemplate(actor, world.Current, world, nil)
	if err != nil {
		t.Fatalf("BeliefFromTemplate(Actor): %v", err)
	}
	if err := world.Current.AddBelief(bartender); err != nil {
		t.Fatalf("AddBelief(bartender): %v", err)
	}
	world.Current.Lock()

	scoutA := e.NewMind(nil, "scoutA")
	sa, err := scoutA.CreateState(e, WithGroundState(world.Current))
	if err != nil {
		t.Fatalf("CreateState(scoutA): %v", err)
	}
	obsA := e.BeliefFrom(bartender, sa)
	if err := obsA.SetTrait(e, moodTT, "cheerful"); err != nil {
		t.Fatalf("SetTrait(mood, scoutA): %v", err)
	}
	if err := sa.AddBelief(obsA); err != nil {
		t.Fatalf("AddBelief(obsA): %v", err)
	}

	scoutB := e.NewMind(nil, "scoutB")
	sb, err := scoutB.CreateState(e, WithGroundState(world.Current))
	if err != nil {
		t.Fatalf("CreateState(scoutB): %v", err)
	}
	obsB := e.BeliefFrom(bartender, sb)
	if err := obsB.SetTrait(e, moodTT, "sullen"); err != nil {
		t.Fatalf("SetTrait(mood, scoutB): %v", err)
	}
	if err := sb.AddBelief(obsB); err != nil {
		t.Fatalf("AddBelief(obsB): %v", err)
	}

	var tick uint64 = sb.TT
	var gotSubjects []*Subject
	var observations []TraitObservation
	for subj, obs := range world.RecallByArchetype(e, world.Current, "Actor", tick, []string{"mood"}) {
		gotSubjects = append(gotSubjects, subj)
		observations = obs
	}
	if len(gotSubjects) != 1 || gotSubjects[0] != bartender.Subject {
		t.Fatalf("RecallByArchetype subjects = %v, want [%v]", gotSubjects, bartender.Subject)
	}
	if len(observations) != 1 || observations[0].Trait != "mood" {
		t.Fatalf("RecallByArchetype observations = %v, want one mood observation", observations)
	}
	alts := observations[0].Value.Alternatives
	if len(alts) != 2 {
		t.Fatalf("mood alternatives = %v, want 2 (cheerful, sullen)", alts)
	}
	seen := map[string]float64{}
	for _, alt := range alts {
		seen[alt.Value.(string)] = alt.Certainty
	}
	if seen["cheerful"] != 0.5 || seen["sullen"] != 0.5 {
		t.Fatalf("mood alternatives = %v, want cheerful=0.5, sullen=0.5", seen)
	}
}
