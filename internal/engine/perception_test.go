package engine

import (
	"testing"

	"github.com/aigan/adventure-sub003/pkg/fuzzy"
)

func worldWithOneObservable(t *testing.T, e *Engine) (world *Mind, rock *Belief, sizeTT *Traittype) {
	t.Helper()
	sizeTT = mustTraittype(t, e, &Traittype{Label: "size", DataType: DataString, Exposure: "visual"})
	thing := mustArchetype(t, e, "Thing", nil, map[*Traittype]any{sizeTT: nil})
	world = e.Materia
	b, err := e.BeliefFromTemplate(thing, world.Current, world, map[*Traittype]any{sizeTT: "large"})
	if err != nil {
		t.Fatalf("BeliefFromTemplate: %v", err)
	}
	if err := world.Current.AddBelief(b); err != nil {
		t.Fatalf("AddBelief: %v", err)
	}
	return world, b, sizeTT
}

func TestRecognizeReturnsMostRecentFirstUpToLimit(t *testing.T) {
	e := New()
	actor := mustArchetype(t, e, "Actor", nil, nil)
	observer := e.NewMind(nil, "observer")
	target := e.NewSubject(nil)

	s := observer.Current
	var last *Belief
	for i := 0; i < 4; i++ {
		b, err := e.BeliefFromTemplate(actor, s, observer, nil)
		if err != nil {
			t.Fatalf("BeliefFromTemplate: %v", err)
		}
		if err := b.SetTrait(e, e.AboutTT, target); err != nil {
			t.Fatalf("SetTrait(@about): %v", err)
		}
		if err := s.AddBelief(b); err != nil {
			t.Fatalf("AddBelief: %v", err)
		}
		s.Lock()
		next, err := s.Branch(e)
		if err != nil {
			t.Fatalf("Branch: %v", err)
		}
		s = next
		last = b
	}

	got := e.Recognize(s, target, 0)
	if len(got) != 3 {
		t.Fatalf("len(Recognize) = %d, want 3 (default limit)", len(got))
	}
	if got[0] != last {
		t.Fatal("expected the most recently added belief first")
	}
}

func TestIdentifyPivotsOnDiscriminatingSubjectTrait(t *testing.T) {
	e := New()
	_, actor, locationTT := locationSchema(t, e)
	m := e.NewMind(nil, "world")
	s := m.Current

	tavern := e.NewSubject(m)
	bartender, err := e.BeliefFromTemplate(actor, s, m, map[*Traittype]any{locationTT: tavern})
	if err != nil {
		t.Fatalf("BeliefFromTemplate: %v", err)
	}
	if err := s.AddBelief(bartender); err != nil {
		t.Fatalf("AddBelief: %v", err)
	}

	probe := &Belief{OwnTraits: map[*Traittype]any{locationTT: tavern}}
	candidates, err := e.Identify(s, probe)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	found := false
	for _, c := range candidates {
		if c == bartender {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bartender among Identify candidates, got %v", candidates)
	}
}

func TestPerceiveCreatesAnEventPerceptionWithContent(t *testing.T) {
	e := New()
	_, rock, _ := worldWithOneObservable(t, e)
	observer := e.NewMind(nil, "observer")

	ep, err := e.Perceive(observer.Current, []*Belief{rock}, "visual")
	if err != nil {
		t.Fatalf("Perceive: %v", err)
	}
	content, err := ep.GetTrait(e, observer.Current, e.ContentTT)
	if err != nil {
		t.Fatalf("GetTrait(content): %v", err)
	}
	items, ok := content.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one perceived knowledge subject, got %v", content)
	}
}

func TestPerceiveIsIdempotentOnUnchangedWorld(t *testing.T) {
	e := New()
	_, rock, _ := worldWithOneObservable(t, e)
	observer := e.NewMind(nil, "observer")

	if _, err := e.Perceive(observer.Current, []*Belief{rock}, "visual"); err != nil {
		t.Fatalf("Perceive (first): %v", err)
	}
	countAfterFirst := 0
	for range observer.Current.GetBeliefs(e) {
		countAfterFirst++
	}

	observer.Current.Lock()
	next, err := observer.Current.Branch(e)
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	observer.Current = next

	if _, err := e.Perceive(observer.Current, []*Belief{rock}, "visual"); err != nil {
		t.Fatalf("Perceive (second): %v", err)
	}
	countAfterSecond := 0
	for range observer.Current.GetBeliefs(e) {
		countAfterSecond++
	}

	// The second perception adds only its own EventPerception wrapper, no
	// new knowledge belief about rock.
	if countAfterSecond != countAfterFirst+1 {
		t.Fatalf("expected exactly one new belief (the EventPerception) on the second perceive, got %d -> %d", countAfterFirst, countAfterSecond)
	}
}

// TestPerceiveRecordsInheritedPerceptibleTraits covers the version-chain
// case: the world belief actually handed to Perceive carries its visible
// trait only by inheritance from the version it is based on, and the
// observer must still record it.
func TestPerceiveRecordsInheritedPerceptibleTraits(t *testing.T) {
	e := New()
	sizeTT := mustTraittype(t, e, &Traittype{Label: "size", DataType: DataString, Exposure: "visual"})
	ageTT := mustTraittype(t, e, &Traittype{Label: "age", DataType: DataString, Exposure: "internal"})
	thing := mustArchetype(t, e, "Thing", nil, map[*Traittype]any{sizeTT: nil, ageTT: nil})

	world := e.NewMind(nil, "world")
	s1 := world.Current
	rock, err := e.BeliefFromTemplate(thing, s1, world, map[*Traittype]any{
		sizeTT: "large",
		ageTT:  "ancient",
	})
	if err != nil {
		t.Fatalf("BeliefFromTemplate(rock): %v", err)
	}
	if err := s1.AddBelief(rock); err != nil {
		t.Fatalf("AddBelief(rock): %v", err)
	}
	s1.Lock()

	s2, err := s1.Branch(e)
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	rockV2 := e.BeliefFrom(rock, s2) // no own traits; size and age are inherited
	if err := s2.AddBelief(rockV2); err != nil {
		t.Fatalf("AddBelief(rockV2): %v", err)
	}

	observer := e.NewMind(nil, "observer")
	if _, err := e.Perceive(observer.Current, []*Belief{rockV2}, "visual"); err != nil {
		t.Fatalf("Perceive: %v", err)
	}

	var kb *Belief
	for b := range observer.Current.GetBeliefs(e) {
		if about, ok := b.OwnTraits[e.AboutTT]; ok {
			if subj, ok := about.(*Subject); ok && subj == rockV2.Subject {
				kb = b
			}
		}
	}
	if kb == nil {
		t.Fatal("expected a knowledge belief about the rock")
	}
	size, err := kb.GetTrait(e, observer.Current, sizeTT)
	if err != nil || size != "large" {
		t.Fatalf("size = %v, %v; want the inherited value recorded", size, err)
	}
	age, err := kb.GetTrait(e, observer.Current, ageTT)
	if err != nil {
		t.Fatalf("GetTrait(age): %v", err)
	}
	if age != nil {
		t.Fatalf("age = %v; want nothing, its modality is outside the visual set", age)
	}
}

func TestLearnFromIntegratesPerceptionContent(t *testing.T) {
	e := New()
	_, rock, sizeTT := worldWithOneObservable(t, e)
	perceiver := e.NewMind(nil, "observer")

	ep, err := e.Perceive(perceiver.Current, []*Belief{rock}, "visual")
	if err != nil {
		t.Fatalf("Perceive: %v", err)
	}

	learner := e.NewMind(nil, "learner")
	lep, err := e.LearnFrom(learner.Current, ep)
	if err != nil {
		t.Fatalf("LearnFrom: %v", err)
	}
	content, err := lep.GetTrait(e, learner.Current, e.ContentTT)
	if err != nil {
		t.Fatalf("GetTrait(content): %v", err)
	}
	items, ok := content.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected LearnFrom to integrate one knowledge subject, got %v", content)
	}
	_ = sizeTT
}

func TestTraitValuesEqualFuzzyVsConcrete(t *testing.T) {
	mood, err := fuzzy.New(
		fuzzy.Alternative{Value: "happy", Certainty: 0.6},
		fuzzy.Alternative{Value: "tired", Certainty: 0.3},
	)
	if err != nil {
		t.Fatalf("fuzzy.New: %v", err)
	}
	if !traitValuesEqual(mood, "happy") {
		t.Fatal("expected a certain value among the alternatives to match")
	}
	if traitValuesEqual(mood, "angry") {
		t.Fatal("expected a certain value outside the alternatives to mismatch")
	}
	if !traitValuesEqual("tired", mood) {
		t.Fatal("expected the check to be symmetric")
	}

	other, err := fuzzy.New(fuzzy.Alternative{Value: "tired", Certainty: 1})
	if err != nil {
		t.Fatalf("fuzzy.New: %v", err)
	}
	if !traitValuesEqual(mood, other) {
		t.Fatal("expected two Fuzzy values sharing an alternative to match")
	}
}

func TestLearnAboutInjectsDirectValuesAndBasesOnPrototype(t *testing.T) {
	e := New()
	sizeTT := mustTraittype(t, e, &Traittype{Label: "size", DataType: DataString})
	ownerTT := mustTraittype(t, e, &Traittype{Label: "owner", DataType: DataString})
	coordTT := mustTraittype(t, e, &Traittype{Label: "coordinates", DataType: DataString})
	culture := mustArchetype(t, e, "CulturalKnowledge_Tavern", nil, map[*Traittype]any{
		sizeTT: nil, ownerTT: nil, coordTT: nil,
	})

	blacksmithTavern := e.NewSubject(e.Materia)
	proto, err := e.CreateSharedFromTemplate("blacksmith_tavern_lore", culture, map[*Traittype]any{
		sizeTT:  "large",
		ownerTT: "guild",
	}, nil)
	if err != nil {
		t.Fatalf("CreateSharedFromTemplate: %v", err)
	}
	if err := proto.SetTrait(e, e.AboutTT, blacksmithTavern); err != nil {
		t.Fatalf("SetTrait(@about): %v", err)
	}

	npc1 := e.NewMind(nil, "npc1")
	nb, err := e.LearnAbout(npc1.Current, blacksmithTavern, map[string]any{"coordinates": "50,30"})
	if err != nil {
		t.Fatalf("LearnAbout: %v", err)
	}

	coord, err := nb.GetTrait(e, npc1.Current, coordTT)
	if err != nil || coord != "50,30" {
		t.Fatalf("coordinates = %v, %v; want 50,30", coord, err)
	}
	size, err := nb.GetTrait(e, npc1.Current, sizeTT)
	if err != nil || size != "large" {
		t.Fatalf("size = %v, %v; want large (inherited from prototype)", size, err)
	}
	owner, err := nb.GetTrait(e, npc1.Current, ownerTT)
	if err != nil || owner != "guild" {
		t.Fatalf("owner = %v, %v; want guild (inherited from prototype)", owner, err)
	}

	npc2 := e.NewMind(nil, "npc2")
	if _, ok := npc2.Current.GetBeliefBySubject(e, blacksmithTavern); ok {
		t.Fatal("expected npc2 to have no own belief about the tavern at all")
	}
}
