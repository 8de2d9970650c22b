package engine

import "testing"

func TestNewInstallsGroundMindsAndReservedSchema(t *testing.T) {
	e := New()
	if e.Logos == nil || e.Eidos == nil || e.Materia == nil {
		t.Fatal("expected all three ground minds to be installed")
	}
	if e.Logos.Kind != MindLogos || e.Eidos.Kind != MindEidos || e.Materia.Kind != MindMateria {
		t.Fatal("ground minds have wrong Kind")
	}
	if e.AboutTT == nil || e.AboutTT.Label != "@about" {
		t.Fatal("expected @about traittype to be installed")
	}
	if e.EventPerceptionArch == nil {
		t.Fatal("expected EventPerception archetype to be installed")
	}
}

func TestRegisterArchetypeDuplicateLabel(t *testing.T) {
	e := New()
	mustArchetype(t, e, "Thing", nil, nil)
	if _, err := e.RegisterArchetype("Thing", nil, nil); err == nil {
		t.Fatal("expected an error registering a duplicate archetype label")
	} else if ek, ok := err.(*Error); !ok || ek.Kind != KindSchema {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestRegisterTraittypeDuplicateLabel(t *testing.T) {
	e := New()
	mustTraittype(t, e, &Traittype{Label: "size", DataType: DataString})
	if _, err := e.RegisterTraittype(&Traittype{Label: "size", DataType: DataString}); err == nil {
		t.Fatal("expected an error registering a duplicate traittype label")
	}
}

func TestResetReinstallsGroundMindsAndRunsHooks(t *testing.T) {
	e := New()
	mustArchetype(t, e, "Thing", nil, nil)

	hookRan := false
	e.RegisterResetHook(func() { hookRan = true })

	oldLogos := e.Logos
	e.Reset()

	if e.Logos == oldLogos {
		t.Fatal("expected Reset to install a fresh Logos mind")
	}
	if _, ok := e.GetArchetype("Thing"); ok {
		t.Fatal("expected Reset to clear previously registered archetypes")
	}
	if !hookRan {
		t.Fatal("expected the registered reset hook to run")
	}
}

func TestRegisterArchetypeResolvesStringDefaultsOnce(t *testing.T) {
	e := New()
	material := mustArchetype(t, e, "Material", nil, nil)
	shared, err := e.CreateSharedFromTemplate("iron", material, nil, nil)
	if err != nil {
		t.Fatalf("CreateSharedFromTemplate: %v", err)
	}

	madeOfTT := mustTraittype(t, e, &Traittype{Label: "made_of", DataType: DataSubject})
	kindTT := mustTraittype(t, e, &Traittype{Label: "kind", DataType: DataSubject})

	tool := mustArchetype(t, e, "Tool", nil, map[*Traittype]any{
		madeOfTT: "iron",     // names a shared prototype: becomes its Subject
		kindTT:   "Material", // names an archetype: stays an Archetype marker
	})

	if got := tool.TraitTemplate[madeOfTT]; got != shared.Subject {
		t.Fatalf("made_of default = %v, want the iron prototype's subject", got)
	}
	if got := tool.TraitTemplate[kindTT]; got != material {
		t.Fatalf("kind default = %v, want the Material archetype marker", got)
	}

	if _, err := e.RegisterArchetype("Broken", nil, map[*Traittype]any{
		madeOfTT: "no_such_label",
	}); err == nil {
		t.Fatal("expected a ResolutionError for an unresolvable string default")
	}
}

func TestGetBeliefByLabelFallsBackToSharedRegistry(t *testing.T) {
	e := New()
	arch := mustArchetype(t, e, "Thing", nil, nil)
	shared, err := e.CreateSharedFromTemplate("anvil", arch, nil, nil)
	if err != nil {
		t.Fatalf("CreateSharedFromTemplate: %v", err)
	}
	got, ok := e.GetBeliefByLabel("anvil")
	if !ok || got != shared {
		t.Fatalf("GetBeliefByLabel(anvil) = %v, %v; want %v, true", got, ok, shared)
	}
}

func TestRebuildDictionaryIndexesLabelledBeliefs(t *testing.T) {
	e := New()
	actor := mustArchetype(t, e, "Actor", nil, nil)
	m := e.NewMind(nil, "world")
	b, err := e.BeliefFromTemplate(actor, m.Current, m, nil)
	if err != nil {
		t.Fatalf("BeliefFromTemplate: %v", err)
	}
	if err := b.SetLabel(e, "Gustav the Bartender"); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	if err := m.Current.AddBelief(b); err != nil {
		t.Fatalf("AddBelief: %v", err)
	}
	sids := e.dict.Lookup("Gustav the Bartender")
	if len(sids) != 1 || sids[0] != b.Subject.Sid {
		t.Fatalf("Lookup = %v, want [%d]", sids, b.Subject.Sid)
	}
}
