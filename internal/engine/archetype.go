package engine

import "iter"

// Archetype is a named template fixing which traits a belief may carry
//. Bases form a DAG; TraitTemplate maps a permitted
// traittype to its resolved default (nil meaning "no default").
type Archetype struct {
	ID            uint64
	Label         string
	Bases         []*Archetype
	TraitTemplate map[*Traittype]any
}

// beliefBase marks Archetype as a valid Belief base.
func (*Archetype) beliefBase() {}

// GetArchetypes yields a self-then-bases breadth-first, deduplicated walk
//. The returned sequence is lazy: callers that only need the
// first match (e.g. IsSubjectReference checks) never pay for the rest.
func (a *Archetype) GetArchetypes() iter.Seq[*Archetype] {
	return func(yield func(*Archetype) bool) {
		visited := make(map[*Archetype]bool)
		queue := []*Archetype{a}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			if !yield(cur) {
				return
			}
			queue = append(queue, cur.Bases...)
		}
	}
}

// Permits reports whether this archetype (or any base) declares tt in its
// trait template.
func (a *Archetype) Permits(tt *Traittype) bool {
	for arch := range a.GetArchetypes() {
		if _, ok := arch.TraitTemplate[tt]; ok {
			return true
		}
	}
	return false
}

// ResolveArchetypeTemplateValue is the reverse of template resolution:
// given a label, it returns the *Archetype marker of the archetype
// named label or the Subject of the shared prototype registered under
// label, checked against tt.DataType.
func (e *Engine) ResolveArchetypeTemplateValue(tt *Traittype, belief *Belief, label string) (any, error) {
	if arch, ok := e.archetypeByLabel[label]; ok {
		if tt.ArchetypeLabel != "" && arch.Label != tt.ArchetypeLabel && !archetypeIsA(arch, tt.ArchetypeLabel) {
			return nil, typeErrorf("archetype %q does not satisfy traittype %q archetype constraint %q", label, tt.Label, tt.ArchetypeLabel)
		}
		return archetypeMarkerSubject(e, arch), nil
	}
	if shared, ok := e.sharedBeliefByLabel[label]; ok {
		if tt.ArchetypeLabel != "" && !beliefHasArchetype(shared, tt.ArchetypeLabel) {
			return nil, typeErrorf("shared belief %q does not bear required archetype %q", label, tt.ArchetypeLabel)
		}
		return shared.Subject, nil
	}
	return nil, resolutionErrorf("label %q resolves to neither an archetype nor a shared prototype", label)
}

func archetypeIsA(a *Archetype, label string) bool {
	for arch := range a.GetArchetypes() {
		if arch.Label == label {
			return true
		}
	}
	return false
}

func beliefHasArchetype(b *Belief, label string) bool {
	for arch := range b.GetArchetypes() {
		if arch.Label == label {
			return true
		}
	}
	return false
}

// archetypeMarkerSubject returns a stable Subject standing in for "this
// archetype, as a default value". Since Go
// trait values are `any`, the marker is the Archetype pointer itself; this
// helper exists so callers always go through one resolution path.
func archetypeMarkerSubject(e *Engine, a *Archetype) *Archetype {
	return a
}
