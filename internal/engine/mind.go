package engine

import (
	"fmt"
	"iter"

	"github.com/aigan/adventure-sub003/pkg/fuzzy"
)

// MindKind distinguishes the three engine-installed singleton minds from
// ordinary minds created during play.
type MindKind int

const (
	MindNormal MindKind = iota
	MindLogos                // the archetype/traittype schema's ground mind
	MindEidos                // the shared/prototype belief's ground mind
	MindMateria               // the ground mind for subjects with no believer, e.g. raw world objects
)

// Mind is a belief-holding context: a version chain of its own, scoped
// under an optional Parent mind. Logos, Eidos and Materia
// are singletons installed by Engine.New and again by Engine.Reset; every other
// mind is an ordinary nested believer (an NPC's head, a player's head, a
// composed "what two minds agree on" view).
type Mind struct {
	ID      uint64
	Kind    MindKind
	Label   string
	Parent  *Mind
	Current *State
}

// Sysdesig is Mind's diagnostic designation: its label
// if it has one, else "mind#<id>".
func (m *Mind) Sysdesig() string {
	if m.Label != "" {
		return m.Label
	}
	return sysdesigID("mind", m.ID)
}

// NewMind allocates a mind under parent and gives it an initial empty,
// unlocked Temporal state as Current.
func (e *Engine) NewMind(parent *Mind, label string) *Mind {
	m := &Mind{ID: e.ids.Next(), Kind: MindNormal, Label: label, Parent: parent}
	m.Current = e.NewState(m, nil)
	e.mindsByID[m.ID] = m
	return m
}

// CreateState locks the mind's current state (if not already locked) and
// branches a fresh one onto it, advancing Current. opts
// accepts the same bitemporal/ground-state options NewState does — in
// particular WithGroundState, for advancing a perceiver's timeline against
// a newly observed state in the mind it is grounded in. The returned state
// is the new Current.
func (m *Mind) CreateState(e *Engine, opts ...StateOption) (*State, error) {
	if m.Current == nil {
		m.Current = e.NewState(m, nil, opts...)
		return m.Current, nil
	}
	m.Current.Lock()
	next, err := m.Current.Branch(e, opts...)
	if err != nil {
		return nil, err
	}
	m.Current = next
	return next, nil
}

// ResolveMindTemplate implements the Mind-typed trait's {label: [traits]}
// template form: for every labelled source belief, copy
// only the named traits into a freshly instantiated belief in a brand new
// mind nested under parent, recording creatorState as the originating
// state for provenance. Traits not named in the template are not copied —
// this is how a Mind-trait narrows what a believer starts out knowing.
func ResolveMindTemplate(e *Engine, parent *Mind, spec MindTemplateSpec, subj *Subject, creatorState *State) (*Mind, error) {
	m := e.NewMind(parent, "")
	for label, traitNames := range spec {
		src, ok := e.GetBeliefByLabel(label)
		if !ok {
			return nil, resolutionErrorf("mind template: no belief labelled %q", label)
		}
		b := e.NewBelief(src.Subject, creatorState, m)
		b.Archetypes = beliefArchetypes(src)
		for _, arch := range b.Archetypes {
			b.Bases = append(b.Bases, arch)
		}
		for _, name := range traitNames {
			tt, ok := e.traittypeByLabel[name]
			if !ok {
				return nil, resolutionErrorf("mind template: unknown trait %q", name)
			}
			v, err := src.GetTrait(e, creatorState, tt)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			if err := b.SetTrait(e, tt, v); err != nil {
				return nil, err
			}
		}
		if err := m.Current.AddBelief(b); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ComposeMind implements Mind-trait composition across several bases: a
// new mind whose Current state is a Convergence over each
// argument mind's own Current state, in the order given. owner is the
// belief whose Mind trait is being derived; when owner has a mind, that
// mind becomes the new mind's Parent, otherwise the first component
// mind's Parent is used.
func ComposeMind(e *Engine, tt *Traittype, owner *Belief, minds []*Mind) (*Mind, error) {
	if len(minds) == 0 {
		return nil, invariantErrorf("compose mind: no component minds for trait %q", tt.Label)
	}
	var components []*State
	for _, m := range minds {
		if m.Current == nil {
			continue
		}
		components = append(components, m.Current)
	}
	parent := minds[0].Parent
	if owner != nil && owner.InMind != nil {
		parent = owner.InMind
	}
	m := &Mind{ID: e.ids.Next(), Kind: MindNormal, Parent: parent}
	m.Current = e.NewConvergence(m, components)
	e.mindsByID[m.ID] = m
	return m, nil
}

// TraitObservation is one requested trait's aggregated value for a subject
// recalled via RecallByArchetype: a Fuzzy built by pooling every
// contributing branch's observation of that trait, each branch's share
// normalized so the combined Σcertainty never exceeds 1 regardless of how
// many branches observed the subject.
type TraitObservation struct {
	Trait string
	Value fuzzy.Fuzzy
}

// RecallByArchetype implements Mind::recall_by_archetype: over
// every state branching from groundState — i.e. every mind's state grounded
// on it, found via the engine's statesByGround reverse index — at or before
// tick, scan beliefs whose archetypes include archLabel, group by subject,
// and for each name in traitNames accumulate every branch's observed value
// into one aggregate Fuzzy per (subject, trait). A concrete value counts
// at full certainty and a Fuzzy value brings its own alternatives'
// certainties; states carry no certainty of their own, so the only
// per-branch weighting is the division by the number of branches. Subjects are yielded lazily but only once every
// contributing branch has been scanned, since an early branch cannot know
// whether a later one will also observe the same subject.
func (m *Mind) RecallByArchetype(e *Engine, groundState *State, archLabel string, tick uint64, traitNames []string) iter.Seq2[*Subject, []TraitObservation] {
	return func(yield func(*Subject, []TraitObservation) bool) {
		if groundState == nil {
			return
		}

		type traitKey struct {
			sid   uint64
			trait string
		}

		subjects := make(map[uint64]*Subject)
		order := make([]uint64, 0)
		fragments := make(map[traitKey][][]fuzzy.Alternative)

		for _, branch := range e.statesByGround[groundState] {
			if branch.TT > tick {
				continue
			}
			for b := range branch.GetBeliefs(e) {
				if !beliefHasArchetype(b, archLabel) {
					continue
				}
				sid := b.Subject.Sid
				if _, seen := subjects[sid]; !seen {
					subjects[sid] = b.Subject
					order = append(order, sid)
				}
				for _, name := range traitNames {
					tt, ok := e.traittypeByLabel[name]
					if !ok {
						continue
					}
					v, err := b.GetTrait(e, branch, tt)
					if err != nil || v == nil {
						continue
					}
					k := traitKey{sid, name}
					fragments[k] = append(fragments[k], observationAlternatives(v))
				}
			}
		}

		for _, sid := range order {
			var observations []TraitObservation
			for _, name := range traitNames {
				frags := fragments[traitKey{sid, name}]
				if len(frags) == 0 {
					continue
				}
				observations = append(observations, TraitObservation{
					Trait: name,
					Value: normalizeContributions(frags),
				})
			}
			if !yield(subjects[sid], observations) {
				return
			}
		}
	}
}

// observationAlternatives reduces a resolved trait value to the set of
// weighted alternatives it contributes to an aggregate: a Fuzzy contributes
// its own alternatives as-is, anything else contributes itself at full
// certainty.
func observationAlternatives(v any) []fuzzy.Alternative {
	if fz, ok := v.(fuzzy.Fuzzy); ok {
		return fz.Alternatives
	}
	return []fuzzy.Alternative{{Value: v, Certainty: 1}}
}

// normalizeContributions merges the per-branch fragments collected for one
// (subject, trait) pair into a single Fuzzy, dividing each fragment's
// certainties by the number of contributing branches so the pooled result
// still respects Σcertainty ≤ 1, then summing certainties for
// alternatives that share the same value.
func normalizeContributions(fragments [][]fuzzy.Alternative) fuzzy.Fuzzy {
	n := len(fragments)
	if n == 0 {
		return fuzzy.Fuzzy{}
	}
	merged := make(map[string]fuzzy.Alternative)
	order := make([]string, 0)
	for _, frag := range fragments {
		for _, alt := range frag {
			k := altKey(alt.Value)
			share := alt.Certainty / float64(n)
			existing, ok := merged[k]
			if !ok {
				merged[k] = fuzzy.Alternative{Value: alt.Value, Certainty: share}
				order = append(order, k)
				continue
			}
			existing.Certainty += share
			merged[k] = existing
		}
	}
	alts := make([]fuzzy.Alternative, 0, len(order))
	for _, k := range order {
		alts = append(alts, merged[k])
	}
	fz, err := fuzzy.New(alts...)
	if err != nil {
		// normalizing by branch count is what keeps Σcertainty ≤ 1; an error
		// here means that guarantee broke, not that the caller did anything
		// wrong, so surface the best-effort result rather than a partial one.
		return fuzzy.Fuzzy{Alternatives: alts}
	}
	return fz
}

// altKey identifies an alternative's value for merge purposes: Subjects
// compare by sid (their only stable identity), everything else by its
// formatted representation.
func altKey(v any) string {
	if subj, ok := v.(*Subject); ok {
		return fmt.Sprintf("subject:%d", subj.Sid)
	}
	return fmt.Sprintf("%v", v)
}
