package engine

import (
	"iter"
	"sort"
	"strings"
)

// BeliefBase is the sealed union of what a Belief may directly compose or
// specialize: another Belief, or an Archetype acting as a terminal default
// provider. An unexported marker method seals the union, instead of a
// runtime type switch scattered across callers.
type BeliefBase interface {
	beliefBase()
}

// Belief is one versioned assertion about a Subject: an
// origin state, a subject, a set of bases to inherit/compose from, and the
// own-trait overlay this belief itself contributes.
type Belief struct {
	ID          uint64
	Subject     *Subject
	InMind      *Mind  // the mind this belief's state chain lives in; nil for shared/prototype beliefs
	OriginState *State // the state that introduced this belief version; nil for shared beliefs
	Bases       []BeliefBase
	Archetypes  []*Archetype // archetypes declared directly on this belief, in addition to any carried by bases
	OwnTraits   map[*Traittype]any
	Locked      bool
	Label       string
}

func (*Belief) beliefBase() {}

// NewBelief allocates a belief for subj, recorded against originState (nil
// for a shared/prototype belief living outside any mind's chain).
func (e *Engine) NewBelief(subj *Subject, originState *State, inMind *Mind) *Belief {
	b := &Belief{
		ID:          e.ids.Next(),
		Subject:     subj,
		InMind:      inMind,
		OriginState: originState,
		OwnTraits:   make(map[*Traittype]any),
	}
	e.beliefsByID[b.ID] = b
	e.beliefBySubject[subj.Sid] = append(e.beliefBySubject[subj.Sid], b)
	return b
}

// BeliefFrom creates a new belief for the same subject as base, based on
// base. The caller is
// expected to add it to a state before anything else observes it.
func (e *Engine) BeliefFrom(base *Belief, originState *State) *Belief {
	b := e.NewBelief(base.Subject, originState, originState.InMind)
	b.Bases = []BeliefBase{base}
	return b
}

// BeliefFromTemplate instantiates a new subject and belief bearing arch,
// applying initial trait values from raw.
func (e *Engine) BeliefFromTemplate(arch *Archetype, originState *State, inMind *Mind, values map[*Traittype]any) (*Belief, error) {
	subj := e.NewSubject(groundMindOf(inMind))
	b := e.NewBelief(subj, originState, inMind)
	b.Bases = []BeliefBase{arch}
	b.Archetypes = []*Archetype{arch}
	for tt, raw := range values {
		if err := b.SetTrait(e, tt, raw); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// BeliefFromBases instantiates a belief for a fresh subject built on bases
// — beliefs to inherit and compose from, archetypes for slots and defaults
// — applying initial trait values.
func (e *Engine) BeliefFromBases(bases []BeliefBase, originState *State, inMind *Mind, values map[*Traittype]any) (*Belief, error) {
	b := e.NewBelief(e.NewSubject(groundMindOf(inMind)), originState, inMind)
	b.Bases = append([]BeliefBase(nil), bases...)
	for _, base := range bases {
		if arch, ok := base.(*Archetype); ok {
			b.Archetypes = append(b.Archetypes, arch)
		}
	}
	for tt, raw := range values {
		if err := b.SetTrait(e, tt, raw); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Decider breaks ties when more than one shared belief could serve as the
// base for a new shared prototype belief. It must be a pure function of
// the label and the candidate set, with no side effects. A nil decider
// falls back to the lowest-id candidate.
type Decider func(label string, candidates []*Belief) *Belief

// CreateSharedFromTemplate instantiates a belief with no OriginState/InMind
// (a "shared"/prototype belief) under label, reusing an existing
// shared belief under the same label as its base when one already exists so
// repeated calls accumulate versions rather than colliding.
func (e *Engine) CreateSharedFromTemplate(label string, arch *Archetype, values map[*Traittype]any, decide Decider) (*Belief, error) {
	var candidates []*Belief
	if existing, ok := e.sharedBeliefByLabel[label]; ok {
		candidates = append(candidates, existing)
	}

	var subj *Subject
	var bases []BeliefBase
	if len(candidates) == 0 {
		subj = e.NewSubject(nil)
		bases = []BeliefBase{arch}
	} else {
		chosen := candidates[0]
		if decide != nil && len(candidates) > 1 {
			chosen = decide(label, candidates)
		} else if len(candidates) > 1 {
			chosen = lowestID(candidates)
		}
		subj = chosen.Subject
		bases = []BeliefBase{chosen}
	}

	b := e.NewBelief(subj, nil, nil)
	b.Bases = bases
	b.Archetypes = []*Archetype{arch}
	b.Label = label
	e.sharedBeliefByLabel[label] = b

	for tt, raw := range values {
		if err := b.SetTrait(e, tt, raw); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func lowestID(candidates []*Belief) *Belief {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ID < best.ID {
			best = c
		}
	}
	return best
}

func groundMindOf(m *Mind) *Mind {
	if m == nil {
		return nil
	}
	return m
}

// SetTrait validates raw against tt and stores it as this belief's own
// value. Passing a literal Go nil stores an explicit null,
// which blocks composition for composable traits —
// this is why SetTrait bypasses ResolveValue entirely for nil, rather than
// routing it through the array/scalar checks that would reject it.
func (b *Belief) SetTrait(e *Engine, tt *Traittype, raw any) error {
	if b.Locked {
		return stateErrorf("belief %d is locked", b.ID)
	}
	if !b.archetypePermits(tt) {
		return schemaErrorf("trait %q not permitted by any archetype on belief %d", tt.Label, b.ID)
	}
	if raw == nil {
		b.OwnTraits[tt] = nil
		return nil
	}
	v, err := tt.ResolveValue(e, b, raw)
	if err != nil {
		return err
	}
	b.OwnTraits[tt] = v
	return nil
}

func (b *Belief) archetypePermits(tt *Traittype) bool {
	if tt.Label == "@about" {
		return true // reserved: @about is always permitted
	}
	for arch := range b.GetArchetypes() {
		if arch.Permits(tt) {
			return true
		}
	}
	return false
}

// GetTrait resolves tt for this belief as seen from state, in the order
// own -> compose(bases) -> first base's own value -> archetype default:
//
//  1. An explicit own null always wins outright and blocks composition.
//  2. A composable Array trait's own value (including the empty array) is
//     additive: it is unioned with every base's own composed value rather
//     than shadowing it, breadth-first deduplicated by subject.
//  3. Absent an own value entirely, a composable trait is derived purely
//     by composing the value from every base.
//  4. A non-composable trait absent from this belief falls through to the
//     first base belief that has an own value for it, breadth-first; a base
//     with an explicit own null hides its own bases.
//  5. Failing all of the above, the archetype's template default applies.
func (b *Belief) GetTrait(e *Engine, state *State, tt *Traittype) (any, error) {
	if v, ok := b.OwnTraits[tt]; ok {
		if tt.Composable && tt.Container == ContainerArray {
			if v == nil {
				return nil, nil // explicit own null blocks composition outright
			}
			perBase := []any{v}
			for _, base := range b.Bases {
				bb, ok := base.(*Belief)
				if !ok {
					continue
				}
				bv, err := bb.GetTrait(e, state, tt)
				if err != nil {
					return nil, err
				}
				perBase = append(perBase, bv)
			}
			return tt.Compose(e, b, perBase)
		}
		return v, nil
	}
	if tt.Composable {
		return tt.GetDerivedValue(e, state, b)
	}
	queue := append([]BeliefBase(nil), b.Bases...)
	visited := make(map[*Belief]bool)
	for len(queue) > 0 {
		bb, ok := queue[0].(*Belief)
		queue = queue[1:]
		if !ok || visited[bb] {
			continue
		}
		visited[bb] = true
		if v, ok := bb.OwnTraits[tt]; ok {
			if v != nil {
				return v, nil
			}
			continue
		}
		queue = append(queue, bb.Bases...)
	}
	for arch := range b.GetArchetypes() {
		if v, ok := arch.TraitTemplate[tt]; ok {
			return v, nil
		}
	}
	return nil, nil
}

// GetTraits yields every traittype this belief (directly or via bases and
// archetype templates) has a resolvable value for: its own traits first,
// then the remaining archetype slots.
func (b *Belief) GetTraits(e *Engine, state *State) iter.Seq2[*Traittype, any] {
	return func(yield func(*Traittype, any) bool) {
		seen := make(map[*Traittype]bool)
		for tt := range b.OwnTraits {
			seen[tt] = true
			v, err := b.GetTrait(e, state, tt)
			if err != nil || v == nil {
				continue
			}
			if !yield(tt, v) {
				return
			}
		}
		for tt := range b.GetSlots() {
			if seen[tt] {
				continue
			}
			seen[tt] = true
			v, err := b.GetTrait(e, state, tt)
			if err != nil || v == nil {
				continue
			}
			if !yield(tt, v) {
				return
			}
		}
	}
}

// GetSlots yields every traittype permitted by this belief's archetypes,
// regardless of whether a value currently resolves for it.
func (b *Belief) GetSlots() iter.Seq[*Traittype] {
	return func(yield func(*Traittype) bool) {
		seen := make(map[*Traittype]bool)
		for arch := range b.GetArchetypes() {
			for tt := range arch.TraitTemplate {
				if seen[tt] {
					continue
				}
				seen[tt] = true
				if !yield(tt) {
					return
				}
			}
		}
	}
}

// GetArchetypes yields every archetype this belief bears, directly or
// inherited through a Belief base, breadth-first and deduplicated.
func (b *Belief) GetArchetypes() iter.Seq[*Archetype] {
	return func(yield func(*Archetype) bool) {
		visited := make(map[*Archetype]bool)
		var queue []*Archetype
		queue = append(queue, b.Archetypes...)
		frontier := []BeliefBase{}
		frontier = append(frontier, b.Bases...)

		for len(queue) > 0 || len(frontier) > 0 {
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				for arch := range cur.GetArchetypes() {
					if visited[arch] {
						continue
					}
					visited[arch] = true
					if !yield(arch) {
						return
					}
				}
			}
			if len(frontier) == 0 {
				break
			}
			next := frontier[0]
			frontier = frontier[1:]
			switch base := next.(type) {
			case *Archetype:
				queue = append(queue, base)
			case *Belief:
				queue = append(queue, base.Archetypes...)
				frontier = append(frontier, base.Bases...)
			}
		}
	}
}

// RevTrait yields every belief whose resolved value of tt (as seen from
// state) references this belief's subject. Delegates the
// actual chain walk, including the skip-pointer shortcut, to State.
func (b *Belief) RevTrait(e *Engine, state *State, tt *Traittype) iter.Seq[*Belief] {
	return state.revTrait(e, b.Subject, tt)
}

// SetLabel assigns label to this belief, registers it in the engine's
// label registry, and recompiles the alias dictionary so the new label (and
// any archetype-driven auto-aliases it earns) is immediately resolvable
// through GetBeliefByLabel. Relabeling a belief does not
// unregister the old label — callers that rename should clear the old entry
// themselves.
func (b *Belief) SetLabel(e *Engine, label string) error {
	b.Label = label
	e.labelToBelief[label] = b
	return e.RebuildDictionary()
}

// GetLabel returns this belief's label, or "" if it has none.
func (b *Belief) GetLabel() string {
	return b.Label
}

// Sysdesig is the short "system designation" used in diagnostics:
// "<label> [<archetype,...>]? (about <label>)? #<id> <lock-glyph>".
// state, when given, is consulted to resolve the @about target's own label
// (falling back to "subject#<sid>" when it has none or state is nil); e and
// state may both be nil for a bare, schema-free designation.
func (b *Belief) Sysdesig(e *Engine, state *State) string {
	out := b.Label
	if out == "" {
		out = sysdesigID("belief", b.ID)
	}

	var archLabels []string
	for arch := range b.GetArchetypes() {
		archLabels = append(archLabels, arch.Label)
	}
	if len(archLabels) > 0 {
		sort.Strings(archLabels)
		out += " [" + strings.Join(archLabels, ",") + "]"
	}

	if e != nil {
		if about, ok := b.OwnTraits[e.AboutTT]; ok {
			if subj, ok := about.(*Subject); ok {
				aboutLabel := sysdesigID("subject", subj.Sid)
				if state != nil {
					if ab, found := state.GetBeliefBySubject(e, subj); found && ab.Label != "" {
						aboutLabel = ab.Label
					}
				}
				out += " (about " + aboutLabel + ")"
			}
		}
	}

	out += " #" + uitoa(b.ID) + " "
	if b.Locked {
		out += "\U0001F512" // locked
	} else {
		out += "\U0001F513" // unlocked
	}
	return out
}

// Lock freezes this belief against further SetTrait calls. Locking a
// belief never locks its owning state; State.Lock locks every belief it
// holds.
func (b *Belief) Lock() {
	b.Locked = true
}

func sysdesigID(kind string, id uint64) string {
	return kind + "#" + uitoa(id)
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
