package engine

import (
	"iter"

	"github.com/aigan/adventure-sub003/pkg/fuzzy"
)

// StateKind discriminates the State sum type: Temporal, Timeless and
// Convergence share one header and differ only in time-ness and
// composition. Temporal and Timeless share identical mechanics here
// (both are ordinary chained states); Timeless exists as a tag for states
// that opt out of valid-time semantics at the Mind level rather than as a
// structurally distinct Go type.
type StateKind int

const (
	StateTemporal StateKind = iota
	StateTimeless
	StateConvergence
)

// State is one node in a mind's version chain: an
// overlay of belief versions plus explicit removals, chained to a Base
// predecessor, or — for a Convergence — a left-to-right merge of several
// component states with no own Base.
type State struct {
	ID   uint64
	Kind StateKind

	InMind *Mind
	Base   *State // nil for the root state of a chain, and always nil for Convergence

	// GroundState names the state in the parent mind that this mind's
	// chain observes: a perceiver's state is "grounded" in the
	// world state it was perceived from. Nil for states with no observing
	// relationship to a parent (e.g. a world mind's own root chain).
	GroundState *State

	Components []*State // Convergence only: merged left to right

	// engine backs the cascaded-lock walk: locking a belief with a
	// Mind-valued own trait locks every state in that mind grounded on the
	// state being locked. Stashed at construction so Lock() keeps
	// its no-argument signature rather than threading *Engine through every
	// caller that only ever wants to flip the Locked bit.
	engine *Engine

	beliefs map[uint64]*Belief // subject sid -> belief version introduced/changed at this state
	removed map[uint64]bool    // subject sids explicitly removed at this state

	// TouchedTraits records every reference-bearing traittype that a belief
	// inserted or removed at this state carries a value for (own, inherited
	// or composed), used to skip irrelevant ancestors
	// during rev_trait queries.
	TouchedTraits map[*Traittype]bool
	skipCache     map[*Traittype]*State

	// sidIndex is the lazy subject->belief resolution cache locked states
	// seed as GetBeliefBySubject queries come in; a nil entry records a
	// confirmed miss. Never populated while unlocked.
	sidIndex map[uint64]*Belief

	// TT is transaction time: the order this state was actually recorded
	// into the engine, defaulted from the id sequence; the WithTT option
	// and Load replaying a prior dump override it. VT is valid time:
	// the in-story moment the state is asserted to hold, defaulted equal
	// to TT but free to diverge (a state entered now about something that
	// happened earlier).
	TT uint64
	VT uint64

	// Self, when set, scopes this state to a particular subject's point
	// of view rather than the mind's general timeline — used for a
	// per-actor valid-time branch inside one mind. AboutState, when set,
	// names the earlier state this one corrects or reinterprets rather
	// than supersedes outright. Derivation is a short free-form tag
	// ("root", "branch", "convergence", "correction") for diagnostics.
	Self       *Subject
	AboutState *State
	Derivation string

	Locked bool
}

// StateOption configures the bitemporal/provenance fields NewState does
// not take positionally, expressed as functional options rather than an
// options struct since every field is independently optional.
type StateOption func(*State)

func WithTT(tt uint64) StateOption { return func(s *State) { s.TT = tt } }
func WithVT(vt uint64) StateOption { return func(s *State) { s.VT = vt } }
func WithSelf(self *Subject) StateOption { return func(s *State) { s.Self = self } }
func WithAboutState(about *State) StateOption { return func(s *State) { s.AboutState = about } }
func WithDerivation(tag string) StateOption { return func(s *State) { s.Derivation = tag } }
func WithGroundState(ground *State) StateOption { return func(s *State) { s.GroundState = ground } }

// NewState allocates an unlocked Temporal state chained to base (base may
// be nil to start a fresh chain).
func (e *Engine) NewState(inMind *Mind, base *State, opts ...StateOption) *State {
	s := &State{
		ID:            e.ids.Next(),
		Kind:          StateTemporal,
		InMind:        inMind,
		Base:          base,
		engine:        e,
		beliefs:       make(map[uint64]*Belief),
		removed:       make(map[uint64]bool),
		TouchedTraits: make(map[*Traittype]bool),
		Derivation:    "root",
	}
	if base != nil {
		s.Derivation = "branch"
	}
	s.TT = s.ID
	s.VT = s.TT
	for _, opt := range opts {
		opt(s)
	}
	e.statesByID[s.ID] = s
	e.indexGroundState(s)
	return s
}

// NewConvergence allocates a Convergence state over components, in the
// given left-to-right precedence order. A Convergence has no
// Base of its own; its lineage runs through its components instead.
// The WithGroundState option names the state in mind.Parent this
// convergence observes — typically the parent state that caused several
// bases to converge their Mind-valued traits in the first place.
func (e *Engine) NewConvergence(inMind *Mind, components []*State, opts ...StateOption) *State {
	s := &State{
		ID:            e.ids.Next(),
		Kind:          StateConvergence,
		InMind:        inMind,
		Components:    append([]*State(nil), components...),
		engine:        e,
		beliefs:       make(map[uint64]*Belief),
		removed:       make(map[uint64]bool),
		TouchedTraits: make(map[*Traittype]bool),
		Derivation:    "convergence",
	}
	s.TT = s.ID
	s.VT = s.TT
	for _, opt := range opts {
		opt(s)
	}
	e.statesByID[s.ID] = s
	e.indexGroundState(s)
	return s
}

// indexGroundState records s under its GroundState, if any, in the engine's
// reverse index so cascaded locking can find every state
// grounded on a given state without scanning the whole arena.
func (e *Engine) indexGroundState(s *State) {
	if s.GroundState == nil {
		return
	}
	e.statesByGround[s.GroundState] = append(e.statesByGround[s.GroundState], s)
}

// AddBelief adds or overwrites belief's version at this state.
func (s *State) AddBelief(belief *Belief) error {
	if s.Locked {
		return stateErrorf("state %d is locked", s.ID)
	}
	if s.Kind == StateConvergence {
		return stateErrorf("convergence state %d does not accept direct beliefs", s.ID)
	}
	s.beliefs[belief.Subject.Sid] = belief
	delete(s.removed, belief.Subject.Sid)
	s.markTouchedTraits(belief)
	return nil
}

// markTouchedTraits marks every subject-reference traittype whose value on
// belief (own, inherited, or composed) resolves to something, touched at
// s. An own value, including an explicit null, always marks touched
// outright; the null itself is the change rev_trait must see. A trait
// absent from belief.OwnTraits still needs checking: a re-versioned
// belief that simply inherits an unchanged subject-reference trait from
// its base (the common path for
// LearnAbout/integratePerceived's version-in-place flow) still installs a
// *new* belief version at this state, and if this state isn't marked
// touched, rev_trait's skip pointer jumps straight past it to an older
// ancestor and yields that ancestor's stale, shadowed belief version
// instead of the one actually visible here.
func (s *State) markTouchedTraits(belief *Belief) {
	e := s.engine
	if e == nil {
		return
	}
	for tt := range belief.OwnTraits {
		if tt.IsSubjectReference() {
			s.TouchedTraits[tt] = true
		}
	}
	checkResolved := func(tt *Traittype) {
		if tt == nil || !tt.IsSubjectReference() || s.TouchedTraits[tt] {
			return
		}
		v, err := belief.GetTrait(e, s, tt)
		if err == nil && v != nil {
			s.TouchedTraits[tt] = true
		}
	}
	checkResolved(e.AboutTT)
	for tt := range belief.GetSlots() {
		checkResolved(tt)
	}
}

// AddBeliefs is the batch form of AddBelief.
func (s *State) AddBeliefs(beliefs ...*Belief) error {
	for _, b := range beliefs {
		if err := s.AddBelief(b); err != nil {
			return err
		}
	}
	return nil
}

// InsertBeliefs is AddBeliefs under its insertion-vocabulary name; both
// add to the same per-state overlay map, which has no intrinsic ordering
// to preserve.
func (s *State) InsertBeliefs(beliefs ...*Belief) error {
	return s.AddBeliefs(beliefs...)
}

// RemoveBeliefs marks subjects as absent as of this state.
// Convergence states reject this unconditionally: a merge has no single
// overlay to record a removal against.
func (s *State) RemoveBeliefs(subjects ...*Subject) error {
	if s.Locked {
		return stateErrorf("state %d is locked", s.ID)
	}
	if s.Kind == StateConvergence {
		return stateErrorf("convergence state %d cannot remove beliefs", s.ID)
	}
	for _, subj := range subjects {
		// A removal is a reverse-index event too: whatever the
		// removed belief referenced must mark this state touched, or the skip
		// pointer will jump over the removal and resurrect the belief in
		// rev_trait results.
		if b, ok := s.GetBeliefBySubject(s.engine, subj); ok {
			s.markTouchedTraits(b)
		}
		s.removed[subj.Sid] = true
		delete(s.beliefs, subj.Sid)
	}
	return nil
}

// ReplaceBeliefs inserts each belief after removing the subjects of its
// Belief bases: the supersede form of insertion, where a new
// version or a re-founded belief displaces whatever it was built on. For a
// plain same-subject version this degenerates to AddBelief; it matters when
// the new belief's bases cover other subjects than its own.
func (s *State) ReplaceBeliefs(beliefs ...*Belief) error {
	for _, b := range beliefs {
		for _, base := range b.Bases {
			if bb, ok := base.(*Belief); ok {
				if err := s.RemoveBeliefs(bb.Subject); err != nil {
					return err
				}
			}
		}
		if err := s.AddBelief(b); err != nil {
			return err
		}
	}
	return nil
}

// Sysdesig is State's diagnostic designation: its kind,
// id, and lock glyph, e.g. "state#12 🔓" or "convergence#9 🔒".
func (s *State) Sysdesig() string {
	kind := "state"
	if s.Kind == StateConvergence {
		kind = "convergence"
	}
	glyph := "\U0001F513"
	if s.Locked {
		glyph = "\U0001F512"
	}
	return sysdesigID(kind, s.ID) + " " + glyph
}

// Branch creates a fresh Temporal state chained off s. s must
// already be locked: branching from an unlocked base would let the base
// keep changing underneath an already-derived child.
func (s *State) Branch(e *Engine, opts ...StateOption) (*State, error) {
	if !s.Locked {
		return nil, stateErrorf("cannot branch from unlocked state %d", s.ID)
	}
	return e.NewState(s.InMind, s, opts...), nil
}

// Lock freezes this state and every belief introduced at it, then cascades:
// any own trait of a newly-locked belief that holds a Mind pulls in every
// state of that mind grounded on the state currently being locked, which is
// locked in turn. Implemented as an
// explicit worklist rather than recursion, since the
// mind-owns-states-owns-beliefs-owns-minds graph can run arbitrarily
// deep. Locking is idempotent and safe to call more than
// once; cascading from any element of an already-locked set touches nothing
// new.
func (s *State) Lock() {
	if s.Locked {
		return
	}
	worklist := []*State{s}
	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]
		if cur.Locked {
			continue
		}
		cur.Locked = true
		for _, b := range cur.beliefs {
			b.Lock()
			if cur.engine == nil {
				continue
			}
			for tt, v := range b.OwnTraits {
				if tt.DataType != DataMind {
					continue
				}
				m, ok := v.(*Mind)
				if !ok || m == nil {
					continue
				}
				for _, grounded := range cur.engine.statesByGround[cur] {
					if grounded.InMind == m && !grounded.Locked {
						worklist = append(worklist, grounded)
					}
				}
			}
		}
	}
}

// GetBeliefBySubject walks the chain (or fans out across Convergence
// components) to find the belief version visible for subj as of s.
// Locked states seed a lazy sid index as queries come in,
// caching misses too so a repeated lookup for an absent subject never
// rescans the chain; unlocked states always walk.
func (s *State) GetBeliefBySubject(e *Engine, subj *Subject) (*Belief, bool) {
	if s.Locked && s.sidIndex != nil {
		if b, ok := s.sidIndex[subj.Sid]; ok {
			return b, b != nil
		}
	}
	b, ok := s.lookupBeliefBySubject(e, subj)
	if s.Locked {
		if s.sidIndex == nil {
			s.sidIndex = make(map[uint64]*Belief)
		}
		if ok {
			s.sidIndex[subj.Sid] = b
		} else {
			s.sidIndex[subj.Sid] = nil
		}
	}
	return b, ok
}

func (s *State) lookupBeliefBySubject(e *Engine, subj *Subject) (*Belief, bool) {
	cur := s
	for cur != nil {
		if cur.Kind == StateConvergence {
			for _, comp := range cur.Components {
				if b, ok := comp.GetBeliefBySubject(e, subj); ok {
					return b, true
				}
			}
			return nil, false
		}
		if cur.removed[subj.Sid] {
			return nil, false
		}
		if b, ok := cur.beliefs[subj.Sid]; ok {
			return b, true
		}
		cur = cur.Base
	}
	return nil, false
}

// GetBeliefByLabel looks up a belief labelled label and visible from s,
// falling back to the engine-wide label registry for shared beliefs.
func (s *State) GetBeliefByLabel(e *Engine, label string) (*Belief, bool) {
	if b, ok := e.labelToBelief[label]; ok {
		if b.InMind == nil {
			return b, true // shared belief, visible everywhere
		}
		return s.GetBeliefBySubject(e, b.Subject)
	}
	return nil, false
}

// GetBeliefs yields every belief visible at s: own overlay, then ancestors,
// skipping subjects already yielded or explicitly removed. For
// a Convergence, components are flattened left to right, with
// an earlier component's version winning over a later one for the same
// subject — matching GetBeliefBySubject's precedence.
func (s *State) GetBeliefs(e *Engine) iter.Seq[*Belief] {
	return func(yield func(*Belief) bool) {
		seen := make(map[uint64]bool)
		for b := range s.iterBeliefs(seen) {
			if !yield(b) {
				return
			}
		}
	}
}

func (s *State) iterBeliefs(seen map[uint64]bool) iter.Seq[*Belief] {
	return func(yield func(*Belief) bool) {
		if s.Kind == StateConvergence {
			for _, comp := range s.Components {
				for b := range comp.iterBeliefs(seen) {
					if !yield(b) {
						return
					}
				}
			}
			return
		}
		for sid, b := range s.beliefs {
			if seen[sid] {
				continue
			}
			seen[sid] = true
			if !yield(b) {
				return
			}
		}
		for sid := range s.removed {
			seen[sid] = true
		}
		if s.Base != nil {
			for b := range s.Base.iterBeliefs(seen) {
				if !yield(b) {
					return
				}
			}
		}
	}
}

// nearestTouch returns the closest ancestor state (not including s) whose
// TouchedTraits[tt] is set, memoized per state — the reverse index as a
// skip list over the state chain. Convergence states have no
// linear ancestor and always return nil; revTrait fans out across their
// components directly instead of calling this.
func (s *State) nearestTouch(tt *Traittype) *State {
	if s.skipCache != nil {
		if v, ok := s.skipCache[tt]; ok {
			return v
		}
	}
	var result *State
	if s.Base != nil {
		if s.Base.TouchedTraits[tt] {
			result = s.Base
		} else {
			result = s.Base.nearestTouch(tt)
		}
	}
	// memoized only once locked: an unlocked state's own touch set is still
	// in motion; caches are filled on locked objects only
	if s.Locked {
		if s.skipCache == nil {
			s.skipCache = make(map[*Traittype]*State)
		}
		s.skipCache[tt] = result
	}
	return result
}

// revTrait yields every belief visible at s whose resolved own value of tt
// references target, walking only the states the skip pointers say touched
// tt at all, and visiting each subject's belief at most once — the closest
// (most recent) version shadows older ones for the same subject.
func (s *State) revTrait(e *Engine, target *Subject, tt *Traittype) iter.Seq[*Belief] {
	return func(yield func(*Belief) bool) {
		seen := make(map[uint64]bool)
		if !revTraitWalk(e, s, s, target, tt, seen, yield) {
			return
		}
	}
}

// revTraitWalk returns false once the caller's yield has asked to stop. At
// each touched state, every belief in the local overlay is scanned and its
// subject marked seen — including beliefs with no own tt key, since a
// re-versioned belief that merely inherits the trait still shadows its
// ancestors and must be the version yielded, not them. Whether a belief
// actually references target is decided by its fully resolved value as seen
// from queryState, not the raw own value: an empty composable-array
// override still composes in whatever its bases reference, while an
// explicit own null always excludes it regardless of what any base would
// otherwise contribute. Tombstones at
// a touched state shadow every earlier version of the removed subject.
func revTraitWalk(e *Engine, queryState, cur *State, target *Subject, tt *Traittype, seen map[uint64]bool, yield func(*Belief) bool) bool {
	for cur != nil {
		if cur.Kind == StateConvergence {
			for _, comp := range cur.Components {
				if !revTraitWalk(e, queryState, comp, target, tt, seen, yield) {
					return false
				}
			}
			return true
		}
		if cur.TouchedTraits[tt] {
			for sid, belief := range cur.beliefs {
				if seen[sid] {
					continue
				}
				seen[sid] = true
				v, err := belief.GetTrait(e, queryState, tt)
				if err != nil {
					continue
				}
				if referencesSubject(v, target) {
					if !yield(belief) {
						return false
					}
				}
			}
			for sid := range cur.removed {
				seen[sid] = true
			}
			cur = cur.Base
			continue
		}
		cur = cur.nearestTouch(tt)
	}
	return true
}

// referencesSubject reports whether v names target, recursing through
// arrays and every
// alternative of a Fuzzy value, so a belief whose only reference to target
// is one weighted alternative still surfaces in target's reverse index.
func referencesSubject(v any, target *Subject) bool {
	switch t := v.(type) {
	case *Subject:
		return t == target
	case []any:
		for _, item := range t {
			if referencesSubject(item, target) {
				return true
			}
		}
	case fuzzy.Fuzzy:
		for _, alt := range t.Alternatives {
			if referencesSubject(alt.Value, target) {
				return true
			}
		}
	}
	return false
}

// GetActiveStateByHost locates the state in host whose GroundState lies on
// s's ancestor chain — the host mind's view of "now" as seen from s.
// When the latest such state is locked and s is newer than the
// ground it observed, a fresh unlocked child is branched off it, grounded
// on s, so the caller always gets a state it may still write into. Returns
// nil when host has never observed anything on this chain.
func (s *State) GetActiveStateByHost(e *Engine, host *Mind) (*State, error) {
	if host == nil {
		return nil, nil
	}
	var latest *State
	for cur := s; cur != nil; cur = cur.Base {
		for _, grounded := range e.statesByGround[cur] {
			if grounded.InMind != host {
				continue
			}
			if latest == nil || grounded.TT > latest.TT {
				latest = grounded
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	if latest.Locked && latest.GroundState != nil && s.TT > latest.GroundState.TT {
		next, err := latest.Branch(e, WithGroundState(s))
		if err != nil {
			return nil, err
		}
		if host.Current == latest {
			host.Current = next
		}
		return next, nil
	}
	return latest, nil
}
