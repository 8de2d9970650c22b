package engine

import "github.com/aigan/adventure-sub003/pkg/fuzzy"

// Five operations on an observer's unlocked state. All five operate on a
// *State, not a *Mind directly: the observing surface is always a state
// still open for writes.

// Recognize returns up to limit (default 3) beliefs visible at s whose
// reserved @about trait references target, most-recent first. The recency
// ordering falls out of revTrait's own walk order: it visits the closest
// touched ancestor before any farther one, so no separate sort is needed.
func (e *Engine) Recognize(s *State, target *Subject, limit int) []*Belief {
	if limit <= 0 {
		limit = 3
	}
	var out []*Belief
	for b := range s.revTrait(e, target, e.AboutTT) {
		out = append(out, b)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Identify finds up to 3 beliefs in s compatible with perceived — a
// freshly constructed, not-yet-inserted belief carrying some observed
// traits. It picks the most discriminating certain
// Subject-valued trait on perceived (the one with the fewest rev_trait
// matches) and intersects that candidate set with _all_traits_match
// against perceived's remaining traits; if perceived has no Subject trait
// to discriminate on, it falls back to a plain archetype scan.
func (e *Engine) Identify(s *State, perceived *Belief) ([]*Belief, error) {
	const maxCandidates = 3

	type pivot struct {
		tt  *Traittype
		sub *Subject
	}
	var best *pivot
	bestCount := -1
	for tt, v := range perceived.OwnTraits {
		if !tt.IsSubjectReference() {
			continue
		}
		subj, ok := v.(*Subject)
		if !ok {
			continue
		}
		count := 0
		for range s.revTrait(e, subj, tt) {
			count++
			if bestCount >= 0 && count >= bestCount {
				break
			}
		}
		if best == nil || count < bestCount {
			best = &pivot{tt: tt, sub: subj}
			bestCount = count
		}
	}

	var candidates []*Belief
	if best != nil {
		for b := range s.revTrait(e, best.sub, best.tt) {
			candidates = append(candidates, b)
		}
	} else {
		for b := range s.GetBeliefs(e) {
			if sharesAnyArchetype(b, perceived) {
				candidates = append(candidates, b)
			}
		}
	}

	var out []*Belief
	for _, cand := range candidates {
		ok, err := allTraitsMatch(e, s, perceived, cand)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, cand)
		if len(out) >= maxCandidates {
			break
		}
	}
	return out, nil
}

func sharesAnyArchetype(a, b *Belief) bool {
	bArch := make(map[*Archetype]bool)
	for arch := range b.GetArchetypes() {
		bArch[arch] = true
	}
	for arch := range a.GetArchetypes() {
		if bArch[arch] {
			return true
		}
	}
	return false
}

// allTraitsMatch is the belief compatibility check: every trait present
// with a non-nil value on both sides must be equal. A trait only one side
// has a value for is not a conflict. Checked over each side's own traits
// directly rather than via GetSlots(), so it
// works equally for a fully-registered belief and a bare probe belief
// built on the fly (no archetype, no bases) to represent "traits observed
// so far".
func allTraitsMatch(e *Engine, state *State, a, b *Belief) (bool, error) {
	seen := make(map[*Traittype]bool)
	check := func(tt *Traittype) (bool, error) {
		if seen[tt] {
			return true, nil
		}
		seen[tt] = true
		va, err := a.GetTrait(e, state, tt)
		if err != nil {
			return false, err
		}
		vb, err := b.GetTrait(e, state, tt)
		if err != nil {
			return false, err
		}
		if va == nil || vb == nil {
			return true, nil
		}
		return traitValuesEqual(va, vb), nil
	}
	for tt := range a.OwnTraits {
		ok, err := check(tt)
		if err != nil || !ok {
			return ok, err
		}
	}
	for tt := range b.OwnTraits {
		ok, err := check(tt)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

func traitValuesEqual(a, b any) bool {
	if as, ok := a.(*Subject); ok {
		bs, ok := b.(*Subject)
		return ok && as.Sid == bs.Sid
	}
	// Fuzzy vs. concrete: the certain value must lie among the uncertain
	// side's alternatives. Two Fuzzy values are compatible when
	// they share at least one alternative.
	if af, ok := a.(fuzzy.Fuzzy); ok {
		if bf, ok := b.(fuzzy.Fuzzy); ok {
			for _, alt := range bf.Alternatives {
				if af.MatchesCertain(alt.Value, traitValuesEqual) {
					return true
				}
			}
			return false
		}
		return af.MatchesCertain(b, traitValuesEqual)
	}
	if bf, ok := b.(fuzzy.Fuzzy); ok {
		return bf.MatchesCertain(a, traitValuesEqual)
	}
	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice || bIsSlice {
		if !aIsSlice || !bIsSlice || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !traitValuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// resolvedTraits collects every trait w carries — own, inherited through
// bases, composed, or defaulted by an archetype template — fully resolved
// as of state. Own keys outside any archetype slot (e.g. @about) are
// included; explicit own nulls resolve to nothing and are dropped.
func resolvedTraits(e *Engine, w *Belief, state *State) (map[*Traittype]any, error) {
	values := make(map[*Traittype]any)
	for tt, v := range w.GetTraits(e, state) {
		values[tt] = v
	}
	for tt := range w.OwnTraits {
		if _, ok := values[tt]; ok {
			continue
		}
		v, err := w.GetTrait(e, state, tt)
		if err != nil {
			return nil, err
		}
		if v != nil {
			values[tt] = v
		}
	}
	return values, nil
}

// Perceive computes the perceptible subtree of every belief in worldBeliefs
// — the traits whose Exposure is modality or is unset, plus any belief reachable
// through a perceptible Subject-valued trait — and for each node reuses,
// versions, or creates a knowledge belief in s. The
// resulting knowledge subjects are collected into a fresh EventPerception
// belief, inserted into s, and returned. Traits count whether the world
// belief carries them in its own overlay or only by inheritance or
// archetype default: the perceptible subtree is computed over the belief's
// resolved traits, not its own ones.
func (e *Engine) Perceive(s *State, worldBeliefs []*Belief, modality string) (*Belief, error) {
	if modality == "" {
		modality = "visual"
	}
	visited := make(map[uint64]bool)
	var content []any

	var walk func(w *Belief) error
	walk = func(w *Belief) error {
		if visited[w.Subject.Sid] {
			return nil
		}
		visited[w.Subject.Sid] = true

		resolved, err := resolvedTraits(e, w, w.OriginState)
		if err != nil {
			return err
		}
		values := make(map[*Traittype]any, len(resolved))
		for tt, v := range resolved {
			if tt.Exposure != "" && tt.Exposure != modality {
				continue
			}
			values[tt] = v
		}

		kb, reused, err := e.integratePerceived(s, w, values)
		if err != nil {
			return err
		}
		content = append(content, kb.Subject)
		if reused {
			return nil // tree-pruning: a reused, still-current node is not re-walked
		}

		for _, v := range values {
			for _, subj := range subjectsIn(v) {
				if nested, ok := e.resolveCurrentBelief(subj); ok {
					if err := walk(nested); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	for _, w := range worldBeliefs {
		if err := walk(w); err != nil {
			return nil, err
		}
	}

	ep := e.NewBelief(e.NewSubject(s.InMind), s, s.InMind)
	ep.Bases = []BeliefBase{e.EventPerceptionArch}
	ep.Archetypes = []*Archetype{e.EventPerceptionArch}
	if err := ep.SetTrait(e, e.ContentTT, content); err != nil {
		return nil, err
	}
	if err := s.AddBelief(ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// integratePerceived is the reuse/version/create decision shared by
// Perceive, LearnFrom and LearnAbout. It reports
// whether the existing candidate was reused unchanged, so callers that
// walk a subtree can apply the tree-pruning rule (stop descending once a
// node is known-current).
func (e *Engine) integratePerceived(s *State, w *Belief, values map[*Traittype]any) (*Belief, bool, error) {
	for _, cand := range e.Recognize(s, w.Subject, 3) {
		match, err := allTraitsMatch(e, s, cand, &Belief{OwnTraits: values})
		if err != nil {
			return nil, false, err
		}
		if match && stateVT(w.OriginState) <= stateTT(cand.OriginState) {
			return cand, true, nil
		}
	}

	// archetypes resolve like traits do: a version belief carries its
	// archetypes through its base, not in its own Archetypes slice
	archetypes := beliefArchetypes(w)

	probe := &Belief{Subject: w.Subject, OwnTraits: values, Archetypes: archetypes}
	candidates, err := e.Identify(s, probe)
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 1 {
		nb := e.BeliefFrom(candidates[0], s)
		nb.InMind = s.InMind
		for tt, v := range values {
			if err := nb.SetTrait(e, tt, v); err != nil {
				return nil, false, err
			}
		}
		if err := s.AddBelief(nb); err != nil {
			return nil, false, err
		}
		return nb, false, nil
	}

	nb := e.NewBelief(e.NewSubject(s.InMind), s, s.InMind)
	nb.Archetypes = archetypes
	if err := nb.SetTrait(e, e.AboutTT, w.Subject); err != nil {
		return nil, false, err
	}
	for tt, v := range values {
		if err := nb.SetTrait(e, tt, v); err != nil {
			return nil, false, err
		}
	}
	if err := s.AddBelief(nb); err != nil {
		return nil, false, err
	}
	return nb, false, nil
}

func stateVT(s *State) uint64 {
	if s == nil {
		return 0
	}
	return s.VT
}

func stateTT(s *State) uint64 {
	if s == nil {
		return ^uint64(0)
	}
	return s.TT
}

// beliefArchetypes flattens b's resolved archetype set into a slice, so a
// version belief whose archetypes live on its base still carries them when
// copied into another mind.
func beliefArchetypes(b *Belief) []*Archetype {
	var out []*Archetype
	for arch := range b.GetArchetypes() {
		out = append(out, arch)
	}
	return out
}

func subjectsIn(v any) []*Subject {
	switch t := v.(type) {
	case *Subject:
		return []*Subject{t}
	case []any:
		var out []*Subject
		for _, item := range t {
			out = append(out, subjectsIn(item)...)
		}
		return out
	default:
		return nil
	}
}

// resolveCurrentBelief returns the most recently created belief for subj
// across every mind — the best available notion of "the current belief"
// when recursing into a nested perceptible reference without the
// originating world-state's own chain to resolve against.
func (e *Engine) resolveCurrentBelief(subj *Subject) (*Belief, bool) {
	beliefs := e.beliefBySubject[subj.Sid]
	if len(beliefs) == 0 {
		return nil, false
	}
	best := beliefs[0]
	for _, b := range beliefs[1:] {
		if b.ID > best.ID {
			best = b
		}
	}
	return best, true
}

// LearnFrom integrates an EventPerception's content into durable knowledge
// at s: each content subject's current belief (wherever the perception's
// own mind holds it) goes through the same reuse/version/create decision
// as Perceive, so repeating LearnFrom on an unchanged perception creates
// no new knowledge beliefs; each call still returns a fresh EventPerception
// belief inserted into s.
func (e *Engine) LearnFrom(s *State, perception *Belief) (*Belief, error) {
	raw, err := perception.GetTrait(e, s, e.ContentTT)
	if err != nil {
		return nil, err
	}
	items, _ := asSlice(raw)
	var content []any
	for _, item := range items {
		subj, ok := item.(*Subject)
		if !ok {
			continue
		}
		src, ok := e.resolveCurrentBelief(subj)
		if !ok {
			continue
		}
		// src is itself a perceiver's knowledge belief, not the original
		// world entity — learning through it must still key Recognize and
		// @about off the root subject src is about, so two learners (or a
		// learner and the original perceiver) converge on the same
		// knowledge subject instead of chaining through each other's
		// private models.
		root := subj
		if about, err := src.GetTrait(e, s, e.AboutTT); err == nil {
			if rs, ok := about.(*Subject); ok {
				root = rs
			}
		}
		values, err := resolvedTraits(e, src, src.OriginState)
		if err != nil {
			return nil, err
		}
		probe := &Belief{Subject: root, OriginState: src.OriginState, Archetypes: beliefArchetypes(src)}
		kb, _, err := e.integratePerceived(s, probe, values)
		if err != nil {
			return nil, err
		}
		content = append(content, kb.Subject)
	}

	ep := e.NewBelief(e.NewSubject(s.InMind), s, s.InMind)
	ep.Bases = []BeliefBase{e.EventPerceptionArch}
	ep.Archetypes = []*Archetype{e.EventPerceptionArch}
	if err := ep.SetTrait(e, e.ContentTT, content); err != nil {
		return nil, err
	}
	if err := s.AddBelief(ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// LearnAbout directly injects values as an observer's own knowledge about
// subject. The resulting belief has its own subject (@about links it back
// to subject, the same way Perceive's knowledge beliefs do), versioning the
// observer's existing own belief about subject if Recognize finds one, else
// basing a new belief on whatever shared prototype's @about points at
// subject: several observers share
// one prototype by @about and each observer's own learn_about call only
// ever adds the traits it personally observed, still inheriting the rest
// from the shared prototype). No perception wrapper is produced.
func (e *Engine) LearnAbout(s *State, subject *Subject, values map[string]any) (*Belief, error) {
	resolved := make(map[*Traittype]any, len(values))
	for name, raw := range values {
		tt, ok := e.traittypeByLabel[name]
		if !ok {
			return nil, resolutionErrorf("learn_about: unknown trait %q", name)
		}
		resolved[tt] = raw
	}

	if existing := e.Recognize(s, subject, 1); len(existing) == 1 {
		nb := e.BeliefFrom(existing[0], s)
		nb.InMind = s.InMind
		for tt, v := range resolved {
			if err := nb.SetTrait(e, tt, v); err != nil {
				return nil, err
			}
		}
		if err := s.AddBelief(nb); err != nil {
			return nil, err
		}
		return nb, nil
	}

	base := e.findAboutPrototype(subject)

	nb := e.NewBelief(e.NewSubject(s.InMind), s, s.InMind)
	if base != nil {
		nb.Bases = []BeliefBase{base}
	}
	if err := nb.SetTrait(e, e.AboutTT, subject); err != nil {
		return nil, err
	}
	for tt, v := range resolved {
		if err := nb.SetTrait(e, tt, v); err != nil {
			return nil, err
		}
	}
	if err := s.AddBelief(nb); err != nil {
		return nil, err
	}
	return nb, nil
}

// findAboutPrototype returns the shared (no OriginState) belief whose own
// @about trait points at subject, if any — the prototype several observers
// converge on without each having created their own copy of it.
func (e *Engine) findAboutPrototype(subject *Subject) *Belief {
	for _, b := range e.beliefsByID {
		if b.OriginState != nil {
			continue
		}
		if v, ok := b.OwnTraits[e.AboutTT]; ok {
			if s, ok := v.(*Subject); ok && s == subject {
				return b
			}
		}
	}
	return nil
}
