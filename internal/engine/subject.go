package engine

// Subject is the canonical identity handle for a versioned entity. It
// carries no trait data — only a stable sid and, optionally,
// the mind that scopes the label namespace it lives in so the same label
// string can be reused across minds without collision.
type Subject struct {
	Sid        uint64
	GroundMind *Mind
}

// NewSubject allocates a fresh Subject with a new sid. Subjects are cheap
// and live forever; groundMind may be nil.
func (e *Engine) NewSubject(groundMind *Mind) *Subject {
	s := &Subject{Sid: e.ids.Next(), GroundMind: groundMind}
	e.subjectsBySid[s.Sid] = s
	return s
}

// GetOrCreateBySid returns the canonical Subject for sid, creating and
// interning it if this is the first time sid has been seen.
func (e *Engine) GetOrCreateBySid(sid uint64, groundMind *Mind) *Subject {
	if s, ok := e.subjectsBySid[sid]; ok {
		return s
	}
	s := &Subject{Sid: sid, GroundMind: groundMind}
	e.subjectsBySid[sid] = s
	if sid > e.ids.Peek() {
		// keep the sequence ahead of any externally supplied sid (e.g. during load)
		for e.ids.Peek() < sid {
			e.ids.Next()
		}
	}
	return s
}

// GetBeliefByState returns the belief currently visible in s for this
// subject, per State.GetBeliefBySubject.
func (subj *Subject) GetBeliefByState(e *Engine, s *State) (*Belief, bool) {
	return s.GetBeliefBySubject(e, subj)
}

// GetBeliefByStateOrShared additionally falls back to the unique shared
// belief (if any) whose GroundMind matches s.InMind.Parent, asserting
// at-most-one match (InvariantError on ambiguity).
func (subj *Subject) GetBeliefByStateOrShared(e *Engine, s *State) (*Belief, error) {
	if b, ok := subj.GetBeliefByState(e, s); ok {
		return b, nil
	}
	if s.InMind == nil || s.InMind.Parent == nil {
		return nil, nil
	}
	var found *Belief
	for _, b := range e.beliefBySubject[subj.Sid] {
		if b.InMind != nil || b.OriginState != nil {
			continue // shared beliefs only
		}
		if b.Subject.GroundMind == s.InMind.Parent {
			if found != nil {
				return nil, invariantErrorf("multiple shared beliefs match subject %d in ground mind %d", subj.Sid, s.InMind.Parent.ID)
			}
			found = b
		}
	}
	return found, nil
}
