package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aigan/adventure-sub003/pkg/fuzzy"
)

// Dump/Load implement the two-phase JSON serialization: every object graph
// is written as a flat list of records tagged with a stable numeric id.
// Cross-references are written by kind: Subject values on belief traits as
// bare sid integers, Belief/State/Mind values as {"_type", "_id"} pairs,
// archetypes by label. Loading allocates every record first, then patches
// references in a second pass, without caring what order the JSON listed
// them in. Archetypes and traittypes are schema, not data: Dump never
// writes them out, and Load resolves every archetype/traittype reference
// against whatever schema the target Engine already has registered — the
// schema is installed by code, only the belief graph gets saved.

type ref struct {
	Type string `json:"_type"`
	ID   uint64 `json:"_id,omitempty"`
	Name string `json:"_name,omitempty"` // used for archetype-by-label references
}

type document struct {
	Subjects []subjectRecord `json:"subjects"`
	Minds    []mindRecord    `json:"minds"`
	States   []stateRecord   `json:"states"`
	Beliefs  []beliefRecord  `json:"beliefs"`
}

type subjectRecord struct {
	ID         uint64 `json:"_id"`
	GroundMind uint64 `json:"ground_mind,omitempty"`
}

type mindRecord struct {
	Type    string   `json:"_type"`
	ID      uint64   `json:"_id"`
	Kind    int      `json:"kind,omitempty"`
	Label   string   `json:"label,omitempty"`
	Parent  uint64   `json:"parent,omitempty"`
	States  []uint64 `json:"states,omitempty"`
	Current uint64   `json:"current,omitempty"`
}

// stateRecord is discriminated by its "_type" tag: "Temporal", "Timeless"
// or "Convergence" ("State" is accepted on load as a plain Temporal).
type stateRecord struct {
	Type            string   `json:"_type"`
	ID              uint64   `json:"_id"`
	TT              uint64   `json:"tt"`
	VT              uint64   `json:"vt"`
	Base            uint64   `json:"base,omitempty"`
	GroundState     uint64   `json:"ground_state,omitempty"`
	AboutState      uint64   `json:"about_state,omitempty"`
	Self            uint64   `json:"self,omitempty"`
	ComponentStates []uint64 `json:"component_states,omitempty"`
	Insert          []uint64 `json:"insert,omitempty"`
	Remove          []uint64 `json:"remove,omitempty"`
	InMind          uint64   `json:"in_mind,omitempty"`
	Locked          bool     `json:"locked"`
	Derivation      string   `json:"derivation,omitempty"`
}

// beliefRecord's bases are a mixed [label|id] list: a string names an
// archetype (or shared-prototype) base, a number is a belief base's id.
// The reserved @about trait is lifted into the "about" field when it holds
// a plain subject reference.
type beliefRecord struct {
	Type        string         `json:"_type"`
	ID          uint64         `json:"_id"`
	Sid         uint64         `json:"sid"`
	Label       string         `json:"label,omitempty"`
	About       uint64         `json:"about,omitempty"`
	Archetypes  []string       `json:"archetypes,omitempty"`
	Bases       []any          `json:"bases,omitempty"`
	Traits      map[string]any `json:"traits,omitempty"`
	InMind      uint64         `json:"in_mind,omitempty"`
	OriginState uint64         `json:"origin_state,omitempty"`
	Locked      bool           `json:"locked"`
}

func stateTypeName(k StateKind) string {
	switch k {
	case StateTimeless:
		return "Timeless"
	case StateConvergence:
		return "Convergence"
	default:
		return "Temporal"
	}
}

func stateKindFromType(t string) (StateKind, error) {
	switch t {
	case "State", "Temporal":
		return StateTemporal, nil
	case "Timeless":
		return StateTimeless, nil
	case "Convergence":
		return StateConvergence, nil
	default:
		return 0, resolutionErrorf("unknown state type %q", t)
	}
}

// Dump serializes every Subject, Mind, State and Belief the engine
// currently holds into a single JSON document.
func (e *Engine) Dump() ([]byte, error) {
	doc := document{}

	for _, s := range e.subjectsBySid {
		rec := subjectRecord{ID: s.Sid}
		if s.GroundMind != nil {
			rec.GroundMind = s.GroundMind.ID
		}
		doc.Subjects = append(doc.Subjects, rec)
	}

	stateIDsByMind := make(map[uint64][]uint64)
	for _, s := range e.statesByID {
		if s.InMind != nil {
			stateIDsByMind[s.InMind.ID] = append(stateIDsByMind[s.InMind.ID], s.ID)
		}
	}
	for _, ids := range stateIDsByMind {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	for _, m := range e.mindsByID {
		rec := mindRecord{Type: "Mind", ID: m.ID, Kind: int(m.Kind), Label: m.Label}
		if m.Parent != nil {
			rec.Parent = m.Parent.ID
		}
		rec.States = stateIDsByMind[m.ID]
		if m.Current != nil {
			rec.Current = m.Current.ID
		}
		doc.Minds = append(doc.Minds, rec)
	}

	for _, s := range e.statesByID {
		rec := stateRecord{
			Type:       stateTypeName(s.Kind),
			ID:         s.ID,
			Locked:     s.Locked,
			TT:         s.TT,
			VT:         s.VT,
			Derivation: s.Derivation,
		}
		if s.InMind != nil {
			rec.InMind = s.InMind.ID
		}
		if s.Base != nil {
			rec.Base = s.Base.ID
		}
		if s.GroundState != nil {
			rec.GroundState = s.GroundState.ID
		}
		if s.Self != nil {
			rec.Self = s.Self.Sid
		}
		if s.AboutState != nil {
			rec.AboutState = s.AboutState.ID
		}
		for _, c := range s.Components {
			rec.ComponentStates = append(rec.ComponentStates, c.ID)
		}
		for _, b := range s.beliefs {
			rec.Insert = append(rec.Insert, b.ID)
		}
		for sid := range s.removed {
			rec.Remove = append(rec.Remove, sid)
		}
		sort.Slice(rec.Insert, func(i, j int) bool { return rec.Insert[i] < rec.Insert[j] })
		sort.Slice(rec.Remove, func(i, j int) bool { return rec.Remove[i] < rec.Remove[j] })
		doc.States = append(doc.States, rec)
	}

	for _, b := range e.beliefsByID {
		rec := beliefRecord{
			Type:   "Belief",
			ID:     b.ID,
			Sid:    b.Subject.Sid,
			Label:  b.Label,
			Locked: b.Locked,
		}
		if b.InMind != nil {
			rec.InMind = b.InMind.ID
		}
		if b.OriginState != nil {
			rec.OriginState = b.OriginState.ID
		}
		for _, base := range b.Bases {
			switch v := base.(type) {
			case *Belief:
				rec.Bases = append(rec.Bases, v.ID)
			case *Archetype:
				rec.Bases = append(rec.Bases, v.Label)
			}
		}
		for _, a := range b.Archetypes {
			rec.Archetypes = append(rec.Archetypes, a.Label)
		}
		for tt, v := range b.OwnTraits {
			if tt == e.AboutTT {
				if subj, ok := v.(*Subject); ok {
					rec.About = subj.Sid
					continue
				}
			}
			if rec.Traits == nil {
				rec.Traits = make(map[string]any, len(b.OwnTraits))
			}
			encoded, err := encodeValue(v)
			if err != nil {
				return nil, wrapf(KindInvariant, err, "dump belief %d trait %q", b.ID, tt.Label)
			}
			rec.Traits[tt.Label] = encoded
		}
		doc.Beliefs = append(doc.Beliefs, rec)
	}

	sort.Slice(doc.Subjects, func(i, j int) bool { return doc.Subjects[i].ID < doc.Subjects[j].ID })
	sort.Slice(doc.Minds, func(i, j int) bool { return doc.Minds[i].ID < doc.Minds[j].ID })
	sort.Slice(doc.States, func(i, j int) bool { return doc.States[i].ID < doc.States[j].ID })
	sort.Slice(doc.Beliefs, func(i, j int) bool { return doc.Beliefs[i].ID < doc.Beliefs[j].ID })

	return json.MarshalIndent(doc, "", "  ")
}

func encodeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, float64, bool:
		return t, nil
	case *Subject:
		// subjects serialize as their bare sid; the traittype's data type
		// disambiguates them from literal numbers on decode
		return t.Sid, nil
	case *Belief:
		return ref{Type: "Belief", ID: t.ID}, nil
	case *State:
		return ref{Type: "State", ID: t.ID}, nil
	case *Mind:
		return ref{Type: "Mind", ID: t.ID}, nil
	case *Archetype:
		return ref{Type: "Archetype", Name: t.Label}, nil
	case fuzzy.Fuzzy:
		alts := make([]map[string]any, 0, len(t.Alternatives))
		for _, alt := range t.Alternatives {
			ev, err := encodeValue(alt.Value)
			if err != nil {
				return nil, err
			}
			alts = append(alts, map[string]any{"value": ev, "certainty": alt.Certainty})
		}
		return map[string]any{"_type": "Fuzzy", "alternatives": alts}, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			ev, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return nil, typeErrorf("serialize: unsupported trait value type %T", v)
	}
}

// Load replaces e's entire contents with the graph encoded in data. The
// engine's schema (archetypes and traittypes) must already be
// registered exactly as it was when Dump produced data; Load resolves
// every archetype reference by label against it.
func (e *Engine) Load(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return resolutionErrorf("load: invalid JSON: %v", err)
	}

	e.subjectsBySid = make(map[uint64]*Subject)
	e.beliefsByID = make(map[uint64]*Belief)
	e.beliefBySubject = make(map[uint64][]*Belief)
	e.statesByID = make(map[uint64]*State)
	e.mindsByID = make(map[uint64]*Mind)
	e.statesByGround = make(map[*State][]*State)
	e.sharedBeliefByLabel = make(map[string]*Belief)
	e.labelToBelief = make(map[string]*Belief)

	// Phase 1: allocate every record with a stable identity, no
	// cross-references resolved yet.
	for _, r := range doc.Subjects {
		e.subjectsBySid[r.ID] = &Subject{Sid: r.ID}
	}
	for _, r := range doc.Minds {
		e.mindsByID[r.ID] = &Mind{ID: r.ID, Kind: MindKind(r.Kind), Label: r.Label}
	}
	for _, r := range doc.States {
		kind, err := stateKindFromType(r.Type)
		if err != nil {
			return wrapf(KindResolution, err, "load state %d", r.ID)
		}
		e.statesByID[r.ID] = &State{
			ID:            r.ID,
			Kind:          kind,
			Locked:        r.Locked,
			TT:            r.TT,
			VT:            r.VT,
			Derivation:    r.Derivation,
			engine:        e,
			beliefs:       make(map[uint64]*Belief),
			removed:       make(map[uint64]bool),
			TouchedTraits: make(map[*Traittype]bool),
		}
	}
	for _, r := range doc.Beliefs {
		subj, ok := e.subjectsBySid[r.Sid]
		if !ok {
			return resolutionErrorf("load: belief %d references unknown sid %d", r.ID, r.Sid)
		}
		b := &Belief{
			ID:        r.ID,
			Subject:   subj,
			Label:     r.Label,
			Locked:    r.Locked,
			OwnTraits: make(map[*Traittype]any),
		}
		e.beliefsByID[r.ID] = b
		// labels register here, in phase 1, so phase 2 can resolve a
		// string base naming a shared prototype regardless of record order
		if b.Label != "" {
			e.labelToBelief[b.Label] = b
			if r.InMind == 0 {
				e.sharedBeliefByLabel[b.Label] = b
			}
		}
	}

	// Phase 2: patch every reference now that every target exists.
	for _, r := range doc.Subjects {
		subj := e.subjectsBySid[r.ID]
		if r.GroundMind != 0 {
			subj.GroundMind = e.mindsByID[r.GroundMind]
		}
	}

	for _, r := range doc.Minds {
		m := e.mindsByID[r.ID]
		if r.Parent != 0 {
			m.Parent = e.mindsByID[r.Parent]
		}
		if r.Current != 0 {
			m.Current = e.statesByID[r.Current]
		}
	}

	for _, r := range doc.States {
		s := e.statesByID[r.ID]
		if r.InMind != 0 {
			s.InMind = e.mindsByID[r.InMind]
		}
		if r.Base != 0 {
			s.Base = e.statesByID[r.Base]
		}
		if r.GroundState != 0 {
			s.GroundState = e.statesByID[r.GroundState]
			e.indexGroundState(s)
		}
		for _, id := range r.ComponentStates {
			s.Components = append(s.Components, e.statesByID[id])
		}
		for _, id := range r.Insert {
			b, ok := e.beliefsByID[id]
			if !ok {
				return resolutionErrorf("load: state %d references unknown belief %d", r.ID, id)
			}
			s.beliefs[b.Subject.Sid] = b
		}
		for _, sid := range r.Remove {
			s.removed[sid] = true
		}
		if r.Self != 0 {
			s.Self = e.subjectsBySid[r.Self]
		}
		if r.AboutState != 0 {
			s.AboutState = e.statesByID[r.AboutState]
		}
	}

	for _, r := range doc.Beliefs {
		b := e.beliefsByID[r.ID]
		e.beliefBySubject[b.Subject.Sid] = append(e.beliefBySubject[b.Subject.Sid], b)
		if r.InMind != 0 {
			b.InMind = e.mindsByID[r.InMind]
		}
		if r.OriginState != 0 {
			b.OriginState = e.statesByID[r.OriginState]
		}
		for _, a := range r.Archetypes {
			arch, ok := e.archetypeByLabel[a]
			if !ok {
				return resolutionErrorf("load: belief %d references unknown archetype %q", r.ID, a)
			}
			b.Archetypes = append(b.Archetypes, arch)
		}
		for _, baseRef := range r.Bases {
			switch v := baseRef.(type) {
			case float64:
				base, ok := e.beliefsByID[uint64(v)]
				if !ok {
					return resolutionErrorf("load: belief %d references unknown belief base %d", r.ID, uint64(v))
				}
				b.Bases = append(b.Bases, base)
			case string:
				if arch, ok := e.archetypeByLabel[v]; ok {
					b.Bases = append(b.Bases, arch)
					continue
				}
				if shared, ok := e.sharedBeliefByLabel[v]; ok {
					b.Bases = append(b.Bases, shared)
					continue
				}
				return resolutionErrorf("load: belief %d references unknown base label %q", r.ID, v)
			default:
				return resolutionErrorf("load: belief %d has base of unsupported type %T", r.ID, baseRef)
			}
		}
		if r.About != 0 {
			subj, ok := e.subjectsBySid[r.About]
			if !ok {
				return resolutionErrorf("load: belief %d is about unknown sid %d", r.ID, r.About)
			}
			b.OwnTraits[e.AboutTT] = subj
		}
		for name, raw := range r.Traits {
			tt, ok := e.traittypeByLabel[name]
			if !ok {
				return resolutionErrorf("load: belief %d references unknown traittype %q", r.ID, name)
			}
			v, err := e.decodeValue(tt, raw)
			if err != nil {
				return wrapf(KindResolution, err, "load belief %d trait %q", r.ID, name)
			}
			b.OwnTraits[tt] = v
		}
	}

	// TouchedTraits is recomputed now, rather than while states were being
	// wired above, because it depends on each belief's fully resolved Bases
	// and OwnTraits — neither is complete until the Beliefs loop above
	// has run.
	for _, r := range doc.States {
		s := e.statesByID[r.ID]
		for _, b := range s.beliefs {
			s.markTouchedTraits(b)
		}
	}

	var maxID uint64
	for id := range e.beliefsByID {
		if id > maxID {
			maxID = id
		}
	}
	for id := range e.statesByID {
		if id > maxID {
			maxID = id
		}
	}
	for id := range e.mindsByID {
		if id > maxID {
			maxID = id
		}
	}
	for id := range e.subjectsBySid {
		if id > maxID {
			maxID = id
		}
	}
	for e.ids.Peek() < maxID {
		e.ids.Next()
	}

	for _, m := range e.mindsByID {
		switch m.Kind {
		case MindLogos:
			e.Logos = m
		case MindEidos:
			e.Eidos = m
		case MindMateria:
			e.Materia = m
		}
	}

	// The alias dictionary is derived state over labelToBelief; recompile it
	// so GetBeliefByLabel's alias fallback never resolves against the graph
	// Load just replaced.
	return e.RebuildDictionary()
}

// decodeValue resolves a raw JSON trait value against tt: a bare number on
// a subject-reference trait is a sid and becomes the live Subject, while on
// a literal trait it stays a number. Everything else decodes by shape.
func (e *Engine) decodeValue(tt *Traittype, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string, bool:
		return v, nil
	case float64:
		if tt != nil && tt.IsSubjectReference() {
			subj, ok := e.subjectsBySid[uint64(v)]
			if !ok {
				return nil, resolutionErrorf("unknown subject sid %d", uint64(v))
			}
			return subj, nil
		}
		return v, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			dv, err := e.decodeValue(tt, item)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case map[string]any:
		typeName, _ := v["_type"].(string)
		switch typeName {
		case "Belief":
			id := uint64(v["_id"].(float64))
			b, ok := e.beliefsByID[id]
			if !ok {
				return nil, resolutionErrorf("unknown belief reference %d", id)
			}
			return b, nil
		case "State":
			id := uint64(v["_id"].(float64))
			s, ok := e.statesByID[id]
			if !ok {
				return nil, resolutionErrorf("unknown state reference %d", id)
			}
			return s, nil
		case "Mind":
			id := uint64(v["_id"].(float64))
			m, ok := e.mindsByID[id]
			if !ok {
				return nil, resolutionErrorf("unknown mind reference %d", id)
			}
			return m, nil
		case "Archetype":
			name, _ := v["_name"].(string)
			arch, ok := e.archetypeByLabel[name]
			if !ok {
				return nil, resolutionErrorf("unknown archetype reference %q", name)
			}
			return arch, nil
		case "Fuzzy":
			altsRaw, _ := v["alternatives"].([]any)
			alts := make([]fuzzy.Alternative, 0, len(altsRaw))
			for _, a := range altsRaw {
				am, ok := a.(map[string]any)
				if !ok {
					continue
				}
				value, err := e.decodeValue(tt, am["value"])
				if err != nil {
					return nil, err
				}
				certainty, _ := am["certainty"].(float64)
				alts = append(alts, fuzzy.Alternative{Value: value, Certainty: certainty})
			}
			return fuzzy.New(alts...)
		default:
			return nil, resolutionErrorf("unrecognized tagged value %q", typeName)
		}
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", raw)
	}
}
