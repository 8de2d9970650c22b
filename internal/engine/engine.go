// Package engine implements the bitemporal belief store: the
// Subject/Belief/Archetype/Traittype/State/Mind object model, the five
// perception operations, and JSON (de)serialization. It is organized as a
// single package rather than split along the object model's boundaries
// because Subject, Belief, State and Mind form a genuinely cyclic
// reference graph (a Belief points at its Subject and OriginState; a State
// points at the Beliefs it holds and the Mind that owns it; a Mind points
// at its Current state) — the natural Go expression of that graph is
// direct pointers within one package, not an index-only arena split across
// packages that would force every edge through an indirection layer.
package engine

import (
	"fmt"

	"github.com/aigan/adventure-sub003/internal/ids"
	"github.com/aigan/adventure-sub003/pkg/alias"
)

// Engine holds every registry needed to resolve the object graph: the id
// sequence, the label/alias dictionary, and the by-id/by-label indexes for
// each kind of object.
type Engine struct {
	ids ids.Sequence

	subjectsBySid   map[uint64]*Subject
	beliefsByID     map[uint64]*Belief
	beliefBySubject map[uint64][]*Belief
	statesByID      map[uint64]*State
	mindsByID       map[uint64]*Mind

	// statesByGround indexes every state by its GroundState, so cascaded
	// locking can find "every state in mind M grounded on
	// state S" without a full arena scan.
	statesByGround map[*State][]*State

	archetypeByLabel    map[string]*Archetype
	traittypeByLabel    map[string]*Traittype
	sharedBeliefByLabel map[string]*Belief
	labelToBelief       map[string]*Belief

	dict *alias.Dictionary

	// Logos, Eidos and Materia are the three ground minds, each with a
	// Timeless root state. The archetype/traittype schema itself lives in
	// the registries above, not as beliefs in Logos. Materia grounds
	// subjects with no believer at all, e.g. raw world objects nobody has
	// perceived yet. All three are installed by New and replaced with
	// fresh minds by Reset.
	Logos   *Mind
	Eidos   *Mind
	Materia *Mind

	// AboutTT is the reserved `@about` traittype:
	// the foundation of cross-mind observation. A knowledge belief created
	// by Perceive/LearnAbout carries AboutTT pointing at the world subject
	// it was perceived from. ContentTT and EventPerceptionArch back the
	// EventPerception belief Perceive/LearnFrom return.
	AboutTT             *Traittype
	ContentTT           *Traittype
	EventPerceptionArch *Archetype

	resetHooks []func()
}

// New builds an Engine with its three ground minds and reserved @about/
// EventPerception schema installed.
func New() *Engine {
	e := &Engine{
		subjectsBySid:       make(map[uint64]*Subject),
		beliefsByID:         make(map[uint64]*Belief),
		beliefBySubject:     make(map[uint64][]*Belief),
		statesByID:          make(map[uint64]*State),
		mindsByID:           make(map[uint64]*Mind),
		statesByGround:      make(map[*State][]*State),
		archetypeByLabel:    make(map[string]*Archetype),
		traittypeByLabel:    make(map[string]*Traittype),
		sharedBeliefByLabel: make(map[string]*Belief),
		labelToBelief:       make(map[string]*Belief),
		dict:                alias.NewDictionary(),
	}
	e.installGroundMinds()
	e.installReservedSchema()
	return e
}

// installGroundMinds creates the three cosmos singletons. Their root states
// are Timeless: the schema and the prototype pool sit outside any world
// clock.
func (e *Engine) installGroundMinds() {
	ground := func(label string, kind MindKind) *Mind {
		m := e.NewMind(nil, label)
		m.Kind = kind
		m.Current.Kind = StateTimeless
		m.Current.TT = 0
		m.Current.VT = 0
		return m
	}
	e.Logos = ground("logos", MindLogos)
	e.Eidos = ground("eidos", MindEidos)
	e.Materia = ground("materia", MindMateria)
}

func (e *Engine) installReservedSchema() {
	e.AboutTT, _ = e.RegisterTraittype(&Traittype{Label: "@about", DataType: DataSubject})
	e.ContentTT, _ = e.RegisterTraittype(&Traittype{
		Label:     "content",
		DataType:  DataSubject,
		Container: ContainerArray,
	})
	e.EventPerceptionArch, _ = e.RegisterArchetype("EventPerception", nil, map[*Traittype]any{
		e.ContentTT: nil,
	})
}

// Diag formats a diagnostic string the way the Sysdesig family does
// without requiring a Belief/State/Mind receiver. Used by callers building
// an error message or log line out of plain arguments rather than a live
// object.
func Diag(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// RegisterResetHook registers fn to run as part of Reset, in registration
// order — for callers that keep engine-derived
// caches of their own and need to clear them in lockstep with a fresh
// Engine state.
func (e *Engine) RegisterResetHook(fn func()) {
	e.resetHooks = append(e.resetHooks, fn)
}

// Reset discards every registered object and id and reinstalls the three
// ground minds, as if New() had just been called — used between test
// cases and between independently loaded scenarios.
func (e *Engine) Reset() {
	e.ids.Reset()
	e.subjectsBySid = make(map[uint64]*Subject)
	e.beliefsByID = make(map[uint64]*Belief)
	e.beliefBySubject = make(map[uint64][]*Belief)
	e.statesByID = make(map[uint64]*State)
	e.mindsByID = make(map[uint64]*Mind)
	e.statesByGround = make(map[*State][]*State)
	e.archetypeByLabel = make(map[string]*Archetype)
	e.traittypeByLabel = make(map[string]*Traittype)
	e.sharedBeliefByLabel = make(map[string]*Belief)
	e.labelToBelief = make(map[string]*Belief)
	e.dict = alias.NewDictionary()

	e.installGroundMinds()
	e.installReservedSchema()

	for _, fn := range e.resetHooks {
		fn()
	}
}

// RegisterArchetype declares a new archetype in the schema. Labels are
// unique across the whole schema.
func (e *Engine) RegisterArchetype(label string, bases []*Archetype, template map[*Traittype]any) (*Archetype, error) {
	if _, dup := e.archetypeByLabel[label]; dup {
		return nil, schemaErrorf("archetype %q already registered", label)
	}
	a := &Archetype{
		ID:            e.ids.Next(),
		Label:         label,
		Bases:         append([]*Archetype(nil), bases...),
		TraitTemplate: template,
	}
	if a.TraitTemplate == nil {
		a.TraitTemplate = make(map[*Traittype]any)
	}
	// String defaults on subject-reference slots resolve once, here: a
	// string naming an archetype stays as that Archetype marker, a string
	// naming a shared prototype becomes the prototype's Subject.
	for tt, def := range a.TraitTemplate {
		s, ok := def.(string)
		if !ok || !tt.IsSubjectReference() {
			continue
		}
		v, err := e.ResolveArchetypeTemplateValue(tt, nil, s)
		if err != nil {
			return nil, err
		}
		a.TraitTemplate[tt] = v
	}
	e.archetypeByLabel[label] = a
	return a, nil
}

// RegisterTraittype declares a new traittype in the schema. Labels are
// unique across the whole schema.
func (e *Engine) RegisterTraittype(tt *Traittype) (*Traittype, error) {
	if _, dup := e.traittypeByLabel[tt.Label]; dup {
		return nil, schemaErrorf("traittype %q already registered", tt.Label)
	}
	tt.ID = e.ids.Next()
	e.traittypeByLabel[tt.Label] = tt
	return tt, nil
}

// GetArchetype looks up a registered archetype by label.
func (e *Engine) GetArchetype(label string) (*Archetype, bool) {
	a, ok := e.archetypeByLabel[label]
	return a, ok
}

// GetTraittype looks up a registered traittype by label.
func (e *Engine) GetTraittype(label string) (*Traittype, bool) {
	tt, ok := e.traittypeByLabel[label]
	return tt, ok
}

// GetBeliefByLabel resolves a label to the belief registered under it:
// first the direct label registry (set by Belief.SetLabel), then the
// shared-belief-by-template registry, then the compiled alias
// dictionary — so a surface form that is only an archetype-derived alias
// ("rusty" for "The Rusty Anchor") or a known misspelling resolves the same
// way an exact label would.
func (e *Engine) GetBeliefByLabel(label string) (*Belief, bool) {
	if b, ok := e.labelToBelief[label]; ok {
		return b, true
	}
	if b, ok := e.sharedBeliefByLabel[label]; ok {
		return b, true
	}
	return e.resolveByAlias(label)
}

// resolveByAlias looks label up in the compiled alias dictionary and
// resolves the first matching sid to its current belief. Ambiguous
// aliases (more than one sid) resolve to their first candidate in the
// dictionary's own order, which is not defined, rather than erroring outright;
// callers that need full disambiguation use e.dict.Lookup directly.
func (e *Engine) resolveByAlias(label string) (*Belief, bool) {
	sids := e.dict.Lookup(label)
	if len(sids) == 0 {
		return nil, false
	}
	subj, ok := e.subjectsBySid[sids[0]]
	if !ok {
		return nil, false
	}
	return e.resolveCurrentBelief(subj)
}

// RebuildDictionary recompiles the alias.Dictionary from every currently
// labelled belief. Belief.SetLabel calls this after every relabel, so
// GetBeliefByLabel's alias fallback and Scan/PrefixLabels never see a
// stale automaton; it is also exported directly for callers that label a
// batch of beliefs some other way and want one recompile at the end
// instead of one per label.
func (e *Engine) RebuildDictionary() error {
	entries := make([]alias.Entry, 0, len(e.labelToBelief))
	for label, b := range e.labelToBelief {
		archLabel := ""
		for arch := range b.GetArchetypes() {
			archLabel = arch.Label
			break
		}
		entries = append(entries, alias.Entry{
			Sid:            b.Subject.Sid,
			Label:          label,
			ArchetypeLabel: archLabel,
		})
	}
	dict, err := alias.Compile(entries)
	if err != nil {
		return err
	}
	e.dict = dict
	return nil
}
