package engine

import (
	"github.com/aigan/adventure-sub003/pkg/fuzzy"
)

// DataKind is the trait's value kind: a literal primitive, a structural
// handle (Subject/Belief/State/Mind/Fuzzy), or an archetype-constrained
// Subject reference.
type DataKind int

const (
	DataString DataKind = iota
	DataNumber
	DataBoolean
	DataSubject // a bare Subject, no archetype constraint
	DataBelief
	DataState
	DataMind
	DataFuzzy
	DataArchetypeRef // a Subject whose belief must bear the named archetype
)

// ContainerKind names the container wrapping a trait value.
type ContainerKind int

const (
	ContainerNone ContainerKind = iota
	ContainerArray
)

// Traittype is the schema for one trait name.
type Traittype struct {
	ID             uint64
	Label          string
	DataType       DataKind
	ArchetypeLabel string // set when DataType == DataArchetypeRef
	Container      ContainerKind
	MinLen, MaxLen int    // array length constraints; MaxLen==0 means unbounded
	Values         []any  // enum constraint for literal types, nil = unconstrained
	MindScope      string // optional scoping tag
	Composable     bool
	Exposure       string // perceptual modality: visual|spatial|tactile|auditory|internal|...
}

// IsSubjectReference is true for Subject and any archetype-ref type; it
// controls whether the trait participates in the reverse index.
func (tt *Traittype) IsSubjectReference() bool {
	return tt.DataType == DataSubject || tt.DataType == DataArchetypeRef
}

// MindTemplateSpec is the plain-object shape {label -> [trait names]}
// accepted by a DataMind trait.
type MindTemplateSpec map[string][]string

// ResolveValue validates and converts a raw input into a stored trait
// value. belief is the belief the value will be stored on,
// used for archetype-ref label/Belief resolution context.
func (tt *Traittype) ResolveValue(e *Engine, belief *Belief, raw any) (any, error) {
	if tt.Container == ContainerArray {
		items, ok := asSlice(raw)
		if !ok {
			return nil, typeErrorf("trait %q expects an array, got %T", tt.Label, raw)
		}
		if tt.MinLen > 0 && len(items) < tt.MinLen {
			return nil, typeErrorf("trait %q array length %d below minimum %d", tt.Label, len(items), tt.MinLen)
		}
		if tt.MaxLen > 0 && len(items) > tt.MaxLen {
			return nil, typeErrorf("trait %q array length %d above maximum %d", tt.Label, len(items), tt.MaxLen)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := tt.resolveScalar(e, belief, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return tt.resolveScalar(e, belief, raw)
}

func (tt *Traittype) resolveScalar(e *Engine, belief *Belief, raw any) (any, error) {
	if f, ok := raw.(fuzzy.Fuzzy); ok {
		return f, nil // Fuzzy passes through regardless of nominal DataType
	}

	switch tt.DataType {
	case DataString:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErrorf("trait %q expects a string, got %T", tt.Label, raw)
		}
		if tt.Values != nil && !containsAny(tt.Values, s) {
			return nil, typeErrorf("trait %q value %q not among allowed values", tt.Label, s)
		}
		return s, nil

	case DataNumber:
		switch n := raw.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		default:
			return nil, typeErrorf("trait %q expects a number, got %T", tt.Label, raw)
		}

	case DataBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeErrorf("trait %q expects a boolean, got %T", tt.Label, raw)
		}
		return b, nil

	case DataState:
		s, ok := raw.(*State)
		if !ok {
			return nil, typeErrorf("trait %q expects a State, got %T", tt.Label, raw)
		}
		return s, nil

	case DataBelief:
		b, ok := raw.(*Belief)
		if !ok {
			return nil, typeErrorf("trait %q expects a Belief, got %T", tt.Label, raw)
		}
		return b, nil

	case DataMind:
		return tt.resolveMindValue(e, belief, raw)

	case DataSubject, DataArchetypeRef:
		return tt.resolveSubjectValue(e, belief, raw)

	default:
		return nil, typeErrorf("trait %q has unknown data kind", tt.Label)
	}
}

func (tt *Traittype) resolveSubjectValue(e *Engine, belief *Belief, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		if found, ok := e.GetBeliefByLabel(v); ok {
			if tt.DataType == DataArchetypeRef && !beliefHasArchetype(found, tt.ArchetypeLabel) {
				return nil, typeErrorf("belief labelled %q does not bear required archetype %q", v, tt.ArchetypeLabel)
			}
			return found.Subject, nil
		}
		return nil, resolutionErrorf("trait %q: no belief labelled %q", tt.Label, v)
	case *Belief:
		if tt.DataType == DataArchetypeRef && !beliefHasArchetype(v, tt.ArchetypeLabel) {
			return nil, typeErrorf("belief %d does not bear required archetype %q", v.ID, tt.ArchetypeLabel)
		}
		return v.Subject, nil
	case *Subject:
		return v, nil
	case *Archetype:
		// an archetype marker default, passed through unchanged
		return v, nil
	default:
		return nil, typeErrorf("trait %q expects a Subject/Belief/label, got %T", tt.Label, raw)
	}
}

func (tt *Traittype) resolveMindValue(e *Engine, belief *Belief, raw any) (any, error) {
	switch v := raw.(type) {
	case *Mind:
		return v, nil
	case MindTemplateSpec:
		if belief == nil {
			return nil, resolutionErrorf("trait %q: Mind template requires an owning belief", tt.Label)
		}
		creatorState := belief.OriginState
		m, err := ResolveMindTemplate(e, belief.InMind, v, belief.Subject, creatorState)
		if err != nil {
			return nil, err
		}
		return m, nil
	case map[string][]string:
		return tt.resolveMindValue(e, belief, MindTemplateSpec(v))
	default:
		return nil, typeErrorf("trait %q expects a Mind or a label->traits template, got %T", tt.Label, raw)
	}
}

// ValidateValue is a post-resolution check of v against tt's container
// and data type; nothing in this module calls it.
func (tt *Traittype) ValidateValue(v any) error {
	if tt.Container == ContainerArray {
		items, ok := asSlice(v)
		if !ok {
			return typeErrorf("trait %q expects an array, got %T", tt.Label, v)
		}
		for _, item := range items {
			if err := tt.validateScalar(item); err != nil {
				return err
			}
		}
		return nil
	}
	return tt.validateScalar(v)
}

func (tt *Traittype) validateScalar(v any) error {
	if _, ok := v.(fuzzy.Fuzzy); ok {
		return nil
	}
	switch tt.DataType {
	case DataString:
		_, ok := v.(string)
		if !ok {
			return typeErrorf("trait %q: expected string", tt.Label)
		}
	case DataNumber:
		_, ok := v.(float64)
		if !ok {
			return typeErrorf("trait %q: expected number", tt.Label)
		}
	case DataBoolean:
		_, ok := v.(bool)
		if !ok {
			return typeErrorf("trait %q: expected boolean", tt.Label)
		}
	case DataSubject, DataArchetypeRef:
		switch v.(type) {
		case *Subject, *Archetype:
		default:
			return typeErrorf("trait %q: expected Subject", tt.Label)
		}
	case DataState:
		if _, ok := v.(*State); !ok {
			return typeErrorf("trait %q: expected State", tt.Label)
		}
	case DataBelief:
		if _, ok := v.(*Belief); !ok {
			return typeErrorf("trait %q: expected Belief", tt.Label)
		}
	case DataMind:
		if _, ok := v.(*Mind); !ok {
			return typeErrorf("trait %q: expected Mind", tt.Label)
		}
	}
	return nil
}

// Compose implements breadth-first deduplicated concatenation for
// composable Array traits, and Mind convergence for DataMind traits
//.
func (tt *Traittype) Compose(e *Engine, belief *Belief, perBase []any) (any, error) {
	if !tt.Composable {
		return nil, invariantErrorf("trait %q is not composable", tt.Label)
	}

	if tt.DataType == DataMind {
		var minds []*Mind
		for _, v := range perBase {
			if v == nil {
				continue
			}
			if m, ok := v.(*Mind); ok {
				minds = append(minds, m)
			}
		}
		if len(minds) == 0 {
			return nil, nil
		}
		return ComposeMind(e, tt, belief, minds)
	}

	var out []any
	seen := make(map[uint64]bool)
	for _, v := range perBase {
		if v == nil {
			continue // a base whose own resolved value is null contributes nothing
		}
		items, _ := asSlice(v)
		for _, item := range items {
			sid, ok := subjectSidOf(item)
			if !ok {
				out = append(out, item)
				continue
			}
			if seen[sid] {
				continue
			}
			seen[sid] = true
			out = append(out, item)
		}
	}
	return out, nil
}

// GetDerivedValue collects the latest value of this trait from each of
// belief's bases and composes them, when tt.Composable.
func (tt *Traittype) GetDerivedValue(e *Engine, state *State, belief *Belief) (any, error) {
	if !tt.Composable {
		return nil, nil
	}
	var perBase []any
	for _, base := range belief.Bases {
		bb, ok := base.(*Belief)
		if !ok {
			continue
		}
		v, err := bb.GetTrait(e, state, tt)
		if err != nil {
			return nil, err
		}
		perBase = append(perBase, v)
	}
	return tt.Compose(e, belief, perBase)
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	default:
		return nil, false
	}
}

func containsAny(values []any, v any) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func subjectSidOf(v any) (uint64, bool) {
	switch s := v.(type) {
	case *Subject:
		return s.Sid, true
	case *Archetype:
		return 0, false
	default:
		return 0, false
	}
}
