package engine

import "fmt"

// Kind classifies an engine failure. All engine failures are
// immediate: a failed mutation on an unlocked state must be discarded by
// the caller, never locked or branched.
type Kind int

const (
	// KindSchema: unknown/duplicate archetype or traittype, label reuse,
	// or a trait not permitted by any archetype on the belief.
	KindSchema Kind = iota
	// KindType: a trait value doesn't match its traittype (primitive,
	// archetype, container length, enum).
	KindType
	// KindState: mutating a locked belief/state, branching from an
	// unlocked base, or Convergence.RemoveBeliefs.
	KindState
	// KindResolution: a label/sid/id/ref can't be resolved (load or
	// template resolution).
	KindResolution
	// KindInvariant: an internal contract violation, e.g. more than one
	// shared belief matching the same subject at a tt.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "SchemaError"
	case KindType:
		return "TypeError"
	case KindState:
		return "StateError"
	case KindResolution:
		return "ResolutionError"
	case KindInvariant:
		return "InvariantError"
	default:
		return "UnknownError"
	}
}

// Error is the engine's single error type, tagged with a Kind so callers
// can errors.Is/errors.As against the sentinels below, and carrying an
// optional diagnostic wrapped from the offending call.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSchema) etc. match regardless of message text.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*sentinelError)
	return ok && sentinel.kind == e.Kind
}

type sentinelError struct{ kind Kind }

func (s *sentinelError) Error() string { return s.kind.String() }

// Sentinels for errors.Is.
var (
	ErrSchema     error = &sentinelError{KindSchema}
	ErrType       error = &sentinelError{KindType}
	ErrState      error = &sentinelError{KindState}
	ErrResolution error = &sentinelError{KindResolution}
	ErrInvariant  error = &sentinelError{KindInvariant}
)

func schemaErrorf(format string, args ...any) error {
	return &Error{Kind: KindSchema, Msg: fmt.Sprintf(format, args...)}
}

func typeErrorf(format string, args ...any) error {
	return &Error{Kind: KindType, Msg: fmt.Sprintf(format, args...)}
}

func stateErrorf(format string, args ...any) error {
	return &Error{Kind: KindState, Msg: fmt.Sprintf(format, args...)}
}

func resolutionErrorf(format string, args ...any) error {
	return &Error{Kind: KindResolution, Msg: fmt.Sprintf(format, args...)}
}

func invariantErrorf(format string, args ...any) error {
	return &Error{Kind: KindInvariant, Msg: fmt.Sprintf(format, args...)}
}

func wrapf(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}
