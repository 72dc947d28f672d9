// Package graph defines domain-specific errors
package graph

import (
	"errors"
	"fmt"
)

// Domain errors - defined once, used everywhere.
// The first four are the error classes every other failure unwraps to.
var (
	// ErrStructural covers malformed states and edge coordinates.
	ErrStructural = errors.New("structural error")
	// ErrContractViolation covers misuse of a port or function contract.
	ErrContractViolation = errors.New("contract violation")
	// ErrEvaluation is raised by a bound callable during evaluation.
	ErrEvaluation = errors.New("evaluation failed")
	// ErrResolution means a type tag is not in the registry.
	ErrResolution = errors.New("unresolved type tag")

	// Graph errors
	ErrNodeNotFound   = errors.New("node not found")
	ErrPortNotFound   = errors.New("port not found")
	ErrDuplicateNode  = errors.New("node already belongs to a graph")
	ErrSelfLoop       = errors.New("self-loops are not allowed")
	ErrCoordinate     = fmt.Errorf("%w: coordinate out of range", ErrStructural)
	ErrUnknownPayload = fmt.Errorf("%w: unrecognized clipboard payload", ErrStructural)

	// Node and port errors
	ErrNilNode        = errors.New("node cannot be nil")
	ErrNilPort        = errors.New("port cannot be nil")
	ErrPortOwned      = errors.New("port already belongs to a node")
	ErrTypeMismatch   = errors.New("value does not fit port kind")
	ErrNotTrigger     = errors.New("port is not a trigger")
	ErrNoOptions      = errors.New("choice has no options")
	ErrReentrantLink  = fmt.Errorf("%w: source assigned while linking", ErrContractViolation)
	ErrReturnCount    = fmt.Errorf("%w: result does not match return ports", ErrContractViolation)
	ErrNotFunction    = errors.New("value is not a function")
	ErrDuplicateTag   = errors.New("type tag already registered")
	ErrUnknownMissing = errors.New("unknown missing-key policy")

	// ErrNoOutput may be returned by a bound callable to stop evaluation
	// without touching the return ports.
	ErrNoOutput = errors.New("no output")
)

// KeyError reports a state key the receiver does not understand under
// the MissingError policy.
type KeyError struct {
	Path string
	Key  string
}

func (e *KeyError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unknown state key %q", e.Key)
	}
	return fmt.Sprintf("unknown state key %q at %s", e.Key, e.Path)
}

func (e *KeyError) Unwrap() error { return ErrStructural }

// EvaluationError records why a function node is in the errored state.
type EvaluationError struct {
	Node string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Node, e.Err)
}

func (e *EvaluationError) Unwrap() []error { return []error{ErrEvaluation, e.Err} }

// ResolutionError reports a type tag missing from the registry.
type ResolutionError struct {
	Kind string
	Tag  TypeTag
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unresolved %s type %s", e.Kind, e.Tag)
}

func (e *ResolutionError) Unwrap() error { return ErrResolution }
