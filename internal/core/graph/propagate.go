package graph

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
)

// Observer receives engine events as they happen.
type Observer interface {
	// Propagated is called once per notifying SetValue.
	Propagated(p *Port)
	// Evaluated is called after a function node ran; err is nil on success.
	Evaluated(n *Node, err error)
	// CallbackSkipped is called for each persisted callback that could not
	// be resolved while loading a state.
	CallbackSkipped(tag TypeTag, err error)
}

type nopObserver struct{}

func (nopObserver) Propagated(*Port)               {}
func (nopObserver) Evaluated(*Node, error)         {}
func (nopObserver) CallbackSkipped(TypeTag, error) {}

func (p *Port) observer() Observer {
	if p.node != nil {
		return p.node.observer()
	}
	return nopObserver{}
}

// SetValue stores v and propagates it synchronously:
//  1. the coerced value is stored on p
//  2. if p is an argument of a function node, that node is evaluated
//  3. every subscriber is called in registration order
//
// Everything downstream has run by the time SetValue returns. A failing
// function node only changes its own status; subscriber errors are
// collected and returned together. Trigger ports store without notifying.
func (p *Port) SetValue(v any) error {
	v, err := p.coerce(v)
	if err != nil {
		return err
	}
	p.value = v
	if p.kind.IsTrigger() {
		return nil
	}
	p.observer().Propagated(p)

	var result *multierror.Error
	if n := p.node; n != nil && n.isArg(p) {
		if err := n.evaluate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, cb := range p.Callbacks() {
		if _, err := cb.Fn(p, v); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// SetValueSilently stores v without evaluating or notifying anyone.
func (p *Port) SetValueSilently(v any) error {
	v, err := p.coerce(v)
	if err != nil {
		return err
	}
	p.value = v
	return nil
}

// SetValueIfDifferent calls SetValue only when v differs from the stored
// value after coercion.
func (p *Port) SetValueIfDifferent(v any) error {
	c, err := p.coerce(v)
	if err != nil {
		return err
	}
	if reflect.DeepEqual(c, p.value) {
		return nil
	}
	return p.SetValue(c)
}

// Trigger fires a button port: each callback is called with the result it
// returned last time, and its new result is kept. A toggle port flips its
// checked state first. One failing callback does not stop the others; its
// stored result is reset to nil.
func (p *Port) Trigger() error {
	if !p.kind.IsTrigger() {
		return fmt.Errorf("%w: %s port %q", ErrNotTrigger, p.kind, p.name)
	}
	if p.kind == KindToggle {
		p.value = !p.Checked()
	}
	var result *multierror.Error
	for _, cb := range p.Callbacks() {
		out, err := cb.Fn(p, cb.result)
		if err != nil {
			cb.result = nil
			result = multierror.Append(result, fmt.Errorf("%s: %w", p.name, err))
			continue
		}
		cb.result = out
	}
	return result.ErrorOrNil()
}
