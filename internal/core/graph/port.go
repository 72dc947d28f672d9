package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// CallbackFunc is notified by a port. Value subscribers receive the new
// value and their result is ignored; trigger callbacks receive the result
// they returned on the previous firing.
type CallbackFunc func(p *Port, v any) (any, error)

// Callback is one entry of a port's ordered subscriber list. Tag is what
// gets persisted; callbacks with a zero tag (edge followers, ad hoc
// closures) are not serialized.
type Callback struct {
	Tag  TypeTag
	Self *Node
	Fn   CallbackFunc

	result any
	sink   *Port
}

// NewCallback wraps fn as an untagged subscriber.
func NewCallback(fn CallbackFunc) *Callback {
	return &Callback{Fn: fn}
}

// Result is what the callback returned the last time a trigger fired it.
func (c *Callback) Result() any { return c.result }

// Port is a typed value cell on a Node.
// PRINCIPLES:
// - SRP: holds a value and its subscribers, nothing about layout
// - at most one upstream source, any number of downstream followers
type Port struct {
	name     string
	kind     Kind
	value    any
	input    bool
	output   bool
	readOnly bool

	source    *Port
	follower  *Callback
	callbacks []*Callback

	node *Node

	rng         Range
	choice      Choice
	decimals    int
	decimalsSet bool
	lines       int

	extra map[string]json.RawMessage
}

// PortOption configures a port at construction time.
type PortOption func(*Port)

// WithRange bounds a numeric port.
func WithRange(r Range) PortOption {
	return func(p *Port) { p.rng = r }
}

// WithChoice sets the options of a combo port.
func WithChoice(c Choice) PortOption {
	return func(p *Port) { p.choice = c }
}

// WithDecimals fixes the precision of a float port. A negative d disables
// rounding.
func WithDecimals(d int) PortOption {
	return func(p *Port) { p.decimals, p.decimalsSet = max(d, fullPrecision), true }
}

// WithLines sets the display height hint of a generic port.
func WithLines(n int) PortOption {
	return func(p *Port) { p.lines = n }
}

// WithInput enables the input socket.
func WithInput() PortOption {
	return func(p *Port) { p.input = true }
}

// WithOutput enables the output socket.
func WithOutput() PortOption {
	return func(p *Port) { p.output = true }
}

// Float ports without a step keep two decimals.
const defaultDecimals = 2

const fullPrecision = -1

// NewPort creates a detached port holding the zero value of its kind.
func NewPort(kind Kind, name string, opts ...PortOption) *Port {
	p := &Port{name: name, kind: kind}
	for _, opt := range opts {
		opt(p)
	}
	if kind == KindFloat && !p.decimalsSet {
		if d, ok := p.rng.Decimals(); ok {
			p.decimals = d
		} else {
			p.decimals = defaultDecimals
		}
	}
	p.value = p.zero()
	return p
}

func (p *Port) zero() any {
	switch p.kind {
	case KindInt:
		return int(p.rng.Clamp(0))
	case KindFloat:
		return p.round(p.rng.Clamp(0))
	case KindStr:
		return ""
	case KindBool, KindToggle:
		return false
	case KindCombo:
		if len(p.choice.Options) > 0 {
			return p.choice.Options[0]
		}
	}
	return nil
}

// Name returns the port name, which may be empty.
func (p *Port) Name() string { return p.name }

// SetName renames the port.
func (p *Port) SetName(name string) { p.name = name }

// Kind returns the port kind.
func (p *Port) Kind() Kind { return p.kind }

// Value returns the stored value.
func (p *Port) Value() any { return p.value }

// Node returns the owning node, or nil for a detached port.
func (p *Port) Node() *Node { return p.node }

// InputEnabled reports whether the input socket is enabled.
func (p *Port) InputEnabled() bool { return p.input }

// SetInputEnabled toggles the input socket.
func (p *Port) SetInputEnabled(v bool) { p.input = v }

// OutputEnabled reports whether the output socket is enabled.
func (p *Port) OutputEnabled() bool { return p.output }

// SetOutputEnabled toggles the output socket.
func (p *Port) SetOutputEnabled(v bool) { p.output = v }

// ReadOnly reports whether the value is driven by something other than the
// user: an upstream source or a function result.
func (p *Port) ReadOnly() bool { return p.readOnly }

// SetReadOnly marks the port read-only.
func (p *Port) SetReadOnly(v bool) { p.readOnly = v }

// Range returns the numeric constraint.
func (p *Port) Range() Range { return p.rng }

// Choice returns the combo options.
func (p *Port) Choice() Choice { return p.choice }

// Decimals returns the precision of a float port.
func (p *Port) Decimals() int { return p.decimals }

// Lines returns the display height hint of a generic port.
func (p *Port) Lines() int { return p.lines }

// SetLines updates the display height hint.
func (p *Port) SetLines(n int) { p.lines = n }

// Checked reports the state of a toggle port.
func (p *Port) Checked() bool {
	b, _ := p.value.(bool)
	return p.kind == KindToggle && b
}

// Source returns the upstream port, if any.
func (p *Port) Source() *Port { return p.source }

// AddCallback appends cb to the subscriber list.
func (p *Port) AddCallback(cb *Callback) {
	p.callbacks = append(p.callbacks, cb)
}

// RemoveCallback removes the first occurrence of cb.
func (p *Port) RemoveCallback(cb *Callback) bool {
	i := slices.Index(p.callbacks, cb)
	if i < 0 {
		return false
	}
	p.callbacks = slices.Delete(p.callbacks, i, i+1)
	return true
}

// Callbacks returns a copy of the subscriber list in registration order.
func (p *Port) Callbacks() []*Callback {
	return slices.Clone(p.callbacks)
}

// RemoveAllCallbacks clears the subscriber list. Followers registered by
// downstream ports are unlinked from their sinks as well.
func (p *Port) RemoveAllCallbacks() {
	for _, cb := range p.Callbacks() {
		if sink := p.sinkOf(cb); sink != nil {
			sink.UnsetSource()
			continue
		}
		p.RemoveCallback(cb)
	}
}

func (p *Port) sinkOf(cb *Callback) *Port {
	if cb.sink != nil && cb.sink.source == p {
		return cb.sink
	}
	return nil
}

// SetSource wires p to follow src: any previous source is detached, p takes
// src's current value, then p subscribes to src and becomes read-only.
// A source holding nil leaves p's value as it is. The link is made even when
// src's value does not fit p; that error is returned like any later
// SetValue on src would report it.
func (p *Port) SetSource(src *Port) error {
	if src == nil {
		return ErrNilPort
	}
	if src == p {
		return fmt.Errorf("%w: %w", ErrStructural, ErrSelfLoop)
	}
	p.UnsetSource()
	var err error
	if v := src.Value(); v != nil {
		err = p.SetValue(v)
	}
	if p.source != nil {
		return ErrReentrantLink
	}
	p.follower = &Callback{
		Fn: func(_ *Port, v any) (any, error) {
			return nil, p.SetValue(v)
		},
		sink: p,
	}
	p.source = src
	src.AddCallback(p.follower)
	p.readOnly = true
	return err
}

// UnsetSource detaches p from its source, if any.
func (p *Port) UnsetSource() {
	if p.source != nil {
		p.source.RemoveCallback(p.follower)
		p.source = nil
		p.follower = nil
	}
	p.readOnly = false
}

// coerce converts v to what the port kind stores, applying its constraint.
func (p *Port) coerce(v any) (any, error) {
	switch p.kind {
	case KindInt:
		f, ok := toFloat(v)
		if !ok {
			return nil, p.mismatch(v)
		}
		return int(math.Round(p.rng.Clamp(f))), nil
	case KindFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, p.mismatch(v)
		}
		return p.round(p.rng.Clamp(f)), nil
	case KindStr:
		s, ok := v.(string)
		if !ok {
			return nil, p.mismatch(v)
		}
		return s, nil
	case KindBool, KindToggle:
		b, ok := v.(bool)
		if !ok {
			return nil, p.mismatch(v)
		}
		return b, nil
	case KindCombo:
		if len(p.choice.Options) == 0 {
			return v, nil
		}
		return p.choice.Nearest(v)
	case KindPlot:
		switch t := v.(type) {
		case nil:
			return nil, nil
		case Table:
			return t, nil
		case *Table:
			if t == nil {
				return nil, nil
			}
			return *t, nil
		}
		return nil, p.mismatch(v)
	}
	return v, nil
}

// round keeps p.decimals fractional digits; zero rounds to whole numbers
// and a negative count keeps full precision.
func (p *Port) round(f float64) float64 {
	if p.decimals < 0 {
		return f
	}
	scale := math.Pow(10, float64(p.decimals))
	return math.Round(f*scale) / scale
}

func (p *Port) mismatch(v any) error {
	return fmt.Errorf("%w: %s port %q given %T", ErrTypeMismatch, p.kind, p.name, v)
}
