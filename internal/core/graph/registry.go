package graph

import (
	"fmt"
	"sort"

	"github.com/flowgraph/dataflow/pkg/serialization"
)

// CallbackFactory binds a persisted callback to its receiver. self is nil
// for callbacks registered without a self tag.
type CallbackFactory func(self *Node) (CallbackFunc, error)

type callbackEntry struct {
	self    *TypeTag
	factory CallbackFactory
}

// Registry is the static table that resolves persisted type tags. Port and
// node kinds are built in; functions, callbacks and value types are added
// explicitly before any state is loaded.
// PRINCIPLES:
// - no dynamic lookup: an unregistered tag is an error
type Registry struct {
	functions map[TypeTag]*Function
	callbacks map[TypeTag]callbackEntry
	values    *serialization.ValueCodec
}

// NewRegistry returns a registry holding the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{
		functions: make(map[TypeTag]*Function),
		callbacks: make(map[TypeTag]callbackEntry),
		values:    serialization.NewValueCodec(),
	}
	_ = r.values.Register("flowgraph.Table", Table{})
	return r
}

// RegisterFunction makes f loadable by its tag. Each of its actions is
// registered as a callback bound to function nodes.
func (r *Registry) RegisterFunction(f *Function) error {
	if f == nil {
		return ErrNotFunction
	}
	if _, exists := r.functions[f.Tag]; exists {
		return fmt.Errorf("%w: function %s", ErrDuplicateTag, f.Tag)
	}
	for _, a := range f.actions {
		if _, exists := r.callbacks[f.ActionTag(a.Name)]; exists {
			return fmt.Errorf("%w: action %s", ErrDuplicateTag, f.ActionTag(a.Name))
		}
	}
	r.functions[f.Tag] = f
	self := FunctionNodeTag
	for _, a := range f.actions {
		r.callbacks[f.ActionTag(a.Name)] = callbackEntry{self: &self, factory: actionFactory(f, a)}
	}
	return nil
}

func actionFactory(f *Function, a Action) CallbackFactory {
	return func(self *Node) (CallbackFunc, error) {
		if self == nil || self.fn == nil || self.fn.Tag != f.Tag {
			return nil, fmt.Errorf("%w: action %s needs a %s node", ErrResolution, a.Name, f.Tag)
		}
		return func(_ *Port, prev any) (any, error) {
			return a.Fn(self, prev)
		}, nil
	}
}

// RegisterCallback makes a callback loadable by tag. A non-nil self
// restricts it to nodes of that tag.
func (r *Registry) RegisterCallback(tag TypeTag, self *TypeTag, factory CallbackFactory) error {
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrContractViolation, tag)
	}
	if _, exists := r.callbacks[tag]; exists {
		return fmt.Errorf("%w: callback %s", ErrDuplicateTag, tag)
	}
	r.callbacks[tag] = callbackEntry{self: self, factory: factory}
	return nil
}

// RegisterValue makes values of prototype's type round-trip with their
// concrete type.
func (r *Registry) RegisterValue(name string, prototype any) error {
	return r.values.Register(name, prototype)
}

// Function resolves a function tag.
func (r *Registry) Function(tag TypeTag) (*Function, error) {
	f, ok := r.functions[tag]
	if !ok {
		return nil, &ResolutionError{Kind: "function", Tag: tag}
	}
	return f, nil
}

// Functions lists registered functions sorted by tag.
func (r *Registry) Functions() []*Function {
	out := make([]*Function, 0, len(r.functions))
	for _, f := range r.functions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag.String() < out[j].Tag.String() })
	return out
}

// Lookup finds a function by tag string or bare name.
func (r *Registry) Lookup(name string) (*Function, bool) {
	for _, f := range r.Functions() {
		if f.Tag.String() == name || f.Tag.Qualname == name || f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// PortKind resolves a port tag.
func (r *Registry) PortKind(tag TypeTag) (Kind, error) {
	k, ok := KindOf(tag)
	if !ok {
		return 0, &ResolutionError{Kind: "port", Tag: tag}
	}
	return k, nil
}

// NewNodeFor creates an empty node for a node tag.
func (r *Registry) NewNodeFor(tag TypeTag) (*Node, error) {
	switch tag {
	case NodeTag, FunctionNodeTag:
		return newNode(tag, ""), nil
	}
	return nil, &ResolutionError{Kind: "node", Tag: tag}
}

// Callback rebuilds a persisted callback for a port owned by owner. It fails
// when the tag is unknown or when the bound self tag does not match owner.
func (r *Registry) Callback(tag TypeTag, self *TypeTag, owner *Node) (*Callback, error) {
	entry, ok := r.callbacks[tag]
	if !ok {
		return nil, &ResolutionError{Kind: "callback", Tag: tag}
	}
	var bound *Node
	switch {
	case self == nil && entry.self == nil:
	case self == nil || entry.self == nil:
		return nil, fmt.Errorf("%w: callback %s self mismatch", ErrResolution, tag)
	case owner == nil || *self != owner.tag || *entry.self != *self:
		return nil, &ResolutionError{Kind: "callback self", Tag: *self}
	default:
		bound = owner
	}
	fn, err := entry.factory(bound)
	if err != nil {
		return nil, err
	}
	return &Callback{Tag: tag, Self: bound, Fn: fn}, nil
}

// Values returns the port value codec.
func (r *Registry) Values() *serialization.ValueCodec { return r.values }
