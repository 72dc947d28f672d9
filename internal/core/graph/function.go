package graph

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
)

// Param describes one argument or return slot of a Function.
type Param struct {
	Name    string
	Type    reflect.Type
	Range   *Range
	Choice  *Choice
	Default any
	Cast    func(any) (any, error)
}

// ActionFunc runs when an action's trigger port fires. prev is what the
// same action returned the previous time.
type ActionFunc func(n *Node, prev any) (any, error)

// Action is a named side effect exposed as a button.
type Action struct {
	Name   string
	Toggle bool
	Fn     ActionFunc
}

// Function is a callable plus the signature metadata used to synthesize
// ports for it.
// PRINCIPLES:
// - built once by NewFunction, immutable afterwards
// - a trailing error result is the failure channel, not a return port
type Function struct {
	Tag  TypeTag
	Name string

	fn      reflect.Value
	args    []Param
	returns []Param
	actions []Action
	hasErr  bool
	tuple   bool
}

type functionConfig struct {
	name        string
	argNames    []string
	returnNames []string
	tuple       int
	ranges      map[int]Range
	choices     map[int]Choice
	defaults    map[int]any
	casts       map[int]func(any) (any, error)
	actions     []Action
}

// FunctionOption configures NewFunction.
type FunctionOption func(*functionConfig)

// Named overrides the display name, which defaults to the tag's qualname.
func Named(name string) FunctionOption {
	return func(c *functionConfig) { c.name = name }
}

// ArgNames names the argument ports in order.
func ArgNames(names ...string) FunctionOption {
	return func(c *functionConfig) { c.argNames = names }
}

// ReturnNames names the return ports in order.
func ReturnNames(names ...string) FunctionOption {
	return func(c *functionConfig) { c.returnNames = names }
}

// ArgRange bounds the i-th argument.
func ArgRange(i int, r Range) FunctionOption {
	return func(c *functionConfig) { c.ranges[i] = r }
}

// ArgChoice restricts the i-th argument to options.
func ArgChoice(i int, options ...any) FunctionOption {
	return func(c *functionConfig) { c.choices[i] = OneOf(options...) }
}

// ArgDefault sets the initial value of the i-th argument port.
func ArgDefault(i int, v any) FunctionOption {
	return func(c *functionConfig) { c.defaults[i] = v }
}

// ArgCast converts the i-th argument value before the call.
func ArgCast(i int, cast func(any) (any, error)) FunctionOption {
	return func(c *functionConfig) { c.casts[i] = cast }
}

// Returns spreads a single slice result over n return ports.
func Returns(n int) FunctionOption {
	return func(c *functionConfig) { c.tuple = n }
}

// WithAction adds a momentary button.
func WithAction(name string, fn ActionFunc) FunctionOption {
	return func(c *functionConfig) { c.actions = append(c.actions, Action{Name: name, Fn: fn}) }
}

// WithToggle adds a toggle button.
func WithToggle(name string, fn ActionFunc) FunctionOption {
	return func(c *functionConfig) { c.actions = append(c.actions, Action{Name: name, Toggle: true, Fn: fn}) }
}

// NewFunction inspects fn, which must be a non-variadic func, and records
// its parameters, results and options.
func NewFunction(tag TypeTag, fn any, opts ...FunctionOption) (*Function, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: %T", ErrNotFunction, fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic %s", ErrNotFunction, tag)
	}

	cfg := functionConfig{
		name:     tag.Qualname,
		ranges:   map[int]Range{},
		choices:  map[int]Choice{},
		defaults: map[int]any{},
		casts:    map[int]func(any) (any, error){},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &Function{Tag: tag, Name: cfg.name, fn: v, actions: cfg.actions}

	for i := 0; i < t.NumIn(); i++ {
		f.args = append(f.args, Param{Name: fmt.Sprintf("arg%d", i), Type: t.In(i)})
	}
	if len(cfg.argNames) > len(f.args) {
		return nil, fmt.Errorf("%w: %d names for %d arguments of %s", ErrContractViolation, len(cfg.argNames), len(f.args), tag)
	}
	for i, name := range cfg.argNames {
		f.args[i].Name = name
	}
	if err := f.applyArgOptions(cfg); err != nil {
		return nil, err
	}

	results := make([]reflect.Type, 0, t.NumOut())
	for i := 0; i < t.NumOut(); i++ {
		results = append(results, t.Out(i))
	}
	if n := len(results); n > 0 && results[n-1] == errorType {
		f.hasErr = true
		results = results[:n-1]
	}
	if err := f.buildReturns(results, cfg); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, a := range f.actions {
		if a.Fn == nil || a.Name == "" || seen[a.Name] {
			return nil, fmt.Errorf("%w: invalid action %q on %s", ErrContractViolation, a.Name, tag)
		}
		seen[a.Name] = true
	}
	return f, nil
}

func (f *Function) applyArgOptions(cfg functionConfig) error {
	check := func(i int) error {
		if i < 0 || i >= len(f.args) {
			return fmt.Errorf("%w: %s has no argument %d", ErrContractViolation, f.Tag, i)
		}
		return nil
	}
	for i, r := range cfg.ranges {
		if err := check(i); err != nil {
			return err
		}
		if err := r.Validate(); err != nil {
			return err
		}
		k := f.args[i].Type.Kind()
		if !isIntKind(k) && !isFloatKind(k) {
			return fmt.Errorf("%w: range on non-numeric argument %q", ErrContractViolation, f.args[i].Name)
		}
		f.args[i].Range = &r
	}
	for i, c := range cfg.choices {
		if err := check(i); err != nil {
			return err
		}
		if len(c.Options) == 0 {
			return ErrNoOptions
		}
		f.args[i].Choice = &c
	}
	for i, d := range cfg.defaults {
		if err := check(i); err != nil {
			return err
		}
		f.args[i].Default = d
	}
	for i, cast := range cfg.casts {
		if err := check(i); err != nil {
			return err
		}
		f.args[i].Cast = cast
	}
	return nil
}

func (f *Function) buildReturns(results []reflect.Type, cfg functionConfig) error {
	switch {
	case cfg.tuple > 0:
		if len(results) != 1 {
			return fmt.Errorf("%w: Returns(%d) needs a single result, %s has %d", ErrContractViolation, cfg.tuple, f.Tag, len(results))
		}
		elem := reflect.TypeOf((*any)(nil)).Elem()
		switch r := results[0]; r.Kind() {
		case reflect.Slice, reflect.Array:
			elem = r.Elem()
		case reflect.Interface:
		default:
			return fmt.Errorf("%w: Returns(%d) on non-sequence result %s", ErrContractViolation, cfg.tuple, r)
		}
		f.tuple = true
		for i := 0; i < cfg.tuple; i++ {
			f.returns = append(f.returns, Param{Name: fmt.Sprintf("return%d", i), Type: elem})
		}
	case len(results) == 1:
		f.returns = []Param{{Name: "return", Type: results[0]}}
	default:
		for i, r := range results {
			f.returns = append(f.returns, Param{Name: fmt.Sprintf("return%d", i), Type: r})
		}
	}
	if len(cfg.returnNames) > len(f.returns) {
		return fmt.Errorf("%w: %d names for %d returns of %s", ErrContractViolation, len(cfg.returnNames), len(f.returns), f.Tag)
	}
	for i, name := range cfg.returnNames {
		f.returns[i].Name = name
	}
	return nil
}

// Args describes the argument slots.
func (f *Function) Args() []Param { return append([]Param(nil), f.args...) }

// Results describes the return slots.
func (f *Function) Results() []Param { return append([]Param(nil), f.returns...) }

// Actions lists the declared actions.
func (f *Function) Actions() []Action { return append([]Action(nil), f.actions...) }

// ActionTag is the callback tag persisted for an action of f.
func (f *Function) ActionTag(name string) TypeTag {
	return TypeTag{Module: f.Tag.Module, Qualname: f.Tag.Qualname + "." + name}
}

// Call invokes the function with values, one per argument, and returns one
// value per return slot.
func (f *Function) Call(values ...any) ([]any, error) {
	out, err := f.call(values)
	if err != nil {
		return nil, err
	}
	return f.spread(out)
}

func (f *Function) call(values []any) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if len(values) != len(f.args) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrContractViolation, f.Name, len(f.args), len(values))
	}
	in := make([]reflect.Value, len(f.args))
	for i, prm := range f.args {
		v := values[i]
		if prm.Cast != nil {
			if v, err = prm.Cast(v); err != nil {
				return nil, fmt.Errorf("argument %s: %w", prm.Name, err)
			}
		}
		if in[i], err = convertArg(v, prm.Type); err != nil {
			return nil, fmt.Errorf("argument %s: %w", prm.Name, err)
		}
	}

	out = f.fn.Call(in)
	if f.hasErr {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
	}
	return out, nil
}

// spread maps raw results onto return slots.
func (f *Function) spread(out []reflect.Value) ([]any, error) {
	if !f.tuple {
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, nil
	}
	seq := out[0]
	if seq.Kind() == reflect.Interface && !seq.IsNil() {
		seq = seq.Elem()
	}
	if k := seq.Kind(); k != reflect.Slice && k != reflect.Array {
		return nil, fmt.Errorf("%w: %s returned %s, want a sequence of %d", ErrReturnCount, f.Name, seq.Kind(), len(f.returns))
	}
	if seq.Len() != len(f.returns) {
		return nil, fmt.Errorf("%w: %s returned %d values for %d ports", ErrReturnCount, f.Name, seq.Len(), len(f.returns))
	}
	values := make([]any, seq.Len())
	for i := range values {
		values[i] = seq.Index(i).Interface()
	}
	return values, nil
}

// NewFunctionNode creates a node bound to f, synthesizes its ports from the
// signature and evaluates it once.
func NewFunctionNode(f *Function) (*Node, error) {
	if f == nil {
		return nil, ErrNotFunction
	}
	n := newNode(FunctionNodeTag, f.Name)
	n.fn = f
	if err := n.synthesize(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) synthesize() error {
	f := n.fn
	for _, prm := range f.args {
		p := prm.port(WithInput())
		if p.kind == KindGeneric {
			p.lines = 1
		}
		if prm.Default != nil {
			if err := p.SetValueSilently(prm.Default); err != nil {
				return fmt.Errorf("default of %s: %w", prm.Name, err)
			}
		}
		if err := n.AddPort(p); err != nil {
			return err
		}
	}
	for _, prm := range f.returns {
		p := prm.port(WithOutput())
		p.readOnly = true
		if err := n.AddPort(p); err != nil {
			return err
		}
	}
	for _, a := range f.actions {
		kind := KindButton
		if a.Toggle {
			kind = KindToggle
		}
		p := NewPort(kind, a.Name)
		p.AddCallback(actionCallback(f.ActionTag(a.Name), n, a.Fn))
		if err := n.AddPort(p); err != nil {
			return err
		}
	}
	n.nArgs, n.nReturns, n.nActions = len(f.args), len(f.returns), len(f.actions)
	_ = n.evaluate()
	return nil
}

// port picks the port kind for a slot: bounded int, bounded float, choice,
// scalar, table, then generic.
func (prm Param) port(opts ...PortOption) *Port {
	k := prm.Type.Kind()
	kind := KindGeneric
	switch {
	case prm.Range != nil && isIntKind(k):
		kind = KindInt
		opts = append(opts, WithRange(*prm.Range))
	case prm.Range != nil && isFloatKind(k):
		kind = KindFloat
		opts = append(opts, WithRange(*prm.Range))
	case prm.Choice != nil:
		kind = KindCombo
		opts = append(opts, WithChoice(*prm.Choice))
	case isIntKind(k):
		kind = KindInt
	case isFloatKind(k):
		kind = KindFloat
	case k == reflect.String:
		kind = KindStr
	case k == reflect.Bool:
		kind = KindBool
	case prm.Type == tableType || prm.Type == tablePtrType:
		kind = KindPlot
	}
	return NewPort(kind, prm.Name, opts...)
}

func actionCallback(tag TypeTag, self *Node, fn ActionFunc) *Callback {
	return &Callback{
		Tag:  tag,
		Self: self,
		Fn: func(_ *Port, prev any) (any, error) {
			return fn(self, prev)
		},
	}
}

// Evaluate runs the bound function now. It returns the node's own failure,
// if any, or errors raised further downstream.
func (n *Node) Evaluate() error {
	if n.fn == nil {
		return nil
	}
	if err := n.evaluate(); err != nil {
		return err
	}
	return n.err
}

// evaluate calls the function with the current argument values and pushes
// the results into the return ports. The node's own failure is recorded in
// its status and never returned; the returned error only carries failures
// of subscribers downstream of the return ports.
func (n *Node) evaluate() error {
	f := n.fn
	if f == nil {
		return nil
	}
	if len(n.ports) < n.nArgs+n.nReturns || n.nArgs != len(f.args) || n.nReturns != len(f.returns) {
		n.fail(fmt.Errorf("%w: %d ports for %d arguments and %d returns", ErrContractViolation, len(n.ports), len(f.args), len(f.returns)))
		return nil
	}

	values := make([]any, n.nArgs)
	for i, p := range n.ports[:n.nArgs] {
		values[i] = p.value
	}
	out, err := f.call(values)
	if errors.Is(err, ErrNoOutput) {
		n.succeed()
		return nil
	}
	if err != nil {
		n.fail(err)
		return nil
	}
	results, err := f.spread(out)
	if err != nil {
		n.fail(err)
		return nil
	}

	returns := n.ports[n.nArgs : n.nArgs+n.nReturns]
	coerced := make([]any, len(returns))
	for i, p := range returns {
		if coerced[i], err = p.coerce(results[i]); err != nil {
			n.fail(err)
			return nil
		}
	}
	n.succeed()

	var result *multierror.Error
	for i, p := range returns {
		if err := p.SetValue(coerced[i]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (n *Node) succeed() {
	n.status, n.err = StatusOK, nil
	n.observer().Evaluated(n, nil)
}

func (n *Node) fail(err error) {
	n.status = StatusErrored
	n.err = &EvaluationError{Node: n.name, Err: err}
	n.logger().Warn("evaluation failed", "node", n.name, "error", err)
	n.observer().Evaluated(n, n.err)
}

// Rebuild discards every port and synthesizes them again from the bound
// function. Edges into or out of the old ports are lost.
func (n *Node) Rebuild() error {
	if n.fn == nil {
		return fmt.Errorf("%w: %q has no function to rebuild from", ErrContractViolation, n.name)
	}
	n.RemoveAllPorts()
	n.nArgs, n.nReturns, n.nActions = 0, 0, 0
	n.status, n.err = StatusIdle, nil
	return n.synthesize()
}
