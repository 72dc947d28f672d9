// Package graph provides node definitions
package graph

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// NodeID is the stable handle of a node within a graph.
type NodeID string

// NewNodeID returns a fresh random handle.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// Status is the evaluation state of a function node.
type Status int

const (
	// StatusIdle means the node has not been evaluated yet
	StatusIdle Status = iota
	// StatusOK means the last evaluation succeeded
	StatusOK
	// StatusErrored means the last evaluation failed; see Node.Err
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErrored:
		return "errored"
	default:
		return "idle"
	}
}

// Node owns an ordered list of ports. A function node additionally binds a
// Function; its ports are laid out as [args..., returns..., actions...].
// PRINCIPLES:
// - SRP: owns ports, knows nothing about edges beyond its own ports
// - ports never outlive their node
type Node struct {
	id    NodeID
	tag   TypeTag
	name  string
	ports []*Port

	fn       *Function
	nArgs    int
	nReturns int
	nActions int
	status   Status
	err      error

	graph *Graph
	extra map[string]json.RawMessage
}

// NewNode creates a plain node holding ports.
func NewNode(name string, ports ...*Port) (*Node, error) {
	n := newNode(NodeTag, name)
	for _, p := range ports {
		if err := n.AddPort(p); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func newNode(tag TypeTag, name string) *Node {
	return &Node{id: NewNodeID(), tag: tag, name: name}
}

// ID returns the node handle.
func (n *Node) ID() NodeID { return n.id }

// Tag returns the node's persisted type tag.
func (n *Node) Tag() TypeTag { return n.tag }

// Name returns the display name.
func (n *Node) Name() string { return n.name }

// SetName updates the display name.
func (n *Node) SetName(name string) { n.name = name }

// Graph returns the graph that owns the node, or nil.
func (n *Node) Graph() *Graph { return n.graph }

// Ports returns the node's ports in order.
func (n *Node) Ports() []*Port { return slices.Clone(n.ports) }

// Port returns the i-th port.
func (n *Node) Port(i int) (*Port, error) {
	if i < 0 || i >= len(n.ports) {
		return nil, fmt.Errorf("%w: port %d of node %q with %d ports", ErrCoordinate, i, n.name, len(n.ports))
	}
	return n.ports[i], nil
}

// PortByName returns the first port called name.
func (n *Node) PortByName(name string) (*Port, bool) {
	for _, p := range n.ports {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// IndexOf returns the position of p among the node's ports, or -1.
func (n *Node) IndexOf(p *Port) int {
	return slices.Index(n.ports, p)
}

// Inputs lists the ports whose input socket is enabled.
func (n *Node) Inputs() []*Port {
	var out []*Port
	for _, p := range n.ports {
		if p.input {
			out = append(out, p)
		}
	}
	return out
}

// Outputs lists the ports whose output socket is enabled.
func (n *Node) Outputs() []*Port {
	var out []*Port
	for _, p := range n.ports {
		if p.output {
			out = append(out, p)
		}
	}
	return out
}

// AddPort appends p to the node.
func (n *Node) AddPort(p *Port) error {
	if p == nil {
		return ErrNilPort
	}
	if p.node != nil {
		return ErrPortOwned
	}
	p.node = n
	n.ports = append(n.ports, p)
	return nil
}

// RemovePort detaches p from every edge and drops it. Ports that belong to
// a function's signature cannot be removed individually.
func (n *Node) RemovePort(p *Port) error {
	i := n.IndexOf(p)
	if i < 0 {
		return ErrPortNotFound
	}
	if n.fn != nil && i < n.nArgs+n.nReturns+n.nActions {
		return fmt.Errorf("%w: port %q is part of %s's signature", ErrContractViolation, p.name, n.fn.Name)
	}
	detachPort(p)
	n.ports = slices.Delete(n.ports, i, i+1)
	return nil
}

// RemoveAllPorts detaches and drops every port.
func (n *Node) RemoveAllPorts() {
	for _, p := range n.ports {
		detachPort(p)
	}
	n.ports = nil
}

func detachPort(p *Port) {
	p.UnsetSource()
	p.RemoveAllCallbacks()
	p.node = nil
}

// Function returns the bound function, or nil for a plain node.
func (n *Node) Function() *Function { return n.fn }

// Counts returns n_args, n_returns and n_actions.
func (n *Node) Counts() (args, returns, actions int) {
	return n.nArgs, n.nReturns, n.nActions
}

// Args returns the argument ports of a function node.
func (n *Node) Args() []*Port { return n.section(0, n.nArgs) }

// Returns returns the return ports of a function node.
func (n *Node) Returns() []*Port { return n.section(n.nArgs, n.nReturns) }

// Actions returns the trigger ports of a function node.
func (n *Node) Actions() []*Port { return n.section(n.nArgs+n.nReturns, n.nActions) }

func (n *Node) section(from, count int) []*Port {
	if from+count > len(n.ports) {
		return nil
	}
	return slices.Clone(n.ports[from : from+count])
}

func (n *Node) isArg(p *Port) bool {
	if n.fn == nil {
		return false
	}
	i := n.IndexOf(p)
	return i >= 0 && i < n.nArgs
}

// Status returns the evaluation status.
func (n *Node) Status() Status { return n.status }

// Err returns the error behind StatusErrored.
func (n *Node) Err() error { return n.err }

func (n *Node) observer() Observer {
	if n.graph != nil && n.graph.observer != nil {
		return n.graph.observer
	}
	return nopObserver{}
}

func (n *Node) logger() hclog.Logger {
	if n.graph != nil {
		return n.graph.logger
	}
	return hclog.NewNullLogger()
}
