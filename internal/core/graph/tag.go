package graph

// TypeTag is the fully-qualified discriminant every persisted entity starts
// with. It is embedded in state structs so the two keys flatten into them.
type TypeTag struct {
	Module   string `json:"__module__" validate:"omitempty,dotted"`
	Qualname string `json:"__qualname__" validate:"omitempty,dotted"`
}

// String joins the module and the qualified name with a dot.
func (t TypeTag) String() string {
	if t.Module == "" {
		return t.Qualname
	}
	return t.Module + "." + t.Qualname
}

// IsZero reports whether the tag is unset.
func (t TypeTag) IsZero() bool {
	return t.Module == "" && t.Qualname == ""
}

// Built-in tags.
var (
	GraphTag        = TypeTag{Module: "flowgraph.window", Qualname: "Window"}
	NodeTag         = TypeTag{Module: "flowgraph.node", Qualname: "Node"}
	FunctionNodeTag = TypeTag{Module: "flowgraph.function", Qualname: "Node"}
	EdgeTag         = TypeTag{Module: "flowgraph.edge", Qualname: "Edge"}
)
