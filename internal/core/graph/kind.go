package graph

// Kind selects how a port coerces and persists its value.
type Kind int

const (
	// KindGeneric holds any value and round-trips it opaquely
	KindGeneric Kind = iota
	// KindInt holds an int, optionally bounded by a Range
	KindInt
	// KindFloat holds a float64, optionally bounded by a Range
	KindFloat
	// KindStr holds a string
	KindStr
	// KindBool holds a bool
	KindBool
	// KindCombo holds one option of a Choice
	KindCombo
	// KindPlot holds a Table
	KindPlot
	// KindButton fires its callbacks when triggered
	KindButton
	// KindToggle flips a checked flag, then fires its callbacks
	KindToggle
)

const entryModule = "flowgraph.entry"

var kindNames = [...]string{
	KindGeneric: "Generic",
	KindInt:     "Int",
	KindFloat:   "Float",
	KindStr:     "Str",
	KindBool:    "Bool",
	KindCombo:   "Combo",
	KindPlot:    "Plot",
	KindButton:  "Button",
	KindToggle:  "ToggleButton",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// Tag is the type tag persisted for ports of this kind.
func (k Kind) Tag() TypeTag {
	return TypeTag{Module: entryModule, Qualname: k.String()}
}

// IsTrigger reports whether the kind is a button.
func (k Kind) IsTrigger() bool {
	return k == KindButton || k == KindToggle
}

// IsNumeric reports whether the kind accepts a Range.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// KindOf maps a persisted tag back to a kind.
func KindOf(tag TypeTag) (Kind, bool) {
	if tag.Module != entryModule {
		return 0, false
	}
	for k, name := range kindNames {
		if name == tag.Qualname {
			return Kind(k), true
		}
	}
	return 0, false
}
