package prebuilt

import (
	"context"
	"fmt"
	"slices"

	"github.com/flowgraph/dataflow/internal/core/graph"
)

// Builder lays out a graph from a typed configuration.
// Implementations should be pure (no side effects) and return a graph whose
// function nodes all resolve through cfg.Registry.
type Builder interface {
	Name() string
	Build(ctx context.Context, cfg Config) (*graph.Graph, error)
}

// Config is passed to every Builder.
type Config struct {
	// Registry resolves catalogue functions; it must hold the catalogue.
	Registry *graph.Registry
	// Options are applied to the new graph after the registry.
	Options []graph.Option
}

// BuildFunc is a convenience adapter to implement Builder via functions.
type BuildFunc struct {
	NameStr string
	Fn      func(ctx context.Context, cfg Config) (*graph.Graph, error)
}

func (b BuildFunc) Name() string { return b.NameStr }
func (b BuildFunc) Build(ctx context.Context, cfg Config) (*graph.Graph, error) {
	return b.Fn(ctx, cfg)
}

// NewBuildFunc creates a Builder from a function.
func NewBuildFunc(name string, fn func(ctx context.Context, cfg Config) (*graph.Graph, error)) BuildFunc {
	return BuildFunc{NameStr: name, Fn: fn}
}

// Registry holds named templates.
type Registry struct {
	builders map[string]Builder
}

// NewTemplates creates an empty template registry.
func NewTemplates() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds or replaces a template.
func (r *Registry) Register(b Builder) {
	r.builders[b.Name()] = b
}

// MustRegister panics on duplicate names; useful during init() setup.
func (r *Registry) MustRegister(b Builder) {
	if _, exists := r.builders[b.Name()]; exists {
		panic(fmt.Sprintf("template already registered: %s", b.Name()))
	}
	r.builders[b.Name()] = b
}

// Get retrieves a named template.
func (r *Registry) Get(name string) (Builder, bool) {
	b, ok := r.builders[name]
	return b, ok
}

// Names lists the registered templates in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultTemplates holds the built-in templates.
var DefaultTemplates = NewTemplates()
