package tools

import (
	"context"
	"fmt"
	"sort"
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Names lists registered tools in name order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call executes the named tool with JSON arguments.
func (r *Registry) Call(ctx context.Context, name, input string) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", fmt.Errorf("tool %s not found", name)
	}
	return t.Execute(ctx, input)
}
