// Package strategies ships ready-made strategy graphs. Each template expands a flat set of
// numeric parameters into a block graph the interpreter can run.
package strategies

import (
	"errors"
	"fmt"
	"sort"

	"strategylab/services/strategy"
)

var ErrUnknownTemplate = errors.New("unknown strategy template")

// Template is a named graph generator with default parameters.
type Template struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Defaults    strategy.Params `json:"defaults"`
	build       func(p strategy.Params) strategy.Definition
}

var registry = map[string]Template{}

func register(t Template) {
	if _, dup := registry[t.Name]; dup {
		panic("strategies: duplicate template " + t.Name)
	}
	registry[t.Name] = t
}

// Names lists the registered templates in alphabetical order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func Lookup(name string) (Template, bool) {
	t, ok := registry[name]
	return t, ok
}

// Build expands the named template. Overrides replace defaults key by key; keys the
// template does not know are rejected.
func Build(name string, overrides map[string]any) (strategy.Definition, error) {
	t, ok := registry[name]
	if !ok {
		return strategy.Definition{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	p := make(strategy.Params, len(t.Defaults))
	for k, v := range t.Defaults {
		p[k] = v
	}
	for k, v := range overrides {
		if _, known := t.Defaults[k]; !known {
			return strategy.Definition{}, fmt.Errorf("template %s: unknown parameter %q", name, k)
		}
		p[k] = v
	}
	def := t.build(p)
	if err := strategy.Validate(def); err != nil {
		return strategy.Definition{}, fmt.Errorf("template %s: %w", name, err)
	}
	return def, nil
}
