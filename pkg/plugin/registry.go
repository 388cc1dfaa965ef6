package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/shopagent/pkg/tools"
)

var (
	// ErrNameCollision is returned when two tools share a name
	ErrNameCollision = errors.New("plugin: tool name already registered")

	// ErrInvalidPlugin is returned for plugins missing a name or handler, or with a bad schema
	ErrInvalidPlugin = errors.New("plugin: invalid plugin")
)

// Handler runs a plugin tool. Handlers that do asynchronous work block until it
// completes or ctx is done.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Plugin is a caller-supplied tool
type Plugin struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object; nil accepts any object.
	Parameters map[string]any
	Handler    Handler
}

// Definition returns the catalog entry for p
func (p Plugin) Definition() tools.Definition {
	params := p.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return tools.Definition{Name: p.Name, Description: p.Description, Parameters: params}
}

// Registry is the merged, immutable tool catalog
type Registry struct {
	catalog []tools.Definition
	plugins map[string]Plugin
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry merges plugins after builtins. It fails on an empty name, a nil
// handler, a schema that does not compile, or any duplicate name.
func NewRegistry(builtins []tools.Definition, plugins ...Plugin) (*Registry, error) {
	r := &Registry{
		catalog: make([]tools.Definition, 0, len(builtins)+len(plugins)),
		plugins: make(map[string]Plugin, len(plugins)),
		schemas: make(map[string]*gojsonschema.Schema, len(builtins)+len(plugins)),
	}

	for _, def := range builtins {
		if err := r.add(def); err != nil {
			return nil, err
		}
	}

	for i, p := range plugins {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: plugin %d has no name", ErrInvalidPlugin, i)
		}
		if p.Handler == nil {
			return nil, fmt.Errorf("%w: plugin %q has no handler", ErrInvalidPlugin, p.Name)
		}
		if err := r.add(p.Definition()); err != nil {
			return nil, err
		}
		r.plugins[p.Name] = p
	}

	return r, nil
}

func (r *Registry) add(def tools.Definition) error {
	if _, exists := r.schemas[def.Name]; exists {
		kind := "plugin"
		if tools.IsBuiltin(def.Name) {
			kind = "built-in tool"
		}
		return fmt.Errorf("%w: %q is already a %s", ErrNameCollision, def.Name, kind)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Parameters))
	if err != nil {
		return fmt.Errorf("%w: %q parameters: %v", ErrInvalidPlugin, def.Name, err)
	}

	r.schemas[def.Name] = schema
	r.catalog = append(r.catalog, def)
	return nil
}

// Catalog returns the merged definitions, built-ins first
func (r *Registry) Catalog() []tools.Definition {
	return append([]tools.Definition(nil), r.catalog...)
}

// Names returns the tool names in catalog order
func (r *Registry) Names() []string {
	return tools.Names(r.catalog)
}

// Has reports whether name is in the catalog
func (r *Registry) Has(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// Lookup returns the plugin registered as name
func (r *Registry) Lookup(name string) (Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// Validate checks args against the parameter schema of name
func (r *Registry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("plugin: unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}
