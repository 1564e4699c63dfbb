package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/schema"
)

// Registry holds the tools available to a loop. Argument schemas are
// compiled at registration so invalid tool definitions surface early.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("register tool: missing name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %s", schema.ErrDuplicateTool, t.Name())
	}

	compiled, err := compileParameters(t)
	if err != nil {
		return fmt.Errorf("register tool %s: %w", t.Name(), err)
	}

	r.tools[t.Name()] = t
	r.compiled[t.Name()] = compiled
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownTool, name)
	}
	return t, nil
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs produces the tool specs sent to the model, in sorted name order.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

// ValidateArgs checks raw call arguments against the tool's compiled
// schema. A tool without parameters accepts anything.
func (r *Registry) ValidateArgs(name string, args json.RawMessage) error {
	r.mu.RLock()
	compiled := r.compiled[name]
	r.mu.RUnlock()
	if compiled == nil {
		return nil
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var value any
	if err := json.Unmarshal(args, &value); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidArguments, err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidArguments, err)
	}
	return nil
}

func compileParameters(t Tool) (*jsonschema.Schema, error) {
	params := t.Parameters()
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters schema: %w", err)
	}
	compiled, err := jsonschema.CompileString(t.Name()+".json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile parameters schema: %w", err)
	}
	return compiled, nil
}
