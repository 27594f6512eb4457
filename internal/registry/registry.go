// ABOUTME: Thread-safe catalog mapping tool names to definitions and handlers.
// ABOUTME: Registration is startup-only; invocation and listing are concurrent reads.

package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/calder-labs/opsgate/internal/tool"
)

// entry pairs a tool definition with its handler.
type entry struct {
	def     tool.Definition
	handler tool.Handler
}

// Registry is the single source of truth for invocable tools. Writes happen
// only during startup registration; after that the map sees concurrent
// readers from invocation and listing, which share an uncontended RLock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register stores a tool under its definition name. Registering a name that
// already exists replaces the previous handler (last write wins) and logs a
// warning; only the most recent registration is reachable afterwards.
func (r *Registry) Register(def tool.Definition, handler tool.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		r.logger.Warn("tool re-registered, previous handler replaced", "tool_name", def.Name)
	}
	r.entries[def.Name] = &entry{def: def, handler: handler}
}

// Invoke looks up a tool by name and runs its handler. An unknown name
// returns an error result without invoking anything. A handler panic is
// recovered into an error result carrying the panic message; the registry
// itself never panics or returns a raised error.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (res *tool.Result) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return tool.Errorf("Tool not found: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool_name", name, "panic", rec)
			res = tool.Errorf("tool %s failed: %v", name, rec)
		}
	}()

	res = e.handler(ctx, args)
	if res == nil {
		res = tool.Errorf("tool %s returned no result", name)
	}
	return res
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// List returns a snapshot of all tool definitions, sorted by name for
// stable discovery output.
func (r *Registry) List() []tool.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]tool.Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
