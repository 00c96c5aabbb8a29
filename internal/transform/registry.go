package transform

import (
	"fmt"
	"sort"
	"sync"
)

// Func converts one raw CSV cell into a typed value.
//
// A Func must be total over ordinary input: bad content resolves to a
// sentinel (nil, "unknown") or to one of the Malformed* errors, never a panic.
type Func func(raw string) (any, error)

var (
	registry   = make(map[string]Func)
	registryMu sync.RWMutex
)

// Register adds a named transform to the registry.
// Panics if a transform with the same name is already registered.
func Register(name string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("transform already registered: %s", name))
	}
	registry[name] = fn
}

// Get returns a transform by name.
// Returns false if not found.
func Get(name string) (Func, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	fn, ok := registry[name]
	return fn, ok
}

// Has reports whether name is a registered transform.
func Has(name string) bool {
	_, ok := Get(name)
	return ok
}

// Names returns all registered transform names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the named transform over raw.
//
// An unregistered name returns raw unchanged with a nil error. Integration
// configuration relies on this: a mapping that names a transform this build
// does not know keeps the source value instead of failing the file.
func Apply(raw, name string) (any, error) {
	fn, ok := Get(name)
	if !ok {
		return raw, nil
	}
	return fn(raw)
}
