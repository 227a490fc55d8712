package sandbox

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a sandbox for one application. The name and args come
// from the application manifest.
type Factory func(name string, args map[string]interface{}) (Sandbox, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a sandbox type available to manifests. It is expected to be
// called from package init functions; registering the same type twice panics.
func Register(kind string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if factory == nil {
		panic("sandbox: Register factory is nil")
	}
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("sandbox: Register called twice for type %q", kind))
	}
	factories[kind] = factory
}

// New constructs a sandbox of the given manifest type.
func New(kind, name string, args map[string]interface{}) (Sandbox, error) {
	factoriesMu.RLock()
	factory, ok := factories[kind]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown sandbox type %q (registered: %v)", kind, Types())
	}
	return factory(name, args)
}

// Types lists the registered sandbox types in sorted order.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
