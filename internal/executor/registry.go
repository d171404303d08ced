package executor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sakif/codeexec/internal/apperror"
)

// Registry holds the named executors a process was configured with.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds exec under name. Names are unique.
func (r *Registry) Register(name string, exec Executor) error {
	if name == "" {
		return apperror.ValidationFailed("name", "executor name is required")
	}
	if exec == nil {
		return fmt.Errorf("executor %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[name]; ok {
		return fmt.Errorf("executor %q already registered", name)
	}
	r.executors[name] = exec
	return nil
}

// Get returns the executor registered under name.
func (r *Registry) Get(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[name]
	if !ok {
		return nil, apperror.NotFound("executor", name)
	}
	return exec, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
