package gallery

import (
	"fmt"
	"sync"
)

// Registry maps example slugs to runnable implementations. Examples without a
// registered runner still render prose and code, just without captured output.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register binds a runner to a slug. Rebinding a slug is an error; runners
// are wired once at startup.
func (r *Registry) Register(slug string, runner Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[slug]; exists {
		return fmt.Errorf("runner already registered for slug %q", slug)
	}
	r.runners[slug] = runner
	return nil
}

// Lookup returns the runner for a slug, if any.
func (r *Registry) Lookup(slug string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[slug]
	return runner, ok
}
