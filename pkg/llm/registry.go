package llm

import (
	"fmt"
	"strings"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	providers map[string]StreamProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]StreamProvider)}
}

func (r *Registry) Register(name string, p StreamProvider) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *Registry) Get(name string) (StreamProvider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", name)
	}
	return p, nil
}
