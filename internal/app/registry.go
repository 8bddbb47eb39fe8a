package app

import "sync"

// Registry tracks the live host controllers this process is running, keyed
// by session PIN.
type Registry struct {
	mu    sync.RWMutex
	hosts map[string]*HostController
}

func NewRegistry() *Registry {
	return &Registry{hosts: make(map[string]*HostController)}
}

func (r *Registry) Put(pin string, h *HostController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[pin] = h
}

func (r *Registry) Get(pin string) (*HostController, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[pin]
	return h, ok
}

// Remove stops the controller and drops it from the registry.
func (r *Registry) Remove(pin string) {
	r.mu.Lock()
	h, ok := r.hosts[pin]
	delete(r.hosts, pin)
	r.mu.Unlock()
	if ok {
		h.Stop()
	}
}
