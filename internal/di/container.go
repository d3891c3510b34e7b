// Package di provides a minimal service registry used to wire bounded contexts.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns the service registered under token, or nil.
	Get(token string) any
}

// Container registers and resolves services by string token.
type Container interface {
	ServiceRegistry

	// Register stores a service under token, replacing any previous entry.
	Register(token string, service any)
}

type container struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewContainer creates an empty Container.
func NewContainer() Container {
	return &container{services: make(map[string]any)}
}

func (c *container) Register(token string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[token] = service
}

func (c *container) Get(token string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services[token]
}

// MustGet resolves a service and asserts it to T, panicking with a descriptive
// message on missing registrations or type mismatches. Wiring bugs surface at
// startup rather than as nil dereferences mid-pipeline.
func MustGet[T any](r ServiceRegistry, token string) T {
	svc := r.Get(token)
	if svc == nil {
		panic(fmt.Sprintf("di: service %q not registered", token))
	}
	typed, ok := svc.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has type %T, not the requested type", token, svc))
	}
	return typed
}
