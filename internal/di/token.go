package di

import (
	"fmt"
	"sync"
)

// Token is a typed service identifier. The type parameter pins the service
// type at the registration and resolution sites.
type Token[T any] struct {
	name string
}

// NewToken creates a typed token. name must be unique across the application.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the token's registry key.
func (t Token[T]) Name() string {
	return t.name
}

// lazy memoizes a factory so each service is constructed exactly once, on
// first resolution.
type lazy[T any] struct {
	once    sync.Once
	factory func(ServiceRegistry) T
	value   T
}

func (l *lazy[T]) get(sr ServiceRegistry) T {
	l.once.Do(func() {
		l.value = l.factory(sr)
		l.factory = nil
	})
	return l.value
}

// RegisterToken registers a lazily-constructed service under token. The
// factory runs on first GetToken and may resolve other services from the
// registry.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.Register(token.name, &lazy[T]{factory: factory})
}

// GetToken resolves the service registered under token, constructing it on
// first use. Panics on missing registrations; wiring bugs surface at startup.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	svc := sr.Get(token.name)
	if svc == nil {
		panic(fmt.Sprintf("di: service %q not registered", token.name))
	}
	l, ok := svc.(*lazy[T])
	if !ok {
		panic(fmt.Sprintf("di: service %q has type %T, not the requested type", token.name, svc))
	}
	return l.get(sr)
}
