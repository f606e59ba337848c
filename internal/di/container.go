// Package di is a small service container used to wire modules together
// at startup. Services are registered by name, either as eager values or
// as lazy singleton factories resolved on first Get.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container, handed to factories
// and module startup hooks.
type ServiceRegistry interface {
	// Get resolves a service by name, running its factory if it has not
	// been built yet. Panics on unknown names: a missing registration is
	// a wiring bug, not a runtime condition.
	Get(name string) any
}

// Container is the write side used during module registration.
type Container interface {
	ServiceRegistry
	// Register stores an already-built value.
	Register(name string, value any)
	// RegisterLazy stores a factory invoked at most once, on first Get.
	RegisterLazy(name string, fn func(ServiceRegistry) any)
}

type entry struct {
	value   any
	factory func(ServiceRegistry) any
	built   bool
}

type container struct {
	mu       sync.Mutex
	services map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{services: make(map[string]*entry)}
}

func (c *container) Register(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = &entry{value: value, built: true}
}

func (c *container) RegisterLazy(name string, fn func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = &entry{factory: fn}
}

func (c *container) Get(name string) any {
	c.mu.Lock()
	e, ok := c.services[name]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Sprintf("di: service %q not registered", name))
	}
	if e.built {
		c.mu.Unlock()
		return e.value
	}
	// Release the lock while the factory runs so factories can resolve
	// their own dependencies through Get.
	c.mu.Unlock()
	value := e.factory(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !e.built {
		e.value = value
		e.built = true
	}
	return e.value
}
