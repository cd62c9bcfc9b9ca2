// Package core holds the registry of HTTP service modules mounted by the edge router.
package core

import (
	"fmt"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Service is a module mounted under "/<Name()>" by the edge router.
type Service interface {
	// Name is the path prefix the service is mounted at, e.g. "archive".
	Name() string

	// RegisterRoutes adds the service's handlers to a router already scoped to its prefix.
	RegisterRoutes(router chi.Router)
}

type serviceRegistry struct {
	mu       sync.Mutex
	services []Service
}

var registry = &serviceRegistry{}

// RegisterService adds s to the global registry. Names must be unique.
func RegisterService(s Service) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for _, existing := range registry.services {
		if existing.Name() == s.Name() {
			return fmt.Errorf("service %q already registered", s.Name())
		}
	}
	registry.services = append(registry.services, s)
	return nil
}

// GetRegisteredServices returns the registered services in registration order.
func GetRegisteredServices() []Service {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return append([]Service(nil), registry.services...)
}

// ResetServices empties the registry.
func ResetServices() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.services = nil
}
