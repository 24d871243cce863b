package delivery

import (
	"fmt"
)

// EventClass is the logical destination class of a derived event.
type EventClass string

// Event classes routed by the pipeline.
const (
	ClassPrimary  EventClass = "primary"
	ClassIdentify EventClass = "identify"
)

// Router maps logical event classes onto physical endpoints. The mapping is
// configuration-driven so deployments can run either the combined batch
// endpoint or the split httpapi/identify pair without code changes.
type Router struct {
	routes map[EventClass]Endpoint
}

// NewRouter creates a Router from an explicit class-to-endpoint mapping.
// Both classes must be routable.
func NewRouter(routes map[EventClass]Endpoint) (*Router, error) {
	for _, class := range []EventClass{ClassPrimary, ClassIdentify} {
		ep, ok := routes[class]
		if !ok || ep.URL == "" {
			return nil, fmt.Errorf("%w: class %s", ErrUnroutableClass, class)
		}
	}

	copied := make(map[EventClass]Endpoint, len(routes))
	for class, ep := range routes {
		copied[class] = ep
	}
	return &Router{routes: copied}, nil
}

// Route returns the endpoint for a logical event class.
func (r *Router) Route(class EventClass) Endpoint {
	return r.routes[class]
}

// Endpoints returns the distinct physical endpoints in the mapping; one
// batch queue is run per returned endpoint.
func (r *Router) Endpoints() []Endpoint {
	seen := make(map[string]bool, len(r.routes))
	endpoints := make([]Endpoint, 0, len(r.routes))
	for _, class := range []EventClass{ClassIdentify, ClassPrimary} {
		ep := r.routes[class]
		if seen[ep.Name] {
			continue
		}
		seen[ep.Name] = true
		endpoints = append(endpoints, ep)
	}
	return endpoints
}
