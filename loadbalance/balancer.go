// Package loadbalance picks which gateway a client dials when several
// supervisors register under the same name.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity supervisors
//   - WeightedRandom:  supervisors with different Instance.Weight
//   - ConsistentHash:  the same service ident always lands on the same supervisor
package loadbalance

import (
	"errors"
	"fmt"

	"supctl/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance for a request. key is the routing key
// (normally the service ident); strategies that do not route by key ignore it.
// Implementations must be goroutine-safe.
type Balancer interface {
	Pick(key string, instances []registry.Instance) (*registry.Instance, error)
	Name() string
}

// New returns the strategy named by name, as accepted by the --balancer flag.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round-robin":
		return &RoundRobinBalancer{}, nil
	case "weighted-random":
		return &WeightedRandomBalancer{}, nil
	case "consistent-hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
