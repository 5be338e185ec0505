// Package registry announces ctl gateways and lets clients find them.
//
//	Key:   /supctl/gateways/{name}/{addr}
//	Value: JSON-encoded Instance
package registry

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("registry: no gateway registered under that name")

// Instance is one reachable gateway.
type Instance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // relative share for weighted balancing
	Version string `json:"version"`
}

type Registry interface {
	// Register keeps instance announced until Deregister or until the
	// process dies and ttl seconds pass.
	Register(ctx context.Context, name string, instance Instance, ttl int64) error
	Deregister(ctx context.Context, name string, addr string) error
	Discover(ctx context.Context, name string) ([]Instance, error)
	// Watch emits the full instance list on every change until ctx is done.
	Watch(ctx context.Context, name string) <-chan []Instance
}

const keyPrefix = "/supctl/gateways/"

func namePrefix(name string) string {
	return keyPrefix + name + "/"
}

func instanceKey(name, addr string) string {
	return namePrefix(name) + addr
}
