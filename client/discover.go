package client

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	"supctl/loadbalance"
	"supctl/registry"
)

// ConnectService looks up the gateways registered under name, lets bal pick
// one for routingKey and connects to it.
func ConnectService(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, name, routingKey, authKey string, opts ...Option) (*Client, error) {
	instances, err := reg.Discover(ctx, name)
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}
	if len(instances) == 0 {
		return nil, &Error{Kind: KindIO, Err: pkgerrors.Wrap(registry.ErrNotFound, name)}
	}
	inst, err := bal.Pick(routingKey, instances)
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}
	return Connect(ctx, inst.Addr, authKey, opts...)
}
