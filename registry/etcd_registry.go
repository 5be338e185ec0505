package registry

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"

	"supctl/codec"
)

// EtcdRegistry stores instances under TTL leases, so a gateway that dies
// without deregistering disappears once its lease expires.
type EtcdRegistry struct {
	client *clientv3.Client
	codec  codec.Codec

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // instance key → lease
}

func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, errors.Wrap(err, "registry: connect etcd")
	}
	return &EtcdRegistry{
		client: c,
		codec:  codec.GetCodec(codec.CodecTypeJSON),
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

// Register grants a lease of ttl seconds, writes the instance under it and
// keeps the lease alive in the background.
func (r *EtcdRegistry) Register(ctx context.Context, name string, instance Instance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Wrap(err, "registry: grant lease")
	}

	val, err := r.codec.Encode(&instance)
	if err != nil {
		return err
	}
	key := instanceKey(name, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Wrapf(err, "registry: put %s", key)
	}

	// the keepalive outlives the caller's ctx; Deregister revokes the lease
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return errors.Wrap(err, "registry: keep lease alive")
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, name string, addr string) error {
	key := instanceKey(name, addr)
	r.mu.Lock()
	lease, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "registry: delete %s", key)
	}
	if ok {
		if _, err := r.client.Revoke(ctx, lease); err != nil {
			return errors.Wrap(err, "registry: revoke lease")
		}
	}
	return nil
}

func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, namePrefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "registry: discover %s", name)
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := r.codec.Decode(kv.Value, &instance); err != nil {
			log.Warn().Err(err).Str("key", string(kv.Key)).Msg("skipping malformed registry entry")
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the whole list on every change under the name prefix.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []Instance {
	ch := make(chan []Instance, 1)
	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, namePrefix(name), clientv3.WithPrefix()) {
			instances, err := r.Discover(ctx, name)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
