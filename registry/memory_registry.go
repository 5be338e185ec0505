package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process Registry for single-host setups and
// tests. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	entries  map[string]map[string]Instance // name → addr → instance
	watchers map[string][]chan []Instance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries:  make(map[string]map[string]Instance),
		watchers: make(map[string][]chan []Instance),
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, name string, instance Instance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[name] == nil {
		r.entries[name] = make(map[string]Instance)
	}
	r.entries[name][instance.Addr] = instance
	r.notifyLocked(name)
	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, name string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries[name], addr)
	r.notifyLocked(name)
	return nil
}

func (r *MemoryRegistry) Discover(ctx context.Context, name string) ([]Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(name), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, name string) <-chan []Instance {
	ch := make(chan []Instance, 1)
	r.mu.Lock()
	r.watchers[name] = append(r.watchers[name], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		watchers := r.watchers[name]
		for i, w := range watchers {
			if w == ch {
				r.watchers[name] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *MemoryRegistry) listLocked(name string) []Instance {
	instances := make([]Instance, 0, len(r.entries[name]))
	for _, inst := range r.entries[name] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Addr < instances[j].Addr
	})
	return instances
}

// notifyLocked replaces any unread update with the latest list.
func (r *MemoryRegistry) notifyLocked(name string) {
	list := r.listLocked(name)
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
