package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	raw := os.Getenv("SUPCTL_ETCD_ENDPOINTS")
	if raw == "" {
		t.Skip("SUPCTL_ETCD_ENDPOINTS not set")
	}
	return strings.Split(raw, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t))
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inst1 := Instance{Addr: "127.0.0.1:9632", Weight: 10, Version: "1.0"}
	inst2 := Instance{Addr: "127.0.0.1:9633", Weight: 5, Version: "1.0"}
	if err := reg.Register(ctx, "test-gw", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "test-gw", inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(ctx, "test-gw")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(ctx, "test-gw", inst1.Addr); err != nil {
		t.Fatal(err)
	}
	instances, err = reg.Discover(ctx, "test-gw")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0].Addr != inst2.Addr {
		t.Fatalf("expect only %s after deregister, got %+v", inst2.Addr, instances)
	}

	reg.Deregister(ctx, "test-gw", inst2.Addr)
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t))
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := reg.Watch(ctx, "watch-gw")
	time.Sleep(100 * time.Millisecond)
	inst := Instance{Addr: "127.0.0.1:9700", Weight: 1}
	if err := reg.Register(ctx, "watch-gw", inst, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(context.Background(), "watch-gw", inst.Addr)

	select {
	case list := <-updates:
		if len(list) != 1 || list[0].Addr != inst.Addr {
			t.Fatalf("unexpected watch update %+v", list)
		}
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}
