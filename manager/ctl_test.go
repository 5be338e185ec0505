package manager

import (
	"os"
	"path/filepath"
	"testing"

	"supctl/config"
	"supctl/ctl"
	"supctl/message"
	"supctl/protocol"
)

func runOp(t *testing.T, op ctl.Operation, cfg *config.Manager) ([]*protocol.WireMessage, error) {
	t.Helper()
	q := ctl.NewReplyQueue()
	txn := protocol.NewTxn(3)
	req := ctl.NewRequest(q, &txn)
	err := op(cfg, req)
	req.Close()
	return collect(t, q), err
}

func loadOp(opts SvcLoadOpts) ctl.Operation {
	return func(cfg *config.Manager, req *ctl.Request) error {
		return ServiceLoad(cfg, req, opts)
	}
}

func startOp(opts SvcStartOpts) ctl.Operation {
	return func(cfg *config.Manager, req *ctl.Request) error {
		return ServiceStart(cfg, req, opts)
	}
}

func mustLoadOpts(t *testing.T, m *message.SvcLoad) SvcLoadOpts {
	t.Helper()
	opts, err := NewSvcLoadOpts(m)
	if err != nil {
		t.Fatalf("NewSvcLoadOpts failed: %v", err)
	}
	return opts
}

func TestServiceLoadWritesSpec(t *testing.T) {
	cfg := testConfig(t)
	opts := mustLoadOpts(t, &message.SvcLoad{Source: "core/redis", Group: "blue"})

	replies, err := runOp(t, loadOp(opts), &cfg)
	if err != nil {
		t.Fatalf("ServiceLoad failed: %v", err)
	}
	if len(replies) != 3 {
		t.Fatalf("expected 2 console lines and NetOk, got %d replies", len(replies))
	}
	line, err := message.Parse[message.ConsoleLine](replies[0])
	if err != nil || line.Payload.Line != "Loading core/redis\n" {
		t.Fatalf("unexpected first reply %s: %v", replies[0], err)
	}
	if replies[2].MessageID() != message.IDNetOk || !replies[2].IsComplete() {
		t.Fatalf("expected final NetOk, got %s", replies[2])
	}

	spec, err := ReadSpec(SpecPath(cfg.SpecsDir, "redis"))
	if err != nil {
		t.Fatalf("ReadSpec failed: %v", err)
	}
	if spec.Ident != "core/redis" || spec.Group != "blue" {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if spec.BldrURL != config.DefaultBldrURL || spec.Channel != config.DefaultBldrChannel {
		t.Fatalf("expected default bldr settings, got %q %q", spec.BldrURL, spec.Channel)
	}
	if spec.DesiredState != DesiredStateDown {
		t.Fatalf("expected new spec to be down, got %s", spec.DesiredState)
	}
}

func TestServiceLoadConflictUnlessForced(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runOp(t, loadOp(mustLoadOpts(t, &message.SvcLoad{Source: "core/redis"})), &cfg); err != nil {
		t.Fatalf("first load failed: %v", err)
	}

	_, err := runOp(t, loadOp(mustLoadOpts(t, &message.SvcLoad{Source: "core/redis"})), &cfg)
	if netErr, ok := err.(*message.NetErr); !ok || netErr.Code != message.ErrConflict {
		t.Fatalf("expected Conflict, got %v", err)
	}

	forced := mustLoadOpts(t, &message.SvcLoad{Source: "core/redis", Force: true, BldrChannel: "unstable"})
	if _, err := runOp(t, loadOp(forced), &cfg); err != nil {
		t.Fatalf("forced load failed: %v", err)
	}
	spec, _ := ReadSpec(SpecPath(cfg.SpecsDir, "redis"))
	if spec.Channel != "unstable" {
		t.Fatalf("expected reloaded channel, got %q", spec.Channel)
	}
}

func TestServiceLoadArchiveReportsProgress(t *testing.T) {
	cfg := testConfig(t)
	archive := filepath.Join(t.TempDir(), "core-redis-4.0.14-20190319-x86_64-linux.hart")
	if err := os.WriteFile(archive, make([]byte, 10000), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	replies, err := runOp(t, loadOp(mustLoadOpts(t, &message.SvcLoad{Source: archive})), &cfg)
	if err != nil {
		t.Fatalf("ServiceLoad failed: %v", err)
	}
	var delta uint64
	for _, r := range replies {
		if r.MessageID() != message.IDNetProgress {
			continue
		}
		p, _ := message.Parse[message.NetProgress](r)
		if p.Payload.Total != 10000 {
			t.Fatalf("unexpected progress total %d", p.Payload.Total)
		}
		delta += p.Payload.Delta
	}
	if delta != 10000 {
		t.Fatalf("expected progress deltas to sum to 10000, got %d", delta)
	}

	spec, _ := ReadSpec(SpecPath(cfg.SpecsDir, "redis"))
	if spec.Ident != "core/redis/4.0.14/20190319" || spec.ArchiveChecksum == "" {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestServiceLoadMissingArchive(t *testing.T) {
	cfg := testConfig(t)
	missing := filepath.Join(t.TempDir(), "core-redis-4.0.14-20190319-x86_64-linux.hart")
	_, err := runOp(t, loadOp(mustLoadOpts(t, &message.SvcLoad{Source: missing})), &cfg)
	if netErr, ok := err.(*message.NetErr); !ok || netErr.Code != message.ErrNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestServiceStart(t *testing.T) {
	cfg := testConfig(t)
	start := startOp(SvcStartOpts{Ident: message.PackageIdent{Origin: "core", Name: "redis"}})

	_, err := runOp(t, start, &cfg)
	if netErr, ok := err.(*message.NetErr); !ok || netErr.Code != message.ErrNotFound {
		t.Fatalf("expected NotFound before load, got %v", err)
	}

	if _, err := runOp(t, loadOp(mustLoadOpts(t, &message.SvcLoad{Source: "core/redis/4.0.14"})), &cfg); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	replies, err := runOp(t, start, &cfg)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(replies) != 2 || !replies[1].IsComplete() {
		t.Fatalf("expected console line and final NetOk, got %v", replies)
	}
	spec, _ := ReadSpec(SpecPath(cfg.SpecsDir, "redis"))
	if spec.DesiredState != DesiredStateUp {
		t.Fatalf("expected service up, got %s", spec.DesiredState)
	}

	// already up: console line only, the manager closes the transaction
	replies, err = runOp(t, start, &cfg)
	if err != nil || len(replies) != 1 || replies[0].IsComplete() {
		t.Fatalf("unexpected second start: %v, %v", replies, err)
	}

	mismatch := startOp(SvcStartOpts{Ident: message.PackageIdent{Origin: "core", Name: "redis", Version: "5.0.0"}})
	_, err = runOp(t, mismatch, &cfg)
	if netErr, ok := err.(*message.NetErr); !ok || netErr.Code != message.ErrConflict {
		t.Fatalf("expected Conflict for version mismatch, got %v", err)
	}
}
