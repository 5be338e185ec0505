package message

import (
	"errors"
	"reflect"
	"testing"

	"supctl/protocol"
)

func TestHandshakeRoundTrip(t *testing.T) {
	txn := protocol.NewTxn(7)
	wire, err := (&Message[*Handshake]{Transaction: &txn, Payload: &Handshake{AuthKey: "letmein"}}).Wire()
	if err != nil {
		t.Fatalf("Wire failed: %v", err)
	}
	if wire.MessageID() != IDHandshake {
		t.Fatalf("expected message id %q, got %q", IDHandshake, wire.MessageID())
	}

	m, err := Parse[Handshake](wire)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Payload.AuthKey != "letmein" {
		t.Errorf("expected auth key letmein, got %q", m.Payload.AuthKey)
	}
	if m.Transaction == nil || m.Transaction.ID() != 7 {
		t.Errorf("expected transaction id 7, got %v", m.Transaction)
	}
}

func TestParseMessageIDMismatch(t *testing.T) {
	wire, err := ToWire(&NetOk{}, nil)
	if err != nil {
		t.Fatalf("ToWire failed: %v", err)
	}
	if _, err := Parse[SvcStart](wire); !errors.Is(err, ErrMessageIDMismatch) {
		t.Fatalf("expected ErrMessageIDMismatch, got %v", err)
	}
}

func TestNetOkHasEmptyBody(t *testing.T) {
	wire, err := ToWire(&NetOk{}, nil)
	if err != nil {
		t.Fatalf("ToWire failed: %v", err)
	}
	if len(wire.Body()) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(wire.Body()))
	}
}

func TestTryOK(t *testing.T) {
	ok, _ := ToWire(&NetOk{}, nil)
	if err := TryOK(ok); err != nil {
		t.Fatalf("expected nil for NetOk, got %v", err)
	}

	line, _ := ToWire(&ConsoleLine{Line: "hello"}, nil)
	if err := TryOK(line); err != nil {
		t.Fatalf("expected nil for ConsoleLine, got %v", err)
	}

	failed, _ := ToWire(Errorf(ErrNotFound, "service %s not loaded", "core/redis"), nil)
	err := TryOK(failed)
	var netErr *NetErr
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetErr, got %v", err)
	}
	if netErr.Code != ErrNotFound || netErr.Msg != "service core/redis not loaded" {
		t.Errorf("unexpected NetErr %+v", netErr)
	}
}

func TestNetErrZeroCodeRoundTrip(t *testing.T) {
	wire, _ := ToWire(&NetErr{Code: ErrInternal, Msg: "boom"}, nil)
	m, err := Parse[NetErr](wire)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Payload.Code != ErrInternal || m.Payload.Msg != "boom" {
		t.Errorf("unexpected NetErr %+v", m.Payload)
	}
	if m.Payload.Error() != "[Err: 0, Msg: boom]" {
		t.Errorf("unexpected error string %q", m.Payload.Error())
	}
}

func TestNetProgressRoundTrip(t *testing.T) {
	wire, _ := ToWire(&NetProgress{Total: 100, Delta: 10}, nil)
	m, err := Parse[NetProgress](wire)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if *m.Payload != (NetProgress{Total: 100, Delta: 10}) {
		t.Errorf("unexpected progress %+v", m.Payload)
	}
}

func TestSvcLoadRoundTrip(t *testing.T) {
	db, _ := ParseServiceBind("database:postgres.default@acme")
	cache, _ := ParseServiceBind("cache:prod.eu#redis.default")
	topo := TopologyLeader
	strategy := UpdateStrategyRolling
	original := &SvcLoad{
		ApplicationEnvironment: &ApplicationEnvironment{Application: "shop", Environment: "prod"},
		Binds:                  []ServiceBind{db},
		CompositeBinds: map[string]ServiceBindList{
			"backend": {Binds: []ServiceBind{db, cache}},
			"edge":    {Binds: []ServiceBind{cache}},
		},
		SpecifiedBinds:       true,
		BldrURL:              "https://bldr.example.com",
		BldrChannel:          "unstable",
		ConfigFrom:           "/src/config",
		Force:                true,
		Group:                "blue",
		Source:               "core/redis/4.0.14",
		SvcEncryptedPassword: "secret",
		Topology:             &topo,
		UpdateStrategy:       &strategy,
	}

	wire, err := ToWire(original, nil)
	if err != nil {
		t.Fatalf("ToWire failed: %v", err)
	}
	m, err := Parse[SvcLoad](wire)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(m.Payload, original) {
		t.Errorf("SvcLoad mismatch:\n got  %+v\n want %+v", m.Payload, original)
	}
}

func TestSvcLoadZeroEnumsSurvive(t *testing.T) {
	topo := TopologyStandalone
	strategy := UpdateStrategyNone
	wire, _ := ToWire(&SvcLoad{Source: "core/redis", Topology: &topo, UpdateStrategy: &strategy}, nil)
	m, err := Parse[SvcLoad](wire)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Payload.Topology == nil || *m.Payload.Topology != TopologyStandalone {
		t.Errorf("expected explicit standalone topology, got %v", m.Payload.Topology)
	}
	if m.Payload.UpdateStrategy == nil || *m.Payload.UpdateStrategy != UpdateStrategyNone {
		t.Errorf("expected explicit none strategy, got %v", m.Payload.UpdateStrategy)
	}
	if m.Payload.ApplicationEnvironment != nil {
		t.Errorf("expected no application environment, got %v", m.Payload.ApplicationEnvironment)
	}
}

func TestSvcStartRoundTrip(t *testing.T) {
	wire, _ := ToWire(&SvcStart{Ident: PackageIdent{Origin: "core", Name: "redis"}}, nil)
	m, err := Parse[SvcStart](wire)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Payload.Ident.String() != "core/redis" {
		t.Errorf("expected core/redis, got %s", m.Payload.Ident)
	}
}
