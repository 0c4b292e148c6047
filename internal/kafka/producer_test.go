package kafka

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewProducer_NoBrokersIsNoOp(t *testing.T) {
	p, err := NewProducer(nil, "route-events", "bgpd", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil producer when no brokers configured")
	}
	if !p.Ready() {
		t.Fatalf("expected nil producer to report ready")
	}
	p.Close() // must not panic
}

func TestOriginString(t *testing.T) {
	cases := map[uint8]string{0: "igp", 1: "egp", 2: "incomplete", 9: "unknown(9)"}
	for origin, want := range cases {
		if got := originString(origin); got != want {
			t.Errorf("originString(%d) = %q, want %q", origin, got, want)
		}
	}
}
