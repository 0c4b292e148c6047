package snapshot

import (
	"net"
	"testing"
	"time"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/rib"
	"github.com/route-beacon/bgpd/internal/wire"
)

type fakePeer struct{}

func (fakePeer) IncRef() {}
func (fakePeer) DecRef() {}

func TestCollectRows(t *testing.T) {
	ribSet := rib.NewSet()
	ctx := attrs.NewContext()

	set := ctx.InternSet(&attrs.AttrSet{Origin: 0, NextHop: net.ParseIP("192.0.2.1")})
	prefix := wire.Prefix{Family: wire.FamilyIPv4, Bits: 24, Bytes: []byte{10, 0, 0}}
	node := ribSet.IPv4Unicast.NodeGet(prefix)
	node.InfoAdd(rib.NewRouteInfo(fakePeer{}, wire.FamilyIPv4, wire.SAFIUnicast, set, time.Now()))

	rows := collectRows(ribSet, 65000)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].afi != "ipv4" || rows[0].prefix != prefix.String() || rows[0].peerASN != 65000 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}
