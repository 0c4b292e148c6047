package update

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/rib"
	"github.com/route-beacon/bgpd/internal/wire"
)

type fakePeerHandle struct{ refs int }

func (p *fakePeerHandle) IncRef() { p.refs++ }
func (p *fakePeerHandle) DecRef() { p.refs-- }

// buildUpdatePayload constructs the payload of a BGP UPDATE message
// (everything after the 19-byte header), matching the teacher's
// buildBGPUpdate helper in internal/bgp/update_test.go.
func buildUpdatePayload(withdrawn, pathAttrs, nlri []byte) []byte {
	payload := make([]byte, 0, 4+len(withdrawn)+len(pathAttrs)+len(nlri))
	wl := make([]byte, 2)
	binary.BigEndian.PutUint16(wl, uint16(len(withdrawn)))
	payload = append(payload, wl...)
	payload = append(payload, withdrawn...)
	al := make([]byte, 2)
	binary.BigEndian.PutUint16(al, uint16(len(pathAttrs)))
	payload = append(payload, al...)
	payload = append(payload, pathAttrs...)
	payload = append(payload, nlri...)
	return payload
}

// buildPathAttr constructs a single path attribute, matching the
// teacher's buildPathAttr helper.
func buildPathAttr(flags, typeCode byte, data []byte) []byte {
	if len(data) > 255 {
		attr := make([]byte, 4+len(data))
		attr[0] = flags | 0x10
		attr[1] = typeCode
		binary.BigEndian.PutUint16(attr[2:4], uint16(len(data)))
		copy(attr[4:], data)
		return attr
	}
	attr := make([]byte, 3+len(data))
	attr[0] = flags
	attr[1] = typeCode
	attr[2] = byte(len(data))
	copy(attr[3:], data)
	return attr
}

func asPathAttr(asns ...uint16) []byte {
	data := make([]byte, 2+2*len(asns))
	data[0] = segSequence
	data[1] = byte(len(asns))
	for i, a := range asns {
		binary.BigEndian.PutUint16(data[2+2*i:4+2*i], a)
	}
	return buildPathAttr(0x40, AttrTypeASPath, data)
}

func medAttr(v uint32) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, v)
	return buildPathAttr(0x80, AttrTypeMED, data)
}

func originAttr(v byte) []byte {
	return buildPathAttr(0x40, AttrTypeOrigin, []byte{v})
}

func nextHopAttr(a, b, c, d byte) []byte {
	return buildPathAttr(0x40, AttrTypeNextHop, []byte{a, b, c, d})
}

func newTestEnv(localASN uint32) (*attrs.Context, *rib.Set, Peer) {
	ctx := attrs.NewContext()
	ribSet := rib.NewSet()
	peer := Peer{ASN: 65001, Supports4ByteAS: false, Handle: &fakePeerHandle{}}
	return ctx, ribSet, peer
}

// TestIPv4AdvertiseThenWithdraw is spec ยง8 scenario S3.
func TestIPv4AdvertiseThenWithdraw(t *testing.T) {
	ctx, ribSet, peer := newTestEnv(65001)

	attrsBytes := append(append(append([]byte{}, originAttr(0)...), asPathAttr(65001)...), append(nextHopAttr(192, 0, 2, 1), medAttr(100)...)...)
	nlri := []byte{8, 10} // 10.0.0.0/8
	payload := buildUpdatePayload(nil, attrsBytes, nlri)

	result, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Added) != 1 {
		t.Fatalf("expected 1 added route, got %d", len(result.Added))
	}

	match := ribSet.IPv4Unicast.NodeMatch([]byte{10, 0, 0, 1})
	if match == nil {
		t.Fatalf("expected a RIB match after advertisement")
	}
	info := match.Routes()
	if info == nil || info.Attrs.Value.MED == nil || *info.Attrs.Value.MED != 100 {
		t.Fatalf("expected MED 100, got %+v", info)
	}
	if info.Attrs.Value.ASPath.Value.String() != "65001" {
		t.Fatalf("expected aspath 65001, got %s", info.Attrs.Value.ASPath.Value.String())
	}
	attrHandle := info.Attrs

	// Withdraw.
	withdrawn := []byte{8, 10}
	payload2 := buildUpdatePayload(withdrawn, nil, nil)
	result2, err := ParseUpdate(ctx, ribSet, peer, payload2, Options{LocalASN: 65001})
	if err != nil {
		t.Fatalf("unexpected error on withdraw: %v", err)
	}

	if ribSet.IPv4Unicast.NodeMatch([]byte{10, 0, 0, 1}) != nil {
		t.Fatalf("expected route gone after withdraw")
	}
	if attrHandle.Refcount() != 0 {
		t.Fatalf("expected attribute handle refcount 0 after withdraw, got %d", attrHandle.Refcount())
	}

	if len(result2.Withdrawn) != 1 {
		t.Fatalf("expected 1 withdrawn route, got %d", len(result2.Withdrawn))
	}
	withdrawnSet := result2.Withdrawn[0].Set
	if withdrawnSet == nil || withdrawnSet.Value.ASPath.Value.String() != "65001" {
		t.Fatalf("expected withdraw to carry the former attribute set (aspath 65001), got %+v", withdrawnSet)
	}
}

// TestWithdrawUnknownPrefixCarriesNoAttrs covers a withdraw of a prefix
// this core never held a Route-Info for: the RIB operation is a no-op
// and the reported Change carries a nil attribute set.
func TestWithdrawUnknownPrefixCarriesNoAttrs(t *testing.T) {
	ctx, ribSet, peer := newTestEnv(65001)

	payload := buildUpdatePayload([]byte{8, 10}, nil, nil) // withdraw 10.0.0.0/8, never advertised
	result, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Withdrawn) != 1 {
		t.Fatalf("expected 1 withdrawn route, got %d", len(result.Withdrawn))
	}
	if result.Withdrawn[0].Set != nil {
		t.Fatalf("expected nil attribute set for withdraw of unheld prefix, got %+v", result.Withdrawn[0].Set)
	}
}

// TestAttributeSharingAcrossPrefixes is spec ยง8 scenario S4.
func TestAttributeSharingAcrossPrefixes(t *testing.T) {
	ctx, ribSet, peer := newTestEnv(65001)

	attrsBytes := append(append([]byte{}, originAttr(0)...), asPathAttr(65001)...)
	nlri := append([]byte{8, 10}, []byte{16, 10, 1}...) // 10.0.0.0/8 and 10.1.0.0/16
	payload := buildUpdatePayload(nil, attrsBytes, nlri)

	_, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m1 := ribSet.IPv4Unicast.NodeMatch([]byte{10, 0, 0, 1})
	m2 := ribSet.IPv4Unicast.NodeMatch([]byte{10, 1, 0, 1})
	if m1 == nil || m2 == nil {
		t.Fatalf("expected both routes present")
	}
	if m1.Routes().Attrs != m2.Routes().Attrs {
		t.Fatalf("expected both routes to share one interned attribute set")
	}
	if m1.Routes().Attrs.Refcount() != 2 {
		t.Fatalf("expected shared handle refcount 2, got %d", m1.Routes().Attrs.Refcount())
	}
}

// TestMPBGPIPv6Unicast is spec ยง8 scenario S5.
func TestMPBGPIPv6Unicast(t *testing.T) {
	ctx, ribSet, peer := newTestEnv(65001)

	nh := make([]byte, 16)
	nh[0], nh[1] = 0x20, 0x01
	nh[2], nh[3] = 0x0d, 0xb8
	nh[15] = 0x01

	nlri := []byte{32, 0x20, 0x01, 0x0d, 0xb8} // 2001:db8::/32
	mpReach := make([]byte, 0, 4+16+1+len(nlri))
	mpReach = append(mpReach, 0, byte(wire.AFIIPv6), byte(wire.SAFIUnicast), 16)
	mpReach = append(mpReach, nh...)
	mpReach = append(mpReach, 0) // SNPA count = 0
	mpReach = append(mpReach, nlri...)

	attrsBytes := append([]byte{}, buildPathAttr(0x80, AttrTypeMPReachNLRI, mpReach)...)
	payload := buildUpdatePayload(nil, attrsBytes, nil)

	_, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	addr := make([]byte, 16)
	addr[0], addr[1] = 0x20, 0x01
	addr[2], addr[3] = 0x0d, 0xb8
	addr[15] = 0x01
	match := ribSet.IPv6Unicast.NodeMatch(addr)
	if match == nil {
		t.Fatalf("expected IPv6 route present")
	}
	if match.Routes().Peer != peer.Handle {
		t.Fatalf("expected the route to reference the current peer")
	}
}

func TestLocalPrefIgnoredForExternalPeer(t *testing.T) {
	ctx, ribSet, peer := newTestEnv(65999) // local ASN differs from peer ASN 65001

	lp := make([]byte, 4)
	binary.BigEndian.PutUint32(lp, 200)
	attrsBytes := append(append([]byte{}, originAttr(0)...), buildPathAttr(0x40, AttrTypeLocalPref, lp)...)
	attrsBytes = append(attrsBytes, asPathAttr(65001)...)
	nlri := []byte{8, 10}
	payload := buildUpdatePayload(nil, attrsBytes, nlri)

	_, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65999})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	match := ribSet.IPv4Unicast.NodeMatch([]byte{10, 0, 0, 1})
	if match.Routes().Attrs.Value.LocalPref != nil {
		t.Fatalf("expected LOCAL_PREF to be ignored for an external peer")
	}
}

func TestReAdvertiseIdenticalAttributesIsNoOp(t *testing.T) {
	ctx, ribSet, peer := newTestEnv(65001)

	attrsBytes := append(append([]byte{}, originAttr(0)...), asPathAttr(65001)...)
	nlri := []byte{8, 10}
	payload := buildUpdatePayload(nil, attrsBytes, nlri)

	_, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001, Now: func() time.Time { return time.Unix(1000, 0) }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := ribSet.IPv4Unicast.NodeMatch([]byte{10, 0, 0, 1}).Routes()
	firstHandle := first.Attrs
	firstRefcount := firstHandle.Refcount()
	firstUptime := first.Uptime

	_, err = ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001, Now: func() time.Time { return time.Unix(2000, 0) }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := ribSet.IPv4Unicast.NodeMatch([]byte{10, 0, 0, 1}).Routes()

	if second.Attrs != firstHandle {
		t.Fatalf("expected re-advertisement with identical attrs to keep the same handle")
	}
	if second.Attrs.Refcount() != firstRefcount {
		t.Fatalf("expected refcount unchanged by no-op re-advertisement: got %d want %d", second.Attrs.Refcount(), firstRefcount)
	}
	if !second.Uptime.After(firstUptime) {
		t.Fatalf("expected uptime to be refreshed")
	}
}

func TestAS4PathReconciliationAppliesWhenPeerLacksCapability(t *testing.T) {
	ctx, ribSet, _ := newTestEnv(65001)
	peer := Peer{ASN: 23456, Supports4ByteAS: false, Handle: &fakePeerHandle{}}

	as2 := asPathAttr(23456, 23456)
	as4Data := make([]byte, 2+8)
	as4Data[0] = segSequence
	as4Data[1] = 2
	binary.BigEndian.PutUint32(as4Data[2:6], 70000)
	binary.BigEndian.PutUint32(as4Data[6:10], 70001)
	as4 := buildPathAttr(0xC0, AttrTypeAS4Path, as4Data)

	attrsBytes := append(append(append([]byte{}, originAttr(0)...), as2...), as4...)
	nlri := []byte{8, 10}
	payload := buildUpdatePayload(nil, attrsBytes, nlri)

	_, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	match := ribSet.IPv4Unicast.NodeMatch([]byte{10, 0, 0, 1})
	got := match.Routes().Attrs.Value.ASPath.Value.String()
	want := "70000 70001"
	if got != want {
		t.Fatalf("unexpected reconciled AS-path: got %q want %q", got, want)
	}
}

func TestMalformedWithdrawnLengthOverrun(t *testing.T) {
	ctx, ribSet, peer := newTestEnv(65001)
	payload := buildUpdatePayload(nil, nil, nil)
	binary.BigEndian.PutUint16(payload[0:2], 200) // claim 200 withdrawn bytes we don't have

	_, err := ParseUpdate(ctx, ribSet, peer, payload, Options{LocalASN: 65001})
	if err == nil {
		t.Fatalf("expected malformed error for withdrawn-length overrun")
	}
}
