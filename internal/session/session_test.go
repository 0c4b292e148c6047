package session

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/rib"
	"github.com/route-beacon/bgpd/internal/wire"
)

// buildOpen constructs a raw OPEN message payload for tests, matching
// the fields spec ยง8 scenarios S1/S2 exercise.
func buildOpen(asn16 uint16, holdTime uint16, routerID string, capabilities []byte) []byte {
	var optParams []byte
	if len(capabilities) > 0 {
		optParams = append([]byte{optParamCapability, byte(len(capabilities))}, capabilities...)
	}
	body := make([]byte, 10, 10+len(optParams))
	body[0] = bgpVersion
	binary.BigEndian.PutUint16(body[1:3], asn16)
	binary.BigEndian.PutUint16(body[3:5], holdTime)
	ip := net.ParseIP(routerID).To4()
	copy(body[5:9], ip)
	body[9] = byte(len(optParams))
	body = append(body, optParams...)
	return body
}

func fourByteASCapability(asn uint32) []byte {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, asn)
	return encodeCapability(cap4ByteAS, v)
}

func readMessage(t *testing.T, conn net.Conn) wire.Frame {
	t.Helper()
	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(conn, hdr); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	h, err := wire.ParseHeader(hdr)
	if err != nil {
		t.Fatalf("parsing header: %v", err)
	}
	body := make([]byte, int(h.Length)-wire.HeaderSize)
	if len(body) > 0 {
		if _, err := readFull(conn, body); err != nil {
			t.Fatalf("reading body: %v", err)
		}
	}
	return wire.Frame{Type: h.Type, Payload: body}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func newTestManagerState() (*attrs.Context, *rib.Set) {
	return attrs.NewContext(), rib.NewSet()
}

// TestBasicOpenHandshake is spec ยง8 scenario S1.
func TestBasicOpenHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ctx, ribSet := newTestManagerState()
	cfg := Config{LocalASN: 65000, RouterID: net.ParseIP("1.2.3.4")}
	sess, err := newSession(server, ctx, ribSet, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	done := make(chan readResult, 1)
	go func() { done <- sess.run() }()

	openPayload := buildOpen(65000, 90, "10.0.0.1", nil)
	if _, err := client.Write(wire.EncodeMessage(wire.MsgTypeOpen, openPayload)); err != nil {
		t.Fatalf("writing OPEN: %v", err)
	}

	reply := readMessage(t, client)
	if reply.Type != wire.MsgTypeOpen {
		t.Fatalf("expected OPEN reply, got type %d", reply.Type)
	}
	replyOpen, err := decodeOpen(reply.Payload)
	if err != nil {
		t.Fatalf("decoding reply OPEN: %v", err)
	}
	if replyOpen.Version != 4 {
		t.Fatalf("expected version 4, got %d", replyOpen.Version)
	}
	if replyOpen.ASN16 != 65000 {
		t.Fatalf("expected echoed local ASN 65000, got %d", replyOpen.ASN16)
	}
	if replyOpen.HoldTime != 90 {
		t.Fatalf("expected hold-time 90, got %d", replyOpen.HoldTime)
	}
	if !replyOpen.RouterID.Equal(net.ParseIP("1.2.3.4")) {
		t.Fatalf("expected router-id 1.2.3.4, got %s", replyOpen.RouterID)
	}

	keepalive := readMessage(t, client)
	if keepalive.Type != wire.MsgTypeKeepalive {
		t.Fatalf("expected KEEPALIVE after OPEN reply, got type %d", keepalive.Type)
	}

	// Terminate the session deterministically via NOTIFICATION.
	notif := []byte{6, 0} // Cease
	if _, err := client.Write(wire.EncodeMessage(wire.MsgTypeNotification, notif)); err != nil {
		t.Fatalf("writing NOTIFICATION: %v", err)
	}

	select {
	case result := <-done:
		if result.reason != "NOTIFICATION received" {
			t.Fatalf("expected termination via NOTIFICATION, got %q (%v)", result.reason, result.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not terminate")
	}
}

// TestFourByteASNegotiation is spec ยง8 scenario S2 (the successful half).
func TestFourByteASNegotiation(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ctx, ribSet := newTestManagerState()
	cfg := Config{LocalASN: 65000, RouterID: net.ParseIP("1.2.3.4")}
	sess, err := newSession(server, ctx, ribSet, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	done := make(chan readResult, 1)
	go func() { done <- sess.run() }()

	openPayload := buildOpen(uint16(asTrans), 90, "10.0.0.1", fourByteASCapability(70000))
	if _, err := client.Write(wire.EncodeMessage(wire.MsgTypeOpen, openPayload)); err != nil {
		t.Fatalf("writing OPEN: %v", err)
	}

	reply := readMessage(t, client)
	replyOpen, err := decodeOpen(reply.Payload)
	if err != nil {
		t.Fatalf("decoding reply OPEN: %v", err)
	}
	if !replyOpen.FourByteAS || replyOpen.ASN32 != 65000 {
		t.Fatalf("expected echoed 4-byte-AS capability carrying our ASN 65000, got %+v", replyOpen)
	}

	readMessage(t, client) // KEEPALIVE

	notif := []byte{6, 0}
	client.Write(wire.EncodeMessage(wire.MsgTypeNotification, notif))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not terminate")
	}
}

// TestFourByteASNegotiationRejectsZeroASN is the failing half of S2.
func TestFourByteASNegotiationRejectsZeroASN(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ctx, ribSet := newTestManagerState()
	cfg := Config{LocalASN: 65000, RouterID: net.ParseIP("1.2.3.4")}
	sess, err := newSession(server, ctx, ribSet, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	done := make(chan readResult, 1)
	go func() { done <- sess.run() }()

	openPayload := buildOpen(uint16(asTrans), 90, "10.0.0.1", fourByteASCapability(0))
	client.Write(wire.EncodeMessage(wire.MsgTypeOpen, openPayload))

	select {
	case result := <-done:
		if result.reason != "malformed message" {
			t.Fatalf("expected malformed termination, got %q", result.reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not terminate")
	}
}

// TestMultiprotocolCapabilityEchoedVerbatim is spec ยง4.5's "type 1
// (MULTIPROTOCOL) sets cap_mp and is echoed unchanged" requirement: the
// reply must carry the peer's own AFI/SAFI value bytes, not a
// zero-length placeholder.
func TestMultiprotocolCapabilityEchoedVerbatim(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ctx, ribSet := newTestManagerState()
	cfg := Config{LocalASN: 65000, RouterID: net.ParseIP("1.2.3.4")}
	sess, err := newSession(server, ctx, ribSet, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	done := make(chan readResult, 1)
	go func() { done <- sess.run() }()

	mpValue := []byte{0, 1, 0, 1} // AFI=1 (IPv4), reserved, SAFI=1 (unicast)
	mpCapability := encodeCapability(capMultiprotocol, mpValue)
	openPayload := buildOpen(65000, 90, "10.0.0.1", mpCapability)
	if _, err := client.Write(wire.EncodeMessage(wire.MsgTypeOpen, openPayload)); err != nil {
		t.Fatalf("writing OPEN: %v", err)
	}

	reply := readMessage(t, client)
	replyOpen, err := decodeOpen(reply.Payload)
	if err != nil {
		t.Fatalf("decoding reply OPEN: %v", err)
	}
	if !replyOpen.MPCapable {
		t.Fatalf("expected echoed multiprotocol capability")
	}
	if string(replyOpen.MPCapData) != string(mpValue) {
		t.Fatalf("expected multiprotocol capability value %v echoed unchanged, got %v", mpValue, replyOpen.MPCapData)
	}

	readMessage(t, client) // KEEPALIVE

	notif := []byte{6, 0}
	client.Write(wire.EncodeMessage(wire.MsgTypeNotification, notif))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not terminate")
	}
}

func TestReassemblerSplitsAcrossReads(t *testing.T) {
	r := newReassembler()
	full := wire.EncodeMessage(wire.MsgTypeKeepalive, nil)

	frames, err := r.feed(full[:10])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames from a partial header, got %d", len(frames))
	}

	frames, err = r.feed(full[10:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != wire.MsgTypeKeepalive {
		t.Fatalf("expected one KEEPALIVE frame, got %+v", frames)
	}
}

func TestReassemblerRejectsBadMarker(t *testing.T) {
	r := newReassembler()
	bad := make([]byte, wire.HeaderSize)
	bad[16], bad[17] = 0, wire.HeaderSize
	bad[18] = wire.MsgTypeKeepalive
	if _, err := r.feed(bad); err == nil {
		t.Fatalf("expected malformed-marker error")
	}
}
