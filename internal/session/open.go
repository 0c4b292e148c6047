package session

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/route-beacon/bgpd/internal/wire"
)

// BGP version and the well-known optional-parameter / capability type
// codes spec ยง4.5 names.
const (
	bgpVersion = 4

	optParamCapability uint8 = 2

	capMultiprotocol uint8 = 1
	cap4ByteAS       uint8 = 65

	asTrans uint32 = 23456
)

// minHoldTime is the floor spec ยง4.5 imposes on the negotiated
// hold-time ("effective hold = max(5, advertised)").
const minHoldTime = 5

// openMessage is the decoded form of a received OPEN message.
type openMessage struct {
	Version    uint8
	ASN16      uint16
	HoldTime   uint16
	RouterID   net.IP
	MPCapable  bool
	MPCapData  []byte // raw capability value, echoed unchanged (spec ยง4.5)
	FourByteAS bool
	ASN32      uint32
}

// decodeOpen parses an OPEN message payload (the bytes after the 19-byte
// header), per spec ยง4.5.
func decodeOpen(data []byte) (*openMessage, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("session: OPEN too short (%d bytes)", len(data))
	}
	msg := &openMessage{
		Version:  data[0],
		ASN16:    binary.BigEndian.Uint16(data[1:3]),
		HoldTime: binary.BigEndian.Uint16(data[3:5]),
		RouterID: net.IPv4(data[5], data[6], data[7], data[8]),
	}
	optLen := int(data[9])
	offset := 10
	if offset+optLen > len(data) {
		return nil, fmt.Errorf("session: OPEN optional-parameters length %d exceeds payload", optLen)
	}
	if err := walkOptionalParameters(data[offset:offset+optLen], msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// walkOptionalParameters examines only type-2 (capability) optional
// parameters, per spec ยง4.5 ("only parameters of type 2 are examined").
func walkOptionalParameters(data []byte, msg *openMessage) error {
	offset := 0
	for offset+2 <= len(data) {
		paramType := data[offset]
		paramLen := int(data[offset+1])
		offset += 2
		if offset+paramLen > len(data) {
			return fmt.Errorf("session: OPEN optional parameter truncated")
		}
		paramData := data[offset : offset+paramLen]
		offset += paramLen

		if paramType != optParamCapability {
			continue
		}
		if err := walkCapabilities(paramData, msg); err != nil {
			return err
		}
	}
	return nil
}

func walkCapabilities(data []byte, msg *openMessage) error {
	offset := 0
	for offset+2 <= len(data) {
		capCode := data[offset]
		capLen := int(data[offset+1])
		offset += 2
		if offset+capLen > len(data) {
			return fmt.Errorf("session: OPEN capability truncated")
		}
		capData := data[offset : offset+capLen]
		offset += capLen

		switch capCode {
		case capMultiprotocol:
			msg.MPCapable = true
			msg.MPCapData = append([]byte(nil), capData...)
		case cap4ByteAS:
			if capLen != 4 {
				return fmt.Errorf("session: 4-byte-AS capability must be 4 bytes, got %d", capLen)
			}
			msg.FourByteAS = true
			msg.ASN32 = binary.BigEndian.Uint32(capData)
		default:
			// Unknown capability: parsed over, not echoed (spec ยง6).
		}
	}
	return nil
}

// reconcileRemoteASN applies spec ยง4.5's reconciliation table and
// returns the negotiated 32-bit remote ASN.
func reconcileRemoteASN(msg *openMessage) (uint32, error) {
	if uint32(msg.ASN16) == asTrans {
		if !msg.FourByteAS || msg.ASN32 == 0 || msg.ASN32 == asTrans {
			return 0, fmt.Errorf("session: AS_TRANS with missing or invalid 4-byte-AS capability (asn32=%d)", msg.ASN32)
		}
		return msg.ASN32, nil
	}
	if msg.FourByteAS && msg.ASN32 != 0 && msg.ASN32 != uint32(msg.ASN16) {
		return 0, fmt.Errorf("session: 2-byte ASN %d conflicts with 4-byte-AS capability %d", msg.ASN16, msg.ASN32)
	}
	return uint32(msg.ASN16), nil
}

// effectiveHoldTime applies the floor spec ยง4.5 names.
func effectiveHoldTime(advertised uint16) uint16 {
	if advertised < minHoldTime {
		return minHoldTime
	}
	return advertised
}

// buildOpenReply composes our OPEN reply: version 4, our hold-time (the
// negotiated/echoed value), our ASN written as AS_TRANS when it exceeds
// 16 bits (with the true value in the echoed 4-byte-AS capability), our
// router-id, and every capability the peer advertised, echoed unchanged.
// Returns an error when our ASN exceeds 16 bits but the peer did not
// advertise 4-byte-AS support (spec ยง4.5: "unsupported configuration").
func buildOpenReply(localASN uint32, routerID net.IP, holdTime uint16, peerOpen *openMessage) ([]byte, error) {
	if localASN > 0xFFFF && !peerOpen.FourByteAS {
		return nil, fmt.Errorf("session: local ASN %d requires peer 4-byte-AS capability", localASN)
	}

	var capabilities []byte
	if peerOpen.MPCapable {
		capabilities = append(capabilities, encodeCapability(capMultiprotocol, peerOpen.MPCapData)...)
	}
	if peerOpen.FourByteAS {
		asn4 := make([]byte, 4)
		binary.BigEndian.PutUint32(asn4, localASN)
		capabilities = append(capabilities, encodeCapability(cap4ByteAS, asn4)...)
	}

	var optParams []byte
	if len(capabilities) > 0 {
		optParams = append(optParams, optParamCapability, byte(len(capabilities)))
		optParams = append(optParams, capabilities...)
	}

	asn16 := localASN
	if asn16 > 0xFFFF {
		asn16 = asTrans
	}

	body := make([]byte, 10, 10+len(optParams))
	body[0] = bgpVersion
	binary.BigEndian.PutUint16(body[1:3], uint16(asn16))
	binary.BigEndian.PutUint16(body[3:5], holdTime)
	ip4 := routerID.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("session: router-id %s is not a valid IPv4 address", routerID)
	}
	copy(body[5:9], ip4)
	body[9] = byte(len(optParams))
	body = append(body, optParams...)

	return wire.EncodeMessage(wire.MsgTypeOpen, body), nil
}

// encodeCapability renders one capability entry: {code, length, value}.
func encodeCapability(code uint8, value []byte) []byte {
	return append([]byte{code, byte(len(value))}, value...)
}
