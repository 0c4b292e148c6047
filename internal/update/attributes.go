package update

import (
	"encoding/binary"
	"fmt"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/wire"
)

// Path attribute type codes (spec ยง4.4).
const (
	AttrTypeOrigin        uint8 = 1
	AttrTypeASPath        uint8 = 2
	AttrTypeNextHop       uint8 = 3
	AttrTypeMED           uint8 = 4
	AttrTypeLocalPref     uint8 = 5
	AttrTypeCommunity     uint8 = 8
	AttrTypeMPReachNLRI   uint8 = 14
	AttrTypeMPUnreachNLRI uint8 = 15
	AttrTypeExtCommunity  uint8 = 16
	AttrTypeAS4Path       uint8 = 17
	AttrTypeLargeCommunity uint8 = 32
)

// AS_PATH segment types (RFC 4271 ยง4.3).
const (
	segSet      uint8 = 1
	segSequence uint8 = 2
)

const extendedLengthFlag uint8 = 0x10

// parsePathAttributes walks the path-attribute section of an UPDATE
// payload (spec ยง4.4's attribute framing table) and returns the
// transient decoded result. Carried over from the teacher's
// internal/bgp.ParsePathAttributes, adapted to build interned-ready
// values instead of display strings and to report LocalPref's
// external-peer suppression rule (spec ยง4.4, type 5).
func parsePathAttributes(data []byte, peer Peer, localASN uint32) (*decoded, error) {
	d := &decoded{}
	offset := 0

	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, malformed("update: attribute header truncated at offset %d", offset)
		}
		flags := data[offset]
		typeCode := data[offset+1]
		offset += 2

		var attrLen int
		if flags&extendedLengthFlag != 0 {
			if offset+2 > len(data) {
				return nil, malformed("update: extended attribute length truncated")
			}
			attrLen = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
		} else {
			if offset+1 > len(data) {
				return nil, malformed("update: attribute length truncated")
			}
			attrLen = int(data[offset])
			offset++
		}

		if offset+attrLen > len(data) {
			return nil, malformed("update: attribute data truncated (type %d, need %d, have %d)", typeCode, attrLen, len(data)-offset)
		}
		attrData := data[offset : offset+attrLen]
		offset += attrLen

		if d.set == nil {
			d.set = &attrs.AttrSet{}
		}

		switch typeCode {
		case AttrTypeOrigin:
			if len(attrData) < 1 {
				d.warnings = append(d.warnings, Warning{typeCode, "short ORIGIN attribute"})
				continue
			}
			d.set.Origin = attrData[0]
		case AttrTypeASPath:
			path, err := decodeASPath(attrData, peer.Supports4ByteAS)
			if err != nil {
				d.warnings = append(d.warnings, Warning{typeCode, err.Error()})
				continue
			}
			d.asPath = path
		case AttrTypeAS4Path:
			path, err := decodeASPath(attrData, true)
			if err != nil {
				d.warnings = append(d.warnings, Warning{typeCode, err.Error()})
				continue
			}
			d.as4Path = path
		case AttrTypeNextHop:
			if len(attrData) != 4 {
				d.warnings = append(d.warnings, Warning{typeCode, "NEXT_HOP must be 4 bytes"})
				continue
			}
			d.set.NextHop = append([]byte{}, attrData...)
		case AttrTypeMED:
			if len(attrData) != 4 {
				return nil, malformed("update: MULTI_EXIT_DISC must be 4 bytes, got %d", len(attrData))
			}
			v := binary.BigEndian.Uint32(attrData)
			d.set.MED = &v
		case AttrTypeLocalPref:
			if len(attrData) != 4 {
				return nil, malformed("update: LOCAL_PREF must be 4 bytes, got %d", len(attrData))
			}
			if peer.ASN == localASN {
				v := binary.BigEndian.Uint32(attrData)
				d.set.LocalPref = &v
			}
			// External peer: LOCAL_PREF is ignored, treated as absent.
		case AttrTypeCommunity:
			vals, err := decodeCommunities(attrData)
			if err != nil {
				d.warnings = append(d.warnings, Warning{typeCode, err.Error()})
				continue
			}
			d.communityVals = vals
		case AttrTypeExtCommunity:
			vals, err := decodeExtCommunities(attrData)
			if err != nil {
				d.warnings = append(d.warnings, Warning{typeCode, err.Error()})
				continue
			}
			d.extCommunityVals = vals
		case AttrTypeLargeCommunity:
			vals, err := decodeLargeCommunities(attrData)
			if err != nil {
				d.warnings = append(d.warnings, Warning{typeCode, err.Error()})
				continue
			}
			d.largeCommunityVals = vals
		case AttrTypeMPReachNLRI:
			if err := parseMPReach(attrData, d); err != nil {
				d.warnings = append(d.warnings, Warning{typeCode, err.Error()})
			}
		case AttrTypeMPUnreachNLRI:
			if err := parseMPUnreach(attrData, d); err != nil {
				d.warnings = append(d.warnings, Warning{typeCode, err.Error()})
			}
		default:
			// Unrecognized attribute: skipped, value ignored (spec ยง4.4).
		}
	}

	return d, nil
}

// decodeASPath decodes AS_PATH/AS4_PATH segments: 2-byte ASNs unless
// as4 is true, per spec ยง4.4.
func decodeASPath(data []byte, as4 bool) (*attrs.ASPath, error) {
	width := 2
	if as4 {
		width = 4
	}
	var segments []attrs.ASPathSegment
	offset := 0
	for offset+2 <= len(data) {
		segType := data[offset]
		segLen := int(data[offset+1])
		offset += 2

		need := segLen * width
		if offset+need > len(data) {
			return nil, fmt.Errorf("update: AS_PATH segment truncated")
		}
		asns := make([]uint32, segLen)
		for i := 0; i < segLen; i++ {
			if as4 {
				asns[i] = binary.BigEndian.Uint32(data[offset : offset+4])
			} else {
				asns[i] = uint32(binary.BigEndian.Uint16(data[offset : offset+2]))
			}
			offset += width
		}

		var t attrs.ASPathSegmentType
		switch segType {
		case segSet:
			t = attrs.SegmentSet
		case segSequence:
			t = attrs.SegmentSequence
		default:
			continue // unknown segment type: skip
		}
		segments = append(segments, attrs.ASPathSegment{Type: t, ASNs: asns})
	}
	return &attrs.ASPath{Segments: segments}, nil
}

func decodeCommunities(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("update: COMMUNITIES length %d not a multiple of 4", len(data))
	}
	var out []uint32
	for i := 0; i+4 <= len(data); i += 4 {
		out = append(out, binary.BigEndian.Uint32(data[i:i+4]))
	}
	return out, nil
}

func decodeExtCommunities(data []byte) ([][8]byte, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("update: EXT_COMMUNITIES length %d not a multiple of 8", len(data))
	}
	var out [][8]byte
	for i := 0; i+8 <= len(data); i += 8 {
		var v [8]byte
		copy(v[:], data[i:i+8])
		out = append(out, v)
	}
	return out, nil
}

func decodeLargeCommunities(data []byte) ([]attrs.LargeCommunityValue, error) {
	if len(data)%12 != 0 {
		return nil, fmt.Errorf("update: LARGE_COMMUNITIES length %d not a multiple of 12", len(data))
	}
	var out []attrs.LargeCommunityValue
	for i := 0; i+12 <= len(data); i += 12 {
		out = append(out, attrs.LargeCommunityValue{
			Global: binary.BigEndian.Uint32(data[i : i+4]),
			Local1: binary.BigEndian.Uint32(data[i+4 : i+8]),
			Local2: binary.BigEndian.Uint32(data[i+8 : i+12]),
		})
	}
	return out, nil
}

// parseMPReach decodes MP_REACH_NLRI per spec ยง4.4: header
// {afi, safi, nexthop-len, nexthop, snpa}, remainder is NLRI.
func parseMPReach(data []byte, d *decoded) error {
	if len(data) < 5 {
		return fmt.Errorf("update: MP_REACH_NLRI too short (%d bytes)", len(data))
	}
	afi := binary.BigEndian.Uint16(data[0:2])
	safi := data[2]
	nhLen := int(data[3])
	offset := 4

	switch nhLen {
	case 4, 12, 16, 32:
	default:
		return fmt.Errorf("update: MP_REACH_NLRI unsupported next-hop length %d", nhLen)
	}
	if offset+nhLen > len(data) {
		return fmt.Errorf("update: MP_REACH_NLRI next-hop truncated")
	}
	nh := data[offset : offset+nhLen]
	offset += nhLen

	// Skip SNPA entries (RFC 4760: 1-byte count, then N x {1-byte len
	// in semi-octets, data}).
	if offset >= len(data) {
		return fmt.Errorf("update: MP_REACH_NLRI missing SNPA count")
	}
	snpaCount := int(data[offset])
	offset++
	for i := 0; i < snpaCount; i++ {
		if offset >= len(data) {
			return fmt.Errorf("update: MP_REACH_NLRI SNPA truncated")
		}
		snpaLen := int(data[offset])
		offset++
		snpaByteLen := (snpaLen + 1) / 2
		if offset+snpaByteLen > len(data) {
			return fmt.Errorf("update: MP_REACH_NLRI SNPA data truncated")
		}
		offset += snpaByteLen
	}

	family := wire.FamilyForAFI(afi)
	d.mpReachAFI = afi
	d.mpReachSAFI = safi
	if nhLen == 32 {
		d.mpReachNH = append([]byte{}, nh[:16]...) // global + link-local; use global
	} else {
		d.mpReachNH = append([]byte{}, nh...)
	}
	if family != 0 && safi == wire.SAFIUnicast {
		nlri, err := wire.DecodePrefixes(data[offset:], family)
		if err != nil {
			return err
		}
		d.mpReachNLRI = nlri
	}
	return nil
}

// parseMPUnreach decodes MP_UNREACH_NLRI per spec ยง4.4: header
// {afi, safi}, remainder is NLRI.
func parseMPUnreach(data []byte, d *decoded) error {
	if len(data) < 3 {
		return fmt.Errorf("update: MP_UNREACH_NLRI too short (%d bytes)", len(data))
	}
	afi := binary.BigEndian.Uint16(data[0:2])
	safi := data[2]
	d.mpUnreachAFI = afi
	d.mpUnreachSAFI = safi

	family := wire.FamilyForAFI(afi)
	if family != 0 && safi == wire.SAFIUnicast {
		nlri, err := wire.DecodePrefixes(data[3:], family)
		if err != nil {
			return err
		}
		d.mpUnreachNLRI = nlri
	}
	return nil
}
