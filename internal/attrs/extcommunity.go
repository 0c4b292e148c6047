package attrs

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ExtCommunity is an immutable sequence of 8-byte extended communities
// (RFC 4360), canonical in declaration order.
type ExtCommunity struct {
	Values [][8]byte
}

// String decodes each 8-byte value into human-readable form, recognizing
// Route Target (subtype 0x02) and Route Origin (subtype 0x03) for
// 2-octet-AS, IPv4, and 4-octet-AS types, falling back to hex for
// anything else. Carried over near-verbatim from the teacher's
// internal/bgp.decodeExtCommunity.
func (e *ExtCommunity) String() string {
	s := ""
	for i, v := range e.Values {
		if i > 0 {
			s += " "
		}
		s += decodeExtCommunity(v[:])
	}
	return s
}

func decodeExtCommunity(data []byte) string {
	typeHigh := data[0]
	typeLow := data[1]
	typeHighBase := typeHigh & 0x3F // mask transitive bit for matching

	switch typeHighBase {
	case 0x00: // 2-Octet AS Specific
		asn := binary.BigEndian.Uint16(data[2:4])
		val := binary.BigEndian.Uint32(data[4:8])
		switch typeLow {
		case 0x02:
			return fmt.Sprintf("RT:%d:%d", asn, val)
		case 0x03:
			return fmt.Sprintf("SOO:%d:%d", asn, val)
		}
	case 0x01: // IPv4 Address Specific
		ip := fmt.Sprintf("%d.%d.%d.%d", data[2], data[3], data[4], data[5])
		val := binary.BigEndian.Uint16(data[6:8])
		switch typeLow {
		case 0x02:
			return fmt.Sprintf("RT:%s:%d", ip, val)
		case 0x03:
			return fmt.Sprintf("SOO:%s:%d", ip, val)
		}
	case 0x02: // 4-Octet AS Specific
		asn := binary.BigEndian.Uint32(data[2:6])
		val := binary.BigEndian.Uint16(data[6:8])
		switch typeLow {
		case 0x02:
			return fmt.Sprintf("RT:%d:%d", asn, val)
		case 0x03:
			return fmt.Sprintf("SOO:%d:%d", asn, val)
		}
	}

	return hex.EncodeToString(data)
}

// ExtCommunityHandle is the canonical, refcounted ext-community handle.
type ExtCommunityHandle = Handle[*ExtCommunity]

// ExtCommunityTable is the content-addressed ext-community interning
// store.
type ExtCommunityTable struct {
	*Table[*ExtCommunity]
}

// NewExtCommunityTable returns an empty ext-community interning table.
func NewExtCommunityTable() *ExtCommunityTable {
	return &ExtCommunityTable{Table: NewTable(func(e *ExtCommunity) string { return e.String() })}
}
