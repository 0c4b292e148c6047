package attrs

import (
	"fmt"
	"strings"
)

// ASPathSegmentType distinguishes AS_SEQUENCE from AS_SET (RFC 4271 ยง4.3).
type ASPathSegmentType uint8

const (
	SegmentSet      ASPathSegmentType = 1
	SegmentSequence ASPathSegmentType = 2
)

// ASPathSegment is one SET or SEQUENCE run of ASNs within an AS_PATH.
type ASPathSegment struct {
	Type ASPathSegmentType
	ASNs []uint32
}

// ASPath is the immutable, canonical value interned by ASPathTable.
type ASPath struct {
	Segments []ASPathSegment
}

// String renders the canonical textual form: sequences space-joined,
// sets brace-wrapped and comma-joined, matching the teacher's
// internal/bgp.parseASPath display convention. This string is also the
// interning key: it fully captures segment type and ASN order, so equal
// paths always produce equal strings and vice versa.
func (a *ASPath) String() string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, len(a.Segments))
	for _, seg := range a.Segments {
		asns := make([]string, len(seg.ASNs))
		for i, asn := range seg.ASNs {
			asns[i] = fmt.Sprintf("%d", asn)
		}
		switch seg.Type {
		case SegmentSet:
			parts = append(parts, "{"+strings.Join(asns, ",")+"}")
		default:
			parts = append(parts, strings.Join(asns, " "))
		}
	}
	return strings.Join(parts, "|")
}

// OriginASN returns the last ASN of the last sequence segment, or nil if
// the path is empty or ends in an AS_SET (ambiguous origin).
func (a *ASPath) OriginASN() *uint32 {
	if a == nil || len(a.Segments) == 0 {
		return nil
	}
	last := a.Segments[len(a.Segments)-1]
	if last.Type == SegmentSet || len(last.ASNs) == 0 {
		return nil
	}
	v := last.ASNs[len(last.ASNs)-1]
	return &v
}

// ASPathHandle is the canonical, refcounted AS-path handle.
type ASPathHandle = Handle[*ASPath]

// ASPathTable is the content-addressed AS-path interning store (spec
// ยง4.2).
type ASPathTable struct {
	*Table[*ASPath]
}

// NewASPathTable returns an empty AS-path interning table.
func NewASPathTable() *ASPathTable {
	return &ASPathTable{Table: NewTable(func(p *ASPath) string { return p.String() })}
}
