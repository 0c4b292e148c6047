package attrs

import "fmt"

// LargeCommunityValue is a single RFC 8092 large community: a 96-bit
// (global, local1, local2) triple.
type LargeCommunityValue struct {
	Global uint32
	Local1 uint32
	Local2 uint32
}

// LargeCommunity is an immutable sequence of large communities. It is
// not part of spec.md's attribute table (type 32, BGP Large Communities)
// but is supplemented per SPEC_FULL.md ยง5.4 from the teacher's
// internal/bgp.parseLargeCommunity, which already decodes it.
type LargeCommunity struct {
	Values []LargeCommunityValue
}

// String renders each value as "global:local1:local2", space-joined.
func (l *LargeCommunity) String() string {
	s := ""
	for i, v := range l.Values {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d:%d:%d", v.Global, v.Local1, v.Local2)
	}
	return s
}

// LargeCommunityHandle is the canonical, refcounted large-community
// handle.
type LargeCommunityHandle = Handle[*LargeCommunity]

// LargeCommunityTable is the content-addressed large-community interning
// store.
type LargeCommunityTable struct {
	*Table[*LargeCommunity]
}

// NewLargeCommunityTable returns an empty large-community interning
// table.
func NewLargeCommunityTable() *LargeCommunityTable {
	return &LargeCommunityTable{Table: NewTable(func(l *LargeCommunity) string { return l.String() })}
}
