package attrs

import "fmt"

// Community is an immutable sequence of 32-bit standard BGP communities
// (RFC 1997), canonical in declaration order.
type Community struct {
	Values []uint32
}

// String renders each community as "high:low", space-joined, matching
// the teacher's internal/bgp.parseCommunity display convention.
func (c *Community) String() string {
	s := ""
	for i, v := range c.Values {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d:%d", v>>16, v&0xFFFF)
	}
	return s
}

// CommunityHandle is the canonical, refcounted community-set handle.
type CommunityHandle = Handle[*Community]

// CommunityTable is the content-addressed community interning store.
type CommunityTable struct {
	*Table[*Community]
}

// NewCommunityTable returns an empty community interning table.
func NewCommunityTable() *CommunityTable {
	return &CommunityTable{Table: NewTable(func(c *Community) string { return c.String() })}
}
