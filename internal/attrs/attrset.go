package attrs

import (
	"fmt"
	"net"
)

// Origin values (RFC 4271 ยง4.3).
const (
	OriginIGP        uint8 = 0
	OriginEGP        uint8 = 1
	OriginIncomplete uint8 = 2
)

// OriginName renders an origin code the way the teacher's OriginValues
// map does, falling back to "UNKNOWN(n)" for anything else.
func OriginName(o uint8) string {
	switch o {
	case OriginIGP:
		return "IGP"
	case OriginEGP:
		return "EGP"
	case OriginIncomplete:
		return "INCOMPLETE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", o)
	}
}

// PathLimit is the optional AS_PATHLIMIT attribute: a TTL and the ASN
// that imposed it.
type PathLimit struct {
	TTL uint8
	AS  uint32
}

// AttrSet is the interned, immutable path-attribute set of spec ยง3.
// Equality is componentwise over every scalar field plus sub-handle
// identity (sub-handles are themselves canonical, so pointer equality is
// structural equality for them).
type AttrSet struct {
	Origin       uint8
	NextHop      net.IP // 4-byte NEXT_HOP for IPv4 NLRI; the MP_REACH_NLRI next-hop for MP routes
	MED          *uint32
	LocalPref    *uint32
	ASPath       *ASPathHandle
	Community    *CommunityHandle
	ExtCommunity *ExtCommunityHandle
	LargeComm    *LargeCommunityHandle // supplemented, see SPEC_FULL.md ยง5.4
	PathLimit    *PathLimit
}

// key renders the canonical interning key for a: every scalar field by
// value, every sub-handle by pointer identity (since sub-handles are
// themselves canonical, two AttrSets with the same sub-handle pointer
// have structurally-equal sub-values).
func (a *AttrSet) key() string {
	med, lp := "-", "-"
	if a.MED != nil {
		med = fmt.Sprintf("%d", *a.MED)
	}
	if a.LocalPref != nil {
		lp = fmt.Sprintf("%d", *a.LocalPref)
	}
	pl := "-"
	if a.PathLimit != nil {
		pl = fmt.Sprintf("%d/%d", a.PathLimit.TTL, a.PathLimit.AS)
	}
	nh := "-"
	if a.NextHop != nil {
		nh = a.NextHop.String()
	}
	return fmt.Sprintf("o=%d|nh=%s|med=%s|lp=%s|as=%p|c=%p|ec=%p|lc=%p|pl=%s",
		a.Origin, nh, med, lp, a.ASPath, a.Community, a.ExtCommunity, a.LargeComm, pl)
}

// AttrSetHandle is the canonical, refcounted full-attribute-set handle.
type AttrSetHandle = Handle[*AttrSet]

// AttrSetTable is the content-addressed full-attribute-set interning
// store (spec ยง4.2).
type AttrSetTable struct {
	*Table[*AttrSet]
}

// NewAttrSetTable returns an empty attribute-set interning table.
func NewAttrSetTable() *AttrSetTable {
	return &AttrSetTable{Table: NewTable(func(a *AttrSet) string { return a.key() })}
}

// Context bundles the process-singleton interning tables so the session
// loop, parser, and RIB layer all borrow the same instance instead of
// reaching through hidden package-level globals (spec ยง9 design note).
type Context struct {
	ASPaths    *ASPathTable
	Communities *CommunityTable
	ExtCommunities *ExtCommunityTable
	LargeCommunities *LargeCommunityTable
	AttrSets   *AttrSetTable
}

// NewContext builds a fresh set of empty interning tables.
func NewContext() *Context {
	return &Context{
		ASPaths:          NewASPathTable(),
		Communities:      NewCommunityTable(),
		ExtCommunities:   NewExtCommunityTable(),
		LargeCommunities: NewLargeCommunityTable(),
		AttrSets:         NewAttrSetTable(),
	}
}

// InternSet interns a freshly-built, transient AttrSet whose sub-handles
// (ASPath, Community, ExtCommunity, LargeComm) the caller has already
// interned via the corresponding sub-tables. If an equal AttrSet is
// already canonical, the redundant sub-handle references taken while
// building transient are released here, so that only the surviving
// canonical AttrSet (new or pre-existing) holds references to its
// sub-handles — never both the old and new copies.
func (c *Context) InternSet(transient *AttrSet) *AttrSetHandle {
	handle := c.AttrSets.Intern(transient)
	if handle.Value != transient {
		// A structurally-equal set was already canonical; the
		// sub-handle references we just took for `transient` are
		// orphaned, since the pre-existing handle's value still
		// points at its own (pointer-identical) sub-handles.
		c.ASPaths.Unintern(transient.ASPath)
		c.Communities.Unintern(transient.Community)
		c.ExtCommunities.Unintern(transient.ExtCommunity)
		c.LargeCommunities.Unintern(transient.LargeComm)
	}
	return handle
}

// Unintern releases set's reference; once its refcount reaches zero it
// releases every sub-handle it owns, mirroring spec ยง4.3's info_delete
// contract.
func (c *Context) Unintern(set *AttrSetHandle) {
	if set == nil {
		return
	}
	value := set.Value
	if !c.AttrSets.Unintern(set) {
		return
	}
	c.ASPaths.Unintern(value.ASPath)
	c.Communities.Unintern(value.Community)
	c.ExtCommunities.Unintern(value.ExtCommunity)
	c.LargeCommunities.Unintern(value.LargeComm)
}
