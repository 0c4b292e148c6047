package rib

import "github.com/route-beacon/bgpd/internal/wire"

// Set is the process-singleton collection of per-(AFI, SAFI) tables
// spec ยง3 describes ("the process holds... one RIB per (AFI, SAFI)").
// This core recognizes AFI โˆˆ {IPv4, IPv6} ร— SAFI โˆˆ {unicast} (spec ยง3);
// other combinations are parsed but not inserted, so Set only carries
// those two tables.
type Set struct {
	IPv4Unicast *Table
	IPv6Unicast *Table
}

// NewSet builds a fresh pair of empty RIB tables.
func NewSet() *Set {
	return &Set{
		IPv4Unicast: TableInit(wire.FamilyIPv4, wire.SAFIUnicast),
		IPv6Unicast: TableInit(wire.FamilyIPv6, wire.SAFIUnicast),
	}
}

// SAFIUnicast is re-exported here for callers that only import rib.
const SAFIUnicast = wire.SAFIUnicast

// TableFor returns the table for (afi, safi), or nil if this core does
// not recognize the combination (spec ยง3: "other combinations are
// parsed but not inserted").
func (s *Set) TableFor(afi wire.Family, safi uint8) *Table {
	if safi != wire.SAFIUnicast {
		return nil
	}
	switch afi {
	case wire.FamilyIPv4:
		return s.IPv4Unicast
	case wire.FamilyIPv6:
		return s.IPv6Unicast
	default:
		return nil
	}
}
