package update

import (
	"encoding/binary"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/rib"
	"github.com/route-beacon/bgpd/internal/wire"
)

// Result summarizes one parsed UPDATE for logging purposes (spec ยง6's
// log-updates interface): which prefixes were added or withdrawn, and
// any non-fatal attribute warnings encountered along the way.
type Result struct {
	Added     []Change
	Withdrawn []Change
	Warnings  []Warning
}

// Change is one prefix change applied to the RIB, carrying the attribute
// set that went with it so the log-updates line spec ยง6 specifies can
// render Path/Comms/EComms for both advertisements and withdrawals. Set
// is nil for a withdraw of a prefix this core held no Route-Info for.
type Change struct {
	Prefix wire.Prefix
	Set    *attrs.AttrSetHandle
}

// ParseUpdate consumes one UPDATE payload (the bytes after the 19-byte
// BGP header) and applies its effect to ribSet, per spec ยง4.4. It
// returns a fatal *ParseError for wire-format violations (length
// overruns, framing truncation), for a MULTI_EXIT_DISC or LOCAL_PREF
// attribute whose length is not 4, and for AS4_PATH present without
// AS_PATH; other attribute-level problems are collected
// as non-fatal Warnings and processing continues with the rest of the
// message (spec ยง7 "Attribute warning").
func ParseUpdate(ctx *attrs.Context, ribSet *rib.Set, peer Peer, payload []byte, opts Options) (*Result, error) {
	if len(payload) < 4 {
		return nil, malformed("update: payload too short (%d bytes)", len(payload))
	}
	offset := 0

	withdrawnLen := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
	offset += 2
	if offset+withdrawnLen > len(payload) {
		return nil, malformed("update: withdrawn-routes length %d exceeds payload", withdrawnLen)
	}
	withdrawnV4, err := wire.DecodePrefixes(payload[offset:offset+withdrawnLen], wire.FamilyIPv4)
	if err != nil {
		return nil, malformed("update: %v", err)
	}
	offset += withdrawnLen

	if offset+2 > len(payload) {
		return nil, malformed("update: missing path-attribute length")
	}
	attrLen := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
	offset += 2
	if offset+attrLen > len(payload) {
		return nil, malformed("update: path-attribute length %d exceeds payload", attrLen)
	}

	d, err := parsePathAttributes(payload[offset:offset+attrLen], peer, opts.LocalASN)
	if err != nil {
		return nil, err
	}
	offset += attrLen

	nlriV4, err := wire.DecodePrefixes(payload[offset:], wire.FamilyIPv4)
	if err != nil {
		return nil, malformed("update: %v", err)
	}

	if err := reconcileAndIntern(ctx, d, peer); err != nil {
		return nil, err
	}

	result := &Result{Warnings: d.warnings}
	now := opts.now()

	// Pass order per spec ยง4.4 / ยง5: v4 withdraw, v4 update, MP
	// withdraw, MP update.
	for _, p := range withdrawnV4 {
		former := processWithdraw(ctx, ribSet, peer, p, wire.FamilyIPv4, wire.SAFIUnicast)
		result.Withdrawn = append(result.Withdrawn, Change{Prefix: p, Set: former})
	}

	if len(nlriV4) > 0 && d.set != nil {
		handle0 := ctx.InternSet(d.set)
		for i, p := range nlriV4 {
			h := attrSetForUse(ctx, handle0, i)
			processUpdate(ctx, ribSet, peer, p, h, wire.FamilyIPv4, wire.SAFIUnicast, now)
			result.Added = append(result.Added, Change{Prefix: p, Set: h})
		}
	}

	if family := wire.FamilyForAFI(d.mpUnreachAFI); family != 0 && d.mpUnreachSAFI == wire.SAFIUnicast {
		for _, p := range d.mpUnreachNLRI {
			former := processWithdraw(ctx, ribSet, peer, p, family, wire.SAFIUnicast)
			result.Withdrawn = append(result.Withdrawn, Change{Prefix: p, Set: former})
		}
	}

	if family := wire.FamilyForAFI(d.mpReachAFI); family != 0 && d.mpReachSAFI == wire.SAFIUnicast && len(d.mpReachNLRI) > 0 {
		mpSet := cloneForMP(d.set, d.mpReachNH)
		handle0 := ctx.InternSet(mpSet)
		for i, p := range d.mpReachNLRI {
			h := attrSetForUse(ctx, handle0, i)
			processUpdate(ctx, ribSet, peer, p, h, family, wire.SAFIUnicast, now)
			result.Added = append(result.Added, Change{Prefix: p, Set: h})
		}
	}

	return result, nil
}

// reconcileAndIntern performs AS4_PATH/AS_PATH reconciliation (spec
// ยง4.4) and interns the resulting sub-handles onto d.set. The
// full-AttrSet itself is interned later, once per NLRI pass, so that
// prefixes sharing byte-identical attributes share one handle (spec ยง8
// property/scenario S4).
func reconcileAndIntern(ctx *attrs.Context, d *decoded, peer Peer) error {
	if d.set == nil {
		return nil
	}
	if d.asPath != nil || d.as4Path != nil {
		reconciled, err := attrs.ReconcileAS4Path(d.asPath, d.as4Path, peer.Supports4ByteAS)
		if err != nil {
			return malformed("update: %v", err)
		}
		if reconciled != nil {
			d.set.ASPath = ctx.ASPaths.Intern(reconciled)
		}
	}
	if d.communityVals != nil {
		d.set.Community = ctx.Communities.Intern(&attrs.Community{Values: d.communityVals})
	}
	if d.extCommunityVals != nil {
		d.set.ExtCommunity = ctx.ExtCommunities.Intern(&attrs.ExtCommunity{Values: d.extCommunityVals})
	}
	if d.largeCommunityVals != nil {
		d.set.LargeComm = ctx.LargeCommunities.Intern(&attrs.LargeCommunity{Values: d.largeCommunityVals})
	}
	return nil
}

// cloneForMP builds the variant of set used for MP_REACH_NLRI
// announcements, whose next-hop comes from the MP_REACH_NLRI attribute
// itself rather than the plain NEXT_HOP attribute (spec ยง4.4).
func cloneForMP(set *attrs.AttrSet, nextHop []byte) *attrs.AttrSet {
	if set == nil {
		set = &attrs.AttrSet{}
	}
	clone := *set
	if nextHop != nil {
		clone.NextHop = nextHop
	}
	return &clone
}

// attrSetForUse returns the handle to attach for the i-th prefix sharing
// handle0's content: the first use consumes the reference InternSet
// already took; later uses each take one additional reference so that N
// prefixes sharing one attribute set leave its refcount at N (spec ยง8
// scenario S4).
func attrSetForUse(ctx *attrs.Context, handle0 *attrs.AttrSetHandle, i int) *attrs.AttrSetHandle {
	if i == 0 {
		return handle0
	}
	return ctx.AttrSets.Intern(handle0.Value)
}
