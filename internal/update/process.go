package update

import (
	"time"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/rib"
	"github.com/route-beacon/bgpd/internal/wire"
)

// processUpdate implements spec ยง4.4's process_update contract: locate
// or create the node, find any existing Route-Info for (peer, afi,
// safi), and either attach a new one, refresh uptime on a
// structurally-equal match, or replace the attribute set.
func processUpdate(ctx *attrs.Context, ribSet *rib.Set, peer Peer, prefix wire.Prefix, set *attrs.AttrSetHandle, afi wire.Family, safi uint8, now time.Time) {
	table := ribSet.TableFor(afi, safi)
	if table == nil {
		ctx.Unintern(set) // unrecognized (AFI, SAFI): parsed, not inserted (spec ยง3)
		return
	}
	node := table.NodeGet(prefix)
	existing := node.FindRouteInfo(peer.Handle, afi, safi)
	switch {
	case existing == nil:
		node.InfoAdd(rib.NewRouteInfo(peer.Handle, afi, safi, set, now))
	case existing.Attrs == set:
		existing.Uptime = now
		ctx.Unintern(set) // drop the redundant new reference
	default:
		ctx.Unintern(existing.Attrs)
		existing.Attrs = set
		existing.Uptime = now
	}
	table.UnlockNode(node)
}

// processWithdraw implements spec ยง4.4's process_withdraw contract:
// locate the node, detach any matching Route-Info, release the
// node_get lock either way. It returns the withdrawn Route-Info's former
// attribute set (nil if none was held), captured before InfoDelete
// uninterns it, so the caller can still log Path/Comms/EComms for the
// withdraw (spec ยง6's log-updates format).
func processWithdraw(ctx *attrs.Context, ribSet *rib.Set, peer Peer, prefix wire.Prefix, afi wire.Family, safi uint8) *attrs.AttrSetHandle {
	table := ribSet.TableFor(afi, safi)
	if table == nil {
		return nil
	}
	node := table.NodeGet(prefix)
	var former *attrs.AttrSetHandle
	if existing := node.FindRouteInfo(peer.Handle, afi, safi); existing != nil {
		former = existing.Attrs
		table.InfoDelete(ctx, existing)
	}
	table.UnlockNode(node)
	return former
}
