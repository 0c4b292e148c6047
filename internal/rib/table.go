package rib

import (
	"time"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/wire"
)

// Table is one per-(AFI, SAFI) prefix trie (spec ยง4.3).
type Table struct {
	AFI  wire.Family
	SAFI uint8
	root *Node
}

// TableInit builds an empty trie for the given (AFI, SAFI).
func TableInit(afi wire.Family, safi uint8) *Table {
	return &Table{AFI: afi, SAFI: safi, root: &Node{Prefix: wire.Prefix{Family: afi, Bits: 0, Bytes: nil}}}
}

// TableFinish tears table down: every attached Route-Info is released
// (un-interning its attribute set and decrementing its peer's refcount)
// and the trie is discarded. Per spec ยง4.3 and ยง4.5's teardown path.
func (t *Table) TableFinish(ctx *attrs.Context) {
	t.walk(t.root, func(n *Node) {
		for r := n.routes; r != nil; {
			next := r.next
			ctx.Unintern(r.Attrs)
			if r.Peer != nil {
				r.Peer.DecRef()
			}
			r = next
		}
		n.routes = nil
	})
	t.root = &Node{Prefix: wire.Prefix{Family: t.AFI, Bits: 0, Bytes: nil}}
}

// ForEachRoute calls fn once per (prefix, Route-Info) pair currently
// held in the table, for read-only consumers like the snapshot writer.
func (t *Table) ForEachRoute(fn func(prefix wire.Prefix, info *RouteInfo)) {
	t.walk(t.root, func(n *Node) {
		for r := n.routes; r != nil; r = r.next {
			fn(n.Prefix, r)
		}
	})
}

// PrefixCount reports the number of distinct prefixes currently holding
// at least one Route-Info, for the bgpd_rib_prefixes gauge.
func (t *Table) PrefixCount() int {
	count := 0
	t.walk(t.root, func(n *Node) {
		if n.routes != nil {
			count++
		}
	})
	return count
}

func (t *Table) walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	t.walk(n.left, fn)
	fn(n)
	t.walk(n.right, fn)
}

// NodeGet returns the node at prefix, creating it and any missing
// ancestors if needed, and increments that node's outstanding-lock count
// by one (spec ยง4.3). The caller must eventually call UnlockNode exactly
// once per NodeGet call.
func (t *Table) NodeGet(prefix wire.Prefix) *Node {
	n := t.root
	for b := 0; b < prefix.Bits; b++ {
		if bit(prefix.Bytes, b) == 0 {
			if n.left == nil {
				n.left = &Node{parent: n, Prefix: ancestorPrefix(prefix, b+1)}
			}
			n = n.left
		} else {
			if n.right == nil {
				n.right = &Node{parent: n, Prefix: ancestorPrefix(prefix, b+1)}
			}
			n = n.right
		}
	}
	n.locks++
	return n
}

// ancestorPrefix truncates prefix to its first bits bits, with the
// minimal-byte encoding and zeroed trailing bits spec ยง3 requires.
func ancestorPrefix(prefix wire.Prefix, bits int) wire.Prefix {
	byteLen := (bits + 7) / 8
	b := make([]byte, byteLen)
	copy(b, prefix.Bytes)
	if byteLen > 0 {
		used := bits % 8
		if used != 0 {
			mask := byte(0xFF << (8 - used))
			b[byteLen-1] &= mask
		}
	}
	return wire.Prefix{Family: prefix.Family, Bits: bits, Bytes: b}
}

// NodeMatch performs a longest-prefix match: it walks the trie following
// addr's bits and returns the deepest node along that path that carries
// at least one Route-Info. It does not touch any lock count.
func (t *Table) NodeMatch(addr []byte) *Node {
	var best *Node
	n := t.root
	maxBits := t.AFI.MaxBits()
	for b := 0; b < maxBits; b++ {
		if n.routes != nil {
			best = n
		}
		var next *Node
		if bit(addr, b) == 0 {
			next = n.left
		} else {
			next = n.right
		}
		if next == nil {
			break
		}
		n = next
	}
	if n.routes != nil {
		best = n
	}
	return best
}

// InfoAdd prepends info to node's Route-Info list and increments info's
// peer refcount (spec ยง4.3). Node.Refcount() reflects the new route
// automatically since it is computed from the list length.
func (n *Node) InfoAdd(info *RouteInfo) {
	info.node = n
	info.next = n.routes
	if n.routes != nil {
		n.routes.prev = info
	}
	n.routes = info
	if info.Peer != nil {
		info.Peer.IncRef()
	}
}

// InfoDelete unlinks info from its node's list, decrements its peer's
// refcount, and releases its interned attribute set. Per spec ยง4.3,
// info's own refcount field is not meaningful here: a Route-Info is
// owned by exactly one node's list at a time (spec ยง3's "at most one
// entry per (peer, AFI, SAFI) triple"), so detaching it always releases
// its resources.
func (t *Table) InfoDelete(ctx *attrs.Context, info *RouteInfo) {
	if info.prev != nil {
		info.prev.next = info.next
	} else if info.node != nil {
		info.node.routes = info.next
	}
	if info.next != nil {
		info.next.prev = info.prev
	}
	info.prev, info.next = nil, nil

	ctx.Unintern(info.Attrs)
	if info.Peer != nil {
		info.Peer.DecRef()
	}
}

// FindRouteInfo searches node's Route-Info list for an entry matching
// (peer, afi, safi), per spec ยง3's uniqueness invariant.
func (n *Node) FindRouteInfo(peer PeerHandle, afi wire.Family, safi uint8) *RouteInfo {
	for r := n.routes; r != nil; r = r.next {
		if r.Peer == peer && r.AFI == afi && r.SAFI == safi {
			return r
		}
	}
	return nil
}

// UnlockNode decrements node's outstanding-lock count; if the resulting
// Refcount is zero (no routes, no children, no remaining locks) the node
// is pruned and the prune propagates toward the root.
func (t *Table) UnlockNode(n *Node) {
	n.locks--
	t.pruneIfEmpty(n)
}

func (t *Table) pruneIfEmpty(n *Node) {
	for n != nil && n != t.root && n.Refcount() == 0 {
		parent := n.parent
		if parent == nil {
			return
		}
		if parent.left == n {
			parent.left = nil
		} else if parent.right == n {
			parent.right = nil
		}
		n = parent
	}
}

// NewRouteInfo constructs a Route-Info ready for InfoAdd, stamping its
// uptime.
func NewRouteInfo(peer PeerHandle, afi wire.Family, safi uint8, set *attrs.AttrSetHandle, now time.Time) *RouteInfo {
	return &RouteInfo{Peer: peer, AFI: afi, SAFI: safi, Attrs: set, Uptime: now}
}
