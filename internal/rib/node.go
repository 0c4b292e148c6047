// Package rib implements the per-(AFI, SAFI) prefix trie described in
// spec ยง4.3: a refcounted binary trie of nodes, each carrying a
// doubly-linked list of Route-Info entries (one per origin peer).
//
// Grounded in transitorykris-kbgp/radix/radix.go's node/edge shape,
// generalized from a compressed edge-list radix tree to a one-bit-per-
// level binary trie because spec ยง4.3's invariants (node_get creates
// missing ancestors one bit at a time, refcount = children + routes +
// locks) assume exactly that structure.
package rib

import (
	"time"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/wire"
)

// PeerHandle is the non-owning back-reference target a Route-Info holds
// to its originating peer (spec ยง9 design note: "peer.lock... is
// diagnostic, not functional"). rib never imports the session package;
// internal/session's Peer type satisfies this interface so RIB
// operations can maintain the peer refcount spec ยง4.3 describes without
// a dependency cycle.
type PeerHandle interface {
	IncRef()
	DecRef()
}

// RouteInfo is one route held at a Node: the attribute set a peer
// advertised for that prefix, per spec ยง3.
type RouteInfo struct {
	Peer     PeerHandle
	AFI      wire.Family
	SAFI     uint8
	Attrs    *attrs.AttrSetHandle
	Uptime   time.Time
	refcount int
	prev     *RouteInfo
	next     *RouteInfo
	node     *Node // back-pointer, for InfoDelete/UnlockNode bookkeeping
}

// Node is one prefix in the trie: spec ยง3's RIB Node.
//
// Its reference count is never stored directly; spec ยง4.3's invariant
// ("refcount(n) = children(n) + routes(n) + outstanding_locks(n)") is
// instead made true by construction: Refcount is computed from the
// child pointers and the Route-Info list that are already there, plus
// locks, an explicit count of outstanding NodeGet calls not yet paired
// with an UnlockNode.
type Node struct {
	Prefix wire.Prefix
	parent *Node
	left   *Node // bit 0
	right  *Node // bit 1
	locks  int
	routes *RouteInfo // head of the doubly-linked Route-Info list
}

// Refcount reports children(n) + routes(n) + outstanding_locks(n), per
// spec ยง4.3's invariant.
func (n *Node) Refcount() int { return n.children() + n.routeCount() + n.locks }

// Routes returns the head of the node's Route-Info list; walk via Next.
func (n *Node) Routes() *RouteInfo { return n.routes }

// Next returns the next Route-Info in the node's list, or nil at the end.
func (r *RouteInfo) Next() *RouteInfo { return r.next }

// bit returns the value of the b-th bit (0-indexed from the most
// significant bit) of addr.
func bit(addr []byte, b int) int {
	byteIdx := b / 8
	if byteIdx >= len(addr) {
		return 0
	}
	shift := 7 - uint(b%8)
	return int((addr[byteIdx] >> shift) & 1)
}

// children reports how many of n's child pointers are non-nil, for the
// refcount invariant in spec ยง4.3.
func (n *Node) children() int {
	c := 0
	if n.left != nil {
		c++
	}
	if n.right != nil {
		c++
	}
	return c
}

// routeCount reports how many Route-Info entries are attached to n.
func (n *Node) routeCount() int {
	c := 0
	for r := n.routes; r != nil; r = r.next {
		c++
	}
	return c
}
