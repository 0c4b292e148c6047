package session

// peerRef is the refcounted back-reference target a RIB Route-Info
// holds to this session's peer (rib.PeerHandle). Per spec ยง9 design
// note, the count itself is diagnostic: it lets TableFinish's release
// walk balance against InfoAdd's IncRef, but nothing reads it to decide
// liveness (a session owns exactly one peer and tears it down as a
// unit).
type peerRef struct {
	refcount int
}

func (p *peerRef) IncRef() { p.refcount++ }
func (p *peerRef) DecRef() { p.refcount-- }

// Refcount reports the current count, for tests and diagnostics.
func (p *peerRef) Refcount() int { return p.refcount }
