package session

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/metrics"
	"github.com/route-beacon/bgpd/internal/rib"
)

// ManagerConfig configures the accept loop (spec ยง4.5 "Listen").
type ManagerConfig struct {
	ListenAddr string // host:port; empty host binds all interfaces
	MaxPeers   int    // reported as the backlog in the listen log line
	Session    Config
}

// Manager owns the listener and the long-lived RIB/attribute state that
// survives across peer connections. This core supports one active peer
// at a time (spec ยง5). MaxPeers is only logged as the backlog: the
// listener is opened with net.ListenConfig, which does not take a
// backlog, so the kernel's default accept backlog applies. Serve uses an
// `errgroup` to pair a listener-close goroutine with the accept loop;
// sessions themselves run one at a time on the accept loop, per spec
// ยง5's single-worker model.
//
// Multi-peer support is a documented, unimplemented extension point
// (spec ยง5's redesign note): a future Manager could hold one *Session
// per remote address with a serialized commit into the shared RIB
// instead of accepting one connection at a time.
type Manager struct {
	cfg       ManagerConfig
	logger    *zap.Logger
	ctx       *attrs.Context
	ribSet    *rib.Set
	listening atomic.Bool
	current   atomic.Pointer[Session]
}

// Listening reports whether the accept loop currently holds its
// listener open, for httpapi's /readyz check.
func (m *Manager) Listening() bool {
	return m.listening.Load()
}

// RIBSet exposes the long-lived RIB state for read-only consumers like
// the snapshot writer. Safe for concurrent reads between peer sessions;
// concurrent with an active session's writes it is best-effort, same as
// any other live RIB snapshot.
func (m *Manager) RIBSet() *rib.Set { return m.ribSet }

// CurrentPeerASN reports the negotiated ASN of the currently connected
// peer, or 0 when idle (spec ยง5's single-peer-at-a-time model).
func (m *Manager) CurrentPeerASN() uint32 {
	if s := m.current.Load(); s != nil {
		return s.PeerASN()
	}
	return 0
}

// CapturedUpdates returns the currently connected session's captured raw
// UPDATE payloads, or nil if no session is active. Backs
// internal/httpapi's /debug/captured-updates endpoint.
func (m *Manager) CapturedUpdates() ([][]byte, error) {
	s := m.current.Load()
	if s == nil {
		return nil, nil
	}
	return s.CapturedUpdates()
}

// NewManager builds a Manager with fresh, empty RIB/attribute state.
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger,
		ctx:    attrs.NewContext(),
		ribSet: rib.NewSet(),
	}
}

// Serve listens on cfg.ListenAddr and repeatedly accepts, runs, and
// tears down one peer session at a time until ctx is cancelled.
func (m *Manager) Serve(ctx context.Context) error {
	backlog := m.cfg.MaxPeers
	if backlog <= 0 {
		backlog = 1
	}
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", m.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("session: listen on %s: %w", m.cfg.ListenAddr, err)
	}
	defer ln.Close()

	m.listening.Store(true)
	defer m.listening.Store(false)

	m.logger.Info("listening for BGP peers", zap.String("addr", m.cfg.ListenAddr), zap.Int("backlog", backlog))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	group.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("session: accept: %w", err)
			}
			m.serveOne(conn)
		}
	})
	return group.Wait()
}

// serveOne runs a single peer connection to completion and tears its
// RIB state down afterward, per spec ยง4.5's "any -> Idle" transition.
func (m *Manager) serveOne(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logger := m.logger.Named("peer").With(zap.String("remote", remote))

	sess, err := newSession(conn, m.ctx, m.ribSet, m.cfg.Session, logger)
	if err != nil {
		logger.Error("failed to initialize session", zap.Error(err))
		conn.Close()
		return
	}

	m.current.Store(sess)
	result := sess.run()
	m.current.Store(nil)
	conn.Close()

	metrics.SessionsTotal.WithLabelValues(result.reason).Inc()
	metrics.SessionState.DeleteLabelValues(remote)
	m.refreshRIBMetrics()

	if result.err != nil {
		m.logger.Info("peer session ended", zap.String("reason", result.reason), zap.Error(result.err), zap.String("remote", remote))
	} else {
		m.logger.Info("peer session ended", zap.String("reason", result.reason), zap.String("remote", remote))
	}

	m.teardown()
}

// teardown releases every Route-Info in every RIB table and
// reinitializes empty tables, per spec ยง4.5 and ยง7's peer-close
// contract. The attribute-interning tables are expected to be empty
// afterward too (spec ยง8 invariant 2), since TableFinish un-interns
// every attached attribute set.
func (m *Manager) teardown() {
	m.ribSet.IPv4Unicast.TableFinish(m.ctx)
	m.ribSet.IPv6Unicast.TableFinish(m.ctx)

	metrics.RIBPrefixes.WithLabelValues("ipv4", "unicast").Set(0)
	metrics.RIBPrefixes.WithLabelValues("ipv6", "unicast").Set(0)
	metrics.InternedAttrSets.WithLabelValues("attr_sets").Set(float64(m.ctx.AttrSets.Len()))
	metrics.InternedAttrSets.WithLabelValues("as_paths").Set(float64(m.ctx.ASPaths.Len()))
	metrics.InternedAttrSets.WithLabelValues("communities").Set(float64(m.ctx.Communities.Len()))
	metrics.InternedAttrSets.WithLabelValues("ext_communities").Set(float64(m.ctx.ExtCommunities.Len()))
	metrics.InternedAttrSets.WithLabelValues("large_communities").Set(float64(m.ctx.LargeCommunities.Len()))
}

// refreshRIBMetrics snapshots current prefix counts; called after every
// session ends, before teardown clears the tables.
func (m *Manager) refreshRIBMetrics() {
	metrics.RIBPrefixes.WithLabelValues("ipv4", "unicast").Set(float64(m.ribSet.IPv4Unicast.PrefixCount()))
	metrics.RIBPrefixes.WithLabelValues("ipv6", "unicast").Set(float64(m.ribSet.IPv6Unicast.PrefixCount()))
}
