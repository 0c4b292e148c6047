package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpd/internal/attrs"
	"github.com/route-beacon/bgpd/internal/kafka"
	"github.com/route-beacon/bgpd/internal/metrics"
	"github.com/route-beacon/bgpd/internal/rib"
	"github.com/route-beacon/bgpd/internal/update"
	"github.com/route-beacon/bgpd/internal/wire"
)

// keepaliveFraction is how the negotiated hold-time is divided to derive
// the KEEPALIVE heartbeat interval once Established (supplemented per
// SPEC_FULL.md ยง5.5, grounded in original_source/src/bgp/bgp.c sending a
// KEEPALIVE every hold-time/3).
const keepaliveFraction = 3

// Config is the per-session configuration a Session needs from the
// host's config.Config (spec ยง6's configuration interface).
type Config struct {
	LocalASN          uint32
	RouterID          net.IP
	LogUpdates        bool
	CaptureMaxEntries int
	CaptureCompress   bool
	Export            *kafka.Producer // nil disables route-event export
}

// readResult carries the outcome of a terminal event, for logging by the
// caller (Manager).
type readResult struct {
	reason string
	err    error
}

// Session drives one accepted TCP connection through the FSM of spec
// ยง4.5. It is not safe for concurrent use; exactly one goroutine may
// call run, per spec ยง5's single-worker model.
type Session struct {
	conn   net.Conn
	logger *zap.Logger
	ctx    *attrs.Context
	ribSet *rib.Set
	cfg    Config
	remote string

	state           State
	peer            peerRef
	peerASN         uint32
	supports4ByteAS bool
	holdTime        time.Duration
	capture         *captureBuffer

	reasm *reassembler
}

// newSession constructs a Session ready to run against an already
// accepted connection.
func newSession(conn net.Conn, ctx *attrs.Context, ribSet *rib.Set, cfg Config, logger *zap.Logger) (*Session, error) {
	capture, err := newCaptureBuffer(cfg.CaptureMaxEntries, cfg.CaptureCompress)
	if err != nil {
		return nil, err
	}
	return &Session{
		conn:    conn,
		logger:  logger,
		ctx:     ctx,
		ribSet:  ribSet,
		cfg:     cfg,
		remote:  conn.RemoteAddr().String(),
		state:   Idle,
		reasm:   newReassembler(),
		capture: capture,
	}, nil
}

// State reports the session's current FSM state.
func (s *Session) State() State { return s.state }

// PeerASN reports the negotiated remote ASN, or 0 before OPEN completes.
func (s *Session) PeerASN() uint32 { return s.peerASN }

// CapturedUpdates returns every raw UPDATE payload currently retained by
// this session's diagnostic capture buffer, oldest first, or an empty
// list if capture is disabled (cfg.CaptureMaxEntries <= 0).
func (s *Session) CapturedUpdates() ([][]byte, error) {
	if s.capture == nil {
		return nil, nil
	}
	return s.capture.Entries()
}

// setState transitions the FSM and mirrors the new state into the
// bgpd_session_state gauge for this peer (SPEC_FULL.md ยง2 item 8).
func (s *Session) setState(state State) {
	s.state = state
	metrics.SessionState.WithLabelValues(s.remote).Set(float64(state))
}

// run drives the per-connection loop until a terminal event (spec
// ยง4.5's "any -> Idle" transition): NOTIFICATION, a malformed message,
// or a socket error. It never returns a nil error; the reason string
// distinguishes the three per spec ยง7's logging levels.
func (s *Session) run() readResult {
	readBuf := make([]byte, 4096)
	var holdDeadline, keepaliveDeadline time.Time

	for {
		deadline := nextDeadline(holdDeadline, keepaliveDeadline)
		if !deadline.IsZero() {
			if err := s.conn.SetReadDeadline(deadline); err != nil {
				return readResult{"transient I/O", err}
			}
		}

		n, err := s.conn.Read(readBuf)
		if err != nil {
			if isTimeout(err) && !holdDeadline.IsZero() {
				now := time.Now()
				if !now.Before(holdDeadline) {
					return readResult{"hold timer expired", fmt.Errorf("session: no message received within hold-time %s", s.holdTime)}
				}
				// Not a hold expiry: time to send a heartbeat KEEPALIVE.
				if s.state == Established {
					if werr := s.sendKeepalive(); werr != nil {
						return readResult{"transient I/O", werr}
					}
				}
				keepaliveDeadline = time.Now().Add(s.holdTime / keepaliveFraction)
				continue
			}
			return readResult{"socket error", err}
		}
		if n == 0 {
			return readResult{"socket error", errors.New("session: peer closed connection")}
		}

		frames, ferr := s.reasm.feed(readBuf[:n])
		for _, frame := range frames {
			if done, reason, herr := s.handleFrame(frame); done {
				return readResult{reason, herr}
			}
		}
		if ferr != nil {
			return readResult{"malformed message", ferr}
		}

		if s.holdTime != 0 {
			holdDeadline = time.Now().Add(s.holdTime)
			if keepaliveDeadline.IsZero() {
				keepaliveDeadline = time.Now().Add(s.holdTime / keepaliveFraction)
			}
		}
	}
}

func nextDeadline(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// handleFrame dispatches one fully-framed message by type, per spec
// ยง4.5. done reports a terminal event; reason/err describe it for the
// caller's log line.
func (s *Session) handleFrame(f wire.Frame) (done bool, reason string, err error) {
	switch f.Type {
	case wire.MsgTypeOpen:
		return s.handleOpen(f.Payload)
	case wire.MsgTypeKeepalive:
		return s.handleKeepalive()
	case wire.MsgTypeUpdate:
		return s.handleUpdate(f.Payload)
	case wire.MsgTypeNotification:
		return s.handleNotification(f.Payload)
	default:
		return true, "malformed message", fmt.Errorf("session: unknown message type %d", f.Type)
	}
}

func (s *Session) handleOpen(payload []byte) (done bool, reason string, err error) {
	if s.state != Idle {
		return true, "FSM error", fmt.Errorf("session: unexpected OPEN in state %s", s.state)
	}
	s.setState(Active)

	peerOpen, derr := decodeOpen(payload)
	if derr != nil {
		metrics.ParseErrorsTotal.WithLabelValues("open").Inc()
		return true, "malformed message", derr
	}
	if peerOpen.Version != bgpVersion {
		return true, "unsupported", fmt.Errorf("session: unsupported BGP version %d", peerOpen.Version)
	}
	asn, rerr := reconcileRemoteASN(peerOpen)
	if rerr != nil {
		metrics.ParseErrorsTotal.WithLabelValues("open").Inc()
		return true, "malformed message", rerr
	}

	reply, berr := buildOpenReply(s.cfg.LocalASN, s.cfg.RouterID, effectiveHoldTime(peerOpen.HoldTime), peerOpen)
	if berr != nil {
		return true, "unsupported", berr
	}
	if _, werr := s.conn.Write(reply); werr != nil {
		return true, "transient I/O", werr
	}
	if werr := s.sendKeepalive(); werr != nil {
		return true, "transient I/O", werr
	}

	s.peerASN = asn
	s.supports4ByteAS = peerOpen.FourByteAS
	s.holdTime = time.Duration(effectiveHoldTime(peerOpen.HoldTime)) * time.Second
	s.setState(OpenSent)

	s.logger.Info("OPEN negotiated",
		zap.Uint32("peer_asn", s.peerASN),
		zap.String("router_id", peerOpen.RouterID.String()),
		zap.Duration("hold_time", s.holdTime),
		zap.Bool("four_byte_as", s.supports4ByteAS),
		zap.Bool("multiprotocol", peerOpen.MPCapable),
	)
	return false, "", nil
}

func (s *Session) handleKeepalive() (done bool, reason string, err error) {
	if s.state != OpenSent && s.state != Established {
		return true, "FSM error", fmt.Errorf("session: unexpected KEEPALIVE in state %s", s.state)
	}
	if werr := s.sendKeepalive(); werr != nil {
		return true, "transient I/O", werr
	}
	if s.state == OpenSent {
		s.setState(Established)
		s.logger.Info("session established", zap.Uint32("peer_asn", s.peerASN))
	}
	return false, "", nil
}

func (s *Session) handleUpdate(payload []byte) (done bool, reason string, err error) {
	if s.state != Established {
		return true, "FSM error", fmt.Errorf("session: unexpected UPDATE in state %s", s.state)
	}
	if s.capture != nil {
		s.capture.Record(payload)
	}

	peer := update.Peer{ASN: s.peerASN, Supports4ByteAS: s.supports4ByteAS, Handle: &s.peer}
	result, perr := update.ParseUpdate(s.ctx, s.ribSet, peer, payload, update.Options{LocalASN: s.cfg.LocalASN})
	if perr != nil {
		metrics.ParseErrorsTotal.WithLabelValues("update").Inc()
		return true, "malformed message", perr
	}
	for _, w := range result.Warnings {
		metrics.AttributeWarningsTotal.WithLabelValues(fmt.Sprintf("%d", w.AttrType)).Inc()
		s.logger.Warn("attribute warning", zap.Uint8("attr_type", w.AttrType), zap.String("detail", w.Msg))
	}
	for _, change := range result.Added {
		metrics.RouteChurnTotal.WithLabelValues(afiLabel(change.Prefix), "add").Inc()
	}
	for _, change := range result.Withdrawn {
		metrics.RouteChurnTotal.WithLabelValues(afiLabel(change.Prefix), "withdraw").Inc()
	}
	if s.cfg.LogUpdates {
		s.logRouteChanges(result)
	}
	s.cfg.Export.PublishResult(context.Background(), s.peerASN, result)
	return false, "", nil
}

// afiLabel renders a prefix's address family as a metric label.
func afiLabel(p wire.Prefix) string {
	if p.Family == wire.FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

func (s *Session) logRouteChanges(result *update.Result) {
	for _, change := range result.Added {
		aspath, comms, ecomms := attrFields(change.Set)
		s.logger.Info(fmt.Sprintf("u Prefix: '%s' Path: '%s' Comms: '%s' EComms: '%s'",
			change.Prefix.String(), aspath, comms, ecomms))
	}
	for _, change := range result.Withdrawn {
		aspath, comms, ecomms := attrFields(change.Set)
		s.logger.Info(fmt.Sprintf("w Prefix: '%s' Path: '%s' Comms: '%s' EComms: '%s'",
			change.Prefix.String(), aspath, comms, ecomms))
	}
}

// attrFields renders the Path/Comms/EComms fields spec ยง6's log-updates
// format names. set is nil for a withdraw of a prefix this core held no
// Route-Info for, which renders all three as empty.
func attrFields(set *attrs.AttrSetHandle) (aspath, comms, ecomms string) {
	if set == nil {
		return "", "", ""
	}
	v := set.Value
	if v.ASPath != nil {
		aspath = v.ASPath.Value.String()
	}
	if v.Community != nil {
		comms = v.Community.Value.String()
	}
	if v.ExtCommunity != nil {
		ecomms = v.ExtCommunity.Value.String()
	}
	return aspath, comms, ecomms
}

func (s *Session) handleNotification(payload []byte) (done bool, reason string, err error) {
	notif, derr := decodeNotification(payload)
	if derr != nil {
		metrics.ParseErrorsTotal.WithLabelValues("notification").Inc()
		return true, "malformed message", derr
	}
	return true, "NOTIFICATION received", fmt.Errorf("session: peer sent %s", notif.String())
}

func (s *Session) sendKeepalive() error {
	_, err := s.conn.Write(wire.EncodeMessage(wire.MsgTypeKeepalive, nil))
	return err
}
