// Package snapshot periodically persists the live RIB to Postgres, the
// same batched pgx.Batch write shape as the teacher's internal/history
// writer, generalized from per-event history rows to a full-table
// snapshot (SPEC_FULL.md ยง3's "optional persistence" component).
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpd/internal/rib"
	"github.com/route-beacon/bgpd/internal/wire"
)

// RIBSource is the read-only view snapshot needs from session.Manager.
type RIBSource interface {
	RIBSet() *rib.Set
	CurrentPeerASN() uint32
}

// Writer periodically truncates and repopulates the rib_snapshot table
// from the live in-memory RIB. It favors a full replace over incremental
// upserts: the in-memory RIB is always the source of truth and is small
// enough (one peer's worth of routes) that a full rewrite per interval
// is simpler and cannot drift.
type Writer struct {
	pool     *pgxpool.Pool
	source   RIBSource
	interval time.Duration
	logger   *zap.Logger
}

func NewWriter(pool *pgxpool.Pool, source RIBSource, interval time.Duration, logger *zap.Logger) *Writer {
	return &Writer{pool: pool, source: source, interval: interval, logger: logger}
}

// Ping satisfies httpapi.DBChecker.
func (w *Writer) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Run blocks, writing a full snapshot every interval until ctx is
// cancelled.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.writeOnce(ctx); err != nil {
				w.logger.Error("snapshot: write failed", zap.Error(err))
			}
		}
	}
}

type row struct {
	afi, safi string
	prefix    string
	peerASN   uint32
	origin    uint8
	asPath    string
	nextHop   string
	med       *uint32
	localPref *uint32
}

// collectRows snapshots every route currently held across both address
// families into flat rows, tagged with the currently connected peer's
// ASN (spec ยง5's single-peer-at-a-time model).
func collectRows(ribSet *rib.Set, peerASN uint32) []row {
	var rows []row
	collect := func(afi string, t *rib.Table) {
		t.ForEachRoute(func(prefix wire.Prefix, info *rib.RouteInfo) {
			set := info.Attrs.Value
			r := row{
				afi:       afi,
				safi:      "unicast",
				prefix:    prefix.String(),
				peerASN:   peerASN,
				origin:    set.Origin,
				nextHop:   set.NextHop.String(),
				med:       set.MED,
				localPref: set.LocalPref,
			}
			if set.ASPath != nil {
				r.asPath = set.ASPath.Value.String()
			}
			rows = append(rows, r)
		})
	}
	collect("ipv4", ribSet.IPv4Unicast)
	collect("ipv6", ribSet.IPv6Unicast)
	return rows
}

func (w *Writer) writeOnce(ctx context.Context) error {
	start := time.Now()
	rows := collectRows(w.source.RIBSet(), w.source.CurrentPeerASN())

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE rib_snapshot"); err != nil {
		return fmt.Errorf("snapshot: truncate: %w", err)
	}

	const insertSQL = `
		INSERT INTO rib_snapshot (afi, safi, prefix, peer_asn, origin, as_path, next_hop, med, local_pref, snapshotted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.afi, r.safi, r.prefix, r.peerASN, r.origin, r.asPath, r.nextHop, r.med, r.localPref)
	}
	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("snapshot: insert row: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("snapshot: closing batch results: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("snapshot: commit: %w", err)
	}

	w.logger.Info("snapshot written", zap.Int("rows", len(rows)), zap.Duration("took", time.Since(start)))
	return nil
}
