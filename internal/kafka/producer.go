// Package kafka wraps franz-go for bgpd's one Kafka integration point:
// publishing route events. The teacher's version of this package held
// two Kafka consumers (state, history); this core has no Kafka input
// path, so it carries only a producer, built with the same kgo.Client
// construction idiom.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpd/internal/update"
)

// RouteEvent is the wire-format record published for each Added or
// Withdrawn change in an update.Result, per spec ยง6's optional export
// surface.
type RouteEvent struct {
	Action    string    `json:"action"` // "add" or "withdraw"
	Prefix    string    `json:"prefix"`
	PeerASN   uint32    `json:"peer_asn"`
	Origin    *string   `json:"origin,omitempty"`
	ASPath    string    `json:"as_path,omitempty"`
	NextHop   string    `json:"next_hop,omitempty"`
	MED       *uint32   `json:"med,omitempty"`
	LocalPref *uint32   `json:"local_pref,omitempty"`
	Observed  time.Time `json:"observed_at"`
}

// Producer publishes RouteEvents to a single Kafka topic. A nil
// *Producer is valid and PublishResult becomes a no-op, so callers need
// not branch on whether export.kafka.enabled.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// NewProducer builds a Producer against brokers, or returns (nil, nil)
// if brokers is empty (export disabled).
func NewProducer(brokers []string, topic, clientID string, logger *zap.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: building producer client: %w", err)
	}
	return &Producer{client: client, topic: topic, logger: logger}, nil
}

// Ready reports whether the producer is present and able to serve
// httpapi's /readyz check. A nil Producer (export disabled) reports
// ready, since its absence isn't a degraded state.
func (p *Producer) Ready() bool {
	return p == nil || p.client != nil
}

// PublishResult emits one RouteEvent per Added and Withdrawn change in
// result, fire-and-forget per spec ยง6 (export failures are logged, not
// fatal to the session).
func (p *Producer) PublishResult(ctx context.Context, peerASN uint32, result *update.Result) {
	if p == nil {
		return
	}
	now := time.Now()
	for _, change := range result.Added {
		p.publish(ctx, routeEventFromChange(peerASN, change, now))
	}
	for _, change := range result.Withdrawn {
		p.publish(ctx, RouteEvent{Action: "withdraw", Prefix: change.Prefix.String(), PeerASN: peerASN, Observed: now})
	}
}

func routeEventFromChange(peerASN uint32, change update.Change, now time.Time) RouteEvent {
	set := change.Set.Value
	ev := RouteEvent{
		Action:    "add",
		Prefix:    change.Prefix.String(),
		PeerASN:   peerASN,
		NextHop:   set.NextHop.String(),
		MED:       set.MED,
		LocalPref: set.LocalPref,
		Observed:  now,
	}
	origin := originString(set.Origin)
	ev.Origin = &origin
	if set.ASPath != nil {
		ev.ASPath = set.ASPath.Value.String()
	}
	return ev
}

func originString(origin uint8) string {
	switch origin {
	case 0:
		return "igp"
	case 1:
		return "egp"
	case 2:
		return "incomplete"
	default:
		return fmt.Sprintf("unknown(%d)", origin)
	}
}

func (p *Producer) publish(ctx context.Context, ev RouteEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("kafka: marshaling route event", zap.Error(err))
		return
	}
	record := &kgo.Record{Topic: p.topic, Value: payload}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("kafka: producing route event", zap.Error(err))
		}
	})
}

// Close flushes and closes the underlying Kafka client.
func (p *Producer) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}
