// Package metrics declares bgpd's prometheus instruments: session
// lifecycle, parse errors, RIB size, and route churn (SPEC_FULL.md ยง2
// item 8), registered once via Register and served by internal/httpapi.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_session_state",
			Help: "Current FSM state (0=Idle,1=Active,2=OpenSent,3=Established) of the active peer.",
		},
		[]string{"remote"},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_sessions_total",
			Help: "Peer sessions accepted, by termination reason.",
		},
		[]string{"reason"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_parse_errors_total",
			Help: "Fatal parse failures by stage (open, update, notification).",
		},
		[]string{"stage"},
	)

	AttributeWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_attribute_warnings_total",
			Help: "Non-fatal UPDATE attribute warnings, by attribute type.",
		},
		[]string{"attr_type"},
	)

	RIBPrefixes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_rib_prefixes",
			Help: "Distinct prefixes currently held, by (AFI, SAFI).",
		},
		[]string{"afi", "safi"},
	)

	RouteChurnTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_route_churn_total",
			Help: "Route adds and withdraws applied to the RIB.",
		},
		[]string{"afi", "action"},
	)

	InternedAttrSets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_interned_attribute_sets",
			Help: "Distinct entries currently held in each interning table.",
		},
		[]string{"table"},
	)
)

var registerOnce sync.Once

// Register registers every collector exactly once, safe to call from
// multiple subcommands (serve, validate-config) without panicking on
// repeat invocation within the same process.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SessionState,
			SessionsTotal,
			ParseErrorsTotal,
			AttributeWarningsTotal,
			RIBPrefixes,
			RouteChurnTotal,
			InternedAttrSets,
		)
	})
}
