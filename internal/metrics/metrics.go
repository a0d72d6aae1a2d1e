// Package metrics exposes omnode's Prometheus collectors on an isolated
// registry: one struct holding every collector, registered once at
// construction, with a Handler method for the optional HTTP exporter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all omnode Prometheus collectors on an isolated registry
// so they never collide with the global default registry.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesSentTotal     *prometheus.CounterVec
	MessagesReceivedTotal *prometheus.CounterVec

	// GossipReceivedTotal folds the bespoke per-message counters the
	// original source printed to stdout into a single Prometheus counter.
	GossipReceivedTotal prometheus.Counter

	PeerTableSize *prometheus.GaugeVec

	ConsensusRoundsStarted  prometheus.Counter
	ConsensusRoundsDecided  *prometheus.CounterVec
	ConsensusRoundsTimedOut prometheus.Counter
	ConsensusRepliesTotal   *prometheus.CounterVec

	LiesEmittedTotal prometheus.Counter

	BuildInfo *prometheus.GaugeVec
}

// New creates a Metrics instance with all collectors registered on a
// fresh registry. version and goVersion are recorded as labels on the
// omnode_info gauge.
func New(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnode_messages_sent_total",
				Help: "Total number of wire messages sent, by command.",
			},
			[]string{"command"},
		),
		MessagesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnode_messages_received_total",
				Help: "Total number of wire messages received, by command.",
			},
			[]string{"command"},
		),
		GossipReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "omnode_gossip_received_total",
				Help: "Total number of inbound GOSSIP datagrams, including duplicates.",
			},
		),
		PeerTableSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "omnode_peer_table_size",
				Help: "Number of entries currently held in the peer table.",
			},
			[]string{"node"},
		),
		ConsensusRoundsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "omnode_consensus_rounds_started_total",
				Help: "Total number of consensus rounds initiated.",
			},
		),
		ConsensusRoundsDecided: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnode_consensus_rounds_decided_total",
				Help: "Total number of consensus rounds that reached a decision, by outcome.",
			},
			[]string{"outcome"},
		),
		ConsensusRoundsTimedOut: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "omnode_consensus_rounds_timed_out_total",
				Help: "Total number of consensus rounds that decided only after the due deadline elapsed with replies outstanding.",
			},
		),
		ConsensusRepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnode_consensus_replies_total",
				Help: "Total number of consensus replies received, by OM depth.",
			},
			[]string{"om"},
		),
		LiesEmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "omnode_lies_emitted_total",
				Help: "Total number of outbound consensus replies replaced with the lie sentinel by the lying policy.",
			},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "omnode_info",
				Help: "Build information for the running omnode instance.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesReceivedTotal,
		m.GossipReceivedTotal,
		m.PeerTableSize,
		m.ConsensusRoundsStarted,
		m.ConsensusRoundsDecided,
		m.ConsensusRoundsTimedOut,
		m.ConsensusRepliesTotal,
		m.LiesEmittedTotal,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)

	return m
}

// Handler returns an http.Handler serving this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
