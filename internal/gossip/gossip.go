// Package gossip implements periodic membership announcement and
// duplicate-suppressed inbound handling: a node announces itself to a
// random subset of known peers, and replies to any peer it hears from
// for the first time so discovery converges in both directions without
// a broadcast storm.
package gossip

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/omnode/omnode/internal/config"
	"github.com/omnode/omnode/internal/metrics"
	"github.com/omnode/omnode/internal/peertable"
	"github.com/omnode/omnode/internal/validate"
	"github.com/omnode/omnode/internal/wire"
	"github.com/omnode/omnode/internal/wordvector"
)

// Sender abstracts the single outbound UDP socket the reactor owns, so
// Engine stays free of net.Conn and is trivial to unit test.
type Sender interface {
	SendTo(host string, port int, env wire.Envelope) error
}

// Engine owns gossip's two pieces of state: the peer table (shared with
// the rest of the node) and the bounded set of message IDs already seen.
// Not safe for concurrent use — owned by the single reactor goroutine.
type Engine struct {
	self    string
	host    string
	port    int
	name    string
	fanout  int
	peers   *peertable.Table
	seen    *seenSet
	sender  Sender
	metrics *metrics.Metrics
	log     *slog.Logger
	words   *wordvector.Vector
}

// New builds an Engine. host/port/name are this node's own advertised
// identity; words is the shared word vector used to answer QUERY probes,
// a read-only discovery aid recovered from the original source.
func New(cfg config.GossipConfig, selfKey, host string, port int, name string, peers *peertable.Table, words *wordvector.Vector, sender Sender, m *metrics.Metrics, log *slog.Logger) *Engine {
	fanout := cfg.Fanout
	if fanout <= 0 {
		fanout = 5
	}
	cacheSize := cfg.SeenCacheSize
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	return &Engine{
		self:    selfKey,
		host:    host,
		port:    port,
		name:    name,
		fanout:  fanout,
		peers:   peers,
		seen:    newSeenSet(cacheSize),
		sender:  sender,
		metrics: m,
		log:     log,
		words:   words,
	}
}

// Announce fires on the gossip timer: it samples up to Fanout peers and
// emits a fresh-messageID GOSSIP datagram to each.
func (e *Engine) Announce() {
	targets := e.peers.Sample(e.fanout)
	for _, p := range targets {
		env := wire.Envelope{
			Command:   wire.CmdGossip,
			Host:      e.host,
			Port:      e.port,
			Name:      e.name,
			MessageID: uuid.New().String(),
		}
		if err := e.sender.SendTo(p.Host, p.Port, env); err != nil {
			e.log.Warn("gossip announce failed", "peer", fmt.Sprintf("%s:%d", p.Host, p.Port), "error", err)
			continue
		}
		e.metrics.MessagesSentTotal.WithLabelValues(wire.CmdGossip).Inc()
	}
}

// HandleGossip processes an inbound GOSSIP datagram.
func (e *Engine) HandleGossip(env wire.Envelope) {
	e.metrics.MessagesReceivedTotal.WithLabelValues(wire.CmdGossip).Inc()
	e.metrics.GossipReceivedTotal.Inc()

	if e.seen.Contains(env.MessageID) {
		return // duplicate, silently absorbed
	}
	e.seen.Add(env.MessageID)

	key, err := validate.PeerKeyFromHostPort(env.Host, env.Port)
	if err != nil {
		e.log.Debug("dropping gossip with malformed peer address", "host", env.Host, "port", env.Port, "error", err)
		return
	}
	if e.peers.IsSelf(key) {
		return // self-gossip, silently absorbed
	}

	isNew := e.peers.Upsert(key, peertable.Peer{Host: env.Host, Port: env.Port, Name: env.Name})
	if !isNew {
		return
	}

	reply := wire.Envelope{
		Command: wire.CmdGossipReply,
		Host:    e.host,
		Port:    e.port,
		Name:    e.name,
	}
	if err := e.sender.SendTo(env.Host, env.Port, reply); err != nil {
		e.log.Warn("gossip reply failed", "peer", key, "error", err)
		return
	}
	e.metrics.MessagesSentTotal.WithLabelValues(wire.CmdGossipReply).Inc()
}

// HandleGossipReply processes an inbound GOSSIP_REPLY: a reply never
// itself produces a reply.
func (e *Engine) HandleGossipReply(env wire.Envelope) {
	e.metrics.MessagesReceivedTotal.WithLabelValues(wire.CmdGossipReply).Inc()

	key, err := validate.PeerKeyFromHostPort(env.Host, env.Port)
	if err != nil {
		e.log.Debug("dropping gossip reply with malformed peer address", "host", env.Host, "port", env.Port, "error", err)
		return
	}
	if e.peers.IsSelf(key) {
		return
	}
	e.peers.Upsert(key, peertable.Peer{Host: env.Host, Port: env.Port, Name: env.Name})
}

// HandleQuery answers a read-only probe of the current word vector with
// a QUERY-REPLY, mirroring the original source's database dump on
// inbound query.
func (e *Engine) HandleQuery(env wire.Envelope) {
	e.metrics.MessagesReceivedTotal.WithLabelValues(wire.CmdQuery).Inc()

	reply := wire.Envelope{
		Command:  wire.CmdQueryReply,
		Database: e.words.Slice(),
	}
	if err := e.sender.SendTo(env.Host, env.Port, reply); err != nil {
		e.log.Warn("query reply failed", "peer", fmt.Sprintf("%s:%d", env.Host, env.Port), "error", err)
		return
	}
	e.metrics.MessagesSentTotal.WithLabelValues(wire.CmdQueryReply).Inc()
}
