// Package omnode wires the gossip membership set, the OM(m) consensus
// engine, the admin surface, and the reactor into a single runnable
// node: one constructor builds every constituent piece and returns a
// handle exposing Run/Addr/accessor methods.
package omnode

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/omnode/omnode/internal/admin"
	"github.com/omnode/omnode/internal/config"
	"github.com/omnode/omnode/internal/consensus"
	"github.com/omnode/omnode/internal/eventqueue"
	"github.com/omnode/omnode/internal/gossip"
	"github.com/omnode/omnode/internal/metrics"
	"github.com/omnode/omnode/internal/peertable"
	"github.com/omnode/omnode/internal/reactor"
	"github.com/omnode/omnode/internal/transport"
	"github.com/omnode/omnode/internal/validate"
	"github.com/omnode/omnode/internal/wordvector"
)

// Node is a fully wired omnode instance: bound sockets, the peer table,
// word vector, gossip and consensus engines, admin surface, and the
// reactor that drives them all.
type Node struct {
	cfg       *config.Config
	conn      *net.UDPConn
	tcp       *net.TCPListener
	peers     *peertable.Table
	words     *wordvector.Vector
	queue     *eventqueue.Queue
	gossip    *gossip.Engine
	consensus *consensus.Engine
	admin     *admin.Handler
	reactor   *reactor.Reactor
	metrics   *metrics.Metrics
	selfKey   string
}

// New binds the configured sockets and wires every component together.
// log must already be configured (level, handler) by the caller.
func New(cfg *config.Config, name string, log *slog.Logger, version, goVersion string) (*Node, error) {
	host, err := config.LocalHost()
	if err != nil {
		return nil, fmt.Errorf("omnode: resolve local host: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.Network.PeerPort})
	if err != nil {
		return nil, fmt.Errorf("omnode: bind peer socket: %w", err)
	}
	tcp, err := net.ListenTCP("tcp", &net.TCPAddr{Port: cfg.Network.ClientPort})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("omnode: bind admin listener: %w", err)
	}

	peerPort := conn.LocalAddr().(*net.UDPAddr).Port
	selfKey, err := validate.PeerKeyFromHostPort(host, peerPort)
	if err != nil {
		conn.Close()
		tcp.Close()
		return nil, fmt.Errorf("omnode: local identity: %w", err)
	}

	peers := peertable.New(selfKey, cfg.Discovery.PeerTTL)
	for _, wellKnown := range cfg.Discovery.WellKnownHosts {
		key, err := validate.PeerKeyFromHostPort(wellKnown, config.CanonicalPeerPort)
		if err != nil {
			continue
		}
		peers.Upsert(key, peertable.Peer{Host: wellKnown, Port: config.CanonicalPeerPort, Name: config.WellKnownName})
	}

	vec := wordvector.New()
	words := &vec
	queue := eventqueue.New()
	m := metrics.New(version, goVersion)
	sender := transport.New(conn)

	g := gossip.New(cfg.Gossip, selfKey, host, peerPort, name, peers, words, sender, m, log)
	c := consensus.New(cfg.Consensus, selfKey, host, peerPort, words, peers, queue, sender, m, log)
	a := admin.New(peers, words, c)

	r := reactor.New(conn, tcp, peers, queue, g, c, a, cfg.Gossip.Interval, log)

	return &Node{
		cfg:       cfg,
		conn:      conn,
		tcp:       tcp,
		peers:     peers,
		words:     words,
		queue:     queue,
		gossip:    g,
		consensus: c,
		admin:     a,
		reactor:   r,
		metrics:   m,
		selfKey:   selfKey,
	}, nil
}

// Addr returns the node's bound peer (UDP) and admin (TCP) addresses.
func (n *Node) Addr() (peer, adminAddr net.Addr) {
	return n.conn.LocalAddr(), n.tcp.LocalAddr()
}

// SelfKey returns this node's host:port identity key.
func (n *Node) SelfKey() string {
	return n.selfKey
}

// Metrics returns the node's Prometheus collectors, for an optional
// /metrics HTTP exporter.
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// Run drives the reactor until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	n.reactor.Run(ctx)
}
