// Package reactor drives omnode's single-threaded event loop: a
// datagram socket, an administrative listener, and any accepted
// administrative streams are all multiplexed onto one goroutine, which
// is the sole owner of every piece of mutable state in the node. I/O
// goroutines only forward bytes over channels; they hold no state of
// their own, so the single-writer ownership invariant holds without
// locks even though Go, unlike a single OS thread blocked in select(2),
// schedules several goroutines.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/omnode/omnode/internal/admin"
	"github.com/omnode/omnode/internal/consensus"
	"github.com/omnode/omnode/internal/eventqueue"
	"github.com/omnode/omnode/internal/gossip"
	"github.com/omnode/omnode/internal/peertable"
	"github.com/omnode/omnode/internal/wire"
)

const defaultReactorIdle = time.Second

// datagramRead is one UDP packet forwarded from the reader goroutine.
type datagramRead struct {
	addr *net.UDPAddr
	data []byte
}

// streamEvent is a line (or a close notification) from an accepted
// administrative connection.
type streamEvent struct {
	id     int
	line   string
	closed bool
}

// Reactor owns the node's sockets and dispatches everything onto a
// single goroutine (Run). Construct with New, then call Run.
type Reactor struct {
	conn       *net.UDPConn
	listener   *net.TCPListener
	peers      *peertable.Table
	queue      *eventqueue.Queue
	gossip     *gossip.Engine
	consensus  *consensus.Engine
	admin      *admin.Handler
	log        *slog.Logger

	gossipInterval time.Duration
	datagrams      chan datagramRead
	newStreams     chan *adminStream
	streamEvents   chan streamEvent
	streams        map[int]*adminStream
	nextStreamID   int
	runCtx         context.Context
}

// New builds a Reactor bound to the given datagram and listener sockets.
func New(conn *net.UDPConn, listener *net.TCPListener, peers *peertable.Table, queue *eventqueue.Queue, g *gossip.Engine, c *consensus.Engine, a *admin.Handler, gossipInterval time.Duration, log *slog.Logger) *Reactor {
	return &Reactor{
		conn:           conn,
		listener:       listener,
		peers:          peers,
		queue:          queue,
		gossip:         g,
		consensus:      c,
		admin:          a,
		log:            log,
		gossipInterval: gossipInterval,
		datagrams:      make(chan datagramRead, 64),
		newStreams:     make(chan *adminStream, 8),
		streamEvents:   make(chan streamEvent, 64),
		streams:        make(map[int]*adminStream),
	}
}

// Run drives the reactor until ctx is cancelled, then closes every
// socket and accepted stream exactly once.
func (r *Reactor) Run(ctx context.Context) {
	r.runCtx = ctx
	r.queue.Add(eventqueue.Gossip, time.Now().Add(r.gossipInterval), nil)

	go r.readDatagrams(ctx)
	go r.acceptStreams(ctx)

	for {
		timeout := r.queue.Timeout(time.Now(), defaultReactorIdle)
		timer := time.NewTimer(timeout)

		select {
		case <-ctx.Done():
			timer.Stop()
			r.shutdown()
			return

		case d := <-r.datagrams:
			timer.Stop()
			r.handleDatagram(d)

		case s := <-r.newStreams:
			timer.Stop()
			r.registerStream(s)

		case ev := <-r.streamEvents:
			timer.Stop()
			r.handleStreamEvent(ev)

		case <-timer.C:
		}

		r.sweepAndFire()
	}
}

func (r *Reactor) shutdown() {
	r.conn.Close()
	r.listener.Close()
	for _, s := range r.streams {
		s.conn.Close()
	}
}

// sweepAndFire expires peers, then fires any event whose deadline has
// passed.
func (r *Reactor) sweepAndFire() {
	r.peers.Sweep()

	now := time.Now()
	for _, ev := range r.queue.Due(now) {
		r.fireEvent(ev)
	}
}

func (r *Reactor) fireEvent(ev eventqueue.Event) {
	defer r.recoverHandler("event", ev.Name)

	switch ev.Name {
	case eventqueue.Gossip:
		r.gossip.Announce()
		r.queue.Renew(ev.ID, time.Now().Add(r.gossipInterval))
	case eventqueue.ConsensusDue:
		id, _ := ev.Payload.(string)
		r.consensus.OnDue(id)
	}
}

// handleDatagram decodes and dispatches one inbound peer datagram.
func (r *Reactor) handleDatagram(d datagramRead) {
	defer r.recoverHandler("datagram", d.addr.String())

	env, err := wire.Decode(d.data)
	if err != nil {
		r.log.Debug("dropping undecodable datagram", "peer", d.addr.String(), "error", err)
		return
	}
	if err := wire.RequireFields(env); err != nil {
		r.log.Debug("dropping datagram missing required fields", "peer", d.addr.String(), "error", err)
		return
	}

	switch env.Command {
	case wire.CmdGossip:
		r.gossip.HandleGossip(env)
	case wire.CmdGossipReply:
		r.gossip.HandleGossipReply(env)
	case wire.CmdQuery:
		r.gossip.HandleQuery(env)
	case wire.CmdConsensus:
		r.consensus.HandleConsensus(env)
	case wire.CmdConsensusAck:
		r.consensus.HandleConsensusReply(env)
	}
}

// recoverHandler catches a panic inside any handler and logs it, never
// allowing it to terminate the reactor.
func (r *Reactor) recoverHandler(kind string, detail any) {
	if rec := recover(); rec != nil {
		r.log.Error("recovered from handler panic", "kind", kind, "detail", detail, "panic", fmt.Sprint(rec))
	}
}

// readDatagrams is a dumb pipe: it owns the blocking read and forwards
// whatever arrives, holding no application state of its own.
func (r *Reactor) readDatagrams(ctx context.Context) {
	buf := make([]byte, wire.MaxPayloadSize)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case r.datagrams <- datagramRead{addr: addr, data: data}:
		case <-ctx.Done():
			return
		}
	}
}
