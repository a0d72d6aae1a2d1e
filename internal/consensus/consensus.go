// Package consensus implements the Oral-Messages OM(m) Byzantine
// agreement recursion over the shared word vector: a round
// asks every known peer for its opinion of one word-vector slot, relays
// sub-rounds at OM(m-1) through intermediate participants, and commits
// the plurality of whatever replies arrive by the round's deadline.
package consensus

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/omnode/omnode/internal/config"
	"github.com/omnode/omnode/internal/eventqueue"
	"github.com/omnode/omnode/internal/metrics"
	"github.com/omnode/omnode/internal/peertable"
	"github.com/omnode/omnode/internal/validate"
	"github.com/omnode/omnode/internal/wire"
	"github.com/omnode/omnode/internal/wordvector"
)

// Sender abstracts the outbound UDP socket the reactor owns.
type Sender interface {
	SendTo(host string, port int, env wire.Envelope) error
}

// round is the bookkeeping for one pending OM(m) invocation, whether a
// top-level round initiated locally or a sub-round relayed from a peer.
type round struct {
	id      string
	index   int // only meaningful for top-level rounds
	om      int
	value   string // proposed value (top-level) or relayed value (sub-round)
	peers   []string
	due     time.Time
	eventID uuid.UUID
	replies map[string]string

	topLevel bool
	// upward* identify where a sub-round's decision is reported once it
	// concludes; zero for top-level rounds, which commit to the word
	// vector instead of replying further.
	upwardHost    string
	upwardPort    int
	upwardReplyTo string
}

// Engine owns all pending OM(m) rounds. Not safe for concurrent use —
// owned by the single reactor goroutine.
type Engine struct {
	self       string
	host       string
	port       int
	defaultOM  int
	roundTTL   time.Duration
	words      *wordvector.Vector
	peers      *peertable.Table
	queue      *eventqueue.Queue
	sender     Sender
	metrics    *metrics.Metrics
	log        *slog.Logger
	lying      *LyingPolicy
	pending    map[string]*round
}

// New builds an Engine.
func New(cfg config.ConsensusConfig, selfKey, host string, port int, words *wordvector.Vector, peers *peertable.Table, queue *eventqueue.Queue, sender Sender, m *metrics.Metrics, log *slog.Logger) *Engine {
	defaultOM := cfg.DefaultOM
	if defaultOM < 0 {
		defaultOM = 1
	}
	roundTTL := cfg.RoundTimeout
	if roundTTL <= 0 {
		roundTTL = 30 * time.Second
	}
	return &Engine{
		self:      selfKey,
		host:      host,
		port:      port,
		defaultOM: defaultOM,
		roundTTL:  roundTTL,
		words:     words,
		peers:     peers,
		queue:     queue,
		sender:    sender,
		metrics:   m,
		log:       log,
		lying:     NewLyingPolicy(),
		pending:   make(map[string]*round),
	}
}

// Lying returns the engine's lying policy, for the admin surface to
// toggle via the admin surface's `lie`/`truth` commands.
func (e *Engine) Lying() *LyingPolicy {
	return e.lying
}

// now is overridable so Initiate's due computation is deterministic in
// tests; defaults to the wall clock.
var now = time.Now

// Initiate starts a new top-level consensus round deciding word vector
// slot index. The decision falls back to the
// existing value if no peers are known.
func (e *Engine) Initiate(index int) error {
	if err := validate.WordIndex(index); err != nil {
		return err
	}
	value := e.words.Get(index)
	peerKeys := e.peers.Keys()

	id := uuid.New().String()
	due := now().Add(e.roundTTL)

	r := &round{
		id:       id,
		index:    index,
		om:       e.defaultOM,
		value:    value,
		peers:    peerKeys,
		due:      due,
		replies:  make(map[string]string),
		topLevel: true,
	}
	e.pending[id] = r
	r.eventID = e.queue.Add(eventqueue.ConsensusDue, due, id)
	e.metrics.ConsensusRoundsStarted.Inc()

	if len(peerKeys) == 0 {
		e.queue.Remove(r.eventID)
		delete(e.pending, id)
		e.conclude(r, false)
		return nil
	}

	for _, peerKey := range peerKeys {
		host, port, err := validate.SplitPeerKey(peerKey)
		if err != nil {
			continue
		}
		env := wire.Envelope{
			Command:   wire.CmdConsensus,
			Host:      e.host,
			Port:      e.port,
			MessageID: id,
			Index:     index,
			Value:     value,
			OM:        r.om,
			Peers:     peerKeys,
			Due:       due.Unix(),
		}
		if err := e.sender.SendTo(host, port, env); err != nil {
			e.log.Warn("consensus send failed", "peer", peerKey, "error", err)
			continue
		}
		e.metrics.MessagesSentTotal.WithLabelValues(wire.CmdConsensus).Inc()
	}
	return nil
}

// HandleConsensus processes an inbound CONSENSUS request, branching on
// the relayed OM depth: OM(0) replies directly, OM(m>0) relays a
// sub-round to other participants.
func (e *Engine) HandleConsensus(env wire.Envelope) {
	e.metrics.MessagesReceivedTotal.WithLabelValues(wire.CmdConsensus).Inc()

	if env.OM <= 0 {
		// An OM(0) reply is the responder's own current word vector
		// slot, not whatever value was relayed in the request.
		out, lied := e.lying.Apply(e.words.Get(env.Index))
		if lied {
			e.metrics.LiesEmittedTotal.Inc()
		}
		reply := wire.Envelope{
			Command: wire.CmdConsensusAck,
			Host:    e.host,
			Port:    e.port,
			ReplyTo: env.MessageID,
			Value:   out,
		}
		if err := e.sender.SendTo(env.Host, env.Port, reply); err != nil {
			e.log.Warn("consensus reply failed", "peer", fmt.Sprintf("%s:%d", env.Host, env.Port), "error", err)
			return
		}
		e.metrics.MessagesSentTotal.WithLabelValues(wire.CmdConsensusAck).Inc()
		return
	}

	// OM(m), m > 0: relay as OM(m-1) to every other addressed participant,
	// excluding ourselves and whoever sent us this request.
	senderKey, _ := validate.PeerKeyFromHostPort(env.Host, env.Port)
	var targets []string
	for _, peerKey := range env.Peers {
		if peerKey == e.self || peerKey == senderKey {
			continue
		}
		targets = append(targets, peerKey)
	}

	subID := uuid.New().String()
	due := time.Unix(env.Due, 0).Add(-time.Second)
	r := &round{
		id:            subID,
		index:         env.Index,
		om:            env.OM - 1,
		value:         env.Value,
		peers:         targets,
		due:           due,
		replies:       make(map[string]string),
		topLevel:      false,
		upwardHost:    env.Host,
		upwardPort:    env.Port,
		upwardReplyTo: env.MessageID,
	}
	e.pending[subID] = r
	r.eventID = e.queue.Add(eventqueue.ConsensusDue, due, subID)

	if len(targets) == 0 {
		e.queue.Remove(r.eventID)
		delete(e.pending, subID)
		e.conclude(r, false)
		return
	}

	for _, peerKey := range targets {
		host, port, err := validate.SplitPeerKey(peerKey)
		if err != nil {
			continue
		}
		sub := wire.Envelope{
			Command:   wire.CmdConsensus,
			Host:      e.host,
			Port:      e.port,
			MessageID: subID,
			Index:     env.Index,
			Value:     env.Value,
			OM:        r.om,
			Peers:     targets,
			Due:       due.Unix(),
		}
		if err := e.sender.SendTo(host, port, sub); err != nil {
			e.log.Warn("consensus relay failed", "peer", peerKey, "error", err)
			continue
		}
		e.metrics.MessagesSentTotal.WithLabelValues(wire.CmdConsensus).Inc()
	}
}

// HandleConsensusReply processes an inbound CONSENSUS-REPLY, folding it
// into the round it answers. A reply naming an unknown round (already
// decided, or never started here) is dropped.
func (e *Engine) HandleConsensusReply(env wire.Envelope) {
	e.metrics.MessagesReceivedTotal.WithLabelValues(wire.CmdConsensusAck).Inc()

	r, ok := e.pending[env.ReplyTo]
	if !ok {
		return
	}
	peerKey, err := validate.PeerKeyFromHostPort(env.Host, env.Port)
	if err != nil {
		peerKey = fmt.Sprintf("%s:%d", env.Host, env.Port)
	}
	r.replies[peerKey] = env.Value
	e.metrics.ConsensusRepliesTotal.WithLabelValues(fmt.Sprintf("%d", r.om)).Inc()

	if len(r.replies) >= len(r.peers) {
		e.queue.Remove(r.eventID)
		delete(e.pending, env.ReplyTo)
		e.conclude(r, false)
	}
}

// OnDue fires when a round's deadline elapses via the event queue
// collecting replies up to the due instant. id is
// the eventqueue.Event's Payload, the round's own id.
func (e *Engine) OnDue(id string) {
	r, ok := e.pending[id]
	if !ok {
		return
	}
	delete(e.pending, id)
	e.queue.Remove(r.eventID)
	e.conclude(r, true)
}

func (e *Engine) conclude(r *round, timedOut bool) {
	decided := plurality(r.replies, r.value)

	if r.topLevel {
		e.words.Set(r.index, decided)
		outcome := "majority"
		if len(r.replies) == 0 {
			outcome = "no_replies"
		}
		e.metrics.ConsensusRoundsDecided.WithLabelValues(outcome).Inc()
		if timedOut {
			e.metrics.ConsensusRoundsTimedOut.Inc()
		}
		return
	}

	out, lied := e.lying.Apply(decided)
	if lied {
		e.metrics.LiesEmittedTotal.Inc()
	}
	reply := wire.Envelope{
		Command: wire.CmdConsensusAck,
		Host:    e.host,
		Port:    e.port,
		ReplyTo: r.upwardReplyTo,
		Value:   out,
	}
	if err := e.sender.SendTo(r.upwardHost, r.upwardPort, reply); err != nil {
		e.log.Warn("consensus upward reply failed", "peer", fmt.Sprintf("%s:%d", r.upwardHost, r.upwardPort), "error", err)
		return
	}
	e.metrics.MessagesSentTotal.WithLabelValues(wire.CmdConsensusAck).Inc()
}

// plurality picks the most common reply value, breaking ties
// deterministically by lexicographically smallest value so independent
// honest nodes converge. Falls back to fallback when
// replies is empty.
func plurality(replies map[string]string, fallback string) string {
	if len(replies) == 0 {
		return fallback
	}
	counts := make(map[string]int)
	for _, v := range replies {
		counts[v]++
	}
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)

	best := values[0]
	bestCount := counts[best]
	for _, v := range values[1:] {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}
