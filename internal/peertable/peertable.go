// Package peertable implements the gossip membership set: a mapping from
// host:port to peer record with soft-state expiry.
//
// Table is not safe for concurrent use. It is owned by the single
// reactor goroutine under a single-threaded ownership model — no locks
// required.
package peertable

import (
	"math/rand"
	"time"
)

// Peer is a gossip membership record.
type Peer struct {
	Host   string
	Port   int
	Name   string
	Expiry time.Time
}

// Table is the peer membership set, keyed by "host:port".
type Table struct {
	self  string
	ttl   time.Duration
	peers map[string]Peer
	now   func() time.Time
}

// New creates an empty Table. selfKey is this node's own host:port
// identity — the table must never contain an entry equal to it — and
// ttl is how long an entry survives without a renewing contact.
func New(selfKey string, ttl time.Duration) *Table {
	return &Table{
		self:  selfKey,
		ttl:   ttl,
		peers: make(map[string]Peer),
		now:   time.Now,
	}
}

// IsSelf reports whether key equals the local identity.
func (t *Table) IsSelf(key string) bool {
	return key == t.self
}

// Upsert inserts a new peer or renews an existing one's expiry. It is a
// no-op (and returns false) when key is the local identity — the local
// node must never insert itself even via gossip loopback.
// The bool return reports whether the entry is new.
func (t *Table) Upsert(key string, p Peer) bool {
	if t.IsSelf(key) {
		return false
	}
	_, existed := t.peers[key]
	p.Expiry = t.now().Add(t.ttl)
	t.peers[key] = p
	return !existed
}

// Renew resets key's expiry to now+TTL without touching its other fields.
// No-op if key is not present.
func (t *Table) Renew(key string) {
	p, ok := t.peers[key]
	if !ok {
		return
	}
	p.Expiry = t.now().Add(t.ttl)
	t.peers[key] = p
}

// Has reports whether key is currently present.
func (t *Table) Has(key string) bool {
	_, ok := t.peers[key]
	return ok
}

// Get returns the peer at key and whether it was present.
func (t *Table) Get(key string) (Peer, bool) {
	p, ok := t.peers[key]
	return p, ok
}

// Sweep removes every entry whose expiry has passed, returning the keys
// removed.
func (t *Table) Sweep() []string {
	now := t.now()
	var expired []string
	for key, p := range t.peers {
		if p.Expiry.Before(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(t.peers, key)
	}
	return expired
}

// Sample returns up to k distinct peers chosen uniformly at random,
// used by the gossip fanout.
func (t *Table) Sample(k int) []Peer {
	if k <= 0 || len(t.peers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.peers))
	for key := range t.peers {
		keys = append(keys, key)
	}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	if k > len(keys) {
		k = len(keys)
	}
	out := make([]Peer, k)
	for i := 0; i < k; i++ {
		out[i] = t.peers[keys[i]]
	}
	return out
}

// Keys returns all peer keys currently in the table, excluding self
// (always true by construction since Upsert rejects self).
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.peers))
	for key := range t.peers {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of peers currently tracked.
func (t *Table) Len() int {
	return len(t.peers)
}

// Snapshot returns a copy of key -> display name, the shape the admin
// `peers` command returns.
func (t *Table) Snapshot() map[string]string {
	out := make(map[string]string, len(t.peers))
	for key, p := range t.peers {
		out[key] = p.Name
	}
	return out
}

// SetClock overrides the time source, for deterministic tests.
func (t *Table) SetClock(now func() time.Time) {
	t.now = now
}
