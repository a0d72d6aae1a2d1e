// Package eventqueue implements the reactor's small set of named
// timers: each event has an expiry instant; the reactor waits on the
// earliest and renews or fires it.
package eventqueue

import (
	"time"

	"github.com/google/uuid"
)

// Name identifies what kind of event fired, so the reactor knows which
// handler to invoke.
type Name string

const (
	// Gossip is the single recurring announcement timer, created at
	// startup and renewed forever.
	Gossip Name = "gossip"
	// ConsensusDue is a one-shot timer marking when a pending consensus
	// round's deadline elapses.
	ConsensusDue Name = "consensus"
)

// Event is a named timer with an expiry instant and optional payload.
type Event struct {
	ID      uuid.UUID
	Name    Name
	Expiry  time.Time
	Payload any
}

// Queue holds the reactor's live timers. Not safe for concurrent use —
// owned by the single reactor goroutine.
type Queue struct {
	events map[uuid.UUID]*Event
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{events: make(map[uuid.UUID]*Event)}
}

// Add registers a new event and returns its ID.
func (q *Queue) Add(name Name, expiry time.Time, payload any) uuid.UUID {
	e := &Event{ID: uuid.New(), Name: name, Expiry: expiry, Payload: payload}
	q.events[e.ID] = e
	return e.ID
}

// Remove deletes an event (used when a one-shot consensus round is
// cancelled early because every addressed peer already replied).
func (q *Queue) Remove(id uuid.UUID) {
	delete(q.events, id)
}

// Renew mutates an existing event's expiry in place. No-op if id is
// not present.
func (q *Queue) Renew(id uuid.UUID, newExpiry time.Time) {
	if e, ok := q.events[id]; ok {
		e.Expiry = newExpiry
	}
}

// Earliest returns the event with the minimum expiry (ties broken
// arbitrarily by map iteration order) and true, or the zero Event and
// false if the queue is empty.
func (q *Queue) Earliest() (Event, bool) {
	var best *Event
	for _, e := range q.events {
		if best == nil || e.Expiry.Before(best.Expiry) {
			best = e
		}
	}
	if best == nil {
		return Event{}, false
	}
	return *best, true
}

// Due returns every event whose expiry is <= now, so the reactor can
// fire all of them in one iteration rather than only the single
// earliest.
func (q *Queue) Due(now time.Time) []Event {
	var due []Event
	for _, e := range q.events {
		if !e.Expiry.After(now) {
			due = append(due, *e)
		}
	}
	return due
}

// Timeout computes the reactor's wait duration for the next readiness
// poll: max(earliest.expiry - now, epsilon), so a non-positive timeout
// never blocks. If the queue is empty, a caller-supplied
// fallback is used instead (the reactor always has at least the gossip
// timer once started, but tests may probe an empty queue).
const epsilon = time.Microsecond

func (q *Queue) Timeout(now time.Time, fallback time.Duration) time.Duration {
	e, ok := q.Earliest()
	if !ok {
		return fallback
	}
	d := e.Expiry.Sub(now)
	if d <= 0 {
		return epsilon
	}
	return d
}
