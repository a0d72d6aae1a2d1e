package gossip

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/omnode/omnode/internal/config"
	"github.com/omnode/omnode/internal/metrics"
	"github.com/omnode/omnode/internal/peertable"
	"github.com/omnode/omnode/internal/wire"
	"github.com/omnode/omnode/internal/wordvector"
)

type fakeSender struct {
	sent []sentDatagram
	err  error
}

type sentDatagram struct {
	host string
	port int
	env  wire.Envelope
}

func (f *fakeSender) SendTo(host string, port int, env wire.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentDatagram{host, port, env})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *peertable.Table, *fakeSender) {
	t.Helper()
	peers := peertable.New("self:16000", time.Minute)
	sender := &fakeSender{}
	m := metrics.New("test", "go1.26")
	words := wordvector.New()
	e := New(config.GossipConfig{Fanout: 5, SeenCacheSize: 64}, "self:16000", "self", 16000, "Self", peers, &words, sender, m, testLogger())
	return e, peers, sender
}

func TestAnnounceFanoutBound(t *testing.T) {
	e, peers, sender := newTestEngine(t)
	for i := 0; i < 10; i++ {
		key := string(rune('a'+i)) + ":1"
		peers.Upsert(key, peertable.Peer{Host: string(rune('a' + i)), Port: 1})
	}
	e.Announce()
	if len(sender.sent) != 5 {
		t.Fatalf("Announce() sent %d datagrams, want 5", len(sender.sent))
	}
	for _, d := range sender.sent {
		if d.env.Command != wire.CmdGossip || d.env.MessageID == "" {
			t.Fatalf("Announce() sent malformed envelope: %+v", d.env)
		}
	}
}

func TestAnnounceBelowFanout(t *testing.T) {
	e, peers, sender := newTestEngine(t)
	peers.Upsert("a:1", peertable.Peer{Host: "a", Port: 1})
	peers.Upsert("b:1", peertable.Peer{Host: "b", Port: 1})
	e.Announce()
	if len(sender.sent) != 2 {
		t.Fatalf("Announce() sent %d, want 2", len(sender.sent))
	}
}

func TestHandleGossipNewPeerReplies(t *testing.T) {
	e, peers, sender := newTestEngine(t)
	e.HandleGossip(wire.Envelope{Command: wire.CmdGossip, Host: "a", Port: 1, Name: "A", MessageID: "m1"})

	if !peers.Has("a:1") {
		t.Fatal("new peer was not inserted")
	}
	if len(sender.sent) != 1 || sender.sent[0].env.Command != wire.CmdGossipReply {
		t.Fatalf("expected one GOSSIP_REPLY, got %+v", sender.sent)
	}
}

func TestHandleGossipDuplicateDropped(t *testing.T) {
	e, _, sender := newTestEngine(t)
	env := wire.Envelope{Command: wire.CmdGossip, Host: "a", Port: 1, MessageID: "dup"}
	e.HandleGossip(env)
	sender.sent = nil
	e.HandleGossip(env)
	if len(sender.sent) != 0 {
		t.Fatalf("duplicate gossip produced a reply: %+v", sender.sent)
	}
}

func TestHandleGossipSelfDropped(t *testing.T) {
	e, peers, sender := newTestEngine(t)
	e.HandleGossip(wire.Envelope{Command: wire.CmdGossip, Host: "self", Port: 16000, MessageID: "m2"})
	if peers.Len() != 0 {
		t.Fatal("self-gossip was inserted into peer table")
	}
	if len(sender.sent) != 0 {
		t.Fatal("self-gossip produced a reply")
	}
}

func TestHandleGossipExistingPeerRenewsNoReply(t *testing.T) {
	e, peers, sender := newTestEngine(t)
	peers.Upsert("a:1", peertable.Peer{Host: "a", Port: 1})
	sender.sent = nil
	e.HandleGossip(wire.Envelope{Command: wire.CmdGossip, Host: "a", Port: 1, MessageID: "m3"})
	if len(sender.sent) != 0 {
		t.Fatalf("renewal of existing peer produced a reply: %+v", sender.sent)
	}
}

func TestHandleGossipMalformedAddressDropped(t *testing.T) {
	e, peers, sender := newTestEngine(t)
	e.HandleGossip(wire.Envelope{Command: wire.CmdGossip, Host: "", Port: 1, MessageID: "m4"})
	if peers.Len() != 0 {
		t.Fatal("gossip with empty host was inserted into peer table")
	}
	if len(sender.sent) != 0 {
		t.Fatal("gossip with empty host produced a reply")
	}
}

func TestHandleGossipReplyMalformedAddressDropped(t *testing.T) {
	e, peers, _ := newTestEngine(t)
	e.HandleGossipReply(wire.Envelope{Command: wire.CmdGossipReply, Host: "a", Port: 0})
	if peers.Len() != 0 {
		t.Fatal("gossip reply with out-of-range port was inserted into peer table")
	}
}

func TestHandleGossipReplyNeverReplies(t *testing.T) {
	e, peers, sender := newTestEngine(t)
	e.HandleGossipReply(wire.Envelope{Command: wire.CmdGossipReply, Host: "a", Port: 1, Name: "A"})
	if !peers.Has("a:1") {
		t.Fatal("GOSSIP_REPLY was not inserted")
	}
	if len(sender.sent) != 0 {
		t.Fatal("GOSSIP_REPLY triggered an outbound message")
	}
}

func TestHandleGossipReplySelfIgnored(t *testing.T) {
	e, peers, _ := newTestEngine(t)
	e.HandleGossipReply(wire.Envelope{Command: wire.CmdGossipReply, Host: "self", Port: 16000})
	if peers.Len() != 0 {
		t.Fatal("self GOSSIP_REPLY was inserted")
	}
}

func TestHandleQueryRepliesWithDatabase(t *testing.T) {
	e, _, sender := newTestEngine(t)
	e.HandleQuery(wire.Envelope{Command: wire.CmdQuery, Host: "a", Port: 1})
	if len(sender.sent) != 1 || sender.sent[0].env.Command != wire.CmdQueryReply {
		t.Fatalf("expected one QUERY-REPLY, got %+v", sender.sent)
	}
	if len(sender.sent[0].env.Database) != wordvector.Size {
		t.Fatalf("QUERY-REPLY database has %d entries, want %d", len(sender.sent[0].env.Database), wordvector.Size)
	}
}

// TestPropertyDuplicateGossipSuppression checks that redelivering the same
// messageID any number of times has the same peer-table effect as one
// delivery, and at most one GOSSIP_REPLY is ever emitted.
func TestPropertyDuplicateGossipSuppression(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, peers, sender := newTestEngine(t)
		deliveries := rapid.IntRange(1, 10).Draw(t, "deliveries")
		env := wire.Envelope{Command: wire.CmdGossip, Host: "a", Port: 1, Name: "A", MessageID: "fixed-id"}

		for i := 0; i < deliveries; i++ {
			e.HandleGossip(env)
		}

		if !peers.Has("a:1") {
			t.Fatal("peer was never inserted")
		}
		if peers.Len() != 1 {
			t.Fatalf("peer table has %d entries, want 1", peers.Len())
		}
		replies := 0
		for _, d := range sender.sent {
			if d.env.Command == wire.CmdGossipReply {
				replies++
			}
		}
		if replies != 1 {
			t.Fatalf("emitted %d GOSSIP_REPLY for %d deliveries of the same messageID, want 1", replies, deliveries)
		}
	})
}

// TestPropertyGossipFanoutBound checks that on each gossip timer fire, at
// most Fanout datagrams are emitted, and exactly |peerTable| when that
// is smaller.
func TestPropertyGossipFanoutBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, peers, sender := newTestEngine(t)
		peerCount := rapid.IntRange(0, 12).Draw(t, "peerCount")
		for i := 0; i < peerCount; i++ {
			key := fmt.Sprintf("p%d:1", i)
			peers.Upsert(key, peertable.Peer{Host: fmt.Sprintf("p%d", i), Port: 1})
		}

		e.Announce()

		want := peerCount
		if want > 5 {
			want = 5
		}
		if len(sender.sent) != want {
			t.Fatalf("Announce() sent %d datagrams with %d peers, want %d", len(sender.sent), peerCount, want)
		}
	})
}
