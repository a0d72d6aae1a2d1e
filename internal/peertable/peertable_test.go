package peertable

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestUpsertRejectsSelf(t *testing.T) {
	tbl := New("localhost:16000", time.Minute)
	inserted := tbl.Upsert("localhost:16000", Peer{Host: "localhost", Port: 16000, Name: "me"})
	if inserted {
		t.Fatal("Upsert() inserted self")
	}
	if tbl.Has("localhost:16000") {
		t.Fatal("table contains self after Upsert")
	}
}

func TestUpsertInsertOrRenew(t *testing.T) {
	tbl := New("self:1", time.Minute)
	if !tbl.Upsert("a:1", Peer{Host: "a", Port: 1, Name: "A"}) {
		t.Fatal("first Upsert should report new")
	}
	if tbl.Upsert("a:1", Peer{Host: "a", Port: 1, Name: "A"}) {
		t.Fatal("second Upsert should report renewal, not new")
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	tbl := New("self:1", 10*time.Millisecond)
	fakeNow := time.Now()
	tbl.SetClock(func() time.Time { return fakeNow })
	tbl.Upsert("a:1", Peer{Host: "a", Port: 1})

	fakeNow = fakeNow.Add(20 * time.Millisecond)
	expired := tbl.Sweep()
	if len(expired) != 1 || expired[0] != "a:1" {
		t.Fatalf("Sweep() = %v, want [a:1]", expired)
	}
	if tbl.Has("a:1") {
		t.Fatal("peer still present after sweep")
	}
}

func TestRenewWithinTTLSurvivesSweep(t *testing.T) {
	tbl := New("self:1", 30*time.Millisecond)
	fakeNow := time.Now()
	tbl.SetClock(func() time.Time { return fakeNow })
	tbl.Upsert("a:1", Peer{Host: "a", Port: 1})

	fakeNow = fakeNow.Add(20 * time.Millisecond)
	tbl.Renew("a:1")

	fakeNow = fakeNow.Add(20 * time.Millisecond) // 40ms since insert, but only 20ms since renew
	if expired := tbl.Sweep(); len(expired) != 0 {
		t.Fatalf("Sweep() = %v, want none (renewed within TTL)", expired)
	}
}

func TestSampleBound(t *testing.T) {
	tbl := New("self:1", time.Minute)
	for i := 0; i < 3; i++ {
		tbl.Upsert(string(rune('a'+i))+":1", Peer{Host: string(rune('a' + i)), Port: 1})
	}
	if got := tbl.Sample(5); len(got) != 3 {
		t.Fatalf("Sample(5) with 3 peers = %d entries, want 3", len(got))
	}
	if got := tbl.Sample(2); len(got) != 2 {
		t.Fatalf("Sample(2) = %d entries, want 2", len(got))
	}
}

func TestSampleDistinct(t *testing.T) {
	tbl := New("self:1", time.Minute)
	for i := 0; i < 10; i++ {
		tbl.Upsert(string(rune('a'+i))+":1", Peer{Host: string(rune('a' + i)), Port: 1})
	}
	sample := tbl.Sample(5)
	seen := make(map[string]bool)
	for _, p := range sample {
		key := p.Host
		if seen[key] {
			t.Fatalf("Sample(5) returned duplicate peer %v", key)
		}
		seen[key] = true
	}
}

// TestPropertyTTLExpiry checks that a peer not refreshed within TTL is absent
// after the next sweep; a peer refreshed at any point within TTL
// persists.
func TestPropertyTTLExpiry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ttl := time.Duration(rapid.IntRange(1, 1000).Draw(t, "ttlMillis")) * time.Millisecond
		tbl := New("self:1", ttl)
		start := time.Now()
		fakeNow := start
		tbl.SetClock(func() time.Time { return fakeNow })
		tbl.Upsert("a:1", Peer{Host: "a", Port: 1})

		refreshedWithinTTL := rapid.Bool().Draw(t, "refreshed")
		if refreshedWithinTTL {
			elapsedBefore := time.Duration(rapid.IntRange(1, int(ttl/time.Millisecond)).Draw(t, "elapsedMillis")) * time.Millisecond
			fakeNow = start.Add(elapsedBefore)
			tbl.Renew("a:1")
		}

		// Sweep just past the original insertion's TTL.
		fakeNow = start.Add(ttl + time.Millisecond)
		expired := tbl.Sweep()

		if refreshedWithinTTL {
			if len(expired) != 0 {
				t.Fatalf("renewed peer expired: %v", expired)
			}
		} else {
			if len(expired) != 1 || expired[0] != "a:1" {
				t.Fatalf("unrenewed peer did not expire: %v", expired)
			}
		}
	})
}

// TestPropertySelfExclusion checks that the peer table never contains a peer
// whose key equals the local identity, regardless of how it is offered.
func TestPropertySelfExclusion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		selfHost := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "host")
		selfPort := rapid.IntRange(1, 65535).Draw(t, "port")
		selfKey := fmt.Sprintf("%s:%d", selfHost, selfPort)

		tbl := New(selfKey, time.Minute)
		tbl.Upsert(selfKey, Peer{Host: selfHost, Port: selfPort})

		if tbl.Has(selfKey) {
			t.Fatalf("table contains self key %q after Upsert", selfKey)
		}
		if tbl.Len() != 0 {
			t.Fatalf("table non-empty after only a self Upsert: %d entries", tbl.Len())
		}
	})
}
