package validate

import "testing"

func TestWordIndex(t *testing.T) {
	for _, i := range []int{0, 4} {
		if err := WordIndex(i); err != nil {
			t.Errorf("WordIndex(%d) = %v, want nil", i, err)
		}
	}
	for _, i := range []int{-1, 5, 100} {
		if err := WordIndex(i); err == nil {
			t.Errorf("WordIndex(%d) = nil, want error", i)
		}
	}
}

func TestPeerKey(t *testing.T) {
	if err := PeerKey("owl.cs.umanitoba.ca:16000"); err != nil {
		t.Errorf("PeerKey() = %v, want nil", err)
	}
	for _, key := range []string{"", "noport", "host:notaport"} {
		if err := PeerKey(key); err == nil {
			t.Errorf("PeerKey(%q) = nil, want error", key)
		}
	}
}

func TestProbability(t *testing.T) {
	for _, p := range []float64{0, 0.5, 1} {
		if err := Probability(p); err != nil {
			t.Errorf("Probability(%v) = %v, want nil", p, err)
		}
	}
	for _, p := range []float64{-0.1, 1.1} {
		if err := Probability(p); err == nil {
			t.Errorf("Probability(%v) = nil, want error", p)
		}
	}
}

func TestPeerKeyFromHostPort(t *testing.T) {
	key, err := PeerKeyFromHostPort("localhost", 16000)
	if err != nil {
		t.Fatalf("PeerKeyFromHostPort() error: %v", err)
	}
	if key != "localhost:16000" {
		t.Fatalf("key = %q, want localhost:16000", key)
	}
	if _, err := PeerKeyFromHostPort("", 16000); err == nil {
		t.Fatal("expected error for empty host")
	}
	if _, err := PeerKeyFromHostPort("localhost", 0); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestSplitPeerKey(t *testing.T) {
	host, port, err := SplitPeerKey("localhost:16000")
	if err != nil {
		t.Fatalf("SplitPeerKey() error: %v", err)
	}
	if host != "localhost" || port != 16000 {
		t.Fatalf("SplitPeerKey() = (%q, %d), want (localhost, 16000)", host, port)
	}
	if _, _, err := SplitPeerKey("not-a-key"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}
