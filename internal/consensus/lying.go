package consensus

import "math/rand"

// LieValue is the sentinel substituted for a truthful reply when the
// lying policy fires. It is a fixed string; a word vector slot holding the
// same string produces replies indistinguishable from a lie.
const LieValue = "LIE"

// LyingPolicy governs whether outbound consensus replies are corrupted.
// It is applied exactly once per outbound reply, never to a relayed
// sub-round's internal request data. Not safe for concurrent use —
// owned by the reactor goroutine, same as the rest of this package's
// state.
type LyingPolicy struct {
	enabled     bool
	probability float64
	rand        func() float64
}

// NewLyingPolicy returns a policy that starts disabled.
func NewLyingPolicy() *LyingPolicy {
	return &LyingPolicy{rand: rand.Float64}
}

// Enable turns lying on with the given probability in [0, 1]. Callers
// validate probability before calling (internal/validate.Probability).
func (p *LyingPolicy) Enable(probability float64) {
	p.enabled = true
	p.probability = probability
}

// Disable turns lying off (admin `truth` command).
func (p *LyingPolicy) Disable() {
	p.enabled = false
}

// Enabled reports whether lying is currently on.
func (p *LyingPolicy) Enabled() bool {
	return p.enabled
}

// Probability reports the configured lie probability.
func (p *LyingPolicy) Probability() float64 {
	return p.probability
}

// Apply returns value unchanged, or LieValue in its place when the
// policy is enabled and a random draw falls under its probability.
func (p *LyingPolicy) Apply(value string) (out string, lied bool) {
	if !p.enabled {
		return value, false
	}
	if p.rand() < p.probability {
		return LieValue, true
	}
	return value, false
}
