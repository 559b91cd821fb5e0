package mcp

import (
	"math/rand"
	"time"
)

// ReconnectKind discriminates ReconnectPolicy.
type ReconnectKind int

const (
	ReconnectNever ReconnectKind = iota
	ReconnectExponentialBackoff
)

// ReconnectPolicy governs whether and how a ServerConnection is
// automatically reconnected after it transitions to failed.
type ReconnectPolicy struct {
	Kind        ReconnectKind
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter, when true, perturbs each computed delay by up to ±20%.
	Jitter bool
}

// Never disables automatic reconnection.
func Never() ReconnectPolicy { return ReconnectPolicy{Kind: ReconnectNever} }

// ExponentialBackoff reconnects up to maxAttempts times, with attempt i's
// delay equal to baseDelay*2^(i-1), i in [1,maxAttempts], perturbed by up
// to ±20% since the returned policy has Jitter set.
func ExponentialBackoff(maxAttempts int, baseDelay time.Duration) ReconnectPolicy {
	return ReconnectPolicy{Kind: ReconnectExponentialBackoff, MaxAttempts: maxAttempts, BaseDelay: baseDelay, Jitter: true}
}

// delay computes the backoff duration for the given 1-indexed attempt.
func (p ReconnectPolicy) delay(attempt int) time.Duration {
	base := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		base *= 2
	}
	if !p.Jitter {
		return time.Duration(base)
	}
	jitter := base * 0.2
	delta := (rand.Float64()*2 - 1) * jitter
	d := base + delta
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
