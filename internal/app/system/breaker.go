package system

import "sync/atomic"

// Breaker is the global pause switch. While tripped, every state-changing
// operation refuses to run; reads stay available.
type Breaker struct {
	paused atomic.Bool
}

// NewBreaker returns an untripped breaker.
func NewBreaker() *Breaker {
	return &Breaker{}
}

// Pause trips the breaker.
func (b *Breaker) Pause() {
	b.paused.Store(true)
}

// Resume clears the breaker.
func (b *Breaker) Resume() {
	b.paused.Store(false)
}

// Paused reports whether the breaker is tripped.
func (b *Breaker) Paused() bool {
	return b.paused.Load()
}
