package httpx

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// Consecutive failures before a source's circuit opens.
	breakerThreshold = 5
	// How long an open circuit stays open before the next attempt.
	breakerCooldown = 30 * time.Second
)

// BreakerSet keeps one circuit breaker per source id. The set itself is
// shared by all adapters and safe for concurrent use.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	cooldown time.Duration
}

func NewBreakerSet() *BreakerSet {
	return NewBreakerSetWithCooldown(breakerCooldown)
}

func NewBreakerSetWithCooldown(cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cooldown: cooldown,
	}
}

func (s *BreakerSet) breaker(sourceID string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[sourceID]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        sourceID,
			MaxRequests: 1,
			Timeout:     s.cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerThreshold
			},
		})
		s.breakers[sourceID] = cb
	}
	return cb
}

// Execute runs fn through the source's breaker. When the circuit is open the
// function is not invoked and gobreaker.ErrOpenState is returned.
func (s *BreakerSet) Execute(sourceID string, fn func() (interface{}, error)) (interface{}, error) {
	return s.breaker(sourceID).Execute(fn)
}

// IsOpen reports whether the source's circuit is currently open. After the
// cooldown elapses the breaker moves to half-open on its own and this
// returns false again without any explicit reset.
func (s *BreakerSet) IsOpen(sourceID string) bool {
	return s.breaker(sourceID).State() == gobreaker.StateOpen
}

// IsCircuitOpen reports whether err came from an open circuit.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
