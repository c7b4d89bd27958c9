package httpx

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func failOnce(s *BreakerSet, id string) error {
	_, err := s.Execute(id, func() (interface{}, error) {
		return nil, errUpstream
	})
	return err
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	s := NewBreakerSet()

	for i := 0; i < 5; i++ {
		if s.IsOpen("hostloc") {
			t.Fatalf("Circuit open after only %d failures", i)
		}
		failOnce(s, "hostloc")
	}

	if !s.IsOpen("hostloc") {
		t.Error("Expected circuit open after 5 consecutive failures")
	}

	// Calls while open are rejected without invoking the function
	invoked := false
	_, err := s.Execute("hostloc", func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	if invoked {
		t.Error("Function must not run while circuit is open")
	}
	if !IsCircuitOpen(err) {
		t.Errorf("Expected open-circuit error, got: %v", err)
	}
}

func TestBreakerSelfResetsAfterCooldown(t *testing.T) {
	s := NewBreakerSetWithCooldown(30 * time.Millisecond)

	for i := 0; i < 5; i++ {
		failOnce(s, "zhihu")
	}
	if !s.IsOpen("zhihu") {
		t.Fatal("Expected open circuit")
	}

	time.Sleep(50 * time.Millisecond)

	if s.IsOpen("zhihu") {
		t.Error("Expected circuit to leave the open state after cooldown without explicit reset")
	}

	// And a successful probe closes it fully
	if _, err := s.Execute("zhihu", func() (interface{}, error) { return nil, nil }); err != nil {
		t.Errorf("Probe after cooldown failed: %v", err)
	}
	if s.IsOpen("zhihu") {
		t.Error("Expected closed circuit after successful probe")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	s := NewBreakerSet()

	for i := 0; i < 4; i++ {
		failOnce(s, "v2ex")
	}
	s.Execute("v2ex", func() (interface{}, error) { return nil, nil })

	// Four more failures: without the reset these would cross the threshold
	for i := 0; i < 4; i++ {
		failOnce(s, "v2ex")
	}
	if s.IsOpen("v2ex") {
		t.Error("A single success must reset the consecutive-failure count")
	}
}

func TestBreakersAreIndependentPerSource(t *testing.T) {
	s := NewBreakerSet()

	for i := 0; i < 5; i++ {
		failOnce(s, "broken")
	}
	if !s.IsOpen("broken") {
		t.Fatal("Expected 'broken' circuit open")
	}
	if s.IsOpen("healthy") {
		t.Error("Unrelated source must stay closed")
	}
}
