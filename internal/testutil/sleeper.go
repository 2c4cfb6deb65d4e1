package testutil

import (
	"context"
	"sync"
	"time"
)

// RecordingSleeper records every requested delay and returns at once.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration

	// OnSleep, when set, runs before Sleep returns. Tests use it to cancel
	// the run in the middle of a retry delay.
	OnSleep func(n int, d time.Duration)
}

// NewRecordingSleeper creates an empty recording sleeper.
func NewRecordingSleeper() *RecordingSleeper {
	return &RecordingSleeper{}
}

// Sleep records d and returns ctx's error, if any, without waiting.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	hook := s.OnSleep
	s.mu.Unlock()

	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

// Delays returns a copy of the recorded delays in call order.
func (s *RecordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

// Total returns the sum of the recorded delays.
func (s *RecordingSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.delays {
		total += d
	}
	return total
}
