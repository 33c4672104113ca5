// Package debounce provides the restartable single-shot silence timer.
package debounce

import (
	"sync"
	"time"
)

// Silence fires a callback once a quiet period elapses without being re-armed.
type Silence struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// New returns an idle silence timer.
func New() *Silence {
	return &Silence{}
}

// Arm (re)starts the countdown. A pending callback from an earlier Arm is discarded.
func (s *Silence) Arm(d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.gen != gen || s.timer == nil {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fire()
	})
}

// Cancel clears any pending countdown. Safe to call repeatedly.
func (s *Silence) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
}

// pending reports whether a countdown is armed and has not fired.
func (s *Silence) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Silence) stopLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}
