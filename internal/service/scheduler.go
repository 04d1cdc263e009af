package service

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs delayed, cancellable tasks keyed by payment id.
// Tasks receive a context that is cancelled by Stop.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[int64]*time.Timer
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewScheduler constructs an idle scheduler.
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{timers: map[int64]*time.Timer{}, ctx: ctx, cancel: cancel}
}

// Schedule runs fn after delay unless cancelled first. A previous task for id is replaced.
// It returns false once the scheduler is stopped.
func (s *Scheduler) Schedule(id int64, delay time.Duration, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if t, ok := s.timers[id]; ok && t.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.timers[id] == t {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		if s.ctx.Err() != nil {
			return
		}
		fn(s.ctx)
	})
	s.timers[id] = t
	return true
}

// Cancel drops the pending task for id. It reports whether a task was cancelled before running.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	if t.Stop() {
		s.wg.Done()
		return true
	}
	return false
}

// Pending returns the number of scheduled tasks not yet started.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending task and waits for running ones to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
