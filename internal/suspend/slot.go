// Package suspend implements the event-thread wait slot.
//
// When an event requires suspension, the thread reporting it records itself
// in the slot before the event packet goes out. The protocol goroutine waits
// for the slot to empty before it processes the next debugger command, and the
// slot is emptied once the thread has actually parked. Without this, a
// "resume all" sent by the debugger right after the event could be processed
// before the event thread suspended itself.
//
// Only one thread can hold the slot. A second thread calling Set waits until
// the first episode is cleared.
package suspend

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Wait once the slot has been closed.
var ErrClosed = errors.New("suspend slot closed")

// Slot holds at most one thread id.
type Slot struct {
	mu struct {
		sync.Mutex
		threadID uint64
		// cleared is non-nil while the slot is occupied and is closed by
		// Clear.
		cleared chan struct{}
	}
	closeOnce sync.Once
	closed    chan struct{}
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{closed: make(chan struct{})}
}

// Set records threadID as the thread that must suspend before the current
// event episode is complete. If another thread holds the slot, Set blocks
// until that episode is cleared. It returns false without recording anything
// if the slot is closed.
//
// Setting the id that already holds the slot would wait on itself forever, so
// it panics instead, as does a zero id.
func (s *Slot) Set(threadID uint64) bool {
	if threadID == 0 {
		panic("suspend: Set called with a zero thread id")
	}
	for {
		s.mu.Lock()
		if s.mu.cleared == nil {
			select {
			case <-s.closed:
				s.mu.Unlock()
				return false
			default:
			}
			s.mu.threadID = threadID
			s.mu.cleared = make(chan struct{})
			s.mu.Unlock()
			return true
		}
		if s.mu.threadID == threadID {
			s.mu.Unlock()
			panic(fmt.Sprintf("suspend: thread %#x set the wait slot twice without clearing it", threadID))
		}
		cleared := s.mu.cleared
		s.mu.Unlock()

		select {
		case <-cleared:
		case <-s.closed:
			return false
		}
	}
}

// Get returns the thread currently holding the slot, if any.
func (s *Slot) Get() (threadID uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.threadID, s.mu.cleared != nil
}

// Clear empties the slot and wakes every waiter. Clearing an empty slot is a
// no-op.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.cleared == nil {
		return
	}
	close(s.mu.cleared)
	s.mu.cleared = nil
	s.mu.threadID = 0
}

// Wait blocks until the slot is empty. It returns early with the context's
// error, or with ErrClosed if the slot is closed while occupied.
func (s *Slot) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		cleared := s.mu.cleared
		s.mu.Unlock()
		if cleared == nil {
			return nil
		}
		select {
		case <-cleared:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return ErrClosed
		}
	}
}

// Close releases all blocked Set and Wait callers. The slot cannot be set
// again afterwards.
func (s *Slot) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}
