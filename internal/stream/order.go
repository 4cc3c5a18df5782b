package stream

import "sync"

// ticket is a task's place in submission order
type ticket uint64

// stage admits ticket holders one at a time, lowest ticket first. A ticket
// may leave without entering, which lets the holders behind it through
// without waiting for its turn.
type stage struct {
	mu   sync.Mutex
	cond *sync.Cond
	next ticket          // lowest ticket still expected
	left map[ticket]bool // tickets that left ahead of their turn
}

func newStage() *stage {
	s := &stage{left: make(map[ticket]bool)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enter blocks until every earlier ticket has left
func (s *stage) enter(t ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.next != t {
		s.cond.Wait()
	}
}

// leave marks t done. Leaving twice is a no-op.
func (s *stage) leave(t ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t < s.next || s.left[t] {
		return
	}
	s.left[t] = true
	for s.left[s.next] {
		delete(s.left, s.next)
		s.next++
	}
	s.cond.Broadcast()
}
