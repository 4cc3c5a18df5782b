package stream

import (
	"sync"
	"testing"
	"time"
)

func TestStageAdmitsInTicketOrder(t *testing.T) {
	s := newStage()

	var (
		mu    sync.Mutex
		order []ticket
		wg    sync.WaitGroup
	)
	for i := 4; i >= 0; i-- {
		wg.Add(1)
		go func(tk ticket) {
			defer wg.Done()
			s.enter(tk)
			mu.Lock()
			order = append(order, tk)
			mu.Unlock()
			s.leave(tk)
		}(ticket(i))
	}
	wg.Wait()

	for i, tk := range order {
		if tk != ticket(i) {
			t.Fatalf("Expected tickets in order, got %v", order)
		}
	}
}

func TestStageLeaveWithoutEnter(t *testing.T) {
	s := newStage()

	// Ticket 1 skips the stage before ticket 0 is done
	s.leave(1)

	entered := make(chan struct{})
	go func() {
		s.enter(2)
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("Ticket 2 entered before ticket 0 left")
	case <-time.After(20 * time.Millisecond):
	}

	s.enter(0)
	s.leave(0)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("Ticket 2 never entered")
	}

	// Leaving again is a no-op
	s.leave(0)
	s.leave(1)
	s.leave(2)
	if s.next != 3 {
		t.Errorf("Expected next ticket 3, got %d", s.next)
	}
}
