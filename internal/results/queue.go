package results

import (
	"sync"
	"time"
)

// Queue is a FIFO of result records shared by many producers and one
// polling consumer
type Queue struct {
	items      []Result
	maxPending int // 0 means unbounded

	// Statistics
	totalPushed  uint64
	totalDrained uint64
	totalDropped uint64
	lastPush     time.Time
	lastDrain    time.Time

	mu sync.Mutex
}

// QueueStats represents queue statistics
type QueueStats struct {
	Pending      int       `json:"pending"`
	MaxPending   int       `json:"max_pending"`
	TotalPushed  uint64    `json:"total_pushed"`
	TotalDrained uint64    `json:"total_drained"`
	TotalDropped uint64    `json:"total_dropped"`
	LastPush     time.Time `json:"last_push"`
	LastDrain    time.Time `json:"last_drain"`
}

// NewQueue creates a result queue. A positive maxPending caps the number of
// undrained records by dropping the oldest ones.
func NewQueue(maxPending int) *Queue {
	if maxPending < 0 {
		maxPending = 0
	}
	return &Queue{maxPending: maxPending}
}

// Push appends a record. It reports whether an older record had to be
// dropped to stay under the cap.
func (q *Queue) Push(r Result) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, r)
	q.totalPushed++
	q.lastPush = time.Now()

	if q.maxPending > 0 && len(q.items) > q.maxPending {
		q.items[0] = nil
		q.items = q.items[1:]
		q.totalDropped++
		return true
	}
	return false
}

// DrainAll removes and returns every queued record in insertion order.
// The returned slice is empty, never nil, when nothing is queued.
func (q *Queue) DrainAll() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	q.lastDrain = time.Now()

	if out == nil {
		return []Result{}
	}
	q.totalDrained += uint64(len(out))
	return out
}

// Len returns the number of undrained records
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetStats returns current queue statistics
func (q *Queue) GetStats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Pending:      len(q.items),
		MaxPending:   q.maxPending,
		TotalPushed:  q.totalPushed,
		TotalDrained: q.totalDrained,
		TotalDropped: q.totalDropped,
		LastPush:     q.lastPush,
		LastDrain:    q.lastDrain,
	}
}
