package runner

import (
	"sync"
	"time"
)

// Source tells where an output line came from.
type Source int

const (
	// SourceProcess lines were read from the child's stdout/stderr.
	SourceProcess Source = iota
	// SourceSupervisor lines are lifecycle notices (started, stopped, crashed).
	SourceSupervisor
)

// Line is one line of output destined for the display.
type Line struct {
	Time   time.Time
	Source Source
	Text   string
}

// Sink receives lines from the forwarding goroutine. It must not block.
type Sink func(Line)

// DefaultQueueSize bounds the number of undrained lines kept in memory.
const DefaultQueueSize = 5000

// Queue is a bounded hand-off between the forwarding goroutine and the
// display. Push never blocks: when the queue is full the oldest line is
// discarded so a slow consumer cannot stall the child on a full pipe.
type Queue struct {
	mu      sync.Mutex
	buf     []Line
	head    int // index of the oldest line
	n       int
	dropped uint64
	ready   chan struct{}
}

// NewQueue creates a queue holding at most capacity lines.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{
		buf:   make([]Line, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends a line, evicting the oldest one when full.
func (q *Queue) Push(l Line) {
	q.mu.Lock()
	if q.n == len(q.buf) {
		q.buf[q.head] = l
		q.head = (q.head + 1) % len(q.buf)
		q.dropped++
	} else {
		q.buf[(q.head+q.n)%len(q.buf)] = l
		q.n++
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns every pending line, oldest first.
func (q *Queue) Drain() []Line {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return nil
	}
	out := make([]Line, q.n)
	for i := range out {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = Line{}
	}
	q.head, q.n = 0, 0
	return out
}

// Len returns the number of pending lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped returns how many lines were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Ready is signalled after a Push. Consumers that do not poll on a timer
// can wait on it and then call Drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
