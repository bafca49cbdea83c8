package tracer

import (
	"sync"
	"time"

	"github.com/polisai/closure-trace/pkg/domain"
	"github.com/polisai/closure-trace/pkg/telemetry"
)

const defaultJournalCapacity = 128

// Decision is one registration outcome kept in a Journal.
type Decision struct {
	Sequence  uint64
	Time      time.Time
	Declaring string
	Interface string
	Synthetic string
	Outcome   telemetry.Outcome
	Frame     domain.Frame
}

// Journal is a fixed-size circular buffer of recent registration decisions
// with oldest-first eviction. It is safe for concurrent use.
type Journal struct {
	mu       sync.RWMutex
	entries  []Decision
	head     int // oldest
	tail     int // next insert
	size     int
	capacity int
	next     uint64
}

// NewJournal creates a journal holding at most capacity decisions.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	return &Journal{
		entries:  make([]Decision, capacity),
		capacity: capacity,
	}
}

// Add stamps d with the next sequence number and stores it, evicting the
// oldest decision when full. Returns true if a decision was evicted.
func (j *Journal) Add(d Decision) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.next++
	d.Sequence = j.next
	if d.Time.IsZero() {
		d.Time = time.Now()
	}

	j.entries[j.tail] = d
	j.tail = (j.tail + 1) % j.capacity

	if j.size < j.capacity {
		j.size++
		return false
	}
	j.head = (j.head + 1) % j.capacity
	return true
}

// All returns the stored decisions, oldest first.
func (j *Journal) All() []Decision {
	return j.Since(0)
}

// Since returns decisions whose sequence is at least seq, oldest first.
func (j *Journal) Since(seq uint64) []Decision {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Decision, 0, j.size)
	for i := 0; i < j.size; i++ {
		d := j.entries[(j.head+i)%j.capacity]
		if d.Sequence >= seq {
			out = append(out, d)
		}
	}
	return out
}
