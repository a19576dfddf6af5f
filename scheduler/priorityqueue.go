package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Priority is one of five ordered classes. Lower value is served first.
type Priority int

const (
	PriorityExtraHigh Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityExtraLow
)

func (p Priority) String() string {
	switch p {
	case PriorityExtraHigh:
		return "extra_high"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityExtraLow:
		return "extra_low"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyQueue = errors.New("queue is empty")
	ErrNotFound   = errors.New("item is not in the queue")
)

// Entry is one queued item together with its scheduling key.
// Entries are totally ordered by (Priority, Timestamp, insertion seq);
// the seq tie-break guarantees FIFO among otherwise identical entries.
type Entry[T comparable] struct {
	Item      T
	Priority  Priority
	Timestamp time.Time

	seq uint64
}

// PriorityQueue is a binary min-heap with a reverse index from item to heap
// slot, giving O(log n) push/pop/remove/reprioritize and O(1) membership.
// At most one entry per distinct item is present at any time.
type PriorityQueue[T comparable] struct {
	mutex   sync.Mutex
	heap    []*Entry[T]
	index   map[T]int
	nextSeq uint64

	// notify carries the "queue is non-empty" signal for waiters.
	notify chan struct{}
}

func NewPriorityQueue[T comparable]() *PriorityQueue[T] {
	return &PriorityQueue[T]{
		index:  make(map[T]int),
		notify: make(chan struct{}, 1),
	}
}

// Push inserts the item. If the item is already present, nothing changes and
// false is returned.
func (q *PriorityQueue[T]) Push(item T, priority Priority, timestamp time.Time) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if _, ok := q.index[item]; ok {
		return false
	}

	entry := &Entry[T]{
		Item:      item,
		Priority:  priority,
		Timestamp: timestamp,
		seq:       q.nextSeq,
	}
	q.nextSeq++

	q.heap = append(q.heap, entry)
	q.index[item] = len(q.heap) - 1
	q.up(len(q.heap) - 1)

	q.signal()
	return true
}

// Pop removes and returns the minimum entry. With wait=false an empty queue
// returns ErrEmptyQueue; with wait=true the call blocks until an entry is
// available or the context is cancelled.
func (q *PriorityQueue[T]) Pop(ctx context.Context, wait bool) (*Entry[T], error) {
	for {
		q.mutex.Lock()
		if len(q.heap) > 0 {
			entry := q.removeAt(0)
			if len(q.heap) > 0 {
				q.signal()
			} else {
				q.drainSignal()
			}
			q.mutex.Unlock()
			return entry, nil
		}
		q.mutex.Unlock()

		if !wait {
			return nil, ErrEmptyQueue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Top is Pop without removal.
func (q *PriorityQueue[T]) Top(ctx context.Context, wait bool) (*Entry[T], error) {
	for {
		q.mutex.Lock()
		if len(q.heap) > 0 {
			entry := *q.heap[0]
			q.signal()
			q.mutex.Unlock()
			return &entry, nil
		}
		q.mutex.Unlock()

		if !wait {
			return nil, ErrEmptyQueue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Remove removes the item wherever it sits in the heap.
func (q *PriorityQueue[T]) Remove(item T) (*Entry[T], error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	pos, ok := q.index[item]
	if !ok {
		return nil, ErrNotFound
	}
	entry := q.removeAt(pos)
	if len(q.heap) == 0 {
		q.drainSignal()
	}
	return entry, nil
}

// SetPriority changes the priority of a queued item in place and restores
// heap order from its slot.
func (q *PriorityQueue[T]) SetPriority(item T, priority Priority) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	pos, ok := q.index[item]
	if !ok {
		return ErrNotFound
	}
	q.heap[pos].Priority = priority
	q.down(pos)
	q.up(pos)
	return nil
}

func (q *PriorityQueue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.heap)
}

func (q *PriorityQueue[T]) Empty() bool {
	return q.Len() == 0
}

func (q *PriorityQueue[T]) Contains(item T) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	_, ok := q.index[item]
	return ok
}

// Snapshot returns copies of all entries. Only the first element is
// guaranteed to be the true minimum; the rest come in heap order.
func (q *PriorityQueue[T]) Snapshot() []Entry[T] {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	entries := make([]Entry[T], 0, len(q.heap))
	for _, entry := range q.heap {
		entries = append(entries, *entry)
	}
	return entries
}

// Mutex must be locked for all helpers below.

func (q *PriorityQueue[T]) less(i, j int) bool {
	a, b := q.heap[i], q.heap[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.seq < b.seq
}

func (q *PriorityQueue[T]) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.index[q.heap[i].Item] = i
	q.index[q.heap[j].Item] = j
}

func (q *PriorityQueue[T]) up(pos int) {
	for pos > 0 {
		parent := (pos - 1) / 2
		if !q.less(pos, parent) {
			break
		}
		q.swap(pos, parent)
		pos = parent
	}
}

func (q *PriorityQueue[T]) down(pos int) {
	for {
		smallest := pos
		for _, child := range []int{2*pos + 1, 2*pos + 2} {
			if child < len(q.heap) && q.less(child, smallest) {
				smallest = child
			}
		}
		if smallest == pos {
			return
		}
		q.swap(pos, smallest)
		pos = smallest
	}
}

func (q *PriorityQueue[T]) removeAt(pos int) *Entry[T] {
	entry := q.heap[pos]
	last := len(q.heap) - 1
	q.swap(pos, last)
	q.heap[last] = nil
	q.heap = q.heap[:last]
	delete(q.index, entry.Item)
	if pos < len(q.heap) {
		q.down(pos)
		q.up(pos)
	}
	return entry
}

func (q *PriorityQueue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *PriorityQueue[T]) drainSignal() {
	select {
	case <-q.notify:
	default:
	}
}
