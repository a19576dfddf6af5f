package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cms-dev/cms-sub005/lib/logger"

	mapset "github.com/deckarep/golang-set/v2"
)

// Runner receives the entries drained from an executor's queue.
//
// Execute is called from the executor's own goroutine, one call at a time;
// it may block (e.g. waiting for a free worker). Panics are caught and
// logged so one bad operation never stops the executor.
type Runner[T comparable] interface {
	Execute(entries []*Entry[T])

	// MaxOperationsPerBatch caps one Execute call when batching, 0 means
	// unbounded.
	MaxOperationsPerBatch() int
}

// Executor drains one PriorityQueue and hands entries to its Runner.
// Entries popped but not yet dispatched sit in the staging set, so Dequeue
// and Contains keep seeing them.
type Executor[T comparable] struct {
	queue           *PriorityQueue[T]
	runner          Runner[T]
	batchExecutions bool

	// mutex makes queue<->staging transitions atomic, so an item is never
	// observed in neither place while it moves between them.
	mutex  sync.Mutex
	staged mapset.Set[T]
}

func NewExecutor[T comparable](runner Runner[T], batchExecutions bool) *Executor[T] {
	return &Executor[T]{
		queue:           NewPriorityQueue[T](),
		runner:          runner,
		batchExecutions: batchExecutions,
		staged:          mapset.NewThreadUnsafeSet[T](),
	}
}

// Enqueue pushes the item unless it is already queued or staged.
func (e *Executor[T]) Enqueue(item T, priority Priority, timestamp time.Time) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.staged.Contains(item) {
		return false
	}
	return e.queue.Push(item, priority, timestamp)
}

// Dequeue removes the item from the queue or, failing that, from the staging
// set, in which case the run loop will skip it before dispatch. The returned
// entry is nil when the item was only staged.
func (e *Executor[T]) Dequeue(item T) (*Entry[T], error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	entry, err := e.queue.Remove(item)
	if err == nil {
		return entry, nil
	}
	if e.staged.Contains(item) {
		e.staged.Remove(item)
		return nil, nil
	}
	return nil, ErrNotFound
}

func (e *Executor[T]) Contains(item T) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.queue.Contains(item) || e.staged.Contains(item)
}

// Staged reports whether the item sits in the staging set, i.e. it was
// popped for the batch currently being dispatched and not dequeued since.
// Runners use this to drop entries cancelled while they waited to dispatch.
func (e *Executor[T]) Staged(item T) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.staged.Contains(item)
}

func (e *Executor[T]) Len() int {
	return e.queue.Len()
}

func (e *Executor[T]) SetPriority(item T, priority Priority) error {
	return e.queue.SetPriority(item, priority)
}

func (e *Executor[T]) Snapshot() []Entry[T] {
	return e.queue.Snapshot()
}

// Run drains the queue until the context is cancelled.
func (e *Executor[T]) Run(ctx context.Context) {
	logger.Info("starting executor loop")
	for {
		if _, err := e.queue.Top(ctx, true); err != nil {
			logger.Info("stopping executor loop")
			return
		}

		entries := e.popBatch()
		if len(entries) == 0 {
			continue
		}
		e.executeEntries(entries)
	}
}

func (e *Executor[T]) popBatch() []*Entry[T] {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	maxOperations := 1
	if e.batchExecutions {
		maxOperations = e.runner.MaxOperationsPerBatch()
		if maxOperations <= 0 {
			maxOperations = math.MaxInt
		}
	}

	var entries []*Entry[T]
	for len(entries) < maxOperations {
		entry, err := e.queue.Pop(context.Background(), false)
		if err != nil {
			break
		}
		e.staged.Add(entry.Item)
		entries = append(entries, entry)
	}
	return entries
}

func (e *Executor[T]) executeEntries(entries []*Entry[T]) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("executor: execute failed on batch of %d entries: %v", len(entries), r)
		}
		e.mutex.Lock()
		for _, entry := range entries {
			e.staged.Remove(entry.Item)
		}
		e.mutex.Unlock()
	}()

	// Entries dequeued while staged are dropped here.
	e.mutex.Lock()
	live := make([]*Entry[T], 0, len(entries))
	for _, entry := range entries {
		if e.staged.Contains(entry.Item) {
			live = append(live, entry)
		}
	}
	e.mutex.Unlock()

	if len(live) == 0 {
		return
	}

	e.runner.Execute(live)
}
