package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cms-dev/cms-sub005/lib/logger"
)

// TriggeredService owns one or more executors sharing the same logical
// operation stream and layers a periodic sweeper on top of them. The sweeper
// calls MissingOperations to re-derive and enqueue every operation that
// should exist but is missing, healing lost notifications.
type TriggeredService[T comparable] struct {
	executors []*Executor[T]

	// missingOperations re-derives the operations that should be in the
	// queue and enqueues them, returning how many were added.
	missingOperations func() int

	sweeperMutex   sync.Mutex
	sweeperStarted bool
	wake           chan struct{}
}

func NewTriggeredService[T comparable](missingOperations func() int) *TriggeredService[T] {
	return &TriggeredService[T]{
		missingOperations: missingOperations,
		wake:              make(chan struct{}, 1),
	}
}

func (s *TriggeredService[T]) AddExecutor(executor *Executor[T]) {
	s.executors = append(s.executors, executor)
}

func (s *TriggeredService[T]) Executors() []*Executor[T] {
	return s.executors
}

// Enqueue fans the item out to every executor and returns how many accepted
// it. Zero is not an error: callers use it to detect "nobody wanted it".
func (s *TriggeredService[T]) Enqueue(item T, priority Priority, timestamp time.Time) int {
	accepted := 0
	for _, executor := range s.executors {
		if executor.Enqueue(item, priority, timestamp) {
			accepted++
		}
	}
	return accepted
}

// Dequeue removes the item from every executor. Per-executor not-found
// errors are swallowed: the item may have been claimed there already.
func (s *TriggeredService[T]) Dequeue(item T) {
	for _, executor := range s.executors {
		if _, err := executor.Dequeue(item); err != nil && !errors.Is(err, ErrNotFound) {
			logger.Warn("dequeue failed: %v", err)
		}
	}
}

func (s *TriggeredService[T]) Contains(item T) bool {
	for _, executor := range s.executors {
		if executor.Contains(item) {
			return true
		}
	}
	return false
}

// RunExecutors starts all executor loops.
func (s *TriggeredService[T]) RunExecutors(ctx context.Context, spawn func(func())) {
	for _, executor := range s.executors {
		executor := executor
		spawn(func() { executor.Run(ctx) })
	}
}

// StartSweeper starts the sweeper loop. Calling it twice logs a warning and
// does nothing.
func (s *TriggeredService[T]) StartSweeper(ctx context.Context, interval time.Duration, spawn func(func())) {
	s.sweeperMutex.Lock()
	defer s.sweeperMutex.Unlock()

	if s.sweeperStarted {
		logger.Warn("sweeper is already started, ignoring")
		return
	}
	s.sweeperStarted = true
	spawn(func() { s.sweeperLoop(ctx, interval) })
}

// TriggerSweepNow wakes an idle sweeper early. If a sweep is already
// running, the loop simply runs again right after it finishes.
func (s *TriggeredService[T]) TriggerSweepNow() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// The loop guarantees no two sweeps run concurrently; the next sweep starts
// interval after the start of the previous one, or immediately after it
// finishes, whichever is later.
func (s *TriggeredService[T]) sweeperLoop(ctx context.Context, interval time.Duration) {
	logger.Info("starting sweeper loop, interval: %v", interval)
	for {
		start := time.Now()
		count := s.sweep()
		if count > 0 {
			logger.Info("sweeper enqueued %d missing operations", count)
		}

		wait := interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("stopping sweeper loop")
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
	}
}

func (s *TriggeredService[T]) sweep() (count int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sweep failed: %v", r)
		}
	}()
	return s.missingOperations()
}
