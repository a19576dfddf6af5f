package evaluation

import (
	"testing"
	"time"

	"github.com/cms-dev/cms-sub005/evaluation/workerpool"
	"github.com/cms-dev/cms-sub005/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueStatusGroupsTestcases(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	s.enqueueAll([]queuedOperation{
		{op: evaluateOp(sub.ID, f.dataset.ID, "01"), priority: scheduler.PriorityMedium, timestamp: time.Unix(20, 0)},
		{op: evaluateOp(sub.ID, f.dataset.ID, "02"), priority: scheduler.PriorityMedium, timestamp: time.Unix(10, 0)},
	})

	status := s.QueueStatus()
	require.Len(t, status, 1)
	assert.Equal(t, "evaluate", status[0].Type)
	assert.Equal(t, sub.ID, status[0].ObjectID)
	assert.Equal(t, 2, status[0].Count)
	// The group reports its oldest timestamp.
	assert.Equal(t, time.Unix(10, 0), status[0].Timestamp)
}

func TestQueueStatusOrderedByPriority(t *testing.T) {
	s, f := newTestService(t)
	first := f.newSubmission(t)
	second := f.newSubmission(t)

	// extra_low sorts after high even though it compares before it
	// alphabetically.
	s.enqueueAll([]queuedOperation{
		{op: compileOp(first.ID, f.dataset.ID), priority: scheduler.PriorityExtraLow, timestamp: time.Unix(1, 0)},
		{op: compileOp(second.ID, f.dataset.ID), priority: scheduler.PriorityHigh, timestamp: time.Unix(2, 0)},
	})

	status := s.QueueStatus()
	require.Len(t, status, 2)
	assert.Equal(t, "high", status[0].Priority)
	assert.Equal(t, "extra_low", status[1].Priority)
}

func TestWorkersStatus(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	s.pool.AddWorker("http://w2")
	s.pool.AddWorker("http://w1")
	s.pool.DisableWorker("http://w2")

	op := compileOp(sub.ID, f.dataset.ID)
	require.NotEmpty(t, s.pool.AcquireWorker([]workerpool.Assignment{assignmentFor(op)}))

	status := s.WorkersStatus()
	require.Len(t, status, 2)

	assert.Equal(t, "http://w1", status[0].Address)
	assert.False(t, status[0].Disabled)
	require.Len(t, status[0].Operations, 1)
	assert.Equal(t, op, status[0].Operations[0])

	assert.Equal(t, "http://w2", status[1].Address)
	assert.True(t, status[1].Disabled)
	assert.Empty(t, status[1].Operations)
}
