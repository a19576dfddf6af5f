package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/common/db/models"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/evaluation/workerpool"
	"github.com/cms-dev/cms-sub005/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilationSuccessChainsEvaluations(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	writePendingResult(t, s, assignmentFor(op), compileOK(op))

	result := f.submissionResult(t, sub.ID)
	assert.True(t, result.CompilationSucceeded())

	for _, codename := range []string{"01", "02"} {
		entry := findEntry(s, evaluateOp(sub.ID, f.dataset.ID, codename))
		require.NotNil(t, entry, "evaluation for testcase %s not enqueued", codename)
		assert.Equal(t, scheduler.PriorityMedium, entry.Priority)
	}
}

func TestCompilationFailureEndsJudging(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	writePendingResult(t, s, assignmentFor(op), compileFail(op))

	result := f.submissionResult(t, sub.ID)
	assert.True(t, result.CompilationFailed())
	assert.Equal(t, "does not compile", result.CompilationText)
	assert.Equal(t, 0, s.executor.Len())
}

func TestWorkerErrorBumpsTriesAndRetries(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	writePendingResult(t, s, assignmentFor(op), workerError(op))

	result := f.submissionResult(t, sub.ID)
	assert.False(t, result.Compiled())
	assert.Equal(t, 1, result.CompilationTries)

	// The retry is re-enqueued at the lower retry priority.
	entry := findEntry(s, op)
	require.NotNil(t, entry)
	assert.Equal(t, scheduler.PriorityMedium, entry.Priority)
}

func TestWorkerErrorsExhaustTries(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	for try := 0; try < s.cfg.MaxCompilationTries; try++ {
		writePendingResult(t, s, assignmentFor(op), workerError(op))
		s.triggered.Dequeue(op)
	}

	result := f.submissionResult(t, sub.ID)
	assert.Equal(t, s.cfg.MaxCompilationTries, result.CompilationTries)
	assert.Equal(t, 0, s.executor.Len())
	assert.Equal(t, 0, s.missingOperations())
}

func TestEvaluationCompletion(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	compile := compileOp(sub.ID, f.dataset.ID)

	writePendingResult(t, s, assignmentFor(compile), compileOK(compile))

	first := evaluateOp(sub.ID, f.dataset.ID, "01")
	s.triggered.Dequeue(first)
	writePendingResult(t, s, assignmentFor(first), evaluateOK(first))

	result := f.submissionResult(t, sub.ID)
	assert.False(t, result.Evaluated())
	require.NotNil(t, result.Evaluations.Find("01"))
	assert.Equal(t, "1", result.Evaluations.Find("01").Outcome)

	second := evaluateOp(sub.ID, f.dataset.ID, "02")
	s.triggered.Dequeue(second)
	writePendingResult(t, s, assignmentFor(second), evaluateOK(second))

	result = f.submissionResult(t, sub.ID)
	assert.True(t, result.Evaluated())
	assert.Equal(t, models.EvaluationOutcomeOK, result.EvaluationOutcome)
	assert.Equal(t, 0, s.executor.Len())
}

func TestDuplicateEnqueueRefused(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	q := []queuedOperation{{op: op, priority: scheduler.PriorityHigh, timestamp: time.Unix(1, 0)}}
	assert.Equal(t, 1, s.enqueueAll(q))
	assert.Equal(t, 0, s.enqueueAll(q))
}

func TestOperationOnWorkerNotReenqueued(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	s.pool.AddWorker("http://w1")
	require.NotEmpty(t, s.pool.AcquireWorker([]workerpool.Assignment{assignmentFor(op)}))

	q := []queuedOperation{{op: op, priority: scheduler.PriorityHigh, timestamp: time.Unix(1, 0)}}
	assert.Equal(t, 0, s.enqueueAll(q))
}

func TestJobResultArrival(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	s.pool.AddWorker("http://w1")
	require.NotEmpty(t, s.pool.AcquireWorker([]workerpool.Assignment{assignmentFor(op)}))
	jobID := s.pool.Status()[0].JobID

	s.JobResultArrived(&esconn.JobResult{JobID: jobID, Outcomes: []*esconn.JobOutcome{compileOK(op)}})

	// The result is pending, not written and not re-dispatchable.
	assert.True(t, s.pending.Contains(op))
	assert.False(t, s.pool.Contains(op))
	q := []queuedOperation{{op: op, priority: scheduler.PriorityHigh, timestamp: time.Unix(1, 0)}}
	assert.Equal(t, 0, s.enqueueAll(q))

	s.mutex.Lock()
	result := s.pending.PickForWrite()
	s.mutex.Unlock()
	require.NotNil(t, result)
	s.writeResult(result)

	assert.True(t, f.submissionResult(t, sub.ID).CompilationSucceeded())
}

func TestUnknownJobResultDropped(t *testing.T) {
	s, _ := newTestService(t)

	s.JobResultArrived(&esconn.JobResult{JobID: "stale", Outcomes: nil})
	assert.Equal(t, 0, s.pending.Len())
}

func TestMissingOutcomeReenqueued(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	s.pool.AddWorker("http://w1")
	require.NotEmpty(t, s.pool.AcquireWorker([]workerpool.Assignment{assignmentFor(op)}))
	jobID := s.pool.Status()[0].JobID

	s.JobResultArrived(&esconn.JobResult{JobID: jobID, Outcomes: nil})

	entry := findEntry(s, op)
	require.NotNil(t, entry)
	assert.Equal(t, scheduler.PriorityHigh, entry.Priority)
	assert.Equal(t, time.Unix(10, 0), entry.Timestamp)
}

func TestLostOperationsKeepSideData(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	a := workerpool.Assignment{Operation: op, Priority: scheduler.PriorityExtraLow, Timestamp: time.Unix(42, 0)}
	s.pool.AddWorker("http://w1")
	require.NotEmpty(t, s.pool.AcquireWorker([]workerpool.Assignment{a}))

	lost := s.pool.CheckTimeouts(0)
	require.Len(t, lost, 1)
	s.operationsLost(lost)

	entry := findEntry(s, op)
	require.NotNil(t, entry)
	assert.Equal(t, scheduler.PriorityExtraLow, entry.Priority)
	assert.Equal(t, time.Unix(42, 0), entry.Timestamp)
}

func TestUserTestFlow(t *testing.T) {
	s, f := newTestService(t)
	userTest := f.newUserTest(t)
	compile := operations.Operation{Kind: operations.UserTestCompile, ObjectID: userTest.ID, DatasetID: f.dataset.ID}

	writePendingResult(t, s, assignmentFor(compile), compileOK(compile))

	evaluate := operations.Operation{Kind: operations.UserTestEvaluate, ObjectID: userTest.ID, DatasetID: f.dataset.ID}
	require.NotNil(t, findEntry(s, evaluate))

	s.triggered.Dequeue(evaluate)
	writePendingResult(t, s, assignmentFor(evaluate), &esconn.JobOutcome{
		Operation: evaluate, Success: true, Text: "Execution completed",
	})

	result := f.userTestResult(t, userTest.ID)
	assert.True(t, result.CompilationSucceeded())
	assert.True(t, result.Evaluated())
	assert.Equal(t, "Execution completed", result.EvaluationText)
	assert.Equal(t, 0, s.executor.Len())
}

func TestQueueAcceptsWorkAfterConstruction(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	assert.Equal(t, 1, s.triggered.Enqueue(op, scheduler.PriorityHigh, time.Unix(1, 0)))
	assert.True(t, s.executor.Contains(op))
}

func TestResultRowPersistsWithoutTimeAndMemory(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	// First write of a result carries no timing measurements yet.
	row := models.SubmissionResult{SubmissionID: sub.ID, DatasetID: f.dataset.ID}
	require.Nil(t, s.es.DB.Create(&row).Error)

	loaded := f.submissionResult(t, sub.ID)
	assert.Nil(t, loaded.CompilationTime)
	assert.Nil(t, loaded.CompilationMemory)
}

func TestCancelledStagedOperationNotDispatched(t *testing.T) {
	s, f := newTestService(t)
	op := evaluateOp(1, f.dataset.ID, "01")

	q := []queuedOperation{{op: op, priority: scheduler.PriorityMedium, timestamp: time.Unix(10, 0)}}
	require.Equal(t, 1, s.enqueueAll(q))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.executor.Run(ctx)

	// With no worker registered the batch stays staged inside Execute.
	require.Eventually(t, func() bool { return s.executor.Staged(op) }, time.Second, time.Millisecond)

	s.mutex.Lock()
	s.dequeueLocked(op)
	s.mutex.Unlock()

	s.pool.AddWorker("http://w1")

	require.Eventually(t, func() bool { return !s.executor.Staged(op) }, time.Second, time.Millisecond)
	assert.False(t, s.pool.Contains(op))
	assert.Equal(t, "", s.pool.Status()[0].JobID)
}

func TestCancelledStagedOperationReenqueuedOnce(t *testing.T) {
	s, f := newTestService(t)
	op := evaluateOp(1, f.dataset.ID, "01")

	q := []queuedOperation{{op: op, priority: scheduler.PriorityMedium, timestamp: time.Unix(10, 0)}}
	require.Equal(t, 1, s.enqueueAll(q))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.executor.Run(ctx)

	require.Eventually(t, func() bool { return s.executor.Staged(op) }, time.Second, time.Millisecond)

	// Cancel while the batch waits for a worker, then re-enqueue the way an
	// invalidation's re-derivation does.
	s.mutex.Lock()
	s.dequeueLocked(op)
	s.mutex.Unlock()
	require.Equal(t, 1, s.enqueueAll(q))

	s.pool.AddWorker("http://w1")

	// Only the fresh copy reaches the worker; the stale batch is dropped at
	// dispatch, so the operation is never in the queue and the pool at once.
	require.Eventually(t, func() bool { return s.pool.Contains(op) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !s.executor.Contains(op) }, time.Second, time.Millisecond)
	assert.True(t, s.pool.Contains(op))
}

func TestWriteIsIdempotent(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)
	op := compileOp(sub.ID, f.dataset.ID)

	writePendingResult(t, s, assignmentFor(op), compileOK(op))
	// A duplicate result of the same operation changes nothing.
	writePendingResult(t, s, assignmentFor(op), compileFail(op))

	result := f.submissionResult(t, sub.ID)
	assert.True(t, result.CompilationSucceeded())
}
