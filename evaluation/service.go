package evaluation

import (
	"errors"
	"sync"
	"time"

	"github.com/cms-dev/cms-sub005/common"
	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/evaluation/workerpool"
	"github.com/cms-dev/cms-sub005/lib/cache"
	"github.com/cms-dev/cms-sub005/lib/logger"
	"github.com/cms-dev/cms-sub005/scheduler"
)

// testcaseCacheBound limits how many bytes of testcase codenames are kept
// in memory across datasets.
const testcaseCacheBound = 16 << 20

// Service judges submissions and user tests: it derives the operations each
// object still needs, schedules them through a priority queue, dispatches
// them to workers and writes the produced results durably.
type Service struct {
	es  *common.EvalSystem
	cfg *config.EvaluationConfig

	triggered *scheduler.TriggeredService[operations.Operation]
	executor  *scheduler.Executor[operations.Operation]
	pool      *workerpool.Pool

	// mutex makes "is the operation anywhere in flight" checks atomic with
	// the transitions between queue, pool and pending results.
	mutex   sync.Mutex
	pending *pendingResults

	// writeMutex serializes result writes against invalidation, so an
	// invalidation never interleaves with a half-written result.
	writeMutex sync.Mutex

	writer ResultWriter

	// testcases caches the codename list per dataset; evicted when the
	// dataset is updated.
	testcases *cache.LRUSizeCache[uint, []string]
}

// SetupEvaluationService builds the service on top of the shared system and
// registers its HTTP handlers and background processes.
func SetupEvaluationService(es *common.EvalSystem) (*Service, error) {
	if es.Config.Evaluation == nil {
		return nil, errors.New("evaluation service is not configured")
	}
	s := NewService(es)

	for _, conn := range s.cfg.Workers {
		s.pool.AddWorker(conn.Address)
	}
	s.registerHandlers()

	es.AddProcess(func() {
		s.triggered.RunExecutors(es.StopCtx, es.Go)
		s.triggered.StartSweeper(es.StopCtx, s.cfg.SweeperInterval, es.Go)
	})
	es.AddProcess(s.drainLoop)
	es.AddProcess(s.timeoutCheckLoop)
	es.AddProcess(s.connectionCheckLoop)

	return s, nil
}

// NewService wires the service without registering handlers or processes.
func NewService(es *common.EvalSystem) *Service {
	s := &Service{
		es:      es,
		cfg:     es.Config.Evaluation,
		pending: newPendingResults(),
	}
	s.triggered = scheduler.NewTriggeredService[operations.Operation](s.missingOperations)
	s.executor = scheduler.NewExecutor[operations.Operation](s, true)
	s.triggered.AddExecutor(s.executor)
	s.pool = workerpool.NewPool(es.Go, s.operationsLost)
	s.testcases = cache.NewLRUSizeCache[uint, []string](testcaseCacheBound, s.loadTestcaseCodenames, nil)
	s.writer = newDBWriter(es, s.cfg, s.testcaseCodenames)
	return s
}

// MaxOperationsPerBatch caps one dispatch to a worker.
func (s *Service) MaxOperationsPerBatch() int {
	return s.cfg.MaxOperationsPerBatch
}

// Execute hands one batch of queued operations to the first free worker,
// blocking until a worker frees up or the service stops.
func (s *Service) Execute(entries []*scheduler.Entry[operations.Operation]) {
	s.es.Metrics.QueueSize.Set(float64(s.executor.Len()))

	assignments := make([]workerpool.Assignment, 0, len(entries))
	for _, entry := range entries {
		assignments = append(assignments, workerpool.Assignment{
			Operation: entry.Item,
			Priority:  entry.Priority,
			Timestamp: entry.Timestamp,
		})
	}

	for {
		// Operations invalidated while we waited for a worker have left
		// the staging set; the filter and the acquisition happen under the
		// same mutex as dequeueLocked, so a cancellation either drops the
		// assignment here or finds it in the pool and flags it ignored.
		s.mutex.Lock()
		live := assignments[:0]
		for _, a := range assignments {
			if s.executor.Staged(a.Operation) {
				live = append(live, a)
			}
		}
		assignments = live
		if len(assignments) == 0 {
			s.mutex.Unlock()
			return
		}
		address := s.pool.AcquireWorker(assignments)
		s.mutex.Unlock()

		if address != "" {
			logger.Trace("dispatched %d operations to worker %s", len(assignments), address)
			return
		}
		if !s.pool.WaitForWorkers(s.es.StopCtx.Done()) {
			return
		}
	}
}

// enqueueLocked adds the operation unless it is already queued, assigned to
// a worker or pending a result write. Mutex must be locked.
func (s *Service) enqueueLocked(op operations.Operation, priority scheduler.Priority, timestamp time.Time) bool {
	if s.pending.Contains(op) || s.pool.Contains(op) {
		return false
	}
	if s.triggered.Enqueue(op, priority, timestamp) == 0 {
		return false
	}
	s.es.Metrics.EnqueuedOperations.WithLabelValues(op.Kind.String()).Inc()
	s.es.Metrics.QueueSize.Set(float64(s.executor.Len()))
	return true
}

func (s *Service) enqueueAll(ops []queuedOperation) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	accepted := 0
	for _, q := range ops {
		if s.enqueueLocked(q.op, q.priority, q.timestamp) {
			accepted++
		}
	}
	return accepted
}

// dequeueLocked removes the operation from wherever it is: the queue, a
// worker's live job (whose eventual result is then discarded) or the
// pending results. Mutex must be locked.
func (s *Service) dequeueLocked(op operations.Operation) {
	s.triggered.Dequeue(op)
	s.pool.IgnoreOperation(op)
	s.pending.Purge(op)
}

// operationsLost is the single recovery path for assignments lost to worker
// restarts, timeouts and disconnects: each goes back to the queue with its
// original priority and timestamp.
func (s *Service) operationsLost(assignments []workerpool.Assignment) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, a := range assignments {
		s.es.Metrics.LostOperations.Inc()
		if s.enqueueLocked(a.Operation, a.Priority, a.Timestamp) {
			logger.Info("re-enqueued lost operation %s", a.Operation)
		}
	}
}

// JobResultArrived processes one job result posted by a worker. Results of
// unknown jobs (timed out, recovered after a restart) are dropped whole;
// results of invalidated operations are dropped individually.
func (s *Service) JobResultArrived(result *esconn.JobResult) {
	if result.Status != nil {
		s.pool.UpsertWorker(result.Status)
	}

	outcomes := make(map[operations.Operation]*esconn.JobOutcome, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		outcomes[outcome.Operation] = outcome
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	assignments, ignored, ok := s.pool.ReleaseWorker(result.JobID)
	if !ok {
		logger.Trace("result for unknown job %s, ignoring", result.JobID)
		return
	}

	for _, a := range assignments {
		op := a.Operation
		if ignored[op] {
			logger.Info("discarding result of cancelled operation %s", op)
			continue
		}
		outcome, found := outcomes[op]
		if !found {
			logger.Warn("worker returned no outcome for %s, re-enqueueing", op)
			s.enqueueLocked(op, a.Priority, a.Timestamp)
			continue
		}
		s.pending.Add(a, outcome)
	}
}

// drainLoop writes pending results one at a time. A confirmed write
// triggers derivation for the object, so compilations chain into
// evaluations without waiting for the sweeper.
func (s *Service) drainLoop() {
	logger.Info("starting result drain loop")
	for {
		s.mutex.Lock()
		result := s.pending.PickForWrite()
		s.mutex.Unlock()

		if result == nil {
			select {
			case <-s.es.StopCtx.Done():
				logger.Info("stopping result drain loop")
				return
			case <-s.pending.signal:
			}
			continue
		}
		s.writeResult(result)
	}
}

func (s *Service) writeResult(result *pendingResult) {
	op := result.assignment.Operation

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	s.mutex.Lock()
	live := s.pending.StillWriting(op)
	s.mutex.Unlock()
	if !live {
		logger.Info("dropping invalidated result of %s", op)
		return
	}

	err := s.writer.WriteResult(result.assignment, result.outcome)

	s.mutex.Lock()
	s.pending.Resolve(op)
	if err != nil {
		logger.Warn("failed to write result of %s, error: %s, re-enqueueing", op, err.Error())
		s.es.Metrics.WriteFailures.Inc()
		s.enqueueLocked(op, result.assignment.Priority, result.assignment.Timestamp)
		s.mutex.Unlock()
		return
	}
	s.mutex.Unlock()

	s.es.Metrics.OperationResults.WithLabelValues(op.Kind.String(), outcomeLabel(result.outcome)).Inc()

	// Still under writeMutex: follow-up derivation sees the write.
	followUps, err := s.operationsForObject(op)
	if err != nil {
		logger.Warn("failed to derive follow-up operations for %s, error: %s", op, err.Error())
		return
	}
	s.enqueueAll(followUps)
}

func outcomeLabel(outcome *esconn.JobOutcome) string {
	if !outcome.Success {
		return "worker_error"
	}
	if outcome.CompilationOutcome != "" {
		return outcome.CompilationOutcome
	}
	return "ok"
}

func (s *Service) timeoutCheckLoop() {
	ticker := time.Tick(s.cfg.TimeoutCheckInterval)
	for {
		select {
		case <-s.es.StopCtx.Done():
			return
		case <-ticker:
		}

		lost := s.pool.CheckTimeouts(s.cfg.WorkerTimeout)
		if len(lost) > 0 {
			s.es.Metrics.WorkerFails.Inc()
			s.operationsLost(lost)
		}
	}
}

func (s *Service) connectionCheckLoop() {
	ticker := time.Tick(s.cfg.ConnectionCheckInterval)
	for {
		select {
		case <-s.es.StopCtx.Done():
			return
		case <-ticker:
		}

		lost := s.pool.CheckConnections()
		if len(lost) > 0 {
			s.es.Metrics.WorkerFails.Inc()
			s.operationsLost(lost)
		}
		s.updateWorkerGauge()
	}
}

func (s *Service) updateWorkerGauge() {
	connected := 0
	for _, view := range s.pool.Status() {
		if view.Connected && !view.Disabled {
			connected++
		}
	}
	s.es.Metrics.WorkersConnected.Set(float64(connected))
}
