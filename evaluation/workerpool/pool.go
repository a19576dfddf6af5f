package workerpool

import (
	"sync"
	"time"

	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/connectors/workerconn"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/lib/logger"
	"github.com/cms-dev/cms-sub005/scheduler"

	"github.com/google/uuid"
)

// Assignment is one operation given to a worker, together with the queue
// side-data it was popped with, so a retry keeps its original position
// fairness.
type Assignment struct {
	Operation operations.Operation `json:"operation"`
	Priority  scheduler.Priority   `json:"priority"`
	Timestamp time.Time            `json:"timestamp"`
}

// Pool tracks which operations are assigned to which worker. Each operation
// is assigned to at most one worker at a time; the pool never re-enqueues
// anything itself, it hands lost assignments to the onLost callback (or
// returns them to the caller) so that all recovery funnels through one path.
type Pool struct {
	spawn  func(func())
	onLost func([]Assignment)

	mutex      sync.Mutex
	workers    map[string]*worker
	jobToWork  map[string]*worker
	opToWorker map[operations.Operation]*worker

	// freeSignal carries the "some worker may be free" hint for waiters.
	freeSignal chan struct{}
}

type worker struct {
	address   string
	epoch     string
	connector *workerconn.Connector

	disabled  bool
	connected bool

	lastContact time.Time

	// One job (batch of assignments) at a time.
	jobID       string
	jobStart    time.Time
	assignments []Assignment
	ignored     map[operations.Operation]bool
}

func NewPool(spawn func(func()), onLost func([]Assignment)) *Pool {
	return &Pool{
		spawn:      spawn,
		onLost:     onLost,
		workers:    make(map[string]*worker),
		jobToWork:  make(map[string]*worker),
		opToWorker: make(map[operations.Operation]*worker),
		freeSignal: make(chan struct{}, 1),
	}
}

// AddWorker registers a worker by address. Re-adding is a no-op.
func (p *Pool) AddWorker(address string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, ok := p.workers[address]; ok {
		return
	}
	logger.Info("registering new worker: %s", address)
	p.workers[address] = &worker{
		address:     address,
		connector:   workerconn.NewConnector(&config.Connection{Address: address}),
		connected:   true,
		lastContact: time.Now(),
		ignored:     make(map[operations.Operation]bool),
	}
	p.signalFree()
}

// UpsertWorker processes a worker heartbeat. If the worker restarted while
// holding a job, the job's assignments are handed to onLost.
func (p *Pool) UpsertWorker(status *workerconn.Status) {
	p.mutex.Lock()

	w, ok := p.workers[status.Address]
	if !ok {
		p.mutex.Unlock()
		p.AddWorker(status.Address)
		p.mutex.Lock()
		w = p.workers[status.Address]
	}

	var lost []Assignment
	if w.epoch != "" && w.epoch != status.Epoch && w.jobID != "" {
		logger.Warn("worker %s restarted while executing job %s", w.address, w.jobID)
		lost = p.extractAssignments(w)
	}
	w.epoch = status.Epoch
	w.connected = true
	w.lastContact = time.Now()
	p.mutex.Unlock()

	if len(lost) > 0 {
		p.onLost(lost)
	}
}

// AcquireWorker assigns the batch to a free worker and starts sending the
// job. It returns the worker address, or "" when no worker is free.
func (p *Pool) AcquireWorker(assignments []Assignment) string {
	p.mutex.Lock()

	var chosen *worker
	for _, w := range p.workers {
		if w.free() {
			chosen = w
			break
		}
	}
	if chosen == nil {
		p.mutex.Unlock()
		return ""
	}

	job := &workerconn.Job{
		ID:         uuid.NewString(),
		Operations: make([]operations.Operation, 0, len(assignments)),
	}
	for _, a := range assignments {
		job.Operations = append(job.Operations, a.Operation)
	}

	chosen.jobID = job.ID
	chosen.jobStart = time.Now()
	chosen.assignments = assignments
	chosen.ignored = make(map[operations.Operation]bool)
	p.jobToWork[job.ID] = chosen
	for _, a := range assignments {
		p.opToWorker[a.Operation] = chosen
	}
	connector := chosen.connector
	address := chosen.address
	p.mutex.Unlock()

	logger.Trace("sending job %s with %d operations to worker %s", job.ID, len(job.Operations), address)
	p.spawn(func() { p.completeSendJob(address, connector, job) })

	return address
}

func (p *Pool) completeSendJob(address string, connector *workerconn.Connector, job *workerconn.Job) {
	status, err := connector.NewJob(job)
	if err != nil {
		logger.Warn("failed to send job %s to worker %s, error: %s", job.ID, address, err.Error())
		p.failWorkerByAddress(address)
		return
	}
	p.UpsertWorker(status)
}

// WaitForWorkers suspends the caller until a worker is free, returning false
// once done is closed. A wakeup on freeSignal is only a hint (the token may
// be left over from a worker acquired since), so the free check is repeated
// after every wakeup.
func (p *Pool) WaitForWorkers(done <-chan struct{}) bool {
	for {
		select {
		case <-done:
			return false
		default:
		}

		p.mutex.Lock()
		for _, w := range p.workers {
			if w.free() {
				p.mutex.Unlock()
				return true
			}
		}
		p.mutex.Unlock()

		select {
		case <-done:
			return false
		case <-p.freeSignal:
		}
	}
}

// ReleaseWorker marks the worker's job finished and returns its assignments
// together with the operations whose results must be discarded. Unknown
// jobs (old epoch, already recovered) return ok=false and the whole result
// must be ignored.
func (p *Pool) ReleaseWorker(jobID string) (assignments []Assignment, ignored map[operations.Operation]bool, ok bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	w, exists := p.jobToWork[jobID]
	if !exists {
		return nil, nil, false
	}

	assignments = w.assignments
	ignored = w.ignored
	p.clearJob(w)
	p.signalFree()
	return assignments, ignored, true
}

// IgnoreOperation marks a live assignment's eventual result as
// to-be-discarded. Returns false if no worker holds the operation.
func (p *Pool) IgnoreOperation(op operations.Operation) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	w, ok := p.opToWorker[op]
	if !ok {
		return false
	}
	w.ignored[op] = true
	return true
}

// Contains reports whether the operation is currently assigned to a worker
// and not marked ignored.
func (p *Pool) Contains(op operations.Operation) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	w, ok := p.opToWorker[op]
	return ok && !w.ignored[op]
}

// CheckTimeouts declares stale every worker whose job has been running
// longer than the timeout, and returns the lost assignments.
func (p *Pool) CheckTimeouts(timeout time.Duration) []Assignment {
	p.mutex.Lock()

	var lost []Assignment
	now := time.Now()
	for _, w := range p.workers {
		if w.jobID != "" && now.Sub(w.jobStart) > timeout {
			logger.Warn("worker %s timed out on job %s", w.address, w.jobID)
			w.connected = false
			lost = append(lost, p.extractAssignments(w)...)
		}
	}
	p.mutex.Unlock()
	return lost
}

// CheckConnections probes every worker and returns the assignments lost to
// disconnected ones. Workers that answer again are marked connected.
func (p *Pool) CheckConnections() []Assignment {
	p.mutex.Lock()
	probes := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		if !w.disabled {
			probes = append(probes, w)
		}
	}
	p.mutex.Unlock()

	var lost []Assignment
	for _, w := range probes {
		status, err := w.connector.Status()
		if err != nil {
			logger.Warn("worker %s did not respond, error: %s", w.address, err.Error())
			lost = append(lost, p.failWorkerByAddress(w.address)...)
			continue
		}

		p.mutex.Lock()
		var restarted []Assignment
		if w.epoch != "" && w.epoch != status.Epoch && w.jobID != "" {
			logger.Warn("worker %s restarted while executing job %s", w.address, w.jobID)
			restarted = p.extractAssignments(w)
		}
		w.epoch = status.Epoch
		if !w.connected {
			logger.Info("worker %s is connected again", w.address)
			w.connected = true
			p.signalFree()
		}
		w.lastContact = time.Now()
		p.mutex.Unlock()
		lost = append(lost, restarted...)
	}
	return lost
}

// DisableWorker takes the worker out of rotation and returns the
// assignments it was holding.
func (p *Pool) DisableWorker(address string) []Assignment {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	w, ok := p.workers[address]
	if !ok {
		return nil
	}
	w.disabled = true
	return p.extractAssignments(w)
}

func (p *Pool) EnableWorker(address string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	w, ok := p.workers[address]
	if !ok {
		return
	}
	if w.disabled {
		w.disabled = false
		p.signalFree()
	}
}

// Status reports per-worker assignment and health.
func (p *Pool) Status() []WorkerView {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	views := make([]WorkerView, 0, len(p.workers))
	for _, w := range p.workers {
		view := WorkerView{
			Address:       w.address,
			Connected:     w.connected,
			Disabled:      w.disabled,
			LastHeartbeat: w.lastContact,
			JobID:         w.jobID,
		}
		for _, a := range w.assignments {
			view.Operations = append(view.Operations, a.Operation)
		}
		views = append(views, view)
	}
	return views
}

// WorkerView is the introspection snapshot of one worker.
type WorkerView struct {
	Address       string
	Connected     bool
	Disabled      bool
	LastHeartbeat time.Time
	JobID         string
	Operations    []operations.Operation
}

func (p *Pool) failWorkerByAddress(address string) []Assignment {
	p.mutex.Lock()

	w, ok := p.workers[address]
	if !ok {
		p.mutex.Unlock()
		return nil
	}
	w.connected = false
	lost := p.extractAssignments(w)
	p.mutex.Unlock()

	if len(lost) > 0 && p.onLost != nil {
		p.onLost(lost)
		return nil
	}
	return lost
}

func (w *worker) free() bool {
	return !w.disabled && w.connected && w.jobID == ""
}

// Mutex must be locked. Returns the non-ignored assignments of the
// worker's current job and clears it.
func (p *Pool) extractAssignments(w *worker) []Assignment {
	var lost []Assignment
	for _, a := range w.assignments {
		if !w.ignored[a.Operation] {
			lost = append(lost, a)
		}
	}
	p.clearJob(w)
	return lost
}

// Mutex must be locked.
func (p *Pool) clearJob(w *worker) {
	delete(p.jobToWork, w.jobID)
	for _, a := range w.assignments {
		delete(p.opToWorker, a.Operation)
	}
	w.jobID = ""
	w.assignments = nil
	w.ignored = make(map[operations.Operation]bool)
}

func (p *Pool) signalFree() {
	select {
	case p.freeSignal <- struct{}{}:
	default:
	}
}
