package evaluation

import (
	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/evaluation/workerpool"
)

// pendingResult is a worker-produced outcome not yet confirmed durably
// written. The assignment keeps the original queue side-data so a failed
// write can re-enqueue the operation without losing its position fairness.
type pendingResult struct {
	assignment workerpool.Assignment
	outcome    *esconn.JobOutcome
}

// pendingResults holds results in two disjoint sets: received but not yet
// sent to the writer, and sent but awaiting write confirmation. An
// operation is pending, and must not be re-dispatched, while it is in
// either. The owner's mutex guards all methods.
type pendingResults struct {
	toWrite map[operations.Operation]*pendingResult
	writing map[operations.Operation]*pendingResult

	// signal wakes the drain loop when toWrite becomes non-empty.
	signal chan struct{}
}

func newPendingResults() *pendingResults {
	return &pendingResults{
		toWrite: make(map[operations.Operation]*pendingResult),
		writing: make(map[operations.Operation]*pendingResult),
		signal:  make(chan struct{}, 1),
	}
}

func (p *pendingResults) Contains(op operations.Operation) bool {
	if _, ok := p.toWrite[op]; ok {
		return true
	}
	_, ok := p.writing[op]
	return ok
}

func (p *pendingResults) Add(assignment workerpool.Assignment, outcome *esconn.JobOutcome) bool {
	op := assignment.Operation
	if p.Contains(op) {
		return false
	}
	p.toWrite[op] = &pendingResult{assignment: assignment, outcome: outcome}
	select {
	case p.signal <- struct{}{}:
	default:
	}
	return true
}

// PickForWrite moves one result from toWrite to writing and returns it, or
// nil when nothing waits.
func (p *pendingResults) PickForWrite() *pendingResult {
	for op, result := range p.toWrite {
		delete(p.toWrite, op)
		p.writing[op] = result
		return result
	}
	return nil
}

// StillWriting reports whether the operation has not been purged since it
// was picked; a purged result must not be written anymore.
func (p *pendingResults) StillWriting(op operations.Operation) bool {
	_, ok := p.writing[op]
	return ok
}

// Resolve removes the operation entirely; called on write confirmation.
func (p *pendingResults) Resolve(op operations.Operation) {
	delete(p.writing, op)
}

// Purge drops the operation from both sets, e.g. on invalidation.
func (p *pendingResults) Purge(op operations.Operation) {
	delete(p.toWrite, op)
	delete(p.writing, op)
}

func (p *pendingResults) Len() int {
	return len(p.toWrite) + len(p.writing)
}
