package workerconn

import (
	"fmt"

	"github.com/cms-dev/cms-sub005/evaluation/operations"
)

// Job is one batch of operations dispatched to a worker. A worker executes
// at most one job at a time.
type Job struct {
	ID         string                 `json:"id" binding:"required"`
	Operations []operations.Operation `json:"operations" binding:"required"`
}

func (j Job) String() string {
	return fmt.Sprintf("ID: %s Operations: %d", j.ID, len(j.Operations))
}

// Status is reported by a worker both on demand and piggybacked on every
// job result. Epoch changes when the worker restarts, which invalidates
// everything the pool believed about it.
type Status struct {
	Address      string   `json:"address"`
	Epoch        string   `json:"epoch"`
	ActiveJobIDs []string `json:"active_job_ids"`
}
