package esconn

import (
	"time"

	"github.com/cms-dev/cms-sub005/common/connectors/workerconn"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/lib/customfields"
)

// JobOutcome is what a worker produced for one operation of a job.
type JobOutcome struct {
	Operation operations.Operation `json:"operation"`

	// Success is false when the worker machinery itself failed (sandbox
	// error, missing files); the operation is then retried.
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Compile kinds.
	CompilationOutcome string `json:"compilation_outcome,omitempty"` // "ok" or "fail"

	// Evaluate kinds.
	Outcome *float64 `json:"outcome,omitempty"`

	Text   string               `json:"text,omitempty"`
	Time   *customfields.Time   `json:"time,omitempty"`
	Memory *customfields.Memory `json:"memory,omitempty"`
}

// JobResult is posted by a worker when it finishes a job.
type JobResult struct {
	JobID    string             `json:"job_id" binding:"required"`
	Outcomes []*JobOutcome      `json:"outcomes"`
	Status   *workerconn.Status `json:"worker_status"`
}

// NewSubmissionRequest notifies the service about a submission to judge.
type NewSubmissionRequest struct {
	SubmissionID uint `json:"submission_id" binding:"required"`
}

type NewUserTestRequest struct {
	UserTestID uint `json:"user_test_id" binding:"required"`
}

type DatasetUpdatedRequest struct {
	DatasetID uint `json:"dataset_id" binding:"required"`
}

const (
	InvalidateLevelCompilation = "compilation"
	InvalidateLevelEvaluation  = "evaluation"
)

// InvalidateRequest drops existing results in the given scope and forces
// re-judging. At least one scope identifier should be set; omitting all of
// them defaults to the service's own contest, if any.
type InvalidateRequest struct {
	ContestID       *uint `json:"contest_id,omitempty"`
	TaskID          *uint `json:"task_id,omitempty"`
	DatasetID       *uint `json:"dataset_id,omitempty"`
	ParticipationID *uint `json:"participation_id,omitempty"`
	SubmissionID    *uint `json:"submission_id,omitempty"`

	Level string `json:"level" binding:"required"`
}

// QueueStatusEntry groups the queued operations that share
// (type, object_id, dataset_id, priority); Count is the multiplicity.
type QueueStatusEntry struct {
	Type      string    `json:"type"`
	ObjectID  uint      `json:"object_id"`
	DatasetID uint      `json:"dataset_id"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

type WorkerStatus struct {
	Address       string                 `json:"address"`
	Connected     bool                   `json:"connected"`
	Disabled      bool                   `json:"disabled"`
	LastHeartbeat time.Time              `json:"last_heartbeat"`
	JobID         string                 `json:"job_id,omitempty"`
	Operations    []operations.Operation `json:"operations,omitempty"`
}
