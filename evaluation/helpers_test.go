package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/cms-dev/cms-sub005/common"
	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/common/db"
	"github.com/cms-dev/cms-sub005/common/db/models"
	"github.com/cms-dev/cms-sub005/common/metrics"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/evaluation/workerpool"
	"github.com/cms-dev/cms-sub005/scheduler"

	"github.com/stretchr/testify/require"
	"github.com/xorcare/pointer"
)

// The in-memory database is shared within the test binary, so every test
// works inside its own contest and scopes the service to it.
type fixture struct {
	es      *common.EvalSystem
	contest models.Contest
	task    models.Task
	dataset models.Dataset
}

func newTestService(t *testing.T) (*Service, *fixture) {
	database, err := db.NewDB(config.DBConfig{InMemory: true})
	require.Nil(t, err)

	f := &fixture{}
	f.contest = models.Contest{Name: "contest"}
	require.Nil(t, database.Create(&f.contest).Error)
	f.task = models.Task{ContestID: f.contest.ID, Name: "task"}
	require.Nil(t, database.Create(&f.task).Error)
	f.dataset = models.Dataset{TaskID: f.task.ID}
	require.Nil(t, database.Create(&f.dataset).Error)
	require.Nil(t, database.Model(&f.task).Update("active_dataset_id", f.dataset.ID).Error)
	f.task.ActiveDatasetID = pointer.Uint(f.dataset.ID)

	for _, codename := range []string{"01", "02"} {
		require.Nil(t, database.Create(&models.Testcase{DatasetID: f.dataset.ID, Codename: codename}).Error)
	}

	f.es = &common.EvalSystem{
		Config: &config.Config{
			Evaluation: &config.EvaluationConfig{
				ContestID:             pointer.Uint(f.contest.ID),
				MaxCompilationTries:   3,
				MaxEvaluationTries:    3,
				MaxOperationsPerBatch: 25,
				WorkerTimeout:         time.Minute,
				WriteRetryMaxElapsed:  time.Second,
			},
		},
		DB:      database,
		Metrics: metrics.NewCollector(),
		StopCtx: context.Background(),
	}

	s := NewService(f.es)
	// Tests drive the pool directly; nothing should send real jobs.
	s.pool = workerpool.NewPool(func(func()) {}, s.operationsLost)
	return s, f
}

func (f *fixture) newSubmission(t *testing.T) *models.Submission {
	participation := models.Participation{ContestID: f.contest.ID, UserName: "user"}
	require.Nil(t, f.es.DB.Create(&participation).Error)
	sub := models.Submission{ParticipationID: participation.ID, TaskID: f.task.ID, Language: "cpp"}
	require.Nil(t, f.es.DB.Create(&sub).Error)
	return &sub
}

func (f *fixture) newUserTest(t *testing.T) *models.UserTest {
	participation := models.Participation{ContestID: f.contest.ID, UserName: "user"}
	require.Nil(t, f.es.DB.Create(&participation).Error)
	userTest := models.UserTest{ParticipationID: participation.ID, TaskID: f.task.ID, Language: "cpp"}
	require.Nil(t, f.es.DB.Create(&userTest).Error)
	return &userTest
}

func (f *fixture) submissionResult(t *testing.T, submissionID uint) *models.SubmissionResult {
	var result models.SubmissionResult
	err := f.es.DB.Where("submission_id = ? AND dataset_id = ?", submissionID, f.dataset.ID).First(&result).Error
	require.Nil(t, err)
	return &result
}

func (f *fixture) userTestResult(t *testing.T, userTestID uint) *models.UserTestResult {
	var result models.UserTestResult
	err := f.es.DB.Where("user_test_id = ? AND dataset_id = ?", userTestID, f.dataset.ID).First(&result).Error
	require.Nil(t, err)
	return &result
}

func compileOp(objectID, datasetID uint) operations.Operation {
	return operations.Operation{Kind: operations.Compile, ObjectID: objectID, DatasetID: datasetID}
}

func evaluateOp(objectID, datasetID uint, codename string) operations.Operation {
	return operations.Operation{
		Kind: operations.Evaluate, ObjectID: objectID, DatasetID: datasetID,
		TestcaseCodename: codename,
	}
}

func assignmentFor(op operations.Operation) workerpool.Assignment {
	return workerpool.Assignment{Operation: op, Priority: scheduler.PriorityHigh, Timestamp: time.Unix(10, 0)}
}

func compileOK(op operations.Operation) *esconn.JobOutcome {
	return &esconn.JobOutcome{Operation: op, Success: true, CompilationOutcome: models.CompilationOutcomeOK}
}

func compileFail(op operations.Operation) *esconn.JobOutcome {
	return &esconn.JobOutcome{
		Operation: op, Success: true,
		CompilationOutcome: models.CompilationOutcomeFail, Text: "does not compile",
	}
}

func workerError(op operations.Operation) *esconn.JobOutcome {
	return &esconn.JobOutcome{Operation: op, Success: false, Error: "sandbox failed"}
}

func evaluateOK(op operations.Operation) *esconn.JobOutcome {
	return &esconn.JobOutcome{Operation: op, Success: true, Outcome: pointer.Float64(1.0), Text: "Correct"}
}

// writePendingResult pushes the outcome through the pending pipeline the way
// the drain loop would.
func writePendingResult(t *testing.T, s *Service, a workerpool.Assignment, outcome *esconn.JobOutcome) {
	s.mutex.Lock()
	require.True(t, s.pending.Add(a, outcome))
	result := s.pending.PickForWrite()
	s.mutex.Unlock()
	require.NotNil(t, result)
	s.writeResult(result)
}

func findEntry(s *Service, op operations.Operation) *scheduler.Entry[operations.Operation] {
	for _, entry := range s.executor.Snapshot() {
		if entry.Item == op {
			entry := entry
			return &entry
		}
	}
	return nil
}
