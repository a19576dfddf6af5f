package evaluation

import (
	"testing"

	"github.com/cms-dev/cms-sub005/common/db/models"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubmissionEnqueuesCompilation(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	accepted, err := s.NewSubmission(sub.ID)
	require.Nil(t, err)
	assert.Equal(t, 1, accepted)

	entry := findEntry(s, compileOp(sub.ID, f.dataset.ID))
	require.NotNil(t, entry)
	assert.Equal(t, scheduler.PriorityHigh, entry.Priority)
}

func TestNewSubmissionUnknownID(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.NewSubmission(1 << 30)
	assert.Error(t, err)
}

func TestBackgroundDatasetGetsExtraLowPriority(t *testing.T) {
	s, f := newTestService(t)

	background := models.Dataset{TaskID: f.task.ID, AutojudgeEnabled: true}
	require.Nil(t, f.es.DB.Create(&background).Error)
	sub := f.newSubmission(t)

	accepted, err := s.NewSubmission(sub.ID)
	require.Nil(t, err)
	assert.Equal(t, 2, accepted)

	live := findEntry(s, compileOp(sub.ID, f.dataset.ID))
	require.NotNil(t, live)
	assert.Equal(t, scheduler.PriorityHigh, live.Priority)

	shadow := findEntry(s, compileOp(sub.ID, background.ID))
	require.NotNil(t, shadow)
	assert.Equal(t, scheduler.PriorityExtraLow, shadow.Priority)
}

func TestInactiveDatasetIsNotJudged(t *testing.T) {
	s, f := newTestService(t)

	inactive := models.Dataset{TaskID: f.task.ID}
	require.Nil(t, f.es.DB.Create(&inactive).Error)
	sub := f.newSubmission(t)

	accepted, err := s.NewSubmission(sub.ID)
	require.Nil(t, err)
	assert.Equal(t, 1, accepted)
	assert.Nil(t, findEntry(s, compileOp(sub.ID, inactive.ID)))
}

func TestSweepDerivesMissingOperations(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	// The submission was never announced; the sweeper finds it anyway.
	assert.Equal(t, 1, s.missingOperations())
	assert.True(t, s.executor.Contains(compileOp(sub.ID, f.dataset.ID)))

	// A second sweep finds everything already queued.
	assert.Equal(t, 0, s.missingOperations())
}

func TestSweepStaysInsideItsContest(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	other := models.Contest{Name: "other contest"}
	require.Nil(t, f.es.DB.Create(&other).Error)
	otherTask := models.Task{ContestID: other.ID, Name: "other task"}
	require.Nil(t, f.es.DB.Create(&otherTask).Error)
	otherDataset := models.Dataset{TaskID: otherTask.ID}
	require.Nil(t, f.es.DB.Create(&otherDataset).Error)
	require.Nil(t, f.es.DB.Model(&otherTask).Update("active_dataset_id", otherDataset.ID).Error)
	otherSub := models.Submission{TaskID: otherTask.ID, Language: "cpp"}
	require.Nil(t, f.es.DB.Create(&otherSub).Error)

	assert.Equal(t, 1, s.missingOperations())
	assert.True(t, s.executor.Contains(compileOp(sub.ID, f.dataset.ID)))
	assert.False(t, s.executor.Contains(compileOp(otherSub.ID, otherDataset.ID)))
}

func TestTryCapExcludesFromDerivation(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	result := models.SubmissionResult{
		SubmissionID: sub.ID, DatasetID: f.dataset.ID,
		CompilationTries: s.cfg.MaxCompilationTries,
	}
	require.Nil(t, f.es.DB.Create(&result).Error)

	assert.Equal(t, 0, s.missingOperations())

	ops, err := s.operationsForSubmission(sub.ID)
	require.Nil(t, err)
	assert.Empty(t, ops)
}

func TestCompiledSubmissionDerivesEvaluations(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	result := models.SubmissionResult{
		SubmissionID: sub.ID, DatasetID: f.dataset.ID,
		CompilationOutcome: models.CompilationOutcomeOK,
	}
	require.Nil(t, f.es.DB.Create(&result).Error)

	ops, err := s.operationsForSubmission(sub.ID)
	require.Nil(t, err)
	require.Len(t, ops, 2)
	for _, q := range ops {
		assert.Equal(t, operations.Evaluate, q.op.Kind)
		assert.Equal(t, scheduler.PriorityMedium, q.priority)
	}
}

func TestPartiallyEvaluatedDerivesOnlyMissing(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	result := models.SubmissionResult{
		SubmissionID: sub.ID, DatasetID: f.dataset.ID,
		CompilationOutcome: models.CompilationOutcomeOK,
		Evaluations:        models.Evaluations{{TestcaseCodename: "01", Outcome: "1"}},
	}
	require.Nil(t, f.es.DB.Create(&result).Error)

	ops, err := s.operationsForSubmission(sub.ID)
	require.Nil(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, evaluateOp(sub.ID, f.dataset.ID, "02"), ops[0].op)
}

func TestFailedCompilationDerivesNothing(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	result := models.SubmissionResult{
		SubmissionID: sub.ID, DatasetID: f.dataset.ID,
		CompilationOutcome: models.CompilationOutcomeFail,
	}
	require.Nil(t, f.es.DB.Create(&result).Error)

	ops, err := s.operationsForSubmission(sub.ID)
	require.Nil(t, err)
	assert.Empty(t, ops)
}

func TestUserTestDerivation(t *testing.T) {
	s, f := newTestService(t)
	userTest := f.newUserTest(t)

	accepted, err := s.NewUserTest(userTest.ID)
	require.Nil(t, err)
	assert.Equal(t, 1, accepted)

	op := operations.Operation{Kind: operations.UserTestCompile, ObjectID: userTest.ID, DatasetID: f.dataset.ID}
	entry := findEntry(s, op)
	require.NotNil(t, entry)
	assert.Equal(t, scheduler.PriorityHigh, entry.Priority)
}

func TestCompileRetryPriorityDrops(t *testing.T) {
	s, f := newTestService(t)
	sub := f.newSubmission(t)

	result := models.SubmissionResult{
		SubmissionID: sub.ID, DatasetID: f.dataset.ID,
		CompilationTries: 1,
	}
	require.Nil(t, f.es.DB.Create(&result).Error)

	ops, err := s.operationsForSubmission(sub.ID)
	require.Nil(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, scheduler.PriorityMedium, ops[0].priority)
}
