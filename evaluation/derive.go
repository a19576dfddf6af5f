package evaluation

import (
	"time"

	"github.com/cms-dev/cms-sub005/common/db/models"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/lib/logger"
	"github.com/cms-dev/cms-sub005/scheduler"
)

// queuedOperation is an operation together with the scheduling key it should
// be enqueued with.
type queuedOperation struct {
	op        operations.Operation
	priority  scheduler.Priority
	timestamp time.Time
}

// Compilations on a live dataset jump the line on their first try so the
// contestant sees compiler errors fast; retries and evaluations queue behind
// them. Background datasets never compete with live judging.
func compilePriority(live bool, tries int) scheduler.Priority {
	if !live {
		return scheduler.PriorityExtraLow
	}
	if tries == 0 {
		return scheduler.PriorityHigh
	}
	return scheduler.PriorityMedium
}

func evaluatePriority(live bool, tries int) scheduler.Priority {
	if !live {
		return scheduler.PriorityExtraLow
	}
	if tries == 0 {
		return scheduler.PriorityMedium
	}
	return scheduler.PriorityLow
}

// missingOperations is the sweeper body: re-derive everything that should be
// judged and enqueue whatever is not already in flight. The duplicate guard
// makes it safe to run at any moment.
func (s *Service) missingOperations() int {
	count := 0

	ops, err := s.missingSubmissionOperations()
	if err != nil {
		logger.Error("sweep failed to derive submission operations, error: %s", err.Error())
	} else {
		count += s.enqueueAll(ops)
	}

	ops, err = s.missingUserTestOperations()
	if err != nil {
		logger.Error("sweep failed to derive user test operations, error: %s", err.Error())
	} else {
		count += s.enqueueAll(ops)
	}

	s.es.Metrics.SweepsDone.Inc()
	return count
}

func (s *Service) missingSubmissionOperations() ([]queuedOperation, error) {
	tasks, datasets, err := s.scopedTasksAndDatasets()
	if err != nil {
		return nil, err
	}
	taskIDs := make([]uint, 0, len(tasks))
	for id := range tasks {
		taskIDs = append(taskIDs, id)
	}
	if len(taskIDs) == 0 {
		return nil, nil
	}

	var submissions []models.Submission
	if err := s.es.DB.Where("task_id IN ?", taskIDs).Find(&submissions).Error; err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return nil, nil
	}
	submissionIDs := make([]uint, 0, len(submissions))
	for i := range submissions {
		submissionIDs = append(submissionIDs, submissions[i].ID)
	}

	var results []models.SubmissionResult
	if err := s.es.DB.Where("submission_id IN ?", submissionIDs).Find(&results).Error; err != nil {
		return nil, err
	}
	resultByKey := make(map[[2]uint]*models.SubmissionResult, len(results))
	for i := range results {
		resultByKey[[2]uint{results[i].SubmissionID, results[i].DatasetID}] = &results[i]
	}

	var ops []queuedOperation
	for i := range submissions {
		sub := &submissions[i]
		task := tasks[sub.TaskID]
		for _, dataset := range datasets[sub.TaskID] {
			if !dataset.ShouldJudge(task) {
				continue
			}
			result := resultByKey[[2]uint{sub.ID, dataset.ID}]
			ops = append(ops, s.submissionOperations(sub, result, dataset, dataset.IsLive(task))...)
		}
	}
	return ops, nil
}

// submissionOperations derives what one (submission, dataset) pair still
// needs: first a compilation, then one evaluation per testcase without a
// stored outcome. Pairs that exhausted their tries produce nothing.
func (s *Service) submissionOperations(
	sub *models.Submission, result *models.SubmissionResult,
	dataset *models.Dataset, live bool,
) []queuedOperation {
	if result == nil || !result.Compiled() {
		tries := 0
		if result != nil {
			tries = result.CompilationTries
		}
		if tries >= s.cfg.MaxCompilationTries {
			logger.Warn("submission %d, dataset %d: max compilation tries reached, giving up", sub.ID, dataset.ID)
			return nil
		}
		return []queuedOperation{{
			op:        operations.Operation{Kind: operations.Compile, ObjectID: sub.ID, DatasetID: dataset.ID},
			priority:  compilePriority(live, tries),
			timestamp: sub.CreatedAt,
		}}
	}

	if result.CompilationFailed() || result.Evaluated() {
		return nil
	}
	if result.EvaluationTries >= s.cfg.MaxEvaluationTries {
		logger.Warn("submission %d, dataset %d: max evaluation tries reached, giving up", sub.ID, dataset.ID)
		return nil
	}

	codenames, err := s.testcaseCodenames(dataset.ID)
	if err != nil {
		logger.Error("can not load testcases of dataset %d, error: %s", dataset.ID, err.Error())
		return nil
	}

	var ops []queuedOperation
	for _, codename := range codenames {
		if result.Evaluations.Find(codename) != nil {
			continue
		}
		ops = append(ops, queuedOperation{
			op: operations.Operation{
				Kind: operations.Evaluate, ObjectID: sub.ID, DatasetID: dataset.ID,
				TestcaseCodename: codename,
			},
			priority:  evaluatePriority(live, result.EvaluationTries),
			timestamp: sub.CreatedAt,
		})
	}
	return ops
}

func (s *Service) missingUserTestOperations() ([]queuedOperation, error) {
	tasks, datasets, err := s.scopedTasksAndDatasets()
	if err != nil {
		return nil, err
	}
	taskIDs := make([]uint, 0, len(tasks))
	for id := range tasks {
		taskIDs = append(taskIDs, id)
	}
	if len(taskIDs) == 0 {
		return nil, nil
	}

	var userTests []models.UserTest
	if err := s.es.DB.Where("task_id IN ?", taskIDs).Find(&userTests).Error; err != nil {
		return nil, err
	}
	if len(userTests) == 0 {
		return nil, nil
	}
	userTestIDs := make([]uint, 0, len(userTests))
	for i := range userTests {
		userTestIDs = append(userTestIDs, userTests[i].ID)
	}

	var results []models.UserTestResult
	if err := s.es.DB.Where("user_test_id IN ?", userTestIDs).Find(&results).Error; err != nil {
		return nil, err
	}
	resultByKey := make(map[[2]uint]*models.UserTestResult, len(results))
	for i := range results {
		resultByKey[[2]uint{results[i].UserTestID, results[i].DatasetID}] = &results[i]
	}

	var ops []queuedOperation
	for i := range userTests {
		userTest := &userTests[i]
		task := tasks[userTest.TaskID]
		for _, dataset := range datasets[userTest.TaskID] {
			if !dataset.ShouldJudge(task) {
				continue
			}
			result := resultByKey[[2]uint{userTest.ID, dataset.ID}]
			ops = append(ops, s.userTestOperations(userTest, result, dataset.ID, dataset.IsLive(task))...)
		}
	}
	return ops, nil
}

// userTestOperations mirrors submissionOperations; a user test runs on its
// own input, so there is a single evaluation instead of one per testcase.
func (s *Service) userTestOperations(
	userTest *models.UserTest, result *models.UserTestResult,
	datasetID uint, live bool,
) []queuedOperation {
	if result == nil || !result.Compiled() {
		tries := 0
		if result != nil {
			tries = result.CompilationTries
		}
		if tries >= s.cfg.MaxCompilationTries {
			logger.Warn("user test %d, dataset %d: max compilation tries reached, giving up", userTest.ID, datasetID)
			return nil
		}
		return []queuedOperation{{
			op:        operations.Operation{Kind: operations.UserTestCompile, ObjectID: userTest.ID, DatasetID: datasetID},
			priority:  compilePriority(live, tries),
			timestamp: userTest.CreatedAt,
		}}
	}

	if result.CompilationFailed() || result.Evaluated() {
		return nil
	}
	if result.EvaluationTries >= s.cfg.MaxEvaluationTries {
		logger.Warn("user test %d, dataset %d: max evaluation tries reached, giving up", userTest.ID, datasetID)
		return nil
	}
	return []queuedOperation{{
		op:        operations.Operation{Kind: operations.UserTestEvaluate, ObjectID: userTest.ID, DatasetID: datasetID},
		priority:  evaluatePriority(live, result.EvaluationTries),
		timestamp: userTest.CreatedAt,
	}}
}

// operationsForObject re-derives for the single submission or user test the
// operation refers to, across all judged datasets of its task.
func (s *Service) operationsForObject(op operations.Operation) ([]queuedOperation, error) {
	if op.ForSubmission() {
		return s.operationsForSubmission(op.ObjectID)
	}
	return s.operationsForUserTest(op.ObjectID)
}

func (s *Service) operationsForSubmission(submissionID uint) ([]queuedOperation, error) {
	var sub models.Submission
	if err := s.es.DB.First(&sub, submissionID).Error; err != nil {
		return nil, err
	}
	task, datasets, err := s.taskWithDatasets(sub.TaskID)
	if err != nil {
		return nil, err
	}

	var ops []queuedOperation
	for _, dataset := range datasets {
		if !dataset.ShouldJudge(task) {
			continue
		}
		var result models.SubmissionResult
		found, err := first(s.es.DB.Where("submission_id = ? AND dataset_id = ?", sub.ID, dataset.ID), &result)
		if err != nil {
			return nil, err
		}
		var resultPtr *models.SubmissionResult
		if found {
			resultPtr = &result
		}
		ops = append(ops, s.submissionOperations(&sub, resultPtr, dataset, dataset.IsLive(task))...)
	}
	return ops, nil
}

func (s *Service) operationsForUserTest(userTestID uint) ([]queuedOperation, error) {
	var userTest models.UserTest
	if err := s.es.DB.First(&userTest, userTestID).Error; err != nil {
		return nil, err
	}
	task, datasets, err := s.taskWithDatasets(userTest.TaskID)
	if err != nil {
		return nil, err
	}

	var ops []queuedOperation
	for _, dataset := range datasets {
		if !dataset.ShouldJudge(task) {
			continue
		}
		var result models.UserTestResult
		found, err := first(s.es.DB.Where("user_test_id = ? AND dataset_id = ?", userTest.ID, dataset.ID), &result)
		if err != nil {
			return nil, err
		}
		var resultPtr *models.UserTestResult
		if found {
			resultPtr = &result
		}
		ops = append(ops, s.userTestOperations(&userTest, resultPtr, dataset.ID, dataset.IsLive(task))...)
	}
	return ops, nil
}

// NewSubmission enqueues whatever the submission needs right now; the
// returned count is how many operations were accepted.
func (s *Service) NewSubmission(submissionID uint) (int, error) {
	ops, err := s.operationsForSubmission(submissionID)
	if err != nil {
		return 0, err
	}
	return s.enqueueAll(ops), nil
}

func (s *Service) NewUserTest(userTestID uint) (int, error) {
	ops, err := s.operationsForUserTest(userTestID)
	if err != nil {
		return 0, err
	}
	return s.enqueueAll(ops), nil
}

// DatasetUpdated evicts the cached testcase list and lets the sweeper pick
// up whatever judging the change requires.
func (s *Service) DatasetUpdated(datasetID uint) {
	s.testcases.Remove(datasetID)
	s.triggered.TriggerSweepNow()
}
