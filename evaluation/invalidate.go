package evaluation

import (
	"fmt"

	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/common/db/models"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/lib/logger"
)

// Invalidate drops the stored results in the requested scope and re-derives
// the judging work from scratch. Everything in flight for the affected
// results is cancelled first: queued operations are dequeued, operations on
// workers get their eventual results discarded, unwritten results are
// purged. The whole thing is serialized against result writes, so no write
// started before the invalidation lands after it.
func (s *Service) Invalidate(request *esconn.InvalidateRequest) error {
	if request.Level != esconn.InvalidateLevelCompilation && request.Level != esconn.InvalidateLevelEvaluation {
		return fmt.Errorf("unknown invalidation level %q", request.Level)
	}

	if request.DatasetID != nil {
		// The dataset may have changed; reload its testcases.
		s.testcases.Remove(*request.DatasetID)
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	results, err := s.affectedResults(request)
	if err != nil {
		return err
	}
	logger.Info("invalidating %d submission results at level %s", len(results), request.Level)

	for i := range results {
		result := &results[i]

		s.cancelOperations(result.SubmissionID, result.DatasetID)

		switch request.Level {
		case esconn.InvalidateLevelCompilation:
			result.InvalidateCompilation()
		case esconn.InvalidateLevelEvaluation:
			result.InvalidateEvaluation()
		}
		if err := s.es.DB.Save(result).Error; err != nil {
			return err
		}
	}

	// Re-derive right away instead of waiting for the sweeper.
	for i := range results {
		ops, err := s.operationsForSubmission(results[i].SubmissionID)
		if err != nil {
			logger.Warn("failed to re-derive operations for submission %d, error: %s",
				results[i].SubmissionID, err.Error())
			continue
		}
		s.enqueueAll(ops)
	}
	return nil
}

// cancelOperations removes every possible operation of the pair from the
// queue, the workers and the pending results.
func (s *Service) cancelOperations(submissionID, datasetID uint) {
	ops := []operations.Operation{
		{Kind: operations.Compile, ObjectID: submissionID, DatasetID: datasetID},
	}
	codenames, err := s.testcaseCodenames(datasetID)
	if err != nil {
		logger.Warn("can not load testcases of dataset %d while invalidating, error: %s", datasetID, err.Error())
	}
	for _, codename := range codenames {
		ops = append(ops, operations.Operation{
			Kind: operations.Evaluate, ObjectID: submissionID, DatasetID: datasetID,
			TestcaseCodename: codename,
		})
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, op := range ops {
		s.dequeueLocked(op)
	}
}

// affectedResults resolves the request scope into concrete submission
// results. Scope identifiers combine with AND; with none set, the service's
// own contest (or everything) is affected.
func (s *Service) affectedResults(request *esconn.InvalidateRequest) ([]models.SubmissionResult, error) {
	query := s.es.DB.Model(&models.SubmissionResult{}).
		Joins("JOIN submissions ON submissions.id = submission_results.submission_id").
		Joins("JOIN tasks ON tasks.id = submissions.task_id")

	if request.SubmissionID != nil {
		query = query.Where("submission_results.submission_id = ?", *request.SubmissionID)
	}
	if request.DatasetID != nil {
		query = query.Where("submission_results.dataset_id = ?", *request.DatasetID)
	}
	if request.ParticipationID != nil {
		query = query.Where("submissions.participation_id = ?", *request.ParticipationID)
	}
	if request.TaskID != nil {
		query = query.Where("submissions.task_id = ?", *request.TaskID)
	}
	contestID := request.ContestID
	if contestID == nil {
		contestID = s.cfg.ContestID
	}
	if contestID != nil {
		query = query.Where("tasks.contest_id = ?", *contestID)
	}

	var results []models.SubmissionResult
	if err := query.Select("submission_results.*").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
