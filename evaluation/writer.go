package evaluation

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cms-dev/cms-sub005/common"
	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/common/db/models"
	"github.com/cms-dev/cms-sub005/evaluation/operations"
	"github.com/cms-dev/cms-sub005/evaluation/workerpool"
	"github.com/cms-dev/cms-sub005/lib/logger"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"
)

// ResultWriter makes one operation outcome durable. A nil error is the only
// confirmation that the result may leave the pending set.
type ResultWriter interface {
	WriteResult(assignment workerpool.Assignment, outcome *esconn.JobOutcome) error
}

// dbWriter writes results into the database, one transaction per result,
// with exponential backoff on transient failures. Results that are already
// present (late duplicates, re-sent jobs) are skipped, which makes every
// write idempotent.
//
// Tries count failed attempts only: a worker-side failure bumps the counter,
// a clean outcome ends the story for that operation.
type dbWriter struct {
	es        *common.EvalSystem
	cfg       *config.EvaluationConfig
	testcases func(uint) ([]string, error)
}

func newDBWriter(es *common.EvalSystem, cfg *config.EvaluationConfig, testcases func(uint) ([]string, error)) *dbWriter {
	return &dbWriter{es: es, cfg: cfg, testcases: testcases}
}

func (w *dbWriter) WriteResult(assignment workerpool.Assignment, outcome *esconn.JobOutcome) error {
	op := assignment.Operation
	_, err := backoff.Retry(w.es.StopCtx, func() (struct{}, error) {
		return struct{}{}, w.writeOnce(op, outcome)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(w.cfg.WriteRetryMaxElapsed),
	)
	return err
}

func (w *dbWriter) writeOnce(op operations.Operation, outcome *esconn.JobOutcome) error {
	return w.es.DB.Transaction(func(tx *gorm.DB) error {
		switch op.Kind {
		case operations.Compile:
			return w.writeCompilation(tx, op, outcome)
		case operations.Evaluate:
			return w.writeEvaluation(tx, op, outcome)
		case operations.UserTestCompile:
			return w.writeUserTestCompilation(tx, op, outcome)
		case operations.UserTestEvaluate:
			return w.writeUserTestEvaluation(tx, op, outcome)
		default:
			return backoff.Permanent(fmt.Errorf("can not write result of %s", op))
		}
	})
}

func (w *dbWriter) writeCompilation(tx *gorm.DB, op operations.Operation, outcome *esconn.JobOutcome) error {
	result, err := loadOrInitSubmissionResult(tx, op.ObjectID, op.DatasetID)
	if err != nil {
		return err
	}
	if result.Compiled() {
		logger.Trace("compilation of %s is already written, skipping", op)
		return nil
	}

	if !outcome.Success {
		result.CompilationTries++
		return tx.Save(result).Error
	}
	if outcome.CompilationOutcome != models.CompilationOutcomeOK &&
		outcome.CompilationOutcome != models.CompilationOutcomeFail {
		return backoff.Permanent(fmt.Errorf(
			"worker reported invalid compilation outcome %q for %s", outcome.CompilationOutcome, op))
	}

	result.CompilationOutcome = outcome.CompilationOutcome
	result.CompilationText = outcome.Text
	result.CompilationTime = outcome.Time
	result.CompilationMemory = outcome.Memory
	return tx.Save(result).Error
}

func (w *dbWriter) writeEvaluation(tx *gorm.DB, op operations.Operation, outcome *esconn.JobOutcome) error {
	var result models.SubmissionResult
	err := tx.Where("submission_id = ? AND dataset_id = ?", op.ObjectID, op.DatasetID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backoff.Permanent(fmt.Errorf("evaluation result of %s arrived before its compilation", op))
	}
	if err != nil {
		return err
	}
	if result.Evaluations.Find(op.TestcaseCodename) != nil {
		logger.Trace("evaluation of %s is already written, skipping", op)
		return nil
	}

	if !outcome.Success {
		result.EvaluationTries++
		return tx.Save(&result).Error
	}

	result.Evaluations = append(result.Evaluations, models.Evaluation{
		TestcaseCodename: op.TestcaseCodename,
		Outcome:          formatOutcome(outcome.Outcome),
		Text:             outcome.Text,
		Time:             outcome.Time,
		Memory:           outcome.Memory,
	})

	codenames, err := w.testcases(op.DatasetID)
	if err != nil {
		return err
	}
	if evaluationComplete(result.Evaluations, codenames) {
		result.EvaluationOutcome = models.EvaluationOutcomeOK
	}
	return tx.Save(&result).Error
}

func (w *dbWriter) writeUserTestCompilation(tx *gorm.DB, op operations.Operation, outcome *esconn.JobOutcome) error {
	result, err := loadOrInitUserTestResult(tx, op.ObjectID, op.DatasetID)
	if err != nil {
		return err
	}
	if result.Compiled() {
		logger.Trace("compilation of %s is already written, skipping", op)
		return nil
	}

	if !outcome.Success {
		result.CompilationTries++
		return tx.Save(result).Error
	}
	if outcome.CompilationOutcome != models.CompilationOutcomeOK &&
		outcome.CompilationOutcome != models.CompilationOutcomeFail {
		return backoff.Permanent(fmt.Errorf(
			"worker reported invalid compilation outcome %q for %s", outcome.CompilationOutcome, op))
	}

	result.CompilationOutcome = outcome.CompilationOutcome
	result.CompilationText = outcome.Text
	return tx.Save(result).Error
}

func (w *dbWriter) writeUserTestEvaluation(tx *gorm.DB, op operations.Operation, outcome *esconn.JobOutcome) error {
	var result models.UserTestResult
	err := tx.Where("user_test_id = ? AND dataset_id = ?", op.ObjectID, op.DatasetID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backoff.Permanent(fmt.Errorf("evaluation result of %s arrived before its compilation", op))
	}
	if err != nil {
		return err
	}
	if result.Evaluated() {
		logger.Trace("evaluation of %s is already written, skipping", op)
		return nil
	}

	if !outcome.Success {
		result.EvaluationTries++
		return tx.Save(&result).Error
	}

	result.EvaluationOutcome = models.EvaluationOutcomeOK
	result.EvaluationText = outcome.Text
	result.ExecutionTime = outcome.Time
	result.ExecutionMemory = outcome.Memory
	return tx.Save(&result).Error
}

func loadOrInitSubmissionResult(tx *gorm.DB, submissionID, datasetID uint) (*models.SubmissionResult, error) {
	var result models.SubmissionResult
	err := tx.Where("submission_id = ? AND dataset_id = ?", submissionID, datasetID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.SubmissionResult{SubmissionID: submissionID, DatasetID: datasetID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func loadOrInitUserTestResult(tx *gorm.DB, userTestID, datasetID uint) (*models.UserTestResult, error) {
	var result models.UserTestResult
	err := tx.Where("user_test_id = ? AND dataset_id = ?", userTestID, datasetID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserTestResult{UserTestID: userTestID, DatasetID: datasetID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func formatOutcome(outcome *float64) string {
	if outcome == nil {
		return ""
	}
	return strconv.FormatFloat(*outcome, 'f', -1, 64)
}

func evaluationComplete(evaluations models.Evaluations, codenames []string) bool {
	for _, codename := range codenames {
		if evaluations.Find(codename) == nil {
			return false
		}
	}
	return true
}
