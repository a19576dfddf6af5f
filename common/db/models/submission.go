package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/cms-dev/cms-sub005/lib/customfields"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	CompilationOutcomeOK   = "ok"
	CompilationOutcomeFail = "fail"
	EvaluationOutcomeOK    = "ok"
)

type Submission struct {
	gorm.Model

	ParticipationID uint   `gorm:"index" json:"ParticipationID"`
	TaskID          uint   `gorm:"index" json:"TaskID"`
	Language        string `json:"Language"`
}

// Evaluation is the outcome of one testcase run, stored inside the
// submission result as a JSONB array.
type Evaluation struct {
	TestcaseCodename string               `json:"TestcaseCodename"`
	Outcome          string               `json:"Outcome"`
	Text             string               `json:"Text,omitempty"`
	Time             *customfields.Time   `json:"Time,omitempty"`
	Memory           *customfields.Memory `json:"Memory,omitempty"`
}

type Evaluations []Evaluation

func (e Evaluations) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *Evaluations) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed while scanning Evaluations")
	}
	return json.Unmarshal(bytes, e)
}

func (e Evaluations) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}

// Find returns the evaluation for the given testcase, or nil.
func (e Evaluations) Find(codename string) *Evaluation {
	for i := range e {
		if e[i].TestcaseCodename == codename {
			return &e[i]
		}
	}
	return nil
}

// SubmissionResult holds everything produced by judging one submission
// against one dataset.
type SubmissionResult struct {
	SubmissionID uint `gorm:"primaryKey;autoIncrement:false" json:"SubmissionID"`
	DatasetID    uint `gorm:"primaryKey;autoIncrement:false" json:"DatasetID"`

	CompilationOutcome string               `json:"CompilationOutcome"`
	CompilationText    string               `json:"CompilationText,omitempty"`
	CompilationTries   int                  `json:"CompilationTries"`
	CompilationTime    *customfields.Time   `json:"CompilationTime,omitempty"`
	CompilationMemory  *customfields.Memory `json:"CompilationMemory,omitempty"`

	EvaluationOutcome string      `json:"EvaluationOutcome"`
	EvaluationTries   int         `json:"EvaluationTries"`
	Evaluations       Evaluations `gorm:"type:jsonb" json:"Evaluations"`

	Score *float64 `json:"Score,omitempty"`
}

func (r *SubmissionResult) Compiled() bool {
	return r.CompilationOutcome != ""
}

func (r *SubmissionResult) CompilationSucceeded() bool {
	return r.CompilationOutcome == CompilationOutcomeOK
}

func (r *SubmissionResult) CompilationFailed() bool {
	return r.CompilationOutcome == CompilationOutcomeFail
}

func (r *SubmissionResult) Evaluated() bool {
	return r.EvaluationOutcome != ""
}

// InvalidateCompilation drops all results, compilation and evaluation alike.
func (r *SubmissionResult) InvalidateCompilation() {
	r.CompilationOutcome = ""
	r.CompilationText = ""
	r.CompilationTries = 0
	r.CompilationTime = nil
	r.CompilationMemory = nil
	r.InvalidateEvaluation()
}

// InvalidateEvaluation drops evaluation results, keeping compilation.
func (r *SubmissionResult) InvalidateEvaluation() {
	r.EvaluationOutcome = ""
	r.EvaluationTries = 0
	r.Evaluations = nil
	r.Score = nil
}
