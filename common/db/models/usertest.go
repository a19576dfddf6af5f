package models

import (
	"github.com/cms-dev/cms-sub005/lib/customfields"

	"gorm.io/gorm"
)

// UserTest is a contestant-provided test run ("token play"): the contestant
// submits both a program and an input to run it on.
type UserTest struct {
	gorm.Model

	ParticipationID uint   `gorm:"index" json:"ParticipationID"`
	TaskID          uint   `gorm:"index" json:"TaskID"`
	Language        string `json:"Language"`
}

type UserTestResult struct {
	UserTestID uint `gorm:"primaryKey;autoIncrement:false" json:"UserTestID"`
	DatasetID  uint `gorm:"primaryKey;autoIncrement:false" json:"DatasetID"`

	CompilationOutcome string `json:"CompilationOutcome"`
	CompilationText    string `json:"CompilationText,omitempty"`
	CompilationTries   int    `json:"CompilationTries"`

	EvaluationOutcome string               `json:"EvaluationOutcome"`
	EvaluationText    string               `json:"EvaluationText,omitempty"`
	EvaluationTries   int                  `json:"EvaluationTries"`
	ExecutionTime     *customfields.Time   `json:"ExecutionTime,omitempty"`
	ExecutionMemory   *customfields.Memory `json:"ExecutionMemory,omitempty"`
}

func (r *UserTestResult) Compiled() bool {
	return r.CompilationOutcome != ""
}

func (r *UserTestResult) CompilationSucceeded() bool {
	return r.CompilationOutcome == CompilationOutcomeOK
}

func (r *UserTestResult) CompilationFailed() bool {
	return r.CompilationOutcome == CompilationOutcomeFail
}

func (r *UserTestResult) Evaluated() bool {
	return r.EvaluationOutcome != ""
}

func (r *UserTestResult) InvalidateCompilation() {
	r.CompilationOutcome = ""
	r.CompilationText = ""
	r.CompilationTries = 0
	r.InvalidateEvaluation()
}

func (r *UserTestResult) InvalidateEvaluation() {
	r.EvaluationOutcome = ""
	r.EvaluationText = ""
	r.EvaluationTries = 0
	r.ExecutionTime = nil
	r.ExecutionMemory = nil
}
