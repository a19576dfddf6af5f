package models

import (
	"github.com/cms-dev/cms-sub005/lib/customfields"

	"gorm.io/gorm"
)

type Task struct {
	gorm.Model

	ContestID uint   `json:"ContestID"`
	Name      string `json:"Name"`
	Title     string `json:"Title"`

	// ActiveDatasetID points to the dataset used for live judging.
	// Datasets of the task that are not active are judged in the background
	// only if their AutojudgeEnabled flag is set.
	ActiveDatasetID *uint `json:"ActiveDatasetID,omitempty"`
}

type Dataset struct {
	gorm.Model

	TaskID      uint   `json:"TaskID"`
	Description string `json:"Description"`

	// AutojudgeEnabled marks a non-active dataset for shadow judging.
	AutojudgeEnabled bool `json:"AutojudgeEnabled"`

	TimeLimit   customfields.Time   `json:"TimeLimit"`
	MemoryLimit customfields.Memory `json:"MemoryLimit"`
}

type Testcase struct {
	gorm.Model

	DatasetID uint   `gorm:"index" json:"DatasetID"`
	Codename  string `json:"Codename"`
}

// IsLive reports whether the dataset is the one contestants see results
// from, i.e. the active dataset of its task.
func (d *Dataset) IsLive(task *Task) bool {
	return task.ActiveDatasetID != nil && *task.ActiveDatasetID == d.ID
}

// ShouldJudge reports whether the dataset is judged at all: the live
// dataset always is, others only when flagged for background judging.
func (d *Dataset) ShouldJudge(task *Task) bool {
	return d.IsLive(task) || d.AutojudgeEnabled
}
