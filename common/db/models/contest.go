package models

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Contest struct {
	gorm.Model

	Name        string `json:"Name"`
	Description string `json:"Description"`

	// Languages allowed for submissions in this contest.
	Languages pq.StringArray `gorm:"type:text[]" json:"Languages"`
}

type Participation struct {
	gorm.Model

	ContestID uint   `json:"ContestID"`
	UserName  string `json:"UserName"`
}
