package db

import (
	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/db/models"
	"github.com/cms-dev/cms-sub005/lib/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDB(config config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if config.InMemory {
		dialector = sqlite.Open("file::memory:?cache=shared")
	} else {
		dialector = postgres.Open(config.Dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, logger.Error("Can't open database with dsn=\"%v\" because of %v", config.Dsn, err)
	}

	for _, model := range []any{
		&models.Contest{},
		&models.Participation{},
		&models.Task{},
		&models.Dataset{},
		&models.Testcase{},
		&models.Submission{},
		&models.SubmissionResult{},
		&models.UserTest{},
		&models.UserTestResult{},
	} {
		if err = db.AutoMigrate(model); err != nil {
			return nil, logger.Error("Can't migrate %T: %v", model, err)
		}
	}

	return db, nil
}
