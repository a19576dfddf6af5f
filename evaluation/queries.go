package evaluation

import (
	"errors"

	"github.com/cms-dev/cms-sub005/common/db/models"

	"gorm.io/gorm"
)

// first loads one record, distinguishing "not found" from real errors.
func first(query *gorm.DB, dest any) (bool, error) {
	err := query.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// scopedTasksAndDatasets loads every task the service is responsible for
// (all of them, or one contest's worth) with their datasets grouped by task.
func (s *Service) scopedTasksAndDatasets() (map[uint]*models.Task, map[uint][]*models.Dataset, error) {
	query := s.es.DB
	if s.cfg.ContestID != nil {
		query = query.Where("contest_id = ?", *s.cfg.ContestID)
	}
	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		return nil, nil, err
	}

	taskByID := make(map[uint]*models.Task, len(tasks))
	taskIDs := make([]uint, 0, len(tasks))
	for i := range tasks {
		taskByID[tasks[i].ID] = &tasks[i]
		taskIDs = append(taskIDs, tasks[i].ID)
	}
	if len(taskIDs) == 0 {
		return taskByID, nil, nil
	}

	var datasets []models.Dataset
	if err := s.es.DB.Where("task_id IN ?", taskIDs).Find(&datasets).Error; err != nil {
		return nil, nil, err
	}
	datasetsByTask := make(map[uint][]*models.Dataset)
	for i := range datasets {
		datasetsByTask[datasets[i].TaskID] = append(datasetsByTask[datasets[i].TaskID], &datasets[i])
	}
	return taskByID, datasetsByTask, nil
}

func (s *Service) taskWithDatasets(taskID uint) (*models.Task, []*models.Dataset, error) {
	var task models.Task
	if err := s.es.DB.First(&task, taskID).Error; err != nil {
		return nil, nil, err
	}
	var datasets []models.Dataset
	if err := s.es.DB.Where("task_id = ?", taskID).Find(&datasets).Error; err != nil {
		return nil, nil, err
	}
	refs := make([]*models.Dataset, 0, len(datasets))
	for i := range datasets {
		refs = append(refs, &datasets[i])
	}
	return &task, refs, nil
}

// testcaseCodenames serves the dataset's testcase list through the cache.
func (s *Service) testcaseCodenames(datasetID uint) ([]string, error) {
	codenames, err := s.testcases.Get(datasetID)
	if err != nil {
		// Do not keep a failed load cached.
		s.testcases.Remove(datasetID)
		return nil, err
	}
	return *codenames, nil
}

func (s *Service) loadTestcaseCodenames(datasetID uint) (*[]string, error, uint64) {
	var testcases []models.Testcase
	err := s.es.DB.Where("dataset_id = ?", datasetID).Order("codename").Find(&testcases).Error
	if err != nil {
		return nil, err, 0
	}

	codenames := make([]string, 0, len(testcases))
	var size uint64
	for _, testcase := range testcases {
		codenames = append(codenames, testcase.Codename)
		size += uint64(len(testcase.Codename))
	}
	return &codenames, nil, size + 1
}
