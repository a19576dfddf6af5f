package evaluation

import (
	"net/http"

	"github.com/cms-dev/cms-sub005/common/connectors/esconn"
	"github.com/cms-dev/cms-sub005/common/connectors/workerconn"
	"github.com/cms-dev/cms-sub005/lib/connector"
	"github.com/cms-dev/cms-sub005/lib/logger"

	"github.com/gin-gonic/gin"
)

func (s *Service) registerHandlers() {
	group := s.es.Router.Group("/evaluation")

	group.POST("/worker/result", s.handleWorkerResult)
	group.POST("/worker/status", s.handleWorkerStatus)
	group.POST("/worker/disable", s.handleDisableWorker)
	group.POST("/worker/enable", s.handleEnableWorker)

	group.POST("/submission", s.handleNewSubmission)
	group.POST("/user_test", s.handleNewUserTest)
	group.POST("/dataset", s.handleDatasetUpdated)
	group.POST("/invalidate", s.handleInvalidate)

	group.GET("/queue/status", s.handleQueueStatus)
	group.GET("/workers/status", s.handleWorkersStatus)
}

func (s *Service) handleWorkerResult(c *gin.Context) {
	result := new(esconn.JobResult)
	if err := c.ShouldBindJSON(result); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse job result: %s", err.Error())
		return
	}
	s.JobResultArrived(result)
	connector.RespOK(c, nil)
}

func (s *Service) handleWorkerStatus(c *gin.Context) {
	status := new(workerconn.Status)
	if err := c.ShouldBindJSON(status); err != nil || status.Address == "" {
		connector.RespErr(c, http.StatusBadRequest, "can not parse worker status")
		return
	}
	s.pool.UpsertWorker(status)
	s.updateWorkerGauge()
	connector.RespOK(c, nil)
}

func (s *Service) handleDisableWorker(c *gin.Context) {
	status := new(workerconn.Status)
	if err := c.ShouldBindJSON(status); err != nil || status.Address == "" {
		connector.RespErr(c, http.StatusBadRequest, "can not parse worker address")
		return
	}
	logger.Info("disabling worker %s", status.Address)
	lost := s.pool.DisableWorker(status.Address)
	s.operationsLost(lost)
	s.updateWorkerGauge()
	connector.RespOK(c, nil)
}

func (s *Service) handleEnableWorker(c *gin.Context) {
	status := new(workerconn.Status)
	if err := c.ShouldBindJSON(status); err != nil || status.Address == "" {
		connector.RespErr(c, http.StatusBadRequest, "can not parse worker address")
		return
	}
	logger.Info("enabling worker %s", status.Address)
	s.pool.EnableWorker(status.Address)
	s.updateWorkerGauge()
	connector.RespOK(c, nil)
}

func (s *Service) handleNewSubmission(c *gin.Context) {
	request := new(esconn.NewSubmissionRequest)
	if err := c.ShouldBindJSON(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse new submission request: %s", err.Error())
		return
	}
	accepted, err := s.NewSubmission(request.SubmissionID)
	if err != nil {
		connector.RespErr(c, http.StatusNotFound, "unknown submission %d: %s", request.SubmissionID, err.Error())
		return
	}
	logger.Info("new submission %d, enqueued %d operations", request.SubmissionID, accepted)
	connector.RespOK(c, nil)
}

func (s *Service) handleNewUserTest(c *gin.Context) {
	request := new(esconn.NewUserTestRequest)
	if err := c.ShouldBindJSON(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse new user test request: %s", err.Error())
		return
	}
	accepted, err := s.NewUserTest(request.UserTestID)
	if err != nil {
		connector.RespErr(c, http.StatusNotFound, "unknown user test %d: %s", request.UserTestID, err.Error())
		return
	}
	logger.Info("new user test %d, enqueued %d operations", request.UserTestID, accepted)
	connector.RespOK(c, nil)
}

func (s *Service) handleDatasetUpdated(c *gin.Context) {
	request := new(esconn.DatasetUpdatedRequest)
	if err := c.ShouldBindJSON(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse dataset update: %s", err.Error())
		return
	}
	logger.Info("dataset %d updated", request.DatasetID)
	s.DatasetUpdated(request.DatasetID)
	connector.RespOK(c, nil)
}

func (s *Service) handleInvalidate(c *gin.Context) {
	request := new(esconn.InvalidateRequest)
	if err := c.ShouldBindJSON(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse invalidate request: %s", err.Error())
		return
	}
	if err := s.Invalidate(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "invalidation failed: %s", err.Error())
		return
	}
	connector.RespOK(c, nil)
}

func (s *Service) handleQueueStatus(c *gin.Context) {
	connector.RespOK(c, s.QueueStatus())
}

func (s *Service) handleWorkersStatus(c *gin.Context) {
	connector.RespOK(c, s.WorkersStatus())
}
