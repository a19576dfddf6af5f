package esconn

import (
	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/connectors"
	"github.com/cms-dev/cms-sub005/common/connectors/workerconn"
	"github.com/cms-dev/cms-sub005/lib/connector"

	"github.com/go-resty/resty/v2"
)

type Connector struct {
	connection *connectors.ConnectorBase
}

func NewConnector(connection *config.Connection) *Connector {
	return &Connector{connectors.NewConnectorBase(connection)}
}

// SendJobResult is called by a worker when a job finishes.
func (c *Connector) SendJobResult(result *JobResult) error {
	r := c.connection.R()
	r.SetBody(result)

	return connector.ReceiveEmpty(r, "/evaluation/worker/result", resty.MethodPost)
}

// SendWorkerStatus announces a worker to the service (heartbeat).
func (c *Connector) SendWorkerStatus(status *workerconn.Status) error {
	r := c.connection.R()
	r.SetBody(status)

	return connector.ReceiveEmpty(r, "/evaluation/worker/status", resty.MethodPost)
}

func (c *Connector) NotifyNewSubmission(submissionID uint) error {
	r := c.connection.R()
	r.SetBody(&NewSubmissionRequest{SubmissionID: submissionID})

	return connector.ReceiveEmpty(r, "/evaluation/submission", resty.MethodPost)
}

func (c *Connector) NotifyNewUserTest(userTestID uint) error {
	r := c.connection.R()
	r.SetBody(&NewUserTestRequest{UserTestID: userTestID})

	return connector.ReceiveEmpty(r, "/evaluation/user_test", resty.MethodPost)
}

func (c *Connector) NotifyDatasetUpdated(datasetID uint) error {
	r := c.connection.R()
	r.SetBody(&DatasetUpdatedRequest{DatasetID: datasetID})

	return connector.ReceiveEmpty(r, "/evaluation/dataset", resty.MethodPost)
}

func (c *Connector) Invalidate(request *InvalidateRequest) error {
	r := c.connection.R()
	r.SetBody(request)

	return connector.ReceiveEmpty(r, "/evaluation/invalidate", resty.MethodPost)
}

func (c *Connector) QueueStatus() (*[]QueueStatusEntry, error) {
	r := c.connection.R()

	return connector.Receive[[]QueueStatusEntry](r, "/evaluation/queue/status", resty.MethodGet)
}

func (c *Connector) WorkersStatus() (*[]WorkerStatus, error) {
	r := c.connection.R()

	return connector.Receive[[]WorkerStatus](r, "/evaluation/workers/status", resty.MethodGet)
}

func (c *Connector) DisableWorker(address string) error {
	r := c.connection.R()
	r.SetBody(&workerconn.Status{Address: address})

	return connector.ReceiveEmpty(r, "/evaluation/worker/disable", resty.MethodPost)
}

func (c *Connector) EnableWorker(address string) error {
	r := c.connection.R()
	r.SetBody(&workerconn.Status{Address: address})

	return connector.ReceiveEmpty(r, "/evaluation/worker/enable", resty.MethodPost)
}
