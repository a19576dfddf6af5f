package workerconn

import (
	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/connectors"
	"github.com/cms-dev/cms-sub005/lib/connector"

	"github.com/go-resty/resty/v2"
)

type Connector struct {
	connection *connectors.ConnectorBase
}

func NewConnector(connection *config.Connection) *Connector {
	return &Connector{connectors.NewConnectorBase(connection)}
}

func (c *Connector) Status() (*Status, error) {
	r := c.connection.R()

	return connector.Receive[Status](r, "/worker/status", resty.MethodGet)
}

func (c *Connector) NewJob(job *Job) (*Status, error) {
	r := c.connection.R()
	r.SetBody(job)

	return connector.Receive[Status](r, "/worker/job/new", resty.MethodPost)
}
