package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	kindLabel    = "kind"
	outcomeLabel = "outcome"
	workerLabel  = "worker"
)

type Collector struct {
	Registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	QueueSize          prometheus.Gauge
	EnqueuedOperations *prometheus.CounterVec
	OperationResults   *prometheus.CounterVec
	WorkerFails        prometheus.Counter
	LostOperations     prometheus.Counter
	WriteFailures      prometheus.Counter
	SweepsDone         prometheus.Counter
	WorkersConnected   prometheus.Gauge
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		Registerer: registry,
		gatherer:   registry,
	}

	c.QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "es",
		Subsystem: "queue",
		Name:      "size",
		Help:      "Number of operations currently in the queue",
	})
	c.Registerer.MustRegister(c.QueueSize)

	c.EnqueuedOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "es",
		Subsystem: "queue",
		Name:      "enqueued_operations_count",
		Help:      "Number of operations accepted into the queue",
	}, []string{kindLabel})
	c.Registerer.MustRegister(c.EnqueuedOperations)

	c.OperationResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "es",
		Subsystem: "results",
		Name:      "operations_count",
		Help:      "Number of operation results received from workers",
	}, []string{kindLabel, outcomeLabel})
	c.Registerer.MustRegister(c.OperationResults)

	c.WorkerFails = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "es",
		Subsystem: "workers",
		Name:      "fails_count",
		Help:      "Number of worker failures detected",
	})
	c.Registerer.MustRegister(c.WorkerFails)

	c.LostOperations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "es",
		Subsystem: "workers",
		Name:      "lost_operations_count",
		Help:      "Number of operations re-enqueued after worker loss",
	})
	c.Registerer.MustRegister(c.LostOperations)

	c.WriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "es",
		Subsystem: "results",
		Name:      "write_failures_count",
		Help:      "Number of failed durable result writes",
	})
	c.Registerer.MustRegister(c.WriteFailures)

	c.SweepsDone = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "es",
		Subsystem: "sweeper",
		Name:      "sweeps_count",
		Help:      "Number of completed sweeper rounds",
	})
	c.Registerer.MustRegister(c.SweepsDone)

	c.WorkersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "es",
		Subsystem: "workers",
		Name:      "connected",
		Help:      "Number of workers currently connected",
	})
	c.Registerer.MustRegister(c.WorkersConnected)

	return c
}

// Handler exposes the collector on the gin router.
func (c *Collector) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
	return func(ctx *gin.Context) {
		h.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
