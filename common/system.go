package common

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cms-dev/cms-sub005/common/config"
	"github.com/cms-dev/cms-sub005/common/db"
	"github.com/cms-dev/cms-sub005/common/metrics"
	"github.com/cms-dev/cms-sub005/lib/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// EvalSystem is the shared context of the evaluation service process:
// config, HTTP router, database handle and process lifecycle.
type EvalSystem struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *gorm.DB
	Metrics *metrics.Collector

	processes []func()
	defers    []func()

	StopCtx  context.Context
	stopFunc context.CancelFunc
	stopWG   sync.WaitGroup

	panicsLock sync.Mutex
	panics     []any
}

func InitEvalSystem(configPath string) *EvalSystem {
	es := &EvalSystem{
		Config: config.ReadConfig(configPath),
	}
	logger.InitLogger(es.Config.Logger)

	es.Metrics = metrics.NewCollector()
	es.InitServer()

	var err error
	es.DB, err = db.NewDB(es.Config.DB)
	if err != nil {
		logger.Panic("Can not set up db connection, error: %s", err.Error())
	}

	return es
}

func (es *EvalSystem) AddProcess(f func()) {
	es.processes = append(es.processes, f)
}

func (es *EvalSystem) AddDefer(f func()) {
	es.defers = append(es.defers, f)
}

func (es *EvalSystem) Run() {
	var ctx context.Context
	var cancel context.CancelFunc
	ctx, es.stopFunc = context.WithCancel(context.Background())
	es.StopCtx, cancel = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, process := range es.processes {
		es.Go(process)
	}

	es.runServer()

	es.stopWG.Wait()

	for _, d := range es.defers {
		d()
	}
}

// Go runs f as a managed process; a panic in any of them shuts the whole
// service down gracefully.
func (es *EvalSystem) Go(f func()) {
	es.stopWG.Add(1)
	go es.runProcess(f)
}

func (es *EvalSystem) runProcess(f func()) {
	defer func() {
		v := recover()
		if v != nil {
			logger.Error("One process got panic: %v, shutting down all processes gracefully", v)
			es.stopFunc()
		}
		es.stopWG.Done()
	}()

	f()
}
