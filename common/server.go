package common

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cms-dev/cms-sub005/lib/logger"

	"github.com/gin-gonic/gin"
)

func (es *EvalSystem) recoverRequest(c *gin.Context, err any) {
	if err != nil {
		es.panicsLock.Lock()
		defer es.panicsLock.Unlock()
		es.panics = append(es.panics, err)

		es.stopFunc()
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (es *EvalSystem) InitServer() {
	gin.SetMode(gin.ReleaseMode)
	es.Router = gin.New()

	if logger.GetLevel() <= logger.LogLevelTrace {
		es.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			Output: logger.CreateWriter(logger.LogLevelTrace, "Handler log:"),
		}))
	}
	es.Router.Use(gin.CustomRecoveryWithWriter(
		logger.CreateWriter(logger.LogLevelError, "Panic in handler:"),
		es.recoverRequest,
	))

	es.Router.GET("/metrics", es.Metrics.Handler())
}

func (es *EvalSystem) runServer() {
	addr := ":" + strconv.Itoa(es.Config.Port)
	if es.Config.Host != nil {
		addr = *es.Config.Host + addr
	}
	logger.Info("Starting server at " + addr)
	server := http.Server{
		Addr:    addr,
		Handler: es.Router,
	}
	go func() {
		<-es.StopCtx.Done()
		logger.Info("Shutting down server")
		server.Shutdown(context.Background())
	}()
	server.ListenAndServe()
}
