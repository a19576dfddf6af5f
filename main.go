package main

import (
	"fmt"
	"os"

	"github.com/cms-dev/cms-sub005/common"
	"github.com/cms-dev/cms-sub005/evaluation"
	"github.com/cms-dev/cms-sub005/lib/logger"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yml>\n", os.Args[0])
		os.Exit(2)
	}

	es := common.InitEvalSystem(os.Args[1])
	if _, err := evaluation.SetupEvaluationService(es); err != nil {
		logger.Panic("Can not set up evaluation service, error: %s", err.Error())
	}
	es.Run()
}
