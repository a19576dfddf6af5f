package config

import "time"

type EvaluationConfig struct {
	// ContestID limits the service to one contest. If empty, all contests
	// found in the database are served.
	ContestID *uint `yaml:"ContestID,omitempty"`

	// Workers are added to the pool at startup. Workers may also announce
	// themselves later through the status endpoint.
	Workers []*Connection `yaml:"Workers,omitempty"`

	SweeperInterval time.Duration `yaml:"SweeperInterval"`

	MaxCompilationTries int `yaml:"MaxCompilationTries"`
	MaxEvaluationTries  int `yaml:"MaxEvaluationTries"`

	// MaxOperationsPerBatch caps one dispatch to a worker, 0 means unbounded.
	MaxOperationsPerBatch int `yaml:"MaxOperationsPerBatch"`

	// WorkerTimeout declares a worker stale when no heartbeat arrived for
	// this long; TimeoutCheckInterval governs how often the check runs.
	WorkerTimeout           time.Duration `yaml:"WorkerTimeout"`
	TimeoutCheckInterval    time.Duration `yaml:"TimeoutCheckInterval"`
	ConnectionCheckInterval time.Duration `yaml:"ConnectionCheckInterval"`

	// WriteRetryMaxElapsed bounds retries of one durable result write before
	// the write is declared failed and the operation is re-enqueued.
	WriteRetryMaxElapsed time.Duration `yaml:"WriteRetryMaxElapsed"`
}

func fillInEvaluationConfig(config *EvaluationConfig) {
	if config.SweeperInterval == 0 {
		config.SweeperInterval = 350 * time.Second
	}
	if config.MaxCompilationTries == 0 {
		config.MaxCompilationTries = 3
	}
	if config.MaxEvaluationTries == 0 {
		config.MaxEvaluationTries = 3
	}
	if config.MaxOperationsPerBatch == 0 {
		config.MaxOperationsPerBatch = 25
	}
	if config.WorkerTimeout == 0 {
		config.WorkerTimeout = 600 * time.Second
	}
	if config.TimeoutCheckInterval == 0 {
		config.TimeoutCheckInterval = 300 * time.Second
	}
	if config.ConnectionCheckInterval == 0 {
		config.ConnectionCheckInterval = 30 * time.Second
	}
	if config.WriteRetryMaxElapsed == 0 {
		config.WriteRetryMaxElapsed = 30 * time.Second
	}
}
