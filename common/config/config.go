package config

import (
	"os"

	"github.com/cms-dev/cms-sub005/lib/logger"

	"github.com/xorcare/pointer"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port int     `yaml:"Port"`
	Host *string `yaml:"Host,omitempty"` // leave empty for localhost

	Logger *logger.Config `yaml:"Logger,omitempty"`

	Evaluation *EvaluationConfig `yaml:"Evaluation,omitempty"`

	DB DBConfig `yaml:"DB"`
}

func ReadConfig(configPath string) *Config {
	content, err := os.ReadFile(configPath)
	if err != nil {
		panic(err)
	}

	config := new(Config)
	err = yaml.Unmarshal(content, config)
	if err != nil {
		panic(err)
	}

	fillInConfig(config)

	return config
}

func fillInConfig(config *Config) {
	if config.Host == nil {
		config.Host = pointer.String("localhost")
	}

	if config.Evaluation != nil {
		fillInEvaluationConfig(config.Evaluation)
	}
}
