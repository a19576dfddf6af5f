package config

// Connection describes one remote peer of the service.
type Connection struct {
	Address string `yaml:"Address"`
}
