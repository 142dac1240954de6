package constants

import (
	"sshmanager/pkg/config"
	"sync"
	"time"
)

var (
	globalConfig *config.Config
	configOnce   sync.Once
	configError  error
)

func GetConfig() (*config.Config, error) {
	configOnce.Do(func() {
		globalConfig, configError = config.Load()
	})
	return globalConfig, configError
}

func MustGetConfig() *config.Config {
	cfg, err := GetConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	return cfg
}

const (
	// DefaultKeepBothLimit is the highest " (N)" suffix tried before a random one.
	DefaultKeepBothLimit = 999

	// ShutdownTimeout bounds how long the CLI waits for the running transfer
	// to stop after an interrupt.
	ShutdownTimeout = 30 * time.Second
)
