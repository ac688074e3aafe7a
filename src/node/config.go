package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/maelnode/src/common"
	"github.com/sirupsen/logrus"
)

// DefaultRPCTimeout bounds how long Call waits for a reply.
const DefaultRPCTimeout = 1000 * time.Millisecond

// Config holds the runtime settings of a Node.
type Config struct {
	RPCTimeout time.Duration `mapstructure:"timeout"`
	Logger     *logrus.Entry
}

// NewConfig ...
func NewConfig(timeout time.Duration, logger *logrus.Entry) *Config {
	return &Config{
		RPCTimeout: timeout,
		Logger:     logger,
	}
}

// DefaultConfig returns a Config with the default timeout and a logger
// writing to stderr.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		RPCTimeout: DefaultRPCTimeout,
		Logger:     logrus.NewEntry(logger),
	}
}

// TestConfig returns a Config whose logger writes into the test log.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Logger = logrus.NewEntry(common.NewTestLogger(t, logrus.DebugLevel))
	return config
}
