package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/maelnode/src/common"
	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/mosaicnetworks/maelnode/src/workload"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default configuration values.
const (
	DefaultLogLevel        = "info"
	DefaultRPCTimeout      = node.DefaultRPCTimeout
	DefaultGossipInterval  = 200 * time.Millisecond
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultServiceAddr     = ""
	DefaultKVBackend       = kv.BackendMaelstrom
	DefaultEtcdDialTimeout = 5 * time.Second
	DefaultEtcdPrefix      = "/maelnode/"
)

// DefaultEtcdEndpoints ...
var DefaultEtcdEndpoints = []string{"127.0.0.1:2379"}

// Config contains all the configuration properties of a maelnode process.
type Config struct {
	// DataDir is the directory searched for a maelnode.{toml,json,yaml}
	// configuration file.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log line. Logs otherwise go
	// to stderr only; stdout carries protocol messages.
	LogFile string `mapstructure:"log-file"`

	// RPCTimeout bounds how long a call to a peer or a key-value service
	// waits for its reply.
	RPCTimeout time.Duration `mapstructure:"timeout"`

	// GossipInterval is the minimum time between two gossip rounds of the
	// broadcast workload. Rounds are jittered up to twice that.
	GossipInterval time.Duration `mapstructure:"gossip-interval"`

	// RetryBackoff is the pause after a rejected compare-and-swap.
	RetryBackoff time.Duration `mapstructure:"retry-backoff"`

	// ServiceAddr is the address:port of the optional HTTP service exposing
	// /stats and /metrics. Empty disables it.
	ServiceAddr string `mapstructure:"service-listen"`

	// KVBackend selects where replicated state lives: "maelstrom" (the
	// harness services), "etcd" or "memory".
	KVBackend string `mapstructure:"kv-backend"`

	// EtcdEndpoints are the etcd cluster members used by the etcd backend.
	EtcdEndpoints []string `mapstructure:"etcd-endpoints"`

	// EtcdDialTimeout ...
	EtcdDialTimeout time.Duration `mapstructure:"etcd-dial-timeout"`

	// EtcdPrefix is prepended to every key written to etcd.
	EtcdPrefix string `mapstructure:"etcd-prefix"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		RPCTimeout:      DefaultRPCTimeout,
		GossipInterval:  DefaultGossipInterval,
		RetryBackoff:    DefaultRetryBackoff,
		ServiceAddr:     DefaultServiceAddr,
		KVBackend:       DefaultKVBackend,
		EtcdEndpoints:   DefaultEtcdEndpoints,
		EtcdDialTimeout: DefaultEtcdDialTimeout,
		EtcdPrefix:      DefaultEtcdPrefix,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Logger returns a formatted logrus Entry, with prefix set to "maelnode". It
// writes to stderr, and to LogFile as well when one is configured.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Out = os.Stderr
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.LogFile,
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "maelnode")
}

// NodeConfig returns the runtime configuration of a node.
func (c *Config) NodeConfig() *node.Config {
	return node.NewConfig(c.RPCTimeout, c.Logger())
}

// Backend returns the key-value backend description.
func (c *Config) Backend() kv.Backend {
	return kv.Backend{
		Kind:            c.KVBackend,
		EtcdEndpoints:   c.EtcdEndpoints,
		EtcdDialTimeout: c.EtcdDialTimeout,
		EtcdPrefix:      c.EtcdPrefix,
		Logger:          c.Logger().WithField("component", "kv"),
	}
}

// WorkloadEnv returns the workload settings, with stores opened by stores.
func (c *Config) WorkloadEnv(stores kv.Opener) workload.Env {
	return workload.Env{
		Stores:         stores,
		GossipInterval: c.GossipInterval,
		RetryBackoff:   c.RetryBackoff,
		Logger:         c.Logger(),
	}
}

// DefaultDataDir return the default directory name for top-level maelnode
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Maelnode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Maelnode")
		} else {
			return filepath.Join(home, ".maelnode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
