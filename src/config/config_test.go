package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/sirupsen/logrus"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":  logrus.DebugLevel,
		"info":   logrus.InfoLevel,
		"warn":   logrus.WarnLevel,
		"error":  logrus.ErrorLevel,
		"fatal":  logrus.FatalLevel,
		"panic":  logrus.PanicLevel,
		"chatty": logrus.DebugLevel,
		"":       logrus.DebugLevel,
	}
	for in, want := range cases {
		if got := LogLevel(in); got != want {
			t.Errorf("LogLevel(%q) should be %v, not %v", in, want, got)
		}
	}
}

func TestDefaults(t *testing.T) {
	conf := NewDefaultConfig()

	if conf.RPCTimeout != time.Second || conf.GossipInterval != 200*time.Millisecond {
		t.Fatalf("unexpected timings %v %v", conf.RPCTimeout, conf.GossipInterval)
	}
	if conf.KVBackend != kv.BackendMaelstrom || conf.ServiceAddr != "" {
		t.Fatalf("default backend should be maelstrom with no service, got %q %q", conf.KVBackend, conf.ServiceAddr)
	}

	nc := conf.NodeConfig()
	if nc.RPCTimeout != conf.RPCTimeout || nc.Logger == nil {
		t.Fatalf("node config should carry the timeout and a logger")
	}

	env := conf.WorkloadEnv(nil)
	if env.RetryBackoff != conf.RetryBackoff || env.GossipInterval != conf.GossipInterval {
		t.Fatalf("workload env should carry the timings")
	}
}

func TestLoggerWritesFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "maelnode")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	conf := NewDefaultConfig()
	conf.LogLevel = "debug"
	conf.LogFile = filepath.Join(dir, "node.log")

	logger := conf.Logger()
	logger.Logger.Out = ioutil.Discard
	logger.WithField("node", "n1").Info("hello file")

	data, err := ioutil.ReadFile(conf.LogFile)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.Contains(string(data), "hello file") || !strings.Contains(string(data), "node=n1") {
		t.Fatalf("unexpected log file %q", data)
	}

	if logger.Data["prefix"] != "maelnode" {
		t.Fatalf("logger should carry the maelnode prefix")
	}
}
