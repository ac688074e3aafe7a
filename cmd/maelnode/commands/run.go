package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/net"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/mosaicnetworks/maelnode/src/service"
	"github.com/mosaicnetworks/maelnode/src/telemetry"
	"github.com/mosaicnetworks/maelnode/src/version"
	"github.com/mosaicnetworks/maelnode/src/workload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workload>",
		Short: "Run node",
		Long: fmt.Sprintf(`Run a node serving <workload> over the harness protocol.

Envelopes are read from stdin and written to stdout, one per line. Logs go to
stderr. Workloads: %s.`, strings.Join(workload.Names(), ", ")),
		Args:    cobra.ExactArgs(1),
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	conf := &_config.Maelnode
	logger := conf.Logger()

	stores, closeStores, err := kv.Open(conf.Backend())
	if err != nil {
		logger.Error("Cannot open kv backend: ", err)
		return err
	}
	defer func() {
		if err := closeStores(); err != nil {
			logger.WithError(err).Error("Closing kv backend")
		}
	}()

	services, err := workload.Services(args[0], conf.WorkloadEnv(stores))
	if err != nil {
		return err
	}

	trans := net.NewStreamTransport(os.Stdin, os.Stdout, logger.WithField("component", "transport"))

	n, err := node.New(conf.NodeConfig(), trans, services...)
	if err != nil {
		logger.Error("Cannot initialize node: ", err)
		return err
	}

	telemetry.SetBuildInfo(version.Version)

	if conf.ServiceAddr != "" {
		serviceServer := service.NewService(conf.ServiceAddr, n, logger)
		go serviceServer.Serve()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("workload", args[0]).Info("Starting node")

	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.WithFields(statsFields(n.GetStats())).Info("Node stopped")

	return nil
}

func statsFields(stats map[string]string) logrus.Fields {
	fields := make(logrus.Fields, len(stats))
	for k, v := range stats {
		fields[k] = v
	}
	return fields
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Maelnode.DataDir, "Directory searched for a maelnode config file")
	cmd.Flags().String("log", _config.Maelnode.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Maelnode.LogFile, "Also write logs to this file")

	// Runtime
	cmd.Flags().DurationP("timeout", "t", _config.Maelnode.RPCTimeout, "RPC Timeout")
	cmd.Flags().Duration("gossip-interval", _config.Maelnode.GossipInterval, "Minimum time between gossip rounds")
	cmd.Flags().Duration("retry-backoff", _config.Maelnode.RetryBackoff, "Pause after a rejected compare-and-swap")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Maelnode.ServiceAddr, "Listen IP:Port for HTTP service (empty disables it)")

	// Store
	cmd.Flags().String("kv-backend", _config.Maelnode.KVBackend, "maelstrom, etcd or memory")
	cmd.Flags().StringSlice("etcd-endpoints", _config.Maelnode.EtcdEndpoints, "etcd endpoints for the etcd backend")
	cmd.Flags().Duration("etcd-dial-timeout", _config.Maelnode.EtcdDialTimeout, "etcd dial timeout")
	cmd.Flags().String("etcd-prefix", _config.Maelnode.EtcdPrefix, "Prefix of every etcd key")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	logger := _config.Maelnode.Logger()

	if file := viper.ConfigFileUsed(); file != "" {
		logger.Debugf("Using config file: %s", file)
	}

	logger.WithFields(logrus.Fields{
		"maelnode.DataDir":         _config.Maelnode.DataDir,
		"maelnode.LogLevel":        _config.Maelnode.LogLevel,
		"maelnode.LogFile":         _config.Maelnode.LogFile,
		"maelnode.RPCTimeout":      _config.Maelnode.RPCTimeout,
		"maelnode.GossipInterval":  _config.Maelnode.GossipInterval,
		"maelnode.RetryBackoff":    _config.Maelnode.RetryBackoff,
		"maelnode.ServiceAddr":     _config.Maelnode.ServiceAddr,
		"maelnode.KVBackend":       _config.Maelnode.KVBackend,
		"maelnode.EtcdEndpoints":   _config.Maelnode.EtcdEndpoints,
		"maelnode.EtcdDialTimeout": _config.Maelnode.EtcdDialTimeout,
		"maelnode.EtcdPrefix":      _config.Maelnode.EtcdPrefix,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper. The logger is built from the
// result, so nothing here may log.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// MAELNODE_RETRY_BACKOFF overrides retry-backoff, and so on
	viper.SetEnvPrefix("MAELNODE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/maelnode.toml (.json, .yaml also work)
	viper.SetConfigName("maelnode")               // name of config file (without extension)
	viper.AddConfigPath(_config.Maelnode.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
