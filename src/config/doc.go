// Package config defines the configuration of a maelnode process.
//
// The CLI fills a Config from flags, MAELNODE_* environment variables and an
// optional configuration file found in Config.DataDir:
//
//	maelnode.toml // (or .json, .yaml) any of the keys below
//
// Keys: datadir, log, log-file, timeout, gossip-interval, retry-backoff,
// service-listen, kv-backend, etcd-endpoints, etcd-dial-timeout, etcd-prefix.
package config
