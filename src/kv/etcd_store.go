package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore is a Store kept in etcd. Every key is stored under prefix with
// its canonical encoding as value, so that compare-and-swap becomes a
// transaction comparing bytes.
type EtcdStore struct {
	cli    *clientv3.Client
	prefix string
	logger *logrus.Entry
}

// NewEtcdStore connects to the etcd cluster at endpoints.
func NewEtcdStore(endpoints []string, dialTimeout time.Duration, prefix string, logger *logrus.Entry) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to etcd %v: %w", endpoints, err)
	}

	return &EtcdStore{
		cli:    cli,
		prefix: prefix,
		logger: logger,
	}, nil
}

// WithPrefix returns a store sharing the connection, with p appended to the
// key prefix.
func (s *EtcdStore) WithPrefix(p string) *EtcdStore {
	return &EtcdStore{
		cli:    s.cli,
		prefix: s.prefix + p,
		logger: s.logger,
	}
}

func (s *EtcdStore) key(k string) string {
	return s.prefix + k
}

// Read implements Store.
func (s *EtcdStore) Read(ctx context.Context, key string, v interface{}) error {
	resp, err := s.cli.Get(ctx, s.key(key))
	if err != nil {
		return fmt.Errorf("etcd get %q: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return keyNotFound(key)
	}
	return decodeValue(resp.Kvs[0].Value, v)
}

// Write implements Store.
func (s *EtcdStore) Write(ctx context.Context, key string, v interface{}) error {
	data, err := Canonical(v)
	if err != nil {
		return err
	}
	if _, err := s.cli.Put(ctx, s.key(key), string(data)); err != nil {
		return fmt.Errorf("etcd put %q: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements Store. A concurrent creation of a missing key is
// reported as a mismatch.
func (s *EtcdStore) CompareAndSwap(ctx context.Context, key string, from, to interface{}, create bool) (bool, error) {
	fromData, err := Canonical(from)
	if err != nil {
		return false, err
	}
	toData, err := Canonical(to)
	if err != nil {
		return false, err
	}

	k := s.key(key)

	resp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(k), "=", string(fromData))).
		Then(clientv3.OpPut(k, string(toData))).
		Else(clientv3.OpGet(k)).
		Commit()
	if err != nil {
		return false, fmt.Errorf("etcd cas %q: %w", key, err)
	}
	if resp.Succeeded {
		return true, nil
	}

	if rng := resp.Responses[0].GetResponseRange(); rng != nil && len(rng.Kvs) > 0 {
		return false, nil
	}
	if !create {
		return false, keyNotFound(key)
	}

	resp, err = s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, string(toData))).
		Commit()
	if err != nil {
		return false, fmt.Errorf("etcd create %q: %w", key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"key":     k,
		"created": resp.Succeeded,
	}).Debug("etcd cas on missing key")

	return resp.Succeeded, nil
}

// Close releases the etcd connection shared by every prefixed store.
func (s *EtcdStore) Close() error {
	return s.cli.Close()
}
