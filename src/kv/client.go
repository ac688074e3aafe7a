package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
)

// Caller issues a request and waits for its reply. *node.Node implements it.
type Caller interface {
	Call(ctx context.Context, dest string, body message.Body) (*node.Response, error)
}

// Client is a Store backed by a key-value service reached over RPC.
type Client struct {
	caller  Caller
	service string
}

// NewClient returns a Store talking to service, typically LinKV or SeqKV.
func NewClient(caller Caller, service string) *Client {
	return &Client{
		caller:  caller,
		service: service,
	}
}

// Read implements Store.
func (c *Client) Read(ctx context.Context, key string, v interface{}) error {
	reply, err := c.caller.Call(ctx, c.service, &ReadRequest{Key: key})
	if err != nil {
		return c.translate(key, err)
	}

	var ok ReadOK
	if err := reply.Decode(&ok); err != nil {
		return err
	}
	if err := decodeValue(ok.Value, v); err != nil {
		return fmt.Errorf("decoding %s value of %q: %w", c.service, key, err)
	}
	return nil
}

// Write implements Store.
func (c *Client) Write(ctx context.Context, key string, v interface{}) error {
	_, err := c.caller.Call(ctx, c.service, &WriteRequest{Key: key, Value: v})
	if err != nil {
		return c.translate(key, err)
	}
	return nil
}

// CompareAndSwap implements Store.
func (c *Client) CompareAndSwap(ctx context.Context, key string, from, to interface{}, create bool) (bool, error) {
	_, err := c.caller.Call(ctx, c.service, &CASRequest{
		Key:               key,
		From:              from,
		To:                to,
		CreateIfNotExists: create,
	})

	var rpcErr *message.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == message.PreconditionFailed {
		return false, nil
	}
	if err != nil {
		return false, c.translate(key, err)
	}
	return true, nil
}

func (c *Client) translate(key string, err error) error {
	var rpcErr *message.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == message.KeyDoesNotExist {
		return keyNotFound(key)
	}
	return fmt.Errorf("%s %q: %w", c.service, key, err)
}
