package kv

import (
	"context"
	"encoding/json"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
)

// Service serves read, write and cas from a local Store, making a node act as
// a key-value service itself.
type Service struct {
	store Store
}

// NewService ...
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Routes implements node.Service.
func (s *Service) Routes(n *node.Node) node.Routes {
	return node.Routes{
		"read":  node.Reply(s.read),
		"write": node.Reply(s.write),
		"cas":   node.Reply(s.cas),
	}
}

func (s *Service) read(ctx context.Context, msg *node.Msg[ReadRequest]) (*ReadOK, error) {
	key, err := keyOf(msg.Body.Key)
	if err != nil {
		return nil, err
	}

	var value json.RawMessage
	if err := s.store.Read(ctx, key, &value); err != nil {
		return nil, err
	}
	return &ReadOK{Value: value}, nil
}

func (s *Service) write(ctx context.Context, msg *node.Msg[WriteRequest]) (*message.Ack, error) {
	key, err := keyOf(msg.Body.Key)
	if err != nil {
		return nil, err
	}

	if err := s.store.Write(ctx, key, msg.Body.Value); err != nil {
		return nil, err
	}
	return &message.Ack{}, nil
}

func (s *Service) cas(ctx context.Context, msg *node.Msg[CASRequest]) (*message.Ack, error) {
	key, err := keyOf(msg.Body.Key)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.CompareAndSwap(ctx, key, msg.Body.From, msg.Body.To, msg.Body.CreateIfNotExists)
	if err != nil {
		return nil, err
	}
	if !ok {
		from, _ := json.Marshal(msg.Body.From)
		return nil, message.NewRPCError(message.PreconditionFailed, "key %s does not hold %s", key, from)
	}
	return &message.Ack{}, nil
}

// keyOf maps a JSON key to a store key. Strings are used as they are, other
// values by their canonical encoding, so 1 and "1" name the same key.
func keyOf(k interface{}) (string, error) {
	switch k := k.(type) {
	case nil:
		return "", message.NewRPCError(message.MalformedRequest, "missing key")
	case string:
		return k, nil
	default:
		data, err := Canonical(k)
		if err != nil {
			return "", message.NewRPCError(message.MalformedRequest, "bad key %v: %v", k, err)
		}
		return string(data), nil
	}
}
