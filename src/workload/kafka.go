package workload

import (
	"context"
	"encoding/json"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/mosaicnetworks/maelnode/src/replicated"
)

// SendRequest ...
type SendRequest struct {
	Key string          `json:"key"`
	Msg json.RawMessage `json:"msg"`
}

// SendOK ...
type SendOK struct {
	message.Header
	Offset int `json:"offset"`
}

// MessageType implements message.Body.
func (SendOK) MessageType() string { return "send_ok" }

// OffsetsRequest is the body of poll and commit_offsets.
type OffsetsRequest struct {
	Offsets map[string]int `json:"offsets"`
}

// PollOK ...
type PollOK struct {
	message.Header
	Msgs map[string][]replicated.Record `json:"msgs"`
}

// MessageType implements message.Body.
func (PollOK) MessageType() string { return "poll_ok" }

// ListCommittedRequest ...
type ListCommittedRequest struct {
	Keys []string `json:"keys"`
}

// ListCommittedOK ...
type ListCommittedOK struct {
	message.Header
	Offsets map[string]int `json:"offsets"`
}

// MessageType implements message.Body.
func (ListCommittedOK) MessageType() string { return "list_committed_offsets_ok" }

// Kafka is a replicated log: messages in lin-kv, committed offsets in seq-kv.
type Kafka struct {
	env Env
}

// NewKafka ...
func NewKafka(env Env) *Kafka {
	return &Kafka{env: env}
}

// Routes implements node.Service.
func (k *Kafka) Routes(n *node.Node) node.Routes {
	log := replicated.NewLog(
		k.env.Stores(kv.LinKV, n),
		k.env.Stores(kv.SeqKV, n),
		k.env.RetryBackoff,
		k.env.Logger.WithField("component", "log"),
	)

	return node.Routes{
		"send": node.Reply(func(ctx context.Context, msg *node.Msg[SendRequest]) (*SendOK, error) {
			if msg.Body.Key == "" {
				return nil, message.NewRPCError(message.MalformedRequest, "send without key")
			}
			off, err := log.Send(ctx, msg.Body.Key, msg.Body.Msg)
			if err != nil {
				return nil, err
			}
			return &SendOK{Offset: off}, nil
		}),
		"poll": node.Reply(func(ctx context.Context, msg *node.Msg[OffsetsRequest]) (*PollOK, error) {
			msgs, err := log.Poll(ctx, msg.Body.Offsets)
			if err != nil {
				return nil, err
			}
			return &PollOK{Msgs: msgs}, nil
		}),
		"commit_offsets": node.Reply(func(ctx context.Context, msg *node.Msg[OffsetsRequest]) (*message.Ack, error) {
			if err := log.CommitOffsets(ctx, msg.Body.Offsets); err != nil {
				return nil, err
			}
			return &message.Ack{}, nil
		}),
		"list_committed_offsets": node.Reply(func(ctx context.Context, msg *node.Msg[ListCommittedRequest]) (*ListCommittedOK, error) {
			offsets, err := log.ListCommitted(ctx, msg.Body.Keys)
			if err != nil {
				return nil, err
			}
			return &ListCommittedOK{Offsets: offsets}, nil
		}),
	}
}
