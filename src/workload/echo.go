package workload

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
)

// Echo answers every echo with a copy of its body, echo field and any other
// field included.
type Echo struct{}

// NewEcho ...
func NewEcho() *Echo {
	return &Echo{}
}

// Routes implements node.Service.
func (e *Echo) Routes(n *node.Node) node.Routes {
	return node.Routes{
		"echo": node.Reply(func(ctx context.Context, msg *node.Msg[map[string]interface{}]) (*message.Raw, error) {
			fields := msg.Body
			// the header of the reply is the node's to write
			delete(fields, "type")
			delete(fields, "msg_id")
			delete(fields, "in_reply_to")
			return &message.Raw{Tag: "echo_ok", Fields: fields}, nil
		}),
	}
}

// GenerateOK ...
type GenerateOK struct {
	message.Header
	ID string `json:"id"`
}

// MessageType implements message.Body.
func (GenerateOK) MessageType() string { return "generate_ok" }

// UniqueIDs hands out ids of the form <node>-<n>, n increasing per node.
// Node ids are unique in the cluster, so the ids are too.
type UniqueIDs struct {
	next int64
}

// NewUniqueIDs ...
func NewUniqueIDs() *UniqueIDs {
	return &UniqueIDs{}
}

// Routes implements node.Service.
func (u *UniqueIDs) Routes(n *node.Node) node.Routes {
	return node.Routes{
		"generate": node.Reply(func(ctx context.Context, msg *node.Msg[struct{}]) (*GenerateOK, error) {
			id := atomic.AddInt64(&u.next, 1)
			return &GenerateOK{ID: fmt.Sprintf("%s-%d", n.ID(), id)}, nil
		}),
	}
}
