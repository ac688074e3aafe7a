package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
)

// Op is one micro-operation of a transaction, encoded as [kind, key, value].
// Reads carry a null value until they are applied.
type Op struct {
	Kind  string
	Key   int
	Value *int
}

// MarshalJSON ...
func (o Op) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{o.Kind, o.Key, o.Value})
}

// UnmarshalJSON ...
func (o *Op) UnmarshalJSON(data []byte) error {
	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if len(triple) != 3 {
		return fmt.Errorf("operation should be [kind, key, value], got %s", data)
	}
	if err := json.Unmarshal(triple[0], &o.Kind); err != nil {
		return err
	}
	if err := json.Unmarshal(triple[1], &o.Key); err != nil {
		return err
	}
	return json.Unmarshal(triple[2], &o.Value)
}

// TxnRequest ...
type TxnRequest struct {
	Txn []Op `json:"txn"`
}

// TxnOK ...
type TxnOK struct {
	message.Header
	Txn []Op `json:"txn"`
}

// MessageType implements message.Body.
func (TxnOK) MessageType() string { return "txn_ok" }

// Txn applies read-write register transactions to node-local state. A
// transaction is applied as a whole under one lock.
type Txn struct {
	sync.Mutex
	registers map[int]int
}

// NewTxn ...
func NewTxn() *Txn {
	return &Txn{
		registers: make(map[int]int),
	}
}

// Routes implements node.Service.
func (t *Txn) Routes(n *node.Node) node.Routes {
	return node.Routes{
		"txn": node.Reply(func(ctx context.Context, msg *node.Msg[TxnRequest]) (*TxnOK, error) {
			res, err := t.Apply(msg.Body.Txn)
			if err != nil {
				return nil, err
			}
			return &TxnOK{Txn: res}, nil
		}),
	}
}

// Apply runs ops in order and returns them with reads filled in. A
// transaction containing an unknown operation is rejected before any of it
// is applied.
func (t *Txn) Apply(ops []Op) ([]Op, error) {
	for _, op := range ops {
		if op.Kind != "r" && op.Kind != "w" {
			return nil, message.NewRPCError(message.MalformedRequest, "unknown operation %q", op.Kind)
		}
	}

	t.Lock()
	defer t.Unlock()

	res := make([]Op, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case "r":
			out := Op{Kind: "r", Key: op.Key}
			if v, ok := t.registers[op.Key]; ok {
				out.Value = &v
			}
			res = append(res, out)
		case "w":
			if op.Value == nil {
				delete(t.registers, op.Key)
			} else {
				t.registers[op.Key] = *op.Value
			}
			res = append(res, op)
		}
	}
	return res, nil
}
