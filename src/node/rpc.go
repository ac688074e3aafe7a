package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/telemetry"
	"github.com/sirupsen/logrus"
)

// ErrTimeout matches every TimeoutError with errors.Is.
var ErrTimeout = errors.New("rpc timed out")

// TimeoutError is returned by Call when no reply arrived before the deadline.
// The remote side may still have applied the request.
type TimeoutError struct {
	Dest  string
	Type  string
	MsgID int
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s to %s (msg_id %d) timed out after %v", e.Type, e.Dest, e.MsgID, e.After)
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ErrorCode implements message.Coder.
func (e *TimeoutError) ErrorCode() int {
	return message.Timeout
}

// Response is a successful answer to a Call. Type is the type the peer actually
// sent, which may differ from the expected "<request>_ok".
type Response struct {
	Src   string
	Type  string
	MsgID int
	Body  json.RawMessage
}

// Decode unmarshals the reply body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding %s from %s: %w", r.Type, r.Src, err)
	}
	return nil
}

type rpcKey struct {
	peer  string
	msgID int
}

type rpcResult struct {
	reply *Response
	err   error
}

// pendingRPC is a single-resolution result slot. The channel is buffered so
// that whoever takes the slot out of the table can fill it without blocking.
type pendingRPC struct {
	expected string
	respCh   chan rpcResult
}

// rpcTable holds the outstanding requests of this node. take is the only way
// out of the table: whichever of reply, timeout or cancellation takes a slot
// first owns it, and the others find nothing.
type rpcTable struct {
	sync.Mutex
	pending map[rpcKey]*pendingRPC
}

func newRPCTable() *rpcTable {
	return &rpcTable{
		pending: make(map[rpcKey]*pendingRPC),
	}
}

func (t *rpcTable) add(key rpcKey, expected string) *pendingRPC {
	t.Lock()
	defer t.Unlock()

	if _, ok := t.pending[key]; ok {
		// msg ids are never reused
		panic(fmt.Sprintf("rpc %v registered twice", key))
	}

	p := &pendingRPC{
		expected: expected,
		respCh:   make(chan rpcResult, 1),
	}
	t.pending[key] = p
	telemetry.PendingRPCs.Inc()
	return p
}

func (t *rpcTable) take(key rpcKey) (*pendingRPC, bool) {
	t.Lock()
	defer t.Unlock()

	p, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
		telemetry.PendingRPCs.Dec()
	}
	return p, ok
}

// Len returns the number of outstanding requests.
func (t *rpcTable) Len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.pending)
}

// Send assigns the next msg_id to body and hands it to the transport. No
// reply is awaited. The body must not be shared with concurrent sends.
func (n *Node) Send(dest string, body message.Body) (int, error) {
	id := n.nextMsgID()
	return id, n.sendWithID(n.ID(), dest, body, id)
}

func (n *Node) sendWithID(src, dest string, body message.Body, id int) error {
	body.Head().MsgID = id

	env, err := message.NewEnvelope(src, dest, body)
	if err != nil {
		return err
	}

	if err := n.trans.Send(env); err != nil {
		n.logger.WithFields(logrus.Fields{
			"dest":  dest,
			"type":  body.MessageType(),
			"error": err,
		}).Error("Failed to send")
		return err
	}
	return nil
}

// Call sends body to dest and waits for the matching reply, using the
// node's RPC timeout.
func (n *Node) Call(ctx context.Context, dest string, body message.Body) (*Response, error) {
	return n.CallTimeout(ctx, dest, body, n.conf.RPCTimeout)
}

// CallTimeout sends body to dest and waits up to timeout for the reply with
// a matching in_reply_to. A reply of type "error" is returned as a
// *message.RPCError; no reply in time is a *TimeoutError. The pending slot is
// released exactly once on every path.
func (n *Node) CallTimeout(ctx context.Context, dest string, body message.Body, timeout time.Duration) (*Response, error) {
	typ := body.MessageType()
	id := n.nextMsgID()
	key := rpcKey{peer: dest, msgID: id}

	p := n.rpcs.add(key, typ+"_ok")

	if err := n.sendWithID(n.ID(), dest, body, id); err != nil {
		n.rpcs.take(key)
		telemetry.RPCsTotal.WithLabelValues(typ, "send_error").Inc()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res rpcResult
	select {
	case res = <-p.respCh:
	case <-timer.C:
		res = n.abandon(key, p, &TimeoutError{Dest: dest, Type: typ, MsgID: id, After: timeout})
	case <-ctx.Done():
		var err error = ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{Dest: dest, Type: typ, MsgID: id, After: timeout}
		}
		res = n.abandon(key, p, err)
	}

	telemetry.RPCsTotal.WithLabelValues(typ, outcome(res.err)).Inc()

	return res.reply, res.err
}

// abandon releases the slot of a call that gave up waiting. If a reply got
// there first it already owns the slot, and its result is waiting in the
// channel.
func (n *Node) abandon(key rpcKey, p *pendingRPC, err error) rpcResult {
	if _, ok := n.rpcs.take(key); ok {
		return rpcResult{err: err}
	}
	return <-p.respCh
}

// resolve completes the pending call matching an inbound reply. Replies with
// no pending call are dropped: they are late or duplicated.
func (n *Node) resolve(src string, head message.Header, raw json.RawMessage) {
	key := rpcKey{peer: src, msgID: *head.InReplyTo}

	p, ok := n.rpcs.take(key)
	if !ok {
		n.countDropped()
		telemetry.DroppedReplies.Inc()
		n.logger.WithFields(logrus.Fields{
			"src":         src,
			"type":        head.Type,
			"in_reply_to": *head.InReplyTo,
		}).Debug("Dropping reply with no pending rpc")
		return
	}

	if head.Type == message.ErrorType {
		var body message.Error
		if err := json.Unmarshal(raw, &body); err != nil {
			p.respCh <- rpcResult{err: fmt.Errorf("decoding error reply from %s: %w", src, err)}
			return
		}
		p.respCh <- rpcResult{err: &message.RPCError{Code: body.Code, Text: body.Text}}
		return
	}

	if head.Type != p.expected {
		n.logger.WithFields(logrus.Fields{
			"src":      src,
			"type":     head.Type,
			"expected": p.expected,
		}).Debug("Reply type differs from expected")
	}

	p.respCh <- rpcResult{reply: &Response{
		Src:   src,
		Type:  head.Type,
		MsgID: head.MsgID,
		Body:  raw,
	}}
}

func outcome(err error) string {
	var rpcErr *message.RPCError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &rpcErr):
		return "error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}
