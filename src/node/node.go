package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/net"
	"github.com/mosaicnetworks/maelnode/src/telemetry"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyInitialized is reported when a second init message arrives.
var ErrAlreadyInitialized = errors.New("node already initialized")

// Service contributes handlers to a node. Routes is called once, while the
// node is being built, and may keep n to issue sends and calls later.
type Service interface {
	Routes(n *Node) Routes
}

// Runner is implemented by services that own background work. Run is started
// in its own goroutine once the node is initialized and must return when ctx
// is done.
type Runner interface {
	Run(ctx context.Context, n *Node)
}

// Node receives envelopes from a transport, dispatches each of them
// concurrently to its handler, and correlates the replies to the requests it
// issued itself.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	trans net.Transport
	netCh <-chan message.Envelope

	registry *Registry
	runners  []Runner

	rpcs  *rpcTable
	msgID int64

	idLock  sync.RWMutex
	id      string
	nodeIDs []string
	readyCh chan struct{}

	bgCtx      context.Context
	background sync.WaitGroup

	start   time.Time
	handled int64
	dropped int64
}

// New builds a node around trans. Each service contributes its routes; a
// message type claimed twice fails here, before any message is read.
func New(conf *Config, trans net.Transport, services ...Service) (*Node, error) {
	n := &Node{
		conf:    conf,
		logger:  conf.Logger,
		trans:   trans,
		netCh:   trans.Consumer(),
		rpcs:    newRPCTable(),
		readyCh: make(chan struct{}),
		start:   time.Now(),
	}

	routes := make([]Routes, 0, len(services))
	for _, s := range services {
		routes = append(routes, s.Routes(n))
		if r, ok := s.(Runner); ok {
			n.runners = append(n.runners, r)
		}
	}

	registry, err := NewRegistry(routes...)
	if err != nil {
		return nil, err
	}
	n.registry = registry

	n.logger.WithField("types", registry.Types()).Debug("Registered handlers")

	return n, nil
}

// ID returns the node's identity, or "" before init.
func (n *Node) ID() string {
	n.idLock.RLock()
	defer n.idLock.RUnlock()
	return n.id
}

// NodeIDs returns the cluster view received at init, including this node.
func (n *Node) NodeIDs() []string {
	n.idLock.RLock()
	defer n.idLock.RUnlock()
	out := make([]string, len(n.nodeIDs))
	copy(out, n.nodeIDs)
	return out
}

// Peers returns the cluster view without this node.
func (n *Node) Peers() []string {
	n.idLock.RLock()
	defer n.idLock.RUnlock()
	peers := make([]string, 0, len(n.nodeIDs))
	for _, id := range n.nodeIDs {
		if id != n.id {
			peers = append(peers, id)
		}
	}
	return peers
}

// Logger returns the node's logger.
func (n *Node) Logger() *logrus.Entry {
	return n.logger
}

// State returns the current lifecycle state.
func (n *Node) State() State {
	return n.getState()
}

// Ready is closed once the node has been initialized.
func (n *Node) Ready() <-chan struct{} {
	return n.readyCh
}

// PendingRPCs returns the number of calls awaiting a reply.
func (n *Node) PendingRPCs() int {
	return n.rpcs.Len()
}

func (n *Node) nextMsgID() int {
	return int(atomic.AddInt64(&n.msgID, 1))
}

func (n *Node) countDropped() {
	atomic.AddInt64(&n.dropped, 1)
}

// Run reads envelopes until the input is exhausted or ctx is done. Every
// envelope is served in its own goroutine. On exhaustion in-flight handlers
// are drained before background work is stopped; on cancellation they see
// their context end.
func (n *Node) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	n.bgCtx = bgCtx

	go n.trans.Listen()

	for {
		select {
		case env, ok := <-n.netCh:
			if !ok {
				n.logger.Debug("Input exhausted, draining handlers")
				n.waitRoutines()
				n.shutdown(cancel)
				return nil
			}
			n.goFunc(func() { n.dispatch(bgCtx, env) })
		case <-ctx.Done():
			n.logger.Debug("Cancelled, waiting for handlers")
			cancel()
			n.waitRoutines()
			n.shutdown(cancel)
			return ctx.Err()
		}
	}
}

func (n *Node) shutdown(cancel context.CancelFunc) {
	n.setState(Shutdown)
	cancel()
	n.background.Wait()
	if err := n.trans.Close(); err != nil {
		n.logger.WithError(err).Error("Closing transport")
	}
}

// dispatch routes one envelope: replies resolve pending calls, init is
// served by the runtime, everything else goes to the registry.
func (n *Node) dispatch(ctx context.Context, env message.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.WithField("src", env.Src).Errorf("Dispatch panic: %v", r)
		}
	}()

	head, err := message.DecodeHeader(env.Body)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"src":   env.Src,
			"error": err,
		}).Error("Dropping malformed envelope")
		return
	}

	if head.IsReply() {
		n.resolve(env.Src, head, env.Body)
		return
	}

	req := &Request{
		Src:    env.Src,
		Dest:   env.Dest,
		Header: head,
		Body:   env.Body,
	}

	if head.Type == message.InitType {
		n.handleInit(req)
		return
	}

	if n.getState() != Ready {
		n.replyError(req, message.NewRPCError(message.TemporarilyUnavailable, "node is not initialized"))
		return
	}

	if id := n.ID(); env.Dest != id {
		n.logger.WithFields(logrus.Fields{
			"src":  env.Src,
			"dest": env.Dest,
			"type": head.Type,
		}).Warn("Dropping envelope addressed to another node")
		return
	}

	h, ok := n.registry.Lookup(head.Type)
	if !ok {
		telemetry.MessagesTotal.WithLabelValues(head.Type, "unsupported").Inc()
		n.replyError(req, message.NewRPCError(message.NotSupported, "unsupported message type %q", head.Type))
		return
	}

	atomic.AddInt64(&n.handled, 1)

	resp, err := n.invoke(ctx, h, req)
	if err != nil {
		telemetry.MessagesTotal.WithLabelValues(head.Type, "error").Inc()
		if h.OneWay() {
			n.logger.WithFields(logrus.Fields{
				"src":   env.Src,
				"type":  head.Type,
				"error": err,
			}).Error("One-way handler failed")
			return
		}
		n.replyError(req, toRPCError(err))
		return
	}

	telemetry.MessagesTotal.WithLabelValues(head.Type, "ok").Inc()

	if resp == nil {
		return
	}
	n.reply(req, resp)
}

// invoke runs a handler, turning a panic into a crash error so that a
// faulty handler costs one request, not the process.
func (n *Node) invoke(ctx context.Context, h Handler, req *Request) (body message.Body, err error) {
	start := time.Now()
	telemetry.InFlight.Inc()

	defer func() {
		telemetry.InFlight.Dec()
		telemetry.HandlerDuration.WithLabelValues(req.Header.Type).Observe(time.Since(start).Seconds())

		if r := recover(); r != nil {
			n.logger.WithFields(logrus.Fields{
				"src":    req.Src,
				"type":   req.Header.Type,
				"msg_id": req.Header.MsgID,
			}).Errorf("Handler panic: %v", r)
			body = nil
			err = message.NewRPCError(message.Crash, "handler panic: %v", r)
		}
	}()

	return h.serve(ctx, req)
}

func (n *Node) handleInit(req *Request) {
	var body message.Init
	if err := json.Unmarshal(req.Body, &body); err != nil {
		n.replyError(req, message.NewRPCError(message.MalformedRequest, "decoding init: %v", err))
		return
	}
	if body.NodeID == "" {
		n.replyError(req, message.NewRPCError(message.MalformedRequest, "init without node_id"))
		return
	}
	if body.NodeID != req.Dest {
		n.replyError(req, message.NewRPCError(message.MalformedRequest,
			"init node_id %q does not match destination %q", body.NodeID, req.Dest))
		return
	}

	n.idLock.Lock()
	if n.id != "" {
		n.idLock.Unlock()
		n.replyError(req, message.NewRPCError(message.PreconditionFailed, "%v as %s", ErrAlreadyInitialized, n.ID()))
		return
	}
	n.id = body.NodeID
	n.nodeIDs = append([]string(nil), body.NodeIDs...)
	n.idLock.Unlock()

	n.setState(Ready)
	close(n.readyCh)

	n.logger.WithFields(logrus.Fields{
		"node":     body.NodeID,
		"node_ids": body.NodeIDs,
	}).Info("Initialized")

	for _, r := range n.runners {
		r := r
		n.background.Add(1)
		go func() {
			defer n.background.Done()
			r.Run(n.bgCtx, n)
		}()
	}

	n.reply(req, &message.InitOK{})
}

func (n *Node) reply(req *Request, body message.Body) {
	if ack, ok := body.(*message.Ack); ok && ack.For == "" {
		ack.For = req.Header.Type
	}
	body.Head().SetInReplyTo(req.Header.MsgID)
	n.sendWithID(req.Dest, req.Src, body, n.nextMsgID())
}

func (n *Node) replyError(req *Request, rpcErr *message.RPCError) {
	n.logger.WithFields(logrus.Fields{
		"src":    req.Src,
		"type":   req.Header.Type,
		"msg_id": req.Header.MsgID,
		"code":   rpcErr.Code,
	}).Debug(rpcErr.Text)
	n.reply(req, rpcErr.Body())
}

// toRPCError picks the error code reported for a handler failure.
func toRPCError(err error) *message.RPCError {
	var rpcErr *message.RPCError
	if errors.As(err, &rpcErr) && rpcErr == err {
		return rpcErr
	}
	var coder message.Coder
	if errors.As(err, &coder) {
		return &message.RPCError{Code: coder.ErrorCode(), Text: err.Error()}
	}
	return &message.RPCError{Code: message.Crash, Text: err.Error()}
}

// GetStats returns a snapshot of counters describing the node.
func (n *Node) GetStats() map[string]string {
	return map[string]string{
		"id":              n.ID(),
		"state":           n.getState().String(),
		"node_ids":        fmt.Sprint(n.NodeIDs()),
		"handlers":        strconv.Itoa(len(n.registry.Types())),
		"pending_rpcs":    strconv.Itoa(n.rpcs.Len()),
		"in_flight":       strconv.Itoa(int(n.routines())),
		"handled":         strconv.FormatInt(atomic.LoadInt64(&n.handled), 10),
		"dropped_replies": strconv.FormatInt(atomic.LoadInt64(&n.dropped), 10),
		"uptime":          time.Since(n.start).String(),
	}
}
