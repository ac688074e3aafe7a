package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/maelnode/src/message"
)

var (
	// ErrDuplicateHandler is returned when two route sets claim the same
	// message type.
	ErrDuplicateHandler = errors.New("duplicate handler")

	// ErrReservedType is returned when a route claims a type the runtime
	// serves itself.
	ErrReservedType = errors.New("reserved message type")

	// ErrNilHandler is returned for a route entry that was never built with
	// Reply or OneWay.
	ErrNilHandler = errors.New("nil handler")
)

// Request is an inbound message routed to a handler, before its body is
// decoded into the handler's input shape.
type Request struct {
	Src    string
	Dest   string
	Header message.Header
	Body   json.RawMessage
}

// Msg is a decoded request together with its routing metadata.
type Msg[T any] struct {
	Src   string
	Dest  string
	Type  string
	MsgID int
	Body  T
}

// Handler serves one message type. Build it with Reply or OneWay, which fix
// the input and output shapes at compile time.
type Handler struct {
	oneWay bool
	serve  func(ctx context.Context, req *Request) (message.Body, error)
}

// OneWay reports whether the handler never answers.
func (h Handler) OneWay() bool {
	return h.oneWay
}

// Reply builds a handler that decodes a Req and answers with a Resp.
func Reply[Req any, Resp message.Body](fn func(ctx context.Context, msg *Msg[Req]) (Resp, error)) Handler {
	return Handler{
		serve: func(ctx context.Context, req *Request) (message.Body, error) {
			msg, err := decode[Req](req)
			if err != nil {
				return nil, err
			}
			resp, err := fn(ctx, msg)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	}
}

// OneWay builds a handler that decodes a Req and never answers, for protocol
// messages such as gossip payloads.
func OneWay[Req any](fn func(ctx context.Context, msg *Msg[Req]) error) Handler {
	return Handler{
		oneWay: true,
		serve: func(ctx context.Context, req *Request) (message.Body, error) {
			msg, err := decode[Req](req)
			if err != nil {
				return nil, err
			}
			return nil, fn(ctx, msg)
		},
	}
}

func decode[T any](req *Request) (*Msg[T], error) {
	msg := &Msg[T]{
		Src:   req.Src,
		Dest:  req.Dest,
		Type:  req.Header.Type,
		MsgID: req.Header.MsgID,
	}
	if err := json.Unmarshal(req.Body, &msg.Body); err != nil {
		return nil, message.NewRPCError(message.MalformedRequest, "decoding %s: %v", req.Header.Type, err)
	}
	return msg, nil
}

// Routes maps message types to handlers. Services declare them as map
// literals, so a type repeated within one literal does not compile.
type Routes map[string]Handler

// Registry is the immutable dispatch table of a node.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry merges route sets into a Registry. A type claimed twice, a
// reserved type, or an empty handler is a configuration error.
func NewRegistry(routes ...Routes) (*Registry, error) {
	handlers := make(map[string]Handler)

	for _, rs := range routes {
		for typ, h := range rs {
			switch {
			case typ == message.InitType || typ == message.ErrorType:
				return nil, fmt.Errorf("%w: %q", ErrReservedType, typ)
			case h.serve == nil:
				return nil, fmt.Errorf("%w: %q", ErrNilHandler, typ)
			}
			if _, ok := handlers[typ]; ok {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateHandler, typ)
			}
			handlers[typ] = h
		}
	}

	return &Registry{handlers: handlers}, nil
}

// Lookup returns the handler registered for typ.
func (r *Registry) Lookup(typ string) (Handler, bool) {
	h, ok := r.handlers[typ]
	return h, ok
}

// Types returns the registered message types in lexical order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
