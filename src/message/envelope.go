package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved message types handled by the runtime itself.
const (
	InitType   = "init"
	InitOKType = "init_ok"
	ErrorType  = "error"
)

// ErrMissingType is returned when a body does not carry a type tag.
var ErrMissingType = errors.New("message body has no type")

// Envelope is the routing wrapper around a message body. One Envelope travels
// per line of the transport. The body is kept raw until the receiver knows
// which shape to decode it into.
type Envelope struct {
	Src  string          `json:"src"`
	Dest string          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

// Header holds the fields common to every message body. Bodies embed it so
// that the type tag and the request/reply linkage are flattened into the same
// JSON object as the type-specific fields.
type Header struct {
	Type      string `json:"type"`
	MsgID     int    `json:"msg_id,omitempty"`
	InReplyTo *int   `json:"in_reply_to,omitempty"`
}

// Head returns the header itself. It is promoted to every body embedding a
// Header and lets the runtime stamp ids without knowing the concrete type.
func (h *Header) Head() *Header {
	return h
}

// IsReply reports whether the header links back to an earlier request.
func (h *Header) IsReply() bool {
	return h.InReplyTo != nil
}

// SetInReplyTo links the body to the request with the given id.
func (h *Header) SetInReplyTo(id int) {
	h.InReplyTo = &id
}

// Body is a typed message payload. MessageType is the tag written on the wire.
type Body interface {
	MessageType() string
	Head() *Header
}

// DecodeHeader extracts the header of a raw body without decoding the
// type-specific fields.
func DecodeHeader(raw json.RawMessage) (Header, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("decoding message header: %w", err)
	}
	if h.Type == "" {
		return h, ErrMissingType
	}
	return h, nil
}

// Encode stamps the body's type tag and marshals it.
func Encode(body Body) (json.RawMessage, error) {
	body.Head().Type = body.MessageType()
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s body: %w", body.MessageType(), err)
	}
	return data, nil
}

// NewEnvelope encodes body and wraps it for delivery from src to dest.
func NewEnvelope(src, dest string, body Body) (Envelope, error) {
	raw, err := Encode(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Src: src, Dest: dest, Body: raw}, nil
}

// Init is the bootstrap message carrying the node identity and the cluster
// view.
type Init struct {
	Header
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// MessageType implements Body.
func (Init) MessageType() string { return InitType }

// InitOK acknowledges Init.
type InitOK struct {
	Header
}

// MessageType implements Body.
func (InitOK) MessageType() string { return InitOKType }

// Raw is a body whose type-specific fields are already encoded. It is used to
// forward or construct messages whose shape is only known at runtime.
type Raw struct {
	Header
	Tag    string
	Fields map[string]interface{}
}

// MessageType implements Body.
func (r *Raw) MessageType() string { return r.Tag }

// MarshalJSON merges the header into the free-form fields.
func (r *Raw) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["type"] = r.Tag
	if r.MsgID != 0 {
		out["msg_id"] = r.MsgID
	}
	if r.InReplyTo != nil {
		out["in_reply_to"] = *r.InReplyTo
	}
	return json.Marshal(out)
}

// Ack is a reply without type-specific fields. Its type is For with an "_ok"
// suffix; the node fills For with the request type when it is left empty.
type Ack struct {
	Header
	For string `json:"-"`
}

// MessageType implements Body.
func (a *Ack) MessageType() string { return a.For + "_ok" }
