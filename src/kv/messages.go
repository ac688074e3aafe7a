package kv

import (
	"encoding/json"

	"github.com/mosaicnetworks/maelnode/src/message"
)

// Request and reply bodies of the key-value protocol. Keys are strings when
// sent by this package but may be any JSON value when received.

// ReadRequest ...
type ReadRequest struct {
	message.Header
	Key interface{} `json:"key"`
}

// MessageType implements message.Body.
func (ReadRequest) MessageType() string { return "read" }

// ReadOK ...
type ReadOK struct {
	message.Header
	Value json.RawMessage `json:"value"`
}

// MessageType implements message.Body.
func (ReadOK) MessageType() string { return "read_ok" }

// WriteRequest ...
type WriteRequest struct {
	message.Header
	Key   interface{} `json:"key"`
	Value interface{} `json:"value"`
}

// MessageType implements message.Body.
func (WriteRequest) MessageType() string { return "write" }

// CASRequest ...
type CASRequest struct {
	message.Header
	Key               interface{} `json:"key"`
	From              interface{} `json:"from"`
	To                interface{} `json:"to"`
	CreateIfNotExists bool        `json:"create_if_not_exists,omitempty"`
}

// MessageType implements message.Body.
func (CASRequest) MessageType() string { return "cas" }
