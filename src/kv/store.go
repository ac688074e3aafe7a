package kv

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/maelnode/src/message"
)

// Service names of the key-value stores provided by the harness.
const (
	LinKV = "lin-kv"
	SeqKV = "seq-kv"
	LWWKV = "lww-kv"
)

// StoreError is a store failure that knows its protocol error code.
type StoreError struct {
	code int
	msg  string
}

func (e *StoreError) Error() string {
	return e.msg
}

// ErrorCode implements message.Coder.
func (e *StoreError) ErrorCode() int {
	return e.code
}

// ErrKeyNotFound is returned, possibly wrapped, when a key has never been
// written. Handlers returning it reply with code 20.
var ErrKeyNotFound = &StoreError{code: message.KeyDoesNotExist, msg: "key does not exist"}

func keyNotFound(key string) error {
	return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
}

// Store is a key-value store with a compare-and-swap primitive. Values are
// JSON-encodable; v in Read is decoded into like json.Unmarshal.
//
// CompareAndSwap sets key to to if it currently holds from. A mismatch is not
// an error: it returns false. A missing key is created with to when create is
// set, and is ErrKeyNotFound otherwise.
type Store interface {
	Read(ctx context.Context, key string, v interface{}) error
	Write(ctx context.Context, key string, v interface{}) error
	CompareAndSwap(ctx context.Context, key string, from, to interface{}, create bool) (bool, error)
}
