package kv

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/ugorji/go/codec"
)

func canonicalHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return jh
}

// Canonical returns an encoding of v in which equal JSON values have equal
// bytes: object keys are sorted and insignificant whitespace is dropped. It
// is what compare-and-swap compares.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	jh := canonicalHandle()

	var generic interface{}
	dec := codec.NewDecoder(bytes.NewBuffer(raw), jh)
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decodeValue(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
