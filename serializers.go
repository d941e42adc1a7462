package inflight

import (
	"bytes"
	"encoding/gob"

	jsoniter "github.com/json-iterator/go"
)

// jsoniter is ~2-3x faster than the stdlib. A private instance keeps
// callers that configure jsoniter.ConfigDefault elsewhere unaffected.
var jsonFast = jsoniter.ConfigFastest

// Serializer converts fetched values to and from the bytes held by cache
// entries. Implementations must be safe for concurrent use.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONSerializer serializes with jsoniter's fastest configuration. The
// default serializer.
type JSONSerializer struct{}

func (j *JSONSerializer) Marshal(v interface{}) ([]byte, error) {
	return jsonFast.Marshal(v)
}

func (j *JSONSerializer) Unmarshal(data []byte, v interface{}) error {
	return jsonFast.Unmarshal(data, v)
}

// GobSerializer serializes with encoding/gob. More compact than JSON for
// Go-native structures, at the cost of cross-language compatibility.
type GobSerializer struct{}

func (g *GobSerializer) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *GobSerializer) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
