package inflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializerRoundTrip(t *testing.T) {
	s := &JSONSerializer{}

	type payload struct {
		ID    int      `json:"id"`
		Name  string   `json:"name"`
		Tags  []string `json:"tags"`
		Score float64  `json:"score"`
	}

	in := payload{ID: 1, Name: "offer", Tags: []string{"a", "b"}, Score: 0.75}
	data, err := s.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestJSONSerializerNil(t *testing.T) {
	s := &JSONSerializer{}
	data, err := s.Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestJSONSerializerInvalidInput(t *testing.T) {
	s := &JSONSerializer{}
	var out map[string]any
	assert.Error(t, s.Unmarshal([]byte("{not json"), &out))
}

func TestGobSerializerRoundTrip(t *testing.T) {
	s := &GobSerializer{}

	type payload struct {
		ID   int
		Name string
	}

	in := payload{ID: 2, Name: "contact"}
	data, err := s.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
