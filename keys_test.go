package inflight

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "jobs-list-user1", Key("jobs", "list", "user1"))
	assert.Equal(t, "profile-get-7f3a", Key("profile", "get", "7f3a"))
}

func TestKeyWithParamsDeterministic(t *testing.T) {
	type filters struct {
		Status string   `json:"status"`
		Tags   []string `json:"tags"`
	}

	a, err := KeyWithParams("jobs", "list", "user1", filters{Status: "open", Tags: []string{"remote"}})
	require.NoError(t, err)
	b, err := KeyWithParams("jobs", "list", "user1", filters{Status: "open", Tags: []string{"remote"}})
	require.NoError(t, err)
	assert.Equal(t, a, b, "equal params must produce equal keys")

	c, err := KeyWithParams("jobs", "list", "user1", filters{Status: "closed"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different params must produce different keys")
}

func TestKeyWithParamsMapOrderIndependent(t *testing.T) {
	a, err := KeyWithParams("jobs", "list", "user1", map[string]string{"x": "1", "y": "2"})
	require.NoError(t, err)
	b, err := KeyWithParams("jobs", "list", "user1", map[string]string{"y": "2", "x": "1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKeyWithParamsUnserializable(t *testing.T) {
	_, err := KeyWithParams("jobs", "list", "user1", make(chan int))
	assert.Error(t, err)
}

func TestKeyPrefixMatchesBuiltKeys(t *testing.T) {
	re, err := regexp.Compile(KeyPrefix("jobs", "list"))
	require.NoError(t, err)

	assert.True(t, re.MatchString(Key("jobs", "list", "user1")))

	withParams, err := KeyWithParams("jobs", "list", "user1", map[string]int{"page": 2})
	require.NoError(t, err)
	assert.True(t, re.MatchString(withParams))

	assert.False(t, re.MatchString(Key("jobs", "get", "user1")))
	assert.False(t, re.MatchString(Key("profile", "list", "user1")))
}
