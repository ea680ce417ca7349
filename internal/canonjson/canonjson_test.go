package canonjson_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaylabs/agentbridge/internal/canonjson"
)

func TestEncodeSortsKeysAtEveryLevel(t *testing.T) {
	a, err := canonjson.Encode(map[string]any{
		"b": 1,
		"a": map[string]any{"z": 1, "y": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, string(a))
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	f1 := canonjson.Fingerprint(map[string]any{"name": "x", "arguments": map[string]any{"a": 1, "b": 2}})
	f2 := canonjson.Fingerprint(map[string]any{"arguments": map[string]any{"b": 2, "a": 1}, "name": "x"})
	assert.Equal(t, f1, f2)
}

func TestFingerprintDistinguishesDifferentValues(t *testing.T) {
	f1 := canonjson.Fingerprint(map[string]any{"a": 1})
	f2 := canonjson.Fingerprint(map[string]any{"a": 2})
	assert.NotEqual(t, f1, f2)
}

func TestEncodeArraysPreserveOrder(t *testing.T) {
	out, err := canonjson.Encode([]any{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2]`, string(out))
}
