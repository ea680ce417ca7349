package calltranslate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaylabs/agentbridge/calltranslate"
	"github.com/quaylabs/agentbridge/capability"
)

func newTranslatorWithEcho() *calltranslate.Translator {
	tr := calltranslate.New()
	tr.UpdateCapabilities(
		[]capability.Tool{{Name: "echo", Description: "echoes input"}},
		nil,
		[]capability.Resource{{URI: "file://a.md"}},
	)
	return tr
}

func TestExtractToolCallsSingleMap(t *testing.T) {
	calls := calltranslate.ExtractToolCalls(map[string]any{
		"function": map[string]any{"name": "echo", "arguments": map[string]any{"input": "x"}},
	})
	require.Len(t, calls, 1)
}

func TestExtractToolCallsNilPayload(t *testing.T) {
	assert.Empty(t, calltranslate.ExtractToolCalls(nil))
}

func TestExtractToolCallsTopLevelToolCallsList(t *testing.T) {
	calls := calltranslate.ExtractToolCalls(map[string]any{
		"tool_calls": []any{
			map[string]any{"function": map[string]any{"name": "echo", "arguments": map[string]any{}}},
		},
	})
	require.Len(t, calls, 1)
}

func TestToJSONRPCToolCall(t *testing.T) {
	tr := newTranslatorWithEcho()
	call := calltranslate.Call{"function": map[string]any{"name": "echo", "arguments": `{"input":"x"}`}}

	req, err := tr.ToJSONRPC(call, 1)
	require.NoError(t, err)
	assert.Equal(t, "tools/call", req.Method)
	assert.Equal(t, "echo", req.Params["name"])
	assert.Equal(t, map[string]any{"input": "x"}, req.Params["arguments"])
}

func TestToJSONRPCResourceByURI(t *testing.T) {
	tr := newTranslatorWithEcho()
	call := calltranslate.Call{"function": map[string]any{"name": "file://a.md", "arguments": map[string]any{}}}

	req, err := tr.ToJSONRPC(call, 2)
	require.NoError(t, err)
	assert.Equal(t, "resources/read", req.Method)
	assert.Equal(t, "file://a.md", req.Params["uri"])
	_, hasArgs := req.Params["arguments"]
	assert.False(t, hasArgs)
}

func TestToJSONRPCResourceByArgumentURI(t *testing.T) {
	tr := newTranslatorWithEcho()
	call := calltranslate.Call{"function": map[string]any{
		"name":      "read_resource",
		"arguments": map[string]any{"uri": "file://a.md"},
	}}

	req, err := tr.ToJSONRPC(call, 1)
	require.NoError(t, err)
	assert.Equal(t, "resources/read", req.Method)
}

func TestToJSONRPCUnknownNameSuggestsFuzzyMatch(t *testing.T) {
	tr := newTranslatorWithEcho()
	call := calltranslate.Call{"function": map[string]any{"name": "ech", "arguments": map[string]any{}}}

	_, err := tr.ToJSONRPC(call, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean: echo")
}

func TestToJSONRPCMissingNameFails(t *testing.T) {
	tr := newTranslatorWithEcho()
	_, err := tr.ToJSONRPC(calltranslate.Call{"function": map[string]any{}}, 1)
	require.Error(t, err)
}

func TestCoerceArgumentsIdempotent(t *testing.T) {
	tr := newTranslatorWithEcho()
	call := calltranslate.Call{"function": map[string]any{"name": "echo", "arguments": "not json"}}

	req1, err := tr.ToJSONRPC(call, 1)
	require.NoError(t, err)
	req2, err := tr.ToJSONRPC(calltranslate.Call{"function": map[string]any{"name": "echo", "arguments": req1.Params["arguments"]}}, 1)
	require.NoError(t, err)
	assert.Equal(t, req1.Params["arguments"], req2.Params["arguments"])
	assert.Equal(t, map[string]any{"_raw": "not json"}, req1.Params["arguments"])
}
