package toolmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/toolmap"
)

func TestUpdateNoChangeProducesEmptySummary(t *testing.T) {
	m := toolmap.New(nil)
	tools := []capability.Tool{{Name: "echo", Description: "echoes input", InputSchema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"input": map[string]any{"type": "string"}},
	}}}

	summary := m.Update(tools, nil, nil)
	assert.NotEmpty(t, summary)

	before := m.ProviderTools()
	summary = m.Update(tools, nil, nil)
	assert.Empty(t, summary)
	assert.Equal(t, before, m.ProviderTools())
}

func TestNonObjectSchemaIsRootNormalized(t *testing.T) {
	m := toolmap.New(nil)
	m.Update([]capability.Tool{{Name: "weird", InputSchema: map[string]any{"type": "string"}}}, nil, nil)

	tools := m.ProviderTools()
	assert.Len(t, tools, 1)
	params := tools[0].Function.Parameters
	assert.Equal(t, "object", params["type"])
	payload, ok := params["properties"].(map[string]any)["payload"]
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"type": "string"}, payload)
}

func TestResourcesExposedAsZeroArgTools(t *testing.T) {
	m := toolmap.New(nil)
	m.Update(nil, nil, []capability.Resource{{URI: "file://a.md", Title: "A", Description: "doc"}})

	tools := m.ProviderTools()
	assert.Len(t, tools, 1)
	assert.Equal(t, "file://a.md", tools[0].Function.Name)
	assert.Equal(t, "A - doc", tools[0].Function.Description)

	entry, ok := m.Reverse("file://a.md")
	assert.True(t, ok)
	assert.Equal(t, toolmap.KindResource, entry.Kind)
}

func TestPromptsAreNotSurfacedAsTools(t *testing.T) {
	m := toolmap.New(nil)
	m.Update(nil, []capability.Prompt{{Name: "greeting"}}, nil)
	assert.Empty(t, m.ProviderTools())
}

func TestMalformedSchemaStillExposedButTracked(t *testing.T) {
	m := toolmap.New(nil)
	m.Update([]capability.Tool{{Name: "bad", InputSchema: map[string]any{
		"type":  "object",
		"const": map[string]any{"unserializable": func() {}},
	}}}, nil, nil)

	// the tool is still exposed even though its schema cannot be marshaled/compiled.
	assert.Len(t, m.ProviderTools(), 1)
	assert.Contains(t, m.MalformedSchemas(), "bad")
}

func TestRemovedToolsListedInSummary(t *testing.T) {
	m := toolmap.New(nil)
	m.Update([]capability.Tool{{Name: "echo", Description: "e"}, {Name: "reverse", Description: "r"}}, nil, nil)
	summary := m.Update([]capability.Tool{{Name: "echo", Description: "e"}}, nil, nil)

	assert.Contains(t, summary, "The following tools have been removed:")
	assert.Contains(t, summary, "reverse: r")
}
