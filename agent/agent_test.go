package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quaylabs/agentbridge/agent"
)

func TestHistoryResetKeepsLeadingSystemMessage(t *testing.T) {
	var h agent.History
	h.Add(agent.Message{Role: agent.RoleSystem, Parts: []agent.Part{agent.TextPart{Text: "sys"}}})
	h.Add(agent.Message{Role: agent.RoleUser, Parts: []agent.Part{agent.TextPart{Text: "hi"}}})
	h.Add(agent.Message{Role: agent.RoleAssistant, Parts: []agent.Part{agent.TextPart{Text: "hello"}}})

	h.Reset()

	entries := h.Entries()
	assert.Len(t, entries, 1)
	assert.Equal(t, agent.RoleSystem, entries[0].Role)
}

func TestHistoryResetWithoutSystemMessageClearsEverything(t *testing.T) {
	var h agent.History
	h.Add(agent.Message{Role: agent.RoleUser, Parts: []agent.Part{agent.TextPart{Text: "hi"}}})

	h.Reset()

	assert.Empty(t, h.Entries())
}

func TestUpsertSystemMessageReplacesExisting(t *testing.T) {
	var h agent.History
	h.Add(agent.Message{Role: agent.RoleSystem, Parts: []agent.Part{agent.TextPart{Text: "old"}}})
	h.Add(agent.Message{Role: agent.RoleUser, Parts: []agent.Part{agent.TextPart{Text: "hi"}}})

	h.UpsertSystemMessage(agent.Message{Role: agent.RoleSystem, Parts: []agent.Part{agent.TextPart{Text: "new"}}})

	entries := h.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].Parts[0].(agent.TextPart).Text)
}

func TestUpsertSystemMessageInsertsWhenAbsent(t *testing.T) {
	var h agent.History
	h.Add(agent.Message{Role: agent.RoleUser, Parts: []agent.Part{agent.TextPart{Text: "hi"}}})

	h.UpsertSystemMessage(agent.Message{Role: agent.RoleSystem, Parts: []agent.Part{agent.TextPart{Text: "sys"}}})

	entries := h.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, agent.RoleSystem, entries[0].Role)
	assert.Equal(t, agent.RoleUser, entries[1].Role)
}

func TestFingerprintIgnoresArgumentKeyOrder(t *testing.T) {
	f1 := agent.Fingerprint(agent.ToolCallPart{Name: "echo", Arguments: map[string]any{"a": 1, "b": 2}})
	f2 := agent.Fingerprint(agent.ToolCallPart{Name: "echo", Arguments: map[string]any{"b": 2, "a": 1}})
	assert.Equal(t, f1, f2)
}

func TestDeduperAdmitsEachFingerprintOnce(t *testing.T) {
	d := agent.NewDeduper()
	call := agent.ToolCallPart{Name: "echo", Arguments: map[string]any{"x": 1}}

	assert.True(t, d.Admit(call))
	assert.False(t, d.Admit(call))

	other := agent.ToolCallPart{Name: "echo", Arguments: map[string]any{"x": 2}}
	assert.True(t, d.Admit(other))
}
