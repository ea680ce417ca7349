// Package agent implements the Agent Contract (spec §4.1, C7): a
// provider-agnostic message factory plus streaming/synchronous response
// generators, message-history discipline, and tool-call deduplication via
// canonical fingerprinting. Grounded on
// original_source/src/agent/base.py's BaseAgent/AgentConfig and the
// teacher's runtime/agent/model package (message-as-typed-parts instead of
// Python's untyped provider message objects).
package agent

import (
	"context"

	"github.com/quaylabs/agentbridge/config"
	"github.com/quaylabs/agentbridge/internal/canonjson"
)

// Part is the sealed set of message content parts a provider-native message
// can carry, mirroring the teacher's runtime/agent/model.Part marker
// interface.
type Part interface {
	isPart()
}

// TextPart is plain text content.
type TextPart struct{ Text string }

// ImagePart carries an inline base64 image payload.
type ImagePart struct {
	Data     string
	MimeType string
}

// ThinkingPart carries a reasoning/thinking trace.
type ThinkingPart struct{ Text string }

// ToolCallPart is one requested tool invocation.
type ToolCallPart struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResultPart is the content of a tool-role message.
type ToolResultPart struct {
	ToolCallID string
	Name       string
	Text       string
	Images     []string
}

func (TextPart) isPart()       {}
func (ImagePart) isPart()      {}
func (ThinkingPart) isPart()   {}
func (ToolCallPart) isPart()   {}
func (ToolResultPart) isPart() {}

// Role classifies a history entry. RoleAssistant corresponds to the
// Python source's "None" role (assistant-synthesized, not user/tool).
type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleTool
	RoleAssistant
)

// Message is a provider-native history entry: a role plus its parts.
type Message struct {
	Role  Role
	Parts []Part
}

// StreamChunk is one element of a streaming response generator's output
// (spec §4.1): cumulative thinking-or-nil, a content delta, and any newly
// observed (deduplicated) tool calls.
type StreamChunk struct {
	ThinkingCumulative *string
	ContentDelta       string
	NewToolCalls       []ToolCallPart
}

// SyncResponse is the synchronous generator's single-shot output.
type SyncResponse struct {
	Thinking  *string
	Content   string
	ToolCalls []ToolCallPart
}

// Agent is the provider-agnostic contract every concrete provider
// implementation (e.g. an Ollama- or OpenAI-backed agent) satisfies.
type Agent interface {
	Config() config.AgentConfig

	AddMessage(m Message)
	Reset()
	SetActiveTools(tools []map[string]any)
	ActiveTools() []map[string]any
	SetSystemPrompt(template string)

	GenerateResponse(ctx context.Context, newMessages []Message) (<-chan StreamChunk, <-chan error)
	GenerateResponseSync(ctx context.Context, newMessages []Message) (SyncResponse, error)

	// MakeToolMessage builds a tool-role Message from mapped content-mapper
	// output (text plus optional inline images), per spec §4.2's
	// build_provider_messages contract.
	MakeToolMessage(text string, images []string) Message

	// MakeUserMessage builds a user-role Message from a plain string, used
	// by the Adapter when queued payloads are role "user" rather than
	// MCP result content (spec §4.5).
	MakeUserMessage(text string) Message
}

// History implements the role/system-prompt discipline spec §4.1 requires
// (reset preserves the system message, set_system_prompt upserts at
// position 0). Concrete Agent implementations embed History rather than
// reimplement it, the same way BaseAgent centralizes this in Python.
type History struct {
	entries []Message
}

// Add appends a message to the history.
func (h *History) Add(m Message) { h.entries = append(h.entries, m) }

// Reset removes every entry except the leading system message, if any.
func (h *History) Reset() {
	if len(h.entries) > 0 && h.entries[0].Role == RoleSystem {
		h.entries = h.entries[:1]
		return
	}
	h.entries = nil
}

// Entries returns the current history.
func (h *History) Entries() []Message {
	out := make([]Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// UpsertSystemMessage replaces the system message at position 0, or
// inserts one, per spec §4.1's set_system_prompt.
func (h *History) UpsertSystemMessage(m Message) {
	if len(h.entries) > 0 && h.entries[0].Role == RoleSystem {
		h.entries[0] = m
		return
	}
	h.entries = append([]Message{m}, h.entries...)
}

// Fingerprint returns the canonical-JSON dedup key for a tool call (spec
// §4.1: "canonical fingerprint … deterministic key-sorted minimal-separator
// JSON dump of the normalized call").
func Fingerprint(call ToolCallPart) string {
	return canonjson.Fingerprint(map[string]any{
		"name":      call.Name,
		"arguments": call.Arguments,
	})
}

// Deduper tracks which tool-call fingerprints have already been emitted by
// a streaming generator so only first-seen calls are surfaced, per spec
// §4.1.
type Deduper struct {
	seen map[string]struct{}
}

// NewDeduper constructs an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Admit returns true the first time a given call's fingerprint is seen, and
// false on every subsequent occurrence.
func (d *Deduper) Admit(call ToolCallPart) bool {
	fp := Fingerprint(call)
	if _, ok := d.seen[fp]; ok {
		return false
	}
	d.seen[fp] = struct{}{}
	return true
}
