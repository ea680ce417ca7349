// Package mcpadapter implements the MCP Adapter (spec §4.5, C5): a facade
// coordinating capability-catalog updates, tool-spec mapping, call
// translation, and content mapping for a provider-specific agent. Grounded
// on original_source/src/adapters/adapter.py's MCPAdapter.
package mcpadapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quaylabs/agentbridge/agent"
	"github.com/quaylabs/agentbridge/calltranslate"
	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/contentmap"
	"github.com/quaylabs/agentbridge/toolmap"
)

// Adapter composes a Tool Mapper, Call Translator, and Content Mapper behind
// one facade, matching MCPAdapter's constructor-injected collaborators.
type Adapter struct {
	toolMapper    *toolmap.Mapper
	callTranslator *calltranslate.Translator
	contentMapper *contentmap.Mapper

	tools     []capability.Tool
	prompts   []capability.Prompt
	resources []capability.Resource
}

// New constructs an Adapter from its three collaborators.
func New(toolMapper *toolmap.Mapper, callTranslator *calltranslate.Translator, contentMapper *contentmap.Mapper) *Adapter {
	return &Adapter{toolMapper: toolMapper, callTranslator: callTranslator, contentMapper: contentMapper}
}

// UpdateCapabilities refreshes the cached capability snapshot and
// propagates it to both the tool mapper and the call translator, returning
// the tool mapper's human-readable change summary ("" if nothing changed),
// per spec §4.5 step "Capability lifecycle".
func (a *Adapter) UpdateCapabilities(tools []capability.Tool, prompts []capability.Prompt, resources []capability.Resource) string {
	a.tools = tools
	a.prompts = prompts
	a.resources = resources
	summary := a.toolMapper.Update(tools, prompts, resources)
	a.callTranslator.UpdateCapabilities(tools, prompts, resources)
	return summary
}

// Tools, Prompts and Resources expose the last cached capability snapshot.
func (a *Adapter) Tools() []capability.Tool         { return append([]capability.Tool(nil), a.tools...) }
func (a *Adapter) Prompts() []capability.Prompt     { return append([]capability.Prompt(nil), a.prompts...) }
func (a *Adapter) Resources() []capability.Resource { return append([]capability.Resource(nil), a.resources...) }

// ToBackendTools returns the provider-native tool specs that must be
// supplied to the model runtime on every call, per spec §4.5.
func (a *Adapter) ToBackendTools() []toolmap.ProviderTool {
	return a.toolMapper.ProviderTools()
}

// AdaptModelCallToMCP translates a provider-specific tool-call payload into
// one or more MCP JSON-RPC requests, per spec §4.5's
// adapt_model_call_to_mcp: partial failures are collected into a single
// human-readable error message rather than aborting the whole batch.
func (a *Adapter) AdaptModelCallToMCP(payload any) ([]calltranslate.Request, string) {
	calls := calltranslate.ExtractToolCalls(payload)

	requests := make([]calltranslate.Request, 0, len(calls))
	var failures []string
	for idx, call := range calls {
		req, err := a.callTranslator.ToJSONRPC(call, idx+1)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s -> %s", describeToolCall(call), err))
			continue
		}
		requests = append(requests, req)
	}

	if len(failures) == 0 {
		return requests, ""
	}
	return requests, a.formatToolMappingFailure(failures)
}

// BuildProviderMessages converts queued payloads into provider-native
// messages ready to append to the agent's history, per spec §4.5's
// build_provider_messages: role "user" payloads go through the agent's own
// user-message factory; anything else is routed through the content
// mapper.
func (a *Adapter) BuildProviderMessages(ag agent.Agent, payloads []any, role string) ([]agent.Message, []contentmap.Artifact) {
	if role == "user" {
		return a.buildUserMessages(ag, payloads), nil
	}

	contents, artifacts := a.contentMapper.Map(payloads)
	if len(contents) == 0 {
		return nil, artifacts
	}
	return a.contentMapper.BuildProviderMessages(ag, contents), artifacts
}

func (a *Adapter) buildUserMessages(ag agent.Agent, payloads []any) []agent.Message {
	messages := make([]agent.Message, 0, len(payloads))
	for _, item := range payloads {
		text, ok := item.(string)
		if !ok {
			text = fmt.Sprintf("%v", item)
		}
		messages = append(messages, ag.MakeUserMessage(text))
	}
	return messages
}

func describeToolCall(call calltranslate.Call) string {
	if fn, ok := call["function"].(map[string]any); ok {
		if name, ok := fn["name"].(string); ok && name != "" {
			return "function:" + name
		}
	}
	return fmt.Sprintf("%v", map[string]any(call))
}

// formatToolMappingFailure mirrors _format_tool_mapping_failure: a single
// operator-facing message naming every failed call plus the tools
// currently on offer, so the model can retry with a valid name.
func (a *Adapter) formatToolMappingFailure(failures []string) string {
	names := make(map[string]struct{})
	for _, t := range a.ToBackendTools() {
		if t.Function.Name != "" {
			names[t.Function.Name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	suffix := ""
	if len(sorted) > 0 {
		suffix = " Available tools: " + strings.Join(sorted, ", ")
	}

	return "Requested tool or resource could not be mapped. " +
		"Check the currently available tools; availability can change during the session." +
		suffix + " | Details: " + strings.Join(failures, " ; ")
}
