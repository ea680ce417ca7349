// Package calltranslate implements the Call Translator (spec §4.4, C3):
// normalizes a provider tool-call payload into an MCP JSON-RPC request.
// Grounded on original_source/src/adapters/call_translator.py (the abstract
// base) and
// original_source/src/adapters/ollama/ollama_call_translator.py (the
// concrete extraction/resolution/fuzzy-match logic).
package calltranslate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/orcherr"
)

// Call is a normalized provider tool-call entry: {"function": {"name": ..,
// "arguments": ..}}, matching the shape extraction produces before
// translation.
type Call map[string]any

// Request is an MCP JSON-RPC request, spec §3/§6.
type Request struct {
	JSONRPC string
	ID      any
	Method  string
	Params  map[string]any
}

// Translator holds its own capability caches (tool/resource; prompts are
// ignored, keyed
// the same way as package toolmap) so it can resolve a provider tool-call
// name back into the right JSON-RPC method, independent of the Tool
// Mapper's own cache — mirroring the two-cache design of the Python
// original, where OllamaCallTranslator keeps a private index rather than
// sharing OllamaToolMapper's.
type Translator struct {
	toolsByName     map[string]capability.Tool
	resourcesByURI  map[string]capability.Resource
	nameIndex       map[string]indexEntry
}

type indexEntry struct {
	kind string // "tool" | "resource"
	key  string
}

// New constructs an empty Translator.
func New() *Translator {
	return &Translator{
		toolsByName:    make(map[string]capability.Tool),
		resourcesByURI: make(map[string]capability.Resource),
		nameIndex:      make(map[string]indexEntry),
	}
}

// UpdateCapabilities refreshes the translator's own caches from a fresh
// snapshot. Unlike toolmap.Mapper.Update, this never returns a diff summary
// — the base class's update_capabilities is a no-op hook the Ollama
// translator overrides purely for cache bookkeeping.
func (t *Translator) UpdateCapabilities(tools []capability.Tool, _ []capability.Prompt, resources []capability.Resource) {
	t.toolsByName = make(map[string]capability.Tool, len(tools))
	t.resourcesByURI = make(map[string]capability.Resource, len(resources))
	t.nameIndex = make(map[string]indexEntry, len(tools)+len(resources))

	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		t.toolsByName[tool.Name] = tool
		t.nameIndex[tool.Name] = indexEntry{kind: "tool", key: tool.Name}
	}
	for _, r := range resources {
		if r.URI == "" {
			continue
		}
		t.resourcesByURI[r.URI] = r
		t.nameIndex[r.URI] = indexEntry{kind: "resource", key: r.URI}
	}
}

// ExtractToolCalls normalizes a provider-specific payload into a flat slice
// of Call entries, per spec §4.4 step 1. Accepted shapes: a single call map
// (identified by a "function" key); a map with a "message.tool_calls" list
// or a top-level "tool_calls" list; a bare list of call maps. nil yields an
// empty slice.
func ExtractToolCalls(payload any) []Call {
	if payload == nil {
		return nil
	}

	var raw []any
	switch v := payload.(type) {
	case map[string]any:
		if _, hasFunction := v["function"]; hasFunction {
			raw = []any{v}
			break
		}
		candidate := v
		if msg, ok := v["message"].(map[string]any); ok {
			candidate = msg
		}
		if tc, ok := candidate["tool_calls"].([]any); ok {
			raw = tc
		}
		if tc, ok := v["tool_calls"].([]any); ok {
			raw = tc
		}
	case []any:
		raw = v
	case []map[string]any:
		raw = make([]any, len(v))
		for i, m := range v {
			raw[i] = m
		}
	}

	calls := make([]Call, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			calls = append(calls, Call(m))
		}
	}
	return calls
}

// ToJSONRPC translates one normalized Call into an MCP JSON-RPC request
// (spec §4.4 steps 2-4). rpcID is caller-supplied (the Adapter assigns
// ascending ids starting at 1).
func (t *Translator) ToJSONRPC(call Call, rpcID any) (Request, error) {
	fn, _ := call["function"].(map[string]any)
	name, _ := fn["name"].(string)
	if name == "" {
		return Request{}, orcherr.NewTranslationError(call, fmt.Errorf("missing function.name"))
	}

	arguments := coerceArguments(fn["arguments"])

	if entry, ok := t.nameIndex[name]; ok {
		return t.makeRPC(entry.kind, entry.key, arguments, rpcID)
	}
	if _, ok := t.toolsByName[name]; ok {
		return t.makeRPC("tool", name, arguments, rpcID)
	}
	if _, ok := t.resourcesByURI[name]; ok {
		return t.makeRPC("resource", name, arguments, rpcID)
	}
	if uri, ok := arguments["uri"]; ok {
		if uriStr, ok := uri.(string); ok {
			if _, ok := t.resourcesByURI[uriStr]; ok {
				return t.makeRPC("resource", uriStr, arguments, rpcID)
			}
		}
	}

	return Request{}, orcherr.NewTranslationError(call, t.noMatchError(name))
}

func (t *Translator) makeRPC(kind, key string, arguments map[string]any, rpcID any) (Request, error) {
	switch kind {
	case "tool":
		return Request{
			JSONRPC: "2.0",
			ID:      rpcID,
			Method:  "tools/call",
			Params:  map[string]any{"name": key, "arguments": arguments},
		}, nil
	case "resource":
		return Request{
			JSONRPC: "2.0",
			ID:      rpcID,
			Method:  "resources/read",
			Params:  map[string]any{"uri": key},
		}, nil
	default:
		return Request{}, fmt.Errorf("unknown capability kind %q", kind)
	}
}

// coerceArguments implements spec §4.4 step 2's arguments coercion ladder.
func coerceArguments(arguments any) map[string]any {
	switch v := arguments.(type) {
	case map[string]any:
		return v
	case nil:
		return map[string]any{}
	case string:
		if v == "" {
			return map[string]any{}
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			if m, ok := parsed.(map[string]any); ok {
				return m
			}
			return map[string]any{"_": parsed}
		}
		return map[string]any{"_raw": v}
	case []any:
		return map[string]any{"_": v}
	case float64, int, int64, bool:
		return map[string]any{"_": v}
	default:
		return map[string]any{"_raw": fmt.Sprintf("%v", v)}
	}
}

// noMatchError mirrors ollama_call_translator.py::_no_match_error, offering
// up to three fuzzy-matched suggestions (similarity >= 0.6) drawn from the
// union of known names and URIs.
func (t *Translator) noMatchError(name string) error {
	candidates := make([]string, 0, len(t.nameIndex))
	for k := range t.nameIndex {
		candidates = append(candidates, k)
	}
	sort.Strings(candidates)

	suggestions := closeMatches(name, candidates, 3, 0.6)
	hint := ""
	if len(suggestions) > 0 {
		hint = fmt.Sprintf(" (did you mean: %s)", strings.Join(suggestions, ", "))
	}
	return fmt.Errorf("tool_call %q could not be mapped to an MCP capability%s", name, hint)
}
