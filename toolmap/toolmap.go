// Package toolmap implements the Tool Mapper (spec §4.3, C2): it caches the
// capability catalog, builds provider-native tool specs, and formats a
// human-readable capability-change summary. Grounded on
// original_source/src/adapters/tool_mapper.py (the abstract base) and
// original_source/src/adapters/ollama/ollama_tool_mapper.py (the concrete
// builder this package generalizes away from Ollama specifically, since the
// provider-tool JSON shape in spec §6 is provider-agnostic).
package toolmap

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/telemetry"
)

// FunctionSpec is the provider-facing tool spec shape from spec §6.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ProviderTool wraps a FunctionSpec in the {"type":"function","function":…}
// envelope every chat-completions-style provider expects.
type ProviderTool struct {
	Type     string
	Function FunctionSpec
}

// Kind distinguishes what a reverse-index entry names.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
)

// ReverseEntry is a (kind, key) pair resolved from a provider tool name.
type ReverseEntry struct {
	Kind Kind
	Key  string
}

// Mapper builds provider tool specs from a capability catalog and tracks a
// reverse index from provider tool name back to (kind, key).
type Mapper struct {
	logger  telemetry.Logger
	catalog *capability.Catalog

	providerTools []ProviderTool
	reverseIndex  map[string]ReverseEntry
	malformed     map[string]struct{}
}

// New constructs an empty Mapper. logger may be nil, in which case a
// telemetry.NoopLogger is used.
func New(logger telemetry.Logger) *Mapper {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Mapper{
		logger:       logger,
		catalog:      capability.NewCatalog(),
		reverseIndex: make(map[string]ReverseEntry),
		malformed:    make(map[string]struct{}),
	}
}

// Update replaces the cached capabilities with a fresh snapshot, rebuilds
// the provider tool specs and reverse index, and returns a human-readable
// summary describing what changed, or "" if nothing did (spec §4.3, P5).
func (m *Mapper) Update(tools []capability.Tool, prompts []capability.Prompt, resources []capability.Resource) string {
	toolChange, _, resourceChange := m.catalog.Update(tools, prompts, resources)
	m.rebuildProviderTools()
	return m.formatCapabilityUpdate(toolChange, resourceChange)
}

// ProviderTools returns the current provider-native tool specs.
func (m *Mapper) ProviderTools() []ProviderTool {
	out := make([]ProviderTool, len(m.providerTools))
	copy(out, m.providerTools)
	return out
}

// Reverse resolves a provider tool name back to its (kind, key) pair.
// Package calltranslate keeps its own name index and does not call this.
func (m *Mapper) Reverse(name string) (ReverseEntry, bool) {
	e, ok := m.reverseIndex[name]
	return e, ok
}

// MalformedSchemas returns the names of tools whose input schema failed to
// compile as JSON Schema (SPEC_FULL §4.3 domain-stack addition). The tool
// is still exposed to the provider; this accessor exists so operators and
// tests can observe the degradation.
func (m *Mapper) MalformedSchemas() []string {
	out := make([]string, 0, len(m.malformed))
	for name := range m.malformed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Mapper) rebuildProviderTools() {
	tools := m.catalog.Tools()
	resources := m.catalog.Resources()

	providerTools := make([]ProviderTool, 0, len(tools)+len(resources))
	reverse := make(map[string]ReverseEntry, len(tools)+len(resources))
	malformed := make(map[string]struct{})

	for _, t := range tools {
		schema := normalizeRootSchema(t.InputSchema)
		if _, err := compileSchema(schema); err != nil {
			malformed[t.Name] = struct{}{}
			m.logger.Warn(context.Background(), "tool input schema failed to compile", "tool", t.Name, "error", err.Error())
		}
		providerTools = append(providerTools, ProviderTool{
			Type: "function",
			Function: FunctionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
		reverse[t.Name] = ReverseEntry{Kind: KindTool, Key: t.Name}
	}

	for _, r := range resources {
		providerTools = append(providerTools, ProviderTool{
			Type: "function",
			Function: FunctionSpec{
				Name:        r.URI,
				Description: mergeResourceDescription(r),
				Parameters: map[string]any{
					"type":                 "object",
					"properties":           map[string]any{},
					"required":             []any{},
					"additionalProperties": false,
				},
			},
		})
		reverse[r.URI] = ReverseEntry{Kind: KindResource, Key: r.URI}
	}

	m.providerTools = providerTools
	m.reverseIndex = reverse
	m.malformed = malformed
}

func mergeResourceDescription(r capability.Resource) string {
	parts := make([]string, 0, 2)
	if title := firstNonEmpty(r.Title, r.URI); title != "" {
		parts = append(parts, title)
	}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if len(parts) == 0 {
		return r.URI
	}
	return strings.Join(parts, " - ")
}

// named is the name+description projection formatCapabilityUpdate renders,
// shared between tools and resources so the summary lists both uniformly.
type named struct {
	name        string
	description string
}

// formatCapabilityUpdate mirrors
// ollama_tool_mapper.py::_format_capability_update: lists every
// currently-available tool/resource, then the removed ones, or "" if
// nothing was added or removed.
func (m *Mapper) formatCapabilityUpdate(toolChange capability.Change[capability.Tool], resourceChange capability.Change[capability.Resource]) string {
	if len(toolChange.Added) == 0 && len(resourceChange.Added) == 0 &&
		len(toolChange.Removed) == 0 && len(resourceChange.Removed) == 0 {
		return ""
	}

	var lines []string
	lines = append(lines, "The list of available tools has been updated.", "")

	current := make([]named, 0, len(m.catalog.Tools())+len(m.catalog.Resources()))
	for _, t := range m.catalog.Tools() {
		current = append(current, named{name: t.Name, description: t.Description})
	}
	for _, r := range m.catalog.Resources() {
		current = append(current, named{name: r.URI, description: r.Description})
	}

	lines = append(lines, "The following Tools are available:")
	if len(current) == 0 {
		lines = append(lines, "None")
	} else {
		for idx, item := range current {
			lines = append(lines, renderNumbered(idx+1, item))
		}
	}

	removed := make([]named, 0, len(toolChange.Removed)+len(resourceChange.Removed))
	for _, t := range toolChange.Removed {
		removed = append(removed, named{name: t.Name, description: t.Description})
	}
	for _, r := range resourceChange.Removed {
		removed = append(removed, named{name: r.URI, description: r.Description})
	}
	if len(removed) > 0 {
		lines = append(lines, "", "The following tools have been removed:")
		for idx, item := range removed {
			lines = append(lines, renderNumbered(idx+1, item))
		}
	}

	return strings.Join(lines, "\n")
}

func renderNumbered(idx int, item named) string {
	return strconv.Itoa(idx) + ". " + item.name + ": " + item.description
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeRootSchema(schema map[string]any) map[string]any {
	sch := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "$schema" {
			continue
		}
		sch[k] = v
	}
	if t, _ := sch["type"].(string); t != "object" {
		return map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"payload": copyOrEmpty(schema)},
			"required":             []any{"payload"},
			"additionalProperties": false,
		}
	}
	return sch
}

func copyOrEmpty(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{}
	}
	return schema
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}
