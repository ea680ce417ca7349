// Package contentmap implements the Content Mapper (spec §4.2, C4): it
// recursively unwraps MCP result payloads into a flat stream of mapped
// content entries (text plus optional inline images) and side-channel
// artifacts, then builds tool-role provider messages from them. Grounded on
// original_source/src/adapters/content_mapper.py (the abstract
// _coerce_entry/_iter_items walk and the shared block-field helpers) and
// original_source/src/adapters/ollama/ollama_content_mapper.py (the concrete
// routing policy this package generalizes away from Ollama specifically).
//
// Unlike the Python original's isinstance dispatch over mcp.types, this
// package switches on mcpresult.Block's sealed interface (spec §9 REDESIGN
// FLAG), so adding a new block variant is a compile-time-checked exhaustive
// switch rather than a runtime isinstance chain.
package contentmap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quaylabs/agentbridge/agent"
	"github.com/quaylabs/agentbridge/mcpresult"
)

// MappedContent is one item produced by Map: text destined for the provider,
// plus any inline images a vision-capable agent should see alongside it.
type MappedContent struct {
	Text   string
	Images []string
}

// Artifact is a side-channel payload (an image the agent can't see, a large
// or non-whitelisted blob, audio, or an unrecognized block) that does not
// become agent-visible text.
type Artifact map[string]any

// Mapper routes MCP content blocks to agent messages and artifacts,
// mirroring OllamaContentMapper's policy generalized to any provider.
type Mapper struct {
	supportsVision       bool
	inlineBlobMimeTypes  map[string]struct{}
	maxInlineBlobSize    int
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithInlineBlobMimeTypes whitelists mime types (case-insensitive) eligible
// for inline text rendering instead of becoming an artifact.
func WithInlineBlobMimeTypes(mimeTypes ...string) Option {
	return func(m *Mapper) {
		for _, mt := range mimeTypes {
			m.inlineBlobMimeTypes[strings.ToLower(mt)] = struct{}{}
		}
	}
}

// WithMaxInlineBlobSize overrides the default 512,000-byte inline-blob size
// ceiling.
func WithMaxInlineBlobSize(n int) Option {
	return func(m *Mapper) { m.maxInlineBlobSize = n }
}

// New constructs a Mapper. supportsVision mirrors AgentConfig.SupportsVision
// (spec §4.1): when false, images are always routed to artifacts instead of
// being attached to an agent message.
func New(supportsVision bool, opts ...Option) *Mapper {
	m := &Mapper{
		supportsVision:      supportsVision,
		inlineBlobMimeTypes: make(map[string]struct{}),
		maxInlineBlobSize:   512_000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// entry is the flattened unit _iter_items yields: exactly one of the fields
// below is populated. Mirrors the Python original's heterogeneous yield
// shape, but typed so Map's switch is exhaustive.
type entry struct {
	block          mcpresult.Block
	promptMessage  *mcpresult.PromptMessage
	listTools      *mcpresult.ListToolsResult
	listPrompts    *mcpresult.ListPromptsResult
	listResources  *mcpresult.ListResourcesResult
	textResource   *mcpresult.TextResourceContents
	blobResource   *mcpresult.BlobResourceContents
}

// Map flattens a sequence of MCP result-shaped items (CallToolResult,
// GetPromptResult, ReadResourceResult, ListToolsResult, ListPromptsResult,
// ListResourcesResult, or a bare Block) into mapped content entries and
// artifacts, per spec §4.2 step 1.
func (m *Mapper) Map(items []any) ([]MappedContent, []Artifact) {
	var contents []MappedContent
	var artifacts []Artifact

	for _, item := range items {
		for _, e := range coerceEntry(item) {
			switch {
			case e.promptMessage != nil:
				m.handleBlock(e.promptMessage.Content, e.promptMessage.Role, &contents, &artifacts)
			case e.listTools != nil:
				m.handleListTools(e.listTools, &contents)
			case e.listPrompts != nil:
				m.handleListPrompts(e.listPrompts, &contents)
			case e.listResources != nil:
				m.handleListResources(e.listResources, &contents)
			case e.textResource != nil:
				contents = append(contents, MappedContent{Text: e.textResource.Text})
			case e.blobResource != nil:
				m.handleBlobResource(e.blobResource, &contents, &artifacts)
			case e.block != nil:
				m.handleBlock(e.block, "", &contents, &artifacts)
			}
		}
	}

	return contents, artifacts
}

// coerceEntry implements _coerce_entry's recursive unwrap: CallToolResult
// content lists, GetPromptResult message lists, and ReadResourceResult
// content lists are all flattened one level at a time until only
// leaf entries remain.
func coerceEntry(item any) []entry {
	switch v := item.(type) {
	case nil:
		return nil
	case mcpresult.CallToolResult:
		out := make([]entry, 0, len(v.Content))
		for _, b := range v.Content {
			out = append(out, coerceEntry(b)...)
		}
		return out
	case mcpresult.GetPromptResult:
		out := make([]entry, 0, len(v.Messages))
		for i := range v.Messages {
			msg := v.Messages[i]
			out = append(out, entry{promptMessage: &msg})
		}
		return out
	case mcpresult.ReadResourceResult:
		out := make([]entry, 0, len(v.Contents))
		for _, c := range v.Contents {
			out = append(out, coerceEntry(c)...)
		}
		return out
	case mcpresult.TextResourceContents:
		return []entry{{textResource: &v}}
	case mcpresult.BlobResourceContents:
		return []entry{{blobResource: &v}}
	case mcpresult.ListToolsResult:
		return []entry{{listTools: &v}}
	case mcpresult.ListPromptsResult:
		return []entry{{listPrompts: &v}}
	case mcpresult.ListResourcesResult:
		return []entry{{listResources: &v}}
	case []any:
		out := make([]entry, 0, len(v))
		for _, sub := range v {
			out = append(out, coerceEntry(sub)...)
		}
		return out
	case string:
		return []entry{{block: mcpresult.TextBlock{Text: v}}}
	case mcpresult.Block:
		return []entry{{block: v}}
	default:
		return []entry{{block: mcpresult.UnknownBlock{Raw: v}}}
	}
}

// handleBlock mirrors OllamaContentMapper.handle_content_block: text blocks
// become agent messages, images attach when vision is supported (else an
// artifact), resource links render as a dash-prefixed text line, embedded
// blobs route through handleBlobInfo, audio and anything else become
// artifacts.
func (m *Mapper) handleBlock(block mcpresult.Block, role string, contents *[]MappedContent, artifacts *[]Artifact) {
	prefix := ""
	if role != "" {
		prefix = fmt.Sprintf("[%s]: ", role)
	}

	switch b := block.(type) {
	case mcpresult.TextBlock:
		if strings.TrimSpace(b.Text) != "" {
			*contents = append(*contents, MappedContent{Text: prefix + b.Text})
		}
	case mcpresult.ImageBlock:
		if m.supportsVision {
			*contents = append(*contents, MappedContent{Text: prefix, Images: []string{b.Data}})
		} else {
			*artifacts = append(*artifacts, Artifact{"kind": "image", "data": b.Data, "note": "vision_not_supported"})
		}
	case mcpresult.ResourceLinkBlock:
		name := b.Name
		if name == "" {
			name = "Resource"
		}
		*contents = append(*contents, MappedContent{Text: fmt.Sprintf("%s- %s: %s", prefix, name, b.URI)})
	case mcpresult.EmbeddedResourceBlock:
		if b.Text != "" {
			*contents = append(*contents, MappedContent{Text: prefix + b.Text})
			return
		}
		mime := b.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		name, _ := b.Meta["name"].(string)
		m.handleBlobInfo(blobInfo{mime: strings.ToLower(mime), name: name, blobB64: b.BlobB64, meta: b.Meta}, prefix, contents, artifacts)
	case mcpresult.AudioBlock:
		*artifacts = append(*artifacts, Artifact{"kind": "audio"})
	default:
		*artifacts = append(*artifacts, Artifact{"kind": "other"})
	}
}

func (m *Mapper) handleBlobResource(r *mcpresult.BlobResourceContents, contents *[]MappedContent, artifacts *[]Artifact) {
	mime := r.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	m.handleBlobInfo(blobInfo{mime: strings.ToLower(mime), name: r.URI, blobB64: r.BlobB64}, "", contents, artifacts)
}

type blobInfo struct {
	mime    string
	name    string
	blobB64 string
	meta    map[string]any
}

// handleBlobInfo mirrors _handle_blob_info: a blob is inlined as decoded
// text only when its mime type is whitelisted, its estimated size fits
// under the ceiling, and it decodes as valid UTF-8 text; otherwise it
// becomes an artifact carrying the estimated size.
func (m *Mapper) handleBlobInfo(info blobInfo, prefix string, contents *[]MappedContent, artifacts *[]Artifact) {
	sizeBytes, hasSize := estimateBlobSize(info.blobB64)

	if _, whitelisted := m.inlineBlobMimeTypes[info.mime]; whitelisted && hasSize && sizeBytes <= m.maxInlineBlobSize {
		if text, ok := decodeBlobText(info.blobB64, info.mime); ok {
			*contents = append(*contents, MappedContent{Text: prefix + text})
			return
		}
	}

	artifact := Artifact{"kind": "blob", "mime": info.mime, "name": info.name, "blob_b64": info.blobB64}
	if info.meta != nil {
		artifact["meta"] = info.meta
	}
	if hasSize {
		artifact["size_bytes"] = sizeBytes
	}
	*artifacts = append(*artifacts, artifact)
}

// estimateBlobSize mirrors _estimate_blob_size: ⌊len(b64)·3/4⌋ minus the
// number of '=' padding characters, floored at zero.
func estimateBlobSize(blobB64 string) (int, bool) {
	if blobB64 == "" {
		return 0, false
	}
	padding := strings.Count(blobB64, "=")
	size := len(blobB64)*3/4 - padding
	if size < 0 {
		size = 0
	}
	return size, true
}

// decodeBlobText mirrors _decode_blob_text: decode base64, then accept the
// result as text only for a text-family mime type and only if it is valid
// UTF-8.
func decodeBlobText(blobB64, mime string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(mime, "text/") && mime != "application/json" && mime != "application/xml" {
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// handleListTools, handleListPrompts and handleListResources mirror
// handle_list_method: each list_* result renders as one agent message
// listing every entry's name, description, and JSON Schema.
func (m *Mapper) handleListTools(r *mcpresult.ListToolsResult, contents *[]MappedContent) {
	entries := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{}
		}
		entries = append(entries, formatEntry(orDefault(t.Name, "<unnamed>"), t.Description, schema))
	}
	appendListMessage(entries, contents)
}

func (m *Mapper) handleListPrompts(r *mcpresult.ListPromptsResult, contents *[]MappedContent) {
	entries := make([]string, 0, len(r.Prompts))
	for _, p := range r.Prompts {
		entries = append(entries, formatEntry(orDefault(p.Name, "<unnamed>"), p.Description, schemaFromPrompt(p.Arguments)))
	}
	appendListMessage(entries, contents)
}

// schemaFromPrompt mirrors _schema_from_prompt: a prompt's arguments become
// an object schema with one string-typed property per named argument.
func schemaFromPrompt(arguments []mcpresult.PromptArgumentSummary) map[string]any {
	properties := map[string]any{}
	required := []any{}
	for _, arg := range arguments {
		if arg.Name == "" {
			continue
		}
		prop := map[string]any{"type": "string"}
		if arg.Description != "" {
			prop["description"] = arg.Description
		}
		properties[arg.Name] = prop
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func (m *Mapper) handleListResources(r *mcpresult.ListResourcesResult, contents *[]MappedContent) {
	entries := make([]string, 0, len(r.Resources))
	for _, res := range r.Resources {
		entries = append(entries, formatEntry(res.URI, res.Description, schemaFromResource()))
	}
	appendListMessage(entries, contents)
}

func appendListMessage(entries []string, contents *[]MappedContent) {
	if len(entries) == 0 {
		return
	}
	header := "The following callable entries are available:\n"
	*contents = append(*contents, MappedContent{Text: header + strings.Join(entries, "\n\n")})
}

func formatEntry(name, description string, schema map[string]any) string {
	if description == "" {
		description = "No description provided."
	}
	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	return fmt.Sprintf("Name: %s\nDescription: %s\nSchema:\n%s", name, description, string(schemaJSON))
}

func schemaFromResource() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"required":             []any{},
		"additionalProperties": false,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// BuildProviderMessages turns mapped content entries into tool-role
// provider messages by delegating to the agent's own message factory (spec
// §4.2 step 3), matching build_provider_messages's call into
// agent.make_tool_message.
func (m *Mapper) BuildProviderMessages(a agent.Agent, contents []MappedContent) []agent.Message {
	messages := make([]agent.Message, 0, len(contents))
	for _, c := range contents {
		messages = append(messages, a.MakeToolMessage(c.Text, c.Images))
	}
	return messages
}
