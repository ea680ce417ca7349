// Package mcpresult models MCP result content as a sealed Go interface per
// the REDESIGN FLAGS note in spec.md §9, replacing the Python
// isinstance/dict dispatch in
// original_source/src/adapters/content_mapper.py with one concrete type per
// content variant.
package mcpresult

// Block is the sealed set of MCP content block variants a CallToolResult,
// GetPromptResult, or ReadResourceResult can carry. Only types in this file
// implement it.
type Block interface {
	isBlock()
}

// TextBlock is a plain text content block.
type TextBlock struct {
	Text string
}

// ImageBlock carries base64-encoded image data.
type ImageBlock struct {
	Data     string
	MimeType string
}

// AudioBlock carries base64-encoded audio data.
type AudioBlock struct {
	Data     string
	MimeType string
}

// ResourceLinkBlock references a resource by URI without embedding it.
type ResourceLinkBlock struct {
	URI         string
	Name        string
	Description string
}

// EmbeddedResourceBlock carries either text or blob resource contents
// inlined directly into the result.
type EmbeddedResourceBlock struct {
	URI      string
	MimeType string
	Text     string // set when the embedded resource is textual
	BlobB64  string // set when the embedded resource is a blob
	Meta     map[string]any
}

// UnknownBlock preserves any content shape the mapper does not recognize so
// no MCP payload is silently dropped.
type UnknownBlock struct {
	Raw any
}

func (TextBlock) isBlock()             {}
func (ImageBlock) isBlock()             {}
func (AudioBlock) isBlock()             {}
func (ResourceLinkBlock) isBlock()      {}
func (EmbeddedResourceBlock) isBlock()  {}
func (UnknownBlock) isBlock()           {}

// TextResourceContents mirrors an MCP text resource read result.
type TextResourceContents struct {
	URI      string
	MimeType string
	Text     string
}

// BlobResourceContents mirrors an MCP blob resource read result.
type BlobResourceContents struct {
	URI      string
	MimeType string
	BlobB64  string
}

// PromptMessage mirrors a single message returned by prompts/get.
type PromptMessage struct {
	Role    string
	Content Block
}

// CallToolResult mirrors the tools/call response shape.
type CallToolResult struct {
	Content    []Block
	IsError    bool
	Structured map[string]any
}

// GetPromptResult mirrors the prompts/get response shape.
type GetPromptResult struct {
	Description string
	Messages    []PromptMessage
}

// ReadResourceResult mirrors the resources/read response shape; each
// content entry is either a TextResourceContents or a BlobResourceContents.
type ReadResourceResult struct {
	Contents []any
}

// ListToolsResult mirrors tools/list.
type ListToolsResult struct {
	Tools []ToolSummary
}

// ListPromptsResult mirrors prompts/list.
type ListPromptsResult struct {
	Prompts []PromptSummary
}

// ListResourcesResult mirrors resources/list.
type ListResourcesResult struct {
	Resources []ResourceSummary
}

// ToolSummary, PromptSummary and ResourceSummary are the minimal
// name/description projections list_* results need for rendering; the full
// typed records live in package capability.
type (
	ToolSummary struct {
		Name        string
		Description string
		InputSchema map[string]any
	}
	PromptSummary struct {
		Name        string
		Description string
		Arguments   []PromptArgumentSummary
	}
	ResourceSummary struct {
		URI         string
		Name        string
		Description string
	}
)

// PromptArgumentSummary mirrors capability.PromptArgument for rendering
// purposes (package mcpresult does not import package capability).
type PromptArgumentSummary struct {
	Name        string
	Description string
	Required    bool
}
