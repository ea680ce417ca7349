package mcpclient

import (
	"encoding/json"
	"fmt"

	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/mcpresult"
)

// decodeBlock maps one raw MCP content-block JSON object to a
// mcpresult.Block, the wire-format counterpart of
// content_mapper.py's dict-shaped isinstance fallbacks (`block.get("type")
// == "text"`, etc.) — every block variant the Python original recognizes by
// dict shape has an explicit case here.
func decodeBlock(raw map[string]any) mcpresult.Block {
	switch str(raw["type"]) {
	case "text":
		return mcpresult.TextBlock{Text: str(raw["text"])}
	case "image":
		return mcpresult.ImageBlock{Data: str(raw["data"]), MimeType: str(raw["mimeType"])}
	case "audio":
		return mcpresult.AudioBlock{Data: str(raw["data"]), MimeType: str(raw["mimeType"])}
	case "resource_link":
		return mcpresult.ResourceLinkBlock{
			URI:         str(raw["uri"]),
			Name:        str(raw["name"]),
			Description: str(raw["description"]),
		}
	case "resource":
		resource, _ := raw["resource"].(map[string]any)
		meta, _ := raw["meta"].(map[string]any)
		if resource != nil {
			if blob, ok := resource["blob"].(string); ok {
				mime := str(resource["mimeType"])
				if mime == "" {
					mime = str(raw["mimeType"])
				}
				return mcpresult.EmbeddedResourceBlock{
					URI:      str(resource["uri"]),
					MimeType: mime,
					BlobB64:  blob,
					Meta:     meta,
				}
			}
			if text, ok := resource["text"].(string); ok {
				return mcpresult.EmbeddedResourceBlock{
					URI:      str(resource["uri"]),
					MimeType: str(resource["mimeType"]),
					Text:     text,
					Meta:     meta,
				}
			}
		}
		return mcpresult.UnknownBlock{Raw: raw}
	default:
		return mcpresult.UnknownBlock{Raw: raw}
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func decodeCallToolResult(raw json.RawMessage) (mcpresult.CallToolResult, error) {
	var wire struct {
		Content           []map[string]any `json:"content"`
		IsError           bool             `json:"isError"`
		StructuredContent map[string]any   `json:"structuredContent"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return mcpresult.CallToolResult{}, fmt.Errorf("decode CallToolResult: %w", err)
	}
	blocks := make([]mcpresult.Block, 0, len(wire.Content))
	for _, c := range wire.Content {
		blocks = append(blocks, decodeBlock(c))
	}
	return mcpresult.CallToolResult{Content: blocks, IsError: wire.IsError, Structured: wire.StructuredContent}, nil
}

func decodeGetPromptResult(raw json.RawMessage) (mcpresult.GetPromptResult, error) {
	var wire struct {
		Description string `json:"description"`
		Messages    []struct {
			Role    string         `json:"role"`
			Content map[string]any `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return mcpresult.GetPromptResult{}, fmt.Errorf("decode GetPromptResult: %w", err)
	}
	messages := make([]mcpresult.PromptMessage, 0, len(wire.Messages))
	for _, m := range wire.Messages {
		messages = append(messages, mcpresult.PromptMessage{Role: m.Role, Content: decodeBlock(m.Content)})
	}
	return mcpresult.GetPromptResult{Description: wire.Description, Messages: messages}, nil
}

func decodeReadResourceResult(raw json.RawMessage) (mcpresult.ReadResourceResult, error) {
	var wire struct {
		Contents []map[string]any `json:"contents"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return mcpresult.ReadResourceResult{}, fmt.Errorf("decode ReadResourceResult: %w", err)
	}
	contents := make([]any, 0, len(wire.Contents))
	for _, c := range wire.Contents {
		if blob, ok := c["blob"].(string); ok {
			contents = append(contents, mcpresult.BlobResourceContents{
				URI: str(c["uri"]), MimeType: str(c["mimeType"]), BlobB64: blob,
			})
			continue
		}
		contents = append(contents, mcpresult.TextResourceContents{
			URI: str(c["uri"]), MimeType: str(c["mimeType"]), Text: str(c["text"]),
		})
	}
	return mcpresult.ReadResourceResult{Contents: contents}, nil
}

func decodeTools(raw json.RawMessage) ([]capability.Tool, error) {
	var wire struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode ListToolsResult: %w", err)
	}
	out := make([]capability.Tool, 0, len(wire.Tools))
	for _, t := range wire.Tools {
		out = append(out, capability.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out, nil
}

func decodePrompts(raw json.RawMessage) ([]capability.Prompt, error) {
	var wire struct {
		Prompts []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Arguments   []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Required    bool   `json:"required"`
			} `json:"arguments"`
		} `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode ListPromptsResult: %w", err)
	}
	out := make([]capability.Prompt, 0, len(wire.Prompts))
	for _, p := range wire.Prompts {
		args := make([]capability.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, capability.PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		out = append(out, capability.Prompt{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return out, nil
}

func decodeResources(raw json.RawMessage) ([]capability.Resource, error) {
	var wire struct {
		Resources []struct {
			URI         string `json:"uri"`
			Name        string `json:"name"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode ListResourcesResult: %w", err)
	}
	out := make([]capability.Resource, 0, len(wire.Resources))
	for _, r := range wire.Resources {
		out = append(out, capability.Resource{URI: r.URI, Name: r.Name, Title: r.Title, Description: r.Description})
	}
	return out, nil
}
