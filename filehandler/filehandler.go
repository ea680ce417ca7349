// Package filehandler implements the UI-rendering collaborator
// scheduler.Session calls on "blob" artifacts (spec §4.7/spec.md:179).
// Grounded on original_source/src/util/file/file_handler.py's
// BaseFileHandler and file_handler_openwebui.py's
// OpenWebUIMarkdownFileHandler: this collaborator never feeds the agent
// context, it only produces strings routed to on_agent_response for display.
package filehandler

import (
	"encoding/base64"
	"strings"
)

// MarkdownFileHandler renders markdown blob artifacts as UI-facing text,
// declining everything else. It satisfies scheduler.FileHandler by
// structural typing.
type MarkdownFileHandler struct{}

// New constructs a MarkdownFileHandler.
func New() MarkdownFileHandler { return MarkdownFileHandler{} }

// StringifyIfSupported decodes a base64 markdown blob and wraps it with a
// bold name heading, mirroring stringify_if_supported. It reports false for
// any non-markdown mime type rather than an error, per the Python
// original's Optional[str] contract.
func (MarkdownFileHandler) StringifyIfSupported(mimeType, blobB64, name string, meta map[string]any) (string, bool) {
	if !isMarkdown(mimeType) {
		return "", false
	}

	var md string
	raw, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		md = "[Error decoding markdown file: " + err.Error() + "]"
	} else {
		md = strings.ToValidUTF8(string(raw), "�")
	}

	title := ""
	if name != "" {
		title = "**" + name + "**\n\n"
	}
	return "\n\n" + title + md + "\n\n", true
}

// isMarkdown mirrors _is_markdown: a case-insensitive, whitespace-trimmed
// check for "text/markdown" (by prefix, to tolerate a trailing charset
// parameter) or the exact alias "text/x-markdown".
func isMarkdown(mime string) bool {
	m := strings.ToLower(strings.TrimSpace(mime))
	return strings.HasPrefix(m, "text/markdown") || m == "text/x-markdown"
}
