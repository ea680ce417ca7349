// Package streambuf implements the Stream Buffer (spec §4, C1): a
// per-(user,chat,channel) accumulator that turns cumulative streamed content
// into the delta a caller has not yet seen. Ported line-for-line from
// original_source/src/util/stream_buffer.py's StreamBuffer, with a
// sync.Mutex added for concurrent callers (the Python version runs on a
// single event loop and has none).
package streambuf

import "sync"

// Buffer tracks the last-seen cumulative content per (user, chat, channel)
// key and computes deltas against new cumulative content.
type Buffer struct {
	mu      sync.Mutex
	buffers map[string]string
}

// New constructs an empty Buffer.
func New() *Buffer {
	return &Buffer{buffers: make(map[string]string)}
}

func key(userID, chatID, channel string) string {
	return userID + ":" + chatID + ":" + channel
}

// GetDelta compares content (the full cumulative content so far) against
// the buffer for (userID, chatID, channel) and returns the portion the
// caller has not yet seen, plus whether this is the first output for the
// key. If content grew, the delta is the appended suffix and the buffer
// advances. If content is strictly shorter than what is buffered, the
// stream is treated as restarted and the full content is returned as the
// delta. If content is unchanged, or is the same length as but different
// from what is buffered, the buffer is left untouched and delta is "".
//
// TODO: occasional truncation has been observed when this is driven by the
// CLI streaming callbacks; may stem from how the caller accumulates chunks
// or clears buffers between turns.
func (b *Buffer) GetDelta(userID, chatID, channel, content string) (delta string, isFirstOutput bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := key(userID, chatID, channel)
	current, existed := b.buffers[k]
	isFirst := !existed

	if current == content {
		return "", false
	}

	if len(content) > len(current) {
		b.buffers[k] = content
		return content[len(current):], isFirst
	}

	if len(content) < len(current) {
		// Content was replaced, not just appended: treat as a new message
		// starting over.
		b.buffers[k] = content
		return content, isFirst
	}

	return "", false
}

// Clear removes the buffer for one channel, or every channel for
// (userID, chatID) when channel is "".
func (b *Buffer) Clear(userID, chatID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if channel != "" {
		delete(b.buffers, key(userID, chatID, channel))
		return
	}
	prefix := userID + ":" + chatID + ":"
	for k := range b.buffers {
		if hasPrefix(k, prefix) {
			delete(b.buffers, k)
		}
	}
}

// ResetAll clears every buffer.
func (b *Buffer) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers = make(map[string]string)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
