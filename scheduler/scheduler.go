// Package scheduler implements the Session Scheduler (spec §4.9's sibling,
// C9): a per-session worker goroutine draining a turn queue, a pending-turn
// accumulator callbacks append to between turns, and capability-change
// re-entry via a synthetic tool-role entry. Grounded on
// original_source/src/agent/manager.py's _run_agent_loop/_process_turn/
// _handle_streaming_response/_handle_sync_response/_execute_single_request/
// _enqueue_turn. The goroutine-per-worker shape with a done-channel
// completion signal is grounded on the teacher's
// runtime/agent/engine/inmem.eng.StartWorkflow (close(h.done) on handler
// return).
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quaylabs/agentbridge/agent"
	"github.com/quaylabs/agentbridge/calltranslate"
	"github.com/quaylabs/agentbridge/contentmap"
	"github.com/quaylabs/agentbridge/mcpadapter"
	"github.com/quaylabs/agentbridge/telemetry"
)

// Role classifies one turn entry, mirroring the Python source's
// role ∈ {"user", "tool", None}. RoleAssistant marks an assistant-synthesized
// entry; spec §3 calls this the `None` role.
type Role string

const (
	RoleUser      Role = "user"
	RoleTool      Role = "tool"
	RoleAssistant Role = ""
)

// Entry is one queued turn element: a payload (a raw string or an MCP
// result object) paired with its role, per spec §3's Turn entry.
type Entry struct {
	Payload any
	Role    Role
}

// Turn is an ordered, non-empty sequence of entries (spec §3 I3: empty
// turns are discarded before enqueue).
type Turn []Entry

// JSONRPCExecutor is the narrow MCP Client view the scheduler needs to
// dispatch a translated call, satisfied by mcpclient.Client.
type JSONRPCExecutor interface {
	ExecuteJSONRPC(ctx context.Context, method string, params map[string]any) (any, error)
}

// Callbacks is the five-callback fan-out a Session forwards to its Agent
// Manager, per spec §4.9/§6. Every field is optional; a nil callback is
// simply skipped.
type Callbacks struct {
	OnAgentResponse  func(userID, chatID, content string)
	OnAgentThinking  func(userID, chatID, thinking string)
	OnAgentToolCall  func(userID, chatID, method string, params map[string]any)
	OnToolResponse   func(userID, chatID, content string)
	OnAgentCompletion func(userID, chatID string, thinking, content *string, lastRequests []calltranslate.Request)
}

// FileHandler renders a "blob" artifact into a UI-facing string when its
// mime type is one the handler understands, per spec §4.7/spec.md:179.
// Grounded on original_source/src/util/file/file_handler.py's
// BaseFileHandler.stringify_if_supported: a FileHandler never feeds the
// agent context, only on_agent_response. A false second return means the
// artifact's mime type is unsupported, not an error.
type FileHandler interface {
	StringifyIfSupported(mimeType, blobB64, name string, meta map[string]any) (string, bool)
}

// Session is one scheduled conversation: an owned Agent, Adapter, and MCP
// Client, a single worker goroutine, a FIFO turn queue, and a pending-turn
// accumulator, per spec §3's Session data model and Ownership note.
type Session struct {
	SessionID string
	UserID    string
	ChatID    string

	Agent   agent.Agent
	Adapter *mcpadapter.Adapter
	MCP     JSONRPCExecutor

	logger      telemetry.Logger
	callbacks   Callbacks
	fileHandler FileHandler

	queue chan Turn
	done  chan struct{}

	mu          sync.Mutex
	pendingTurn Turn
	active      bool
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger overrides the no-op default logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQueueDepth sets the turn queue's buffer depth. Default 32 (the Python
// original uses an unbounded asyncio.Queue; a bounded channel here just
// caps how far a session can get ahead of its own worker). Callers never
// block: when the queue is full the turn is put back into the pending
// accumulator and carried by the next successful enqueue.
func WithQueueDepth(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queue = make(chan Turn, n)
		}
	}
}

// WithFileHandler attaches the collaborator prepareTurnMessages renders
// "blob" artifacts through, mirroring AgentManager.attach_file_handler. A
// nil handler (the default) leaves blob artifacts unrendered, same as no
// file_handler being attached in the Python original.
func WithFileHandler(fh FileHandler) Option {
	return func(s *Session) {
		s.fileHandler = fh
	}
}

// NewSession constructs a Session in its active, not-yet-started state.
func NewSession(sessionID, userID, chatID string, ag agent.Agent, adapter *mcpadapter.Adapter, mcp JSONRPCExecutor, callbacks Callbacks, opts ...Option) *Session {
	s := &Session{
		SessionID: sessionID,
		UserID:    userID,
		ChatID:    chatID,
		Agent:     ag,
		Adapter:   adapter,
		MCP:       mcp,
		logger:    telemetry.NoopLogger{},
		callbacks: callbacks,
		queue:     make(chan Turn, 32),
		done:      make(chan struct{}),
		active:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run is the worker loop (_run_agent_loop): dequeue a turn with a 3-second
// idle timeout (so Stop is noticed promptly even with no traffic), clear the
// pending-turn accumulator, process the turn, then fold anything the
// callbacks appended into pending_turn back into the queue. Run blocks until
// Stop is called and the current turn (if any) finishes; callers start it
// in its own goroutine.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for s.isActive() {
		select {
		case turn := <-s.queue:
			s.clearPending()
			s.processTurn(ctx, turn)
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop marks the session inactive; the worker drains its current turn and
// exits on its next idle check, per spec §3's `active: bool` semantics.
func (s *Session) Stop() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Done returns a channel closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// SendUserMessage appends a user-role entry to the pending turn and
// enqueues it, per spec §4.9's send_message.
func (s *Session) SendUserMessage(text string) {
	s.appendPending(Entry{Payload: text, Role: RoleUser})
	s.enqueuePending()
}

// NotifyCapabilitiesChanged folds a tool-catalog diff summary into the
// pending turn as a synthetic (summary, "tool") entry, per spec §3 I6 and
// §4.9's capability_handler. Call this from the MCP Client's
// CapabilitiesChangedFunc after re-pointing the agent's active tools at the
// adapter's latest ToBackendTools().
func (s *Session) NotifyCapabilitiesChanged(summary string) {
	if summary == "" {
		return
	}
	s.appendPending(Entry{Payload: summary, Role: RoleTool})
}

func (s *Session) appendPending(e Entry) {
	s.mu.Lock()
	s.pendingTurn = append(s.pendingTurn, e)
	s.mu.Unlock()
}

func (s *Session) clearPending() {
	s.mu.Lock()
	s.pendingTurn = nil
	s.mu.Unlock()
}

// enqueuePending moves the pending-turn accumulator into the queue as one
// atomic unit, discarding it if empty, per spec §3's pending_turn
// definition and _enqueue_turn.
func (s *Session) enqueuePending() {
	s.mu.Lock()
	if len(s.pendingTurn) == 0 {
		s.mu.Unlock()
		return
	}
	turn := s.pendingTurn
	s.pendingTurn = nil
	s.mu.Unlock()

	select {
	case s.queue <- turn:
	default:
		// Queue is full: re-accumulate so nothing is silently dropped: the
		// next successful enqueue (by any caller) will carry it forward.
		s.mu.Lock()
		s.pendingTurn = append(turn, s.pendingTurn...)
		s.mu.Unlock()
		s.logger.Warn(context.Background(), "turn queue full, re-accumulated", "session", s.SessionID)
	}
}

func (s *Session) processTurn(ctx context.Context, turn Turn) {
	if len(turn) == 0 {
		return
	}

	messages := s.prepareTurnMessages(ctx, turn)
	if len(messages) == 0 {
		return
	}

	s.logger.Debug(ctx, "processing turn", "session", s.SessionID, "entries", len(turn))

	cfg := s.Agent.Config()
	if cfg.StreamEnabled {
		s.handleStreamingResponse(ctx, messages)
	} else {
		s.handleSyncResponse(ctx, messages)
	}

	s.enqueuePending()
}

func (s *Session) prepareTurnMessages(ctx context.Context, turn Turn) []agent.Message {
	var provider []agent.Message
	for _, e := range turn {
		payload := []any{e.Payload}
		messages, artifacts := s.Adapter.BuildProviderMessages(s.Agent, payload, string(e.Role))
		provider = append(provider, messages...)

		if e.Role == RoleTool && s.callbacks.OnToolResponse != nil {
			for _, m := range messages {
				if text := firstTextPart(m); text != "" {
					s.callbacks.OnToolResponse(s.UserID, s.ChatID, text)
				}
			}
		}
		s.renderBlobArtifacts(artifacts)
	}
	return provider
}

// renderBlobArtifacts mirrors _prepare_turn_messages's file_handler loop:
// every "blob" artifact is offered to the attached FileHandler, and each
// rendered string is emitted as an on_agent_response call, per spec.md:179.
func (s *Session) renderBlobArtifacts(artifacts []contentmap.Artifact) {
	if s.fileHandler == nil || s.callbacks.OnAgentResponse == nil {
		return
	}
	for _, artifact := range artifacts {
		if kind, _ := artifact["kind"].(string); kind != "blob" {
			continue
		}
		mime, _ := artifact["mime"].(string)
		blobB64, _ := artifact["blob_b64"].(string)
		name, _ := artifact["name"].(string)
		meta, _ := artifact["meta"].(map[string]any)

		rendered, ok := s.fileHandler.StringifyIfSupported(mime, blobB64, name, meta)
		if ok && rendered != "" {
			s.callbacks.OnAgentResponse(s.UserID, s.ChatID, rendered)
		}
	}
}

func firstTextPart(m agent.Message) string {
	for _, p := range m.Parts {
		if t, ok := p.(agent.TextPart); ok {
			return t.Text
		}
	}
	return ""
}

func (s *Session) handleStreamingResponse(ctx context.Context, newMessages []agent.Message) {
	chunks, errs := s.Agent.GenerateResponse(ctx, newMessages)

	var lastThinking *string
	var thinkingBuffer, contentBuffer string
	var lastRequest *calltranslate.Request

	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if chunk.ThinkingCumulative != nil {
				thinkingBuffer = *chunk.ThinkingCumulative
				lastThinking = &thinkingBuffer
				if s.callbacks.OnAgentThinking != nil {
					s.callbacks.OnAgentThinking(s.UserID, s.ChatID, thinkingBuffer)
				}
			}
			if chunk.ContentDelta != "" {
				contentBuffer += chunk.ContentDelta
				if s.callbacks.OnAgentResponse != nil {
					s.callbacks.OnAgentResponse(s.UserID, s.ChatID, contentBuffer)
				}
			}
			for _, call := range chunk.NewToolCalls {
				req := s.dispatchToolCall(ctx, call)
				if req != nil {
					lastRequest = req
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				s.logger.Error(ctx, "streaming generation failed", "session", s.SessionID, "error", err.Error())
			}
			errs = nil
		}
	}

	if s.callbacks.OnAgentCompletion != nil {
		var contentPtr *string
		if trimmed := trimOrNil(contentBuffer); trimmed != nil {
			contentPtr = trimmed
		}
		var last []calltranslate.Request
		if lastRequest != nil {
			last = []calltranslate.Request{*lastRequest}
		}
		s.callbacks.OnAgentCompletion(s.UserID, s.ChatID, lastThinking, contentPtr, last)
	}
}

func (s *Session) handleSyncResponse(ctx context.Context, newMessages []agent.Message) {
	resp, err := s.Agent.GenerateResponseSync(ctx, newMessages)
	if err != nil {
		s.logger.Error(ctx, "sync generation failed", "session", s.SessionID, "error", err.Error())
		return
	}

	if resp.Thinking != nil && s.callbacks.OnAgentThinking != nil {
		s.callbacks.OnAgentThinking(s.UserID, s.ChatID, *resp.Thinking)
	}
	if trimOrNil(resp.Content) != nil && s.callbacks.OnAgentResponse != nil {
		s.callbacks.OnAgentResponse(s.UserID, s.ChatID, resp.Content)
	}

	var requests []calltranslate.Request
	for _, call := range resp.ToolCalls {
		payload := map[string]any{
			"function": map[string]any{"name": call.Name, "arguments": call.Arguments},
		}
		reqs, mappingErr := s.Adapter.AdaptModelCallToMCP(payload)
		if mappingErr != "" {
			s.appendPending(Entry{Payload: mappingErr, Role: RoleTool})
		}
		for _, req := range reqs {
			requests = append(requests, req)
			result := s.executeSingleRequest(ctx, req)
			s.appendPending(Entry{Payload: result, Role: RoleTool})
		}
	}

	if s.callbacks.OnAgentCompletion != nil {
		s.callbacks.OnAgentCompletion(s.UserID, s.ChatID, resp.Thinking, trimOrNil(resp.Content), requests)
	}
}

// dispatchToolCall translates and executes one streaming tool call
// immediately, matching _handle_streaming_response's per-chunk dispatch
// (translation failures and JSON-RPC results are both folded into pending
// as tool-role entries as they happen, not batched to end-of-stream).
func (s *Session) dispatchToolCall(ctx context.Context, call agent.ToolCallPart) *calltranslate.Request {
	payload := map[string]any{
		"function": map[string]any{"name": call.Name, "arguments": call.Arguments},
	}
	reqs, mappingErr := s.Adapter.AdaptModelCallToMCP(payload)
	if mappingErr != "" {
		s.appendPending(Entry{Payload: mappingErr, Role: RoleTool})
	}

	var last *calltranslate.Request
	for _, req := range reqs {
		r := req
		last = &r
		result := s.executeSingleRequest(ctx, req)
		s.appendPending(Entry{Payload: result, Role: RoleTool})
	}
	return last
}

func (s *Session) executeSingleRequest(ctx context.Context, req calltranslate.Request) any {
	if s.callbacks.OnAgentToolCall != nil {
		s.callbacks.OnAgentToolCall(s.UserID, s.ChatID, req.Method, req.Params)
	}
	result, err := s.MCP.ExecuteJSONRPC(ctx, req.Method, req.Params)
	if err != nil {
		s.logger.Error(ctx, "mcp request failed", "session", s.SessionID, "method", req.Method, "error", err.Error())
		return fmt.Sprintf("Error while executing %s: %s", req.Method, err.Error())
	}
	return result
}

func trimOrNil(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
