package scheduler_test

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaylabs/agentbridge/agent"
	"github.com/quaylabs/agentbridge/calltranslate"
	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/config"
	"github.com/quaylabs/agentbridge/contentmap"
	"github.com/quaylabs/agentbridge/filehandler"
	"github.com/quaylabs/agentbridge/mcpadapter"
	"github.com/quaylabs/agentbridge/mcpresult"
	"github.com/quaylabs/agentbridge/scheduler"
	"github.com/quaylabs/agentbridge/toolmap"
)

// fakeAgent is a scriptable agent.Agent: each call to GenerateResponseSync
// or GenerateResponse pops the next pre-programmed response.
type fakeAgent struct {
	agent.History
	mu          sync.Mutex
	cfg         config.AgentConfig
	syncReplies []agent.SyncResponse
	streamReplies [][]agent.StreamChunk
}

func (f *fakeAgent) Config() config.AgentConfig      { return f.cfg }
func (f *fakeAgent) AddMessage(m agent.Message)       { f.Add(m) }
func (f *fakeAgent) SetActiveTools(tools []map[string]any) {}
func (f *fakeAgent) ActiveTools() []map[string]any    { return nil }
func (f *fakeAgent) SetSystemPrompt(template string) {}

func (f *fakeAgent) GenerateResponseSync(ctx context.Context, newMessages []agent.Message) (agent.SyncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.syncReplies) == 0 {
		return agent.SyncResponse{}, nil
	}
	r := f.syncReplies[0]
	f.syncReplies = f.syncReplies[1:]
	return r, nil
}

func (f *fakeAgent) GenerateResponse(ctx context.Context, newMessages []agent.Message) (<-chan agent.StreamChunk, <-chan error) {
	f.mu.Lock()
	var chunks []agent.StreamChunk
	if len(f.streamReplies) > 0 {
		chunks = f.streamReplies[0]
		f.streamReplies = f.streamReplies[1:]
	}
	f.mu.Unlock()

	out := make(chan agent.StreamChunk, len(chunks))
	errs := make(chan error)
	for _, c := range chunks {
		out <- c
	}
	close(out)
	close(errs)
	return out, errs
}

func (f *fakeAgent) MakeToolMessage(text string, images []string) agent.Message {
	return agent.Message{Role: agent.RoleTool, Parts: []agent.Part{agent.TextPart{Text: text}}}
}
func (f *fakeAgent) MakeUserMessage(text string) agent.Message {
	return agent.Message{Role: agent.RoleUser, Parts: []agent.Part{agent.TextPart{Text: text}}}
}

type fakeMCP struct {
	mu     sync.Mutex
	calls  []string
	result any
}

func (m *fakeMCP) ExecuteJSONRPC(ctx context.Context, method string, params map[string]any) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.mu.Unlock()
	if m.result != nil {
		return m.result, nil
	}
	return map[string]any{"ok": true}, nil
}

func newAdapter() *mcpadapter.Adapter {
	return mcpadapter.New(toolmap.New(nil), calltranslate.New(), contentmap.New(false))
}

func waitDone(t *testing.T, s *scheduler.Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatal("session worker did not stop in time")
	}
}

func TestSendUserMessageTriggersSyncResponse(t *testing.T) {
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}, syncReplies: []agent.SyncResponse{
		{Content: "hello back"},
	}}
	adapter := newAdapter()
	adapter.UpdateCapabilities([]capability.Tool{{Name: "echo"}}, nil, nil)

	var gotResponses []string
	var completions int
	cbs := scheduler.Callbacks{
		OnAgentResponse: func(userID, chatID, content string) { gotResponses = append(gotResponses, content) },
		OnAgentCompletion: func(userID, chatID string, thinking, content *string, last []calltranslate.Request) {
			completions++
		},
	}

	mcp := &fakeMCP{}
	sess := scheduler.NewSession("s1", "u1", "c1", ag, adapter, mcp, cbs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.SendUserMessage("hi")

	require.Eventually(t, func() bool { return completions == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, gotResponses, "hello back")

	sess.Stop()
	waitDone(t, sess, 4*time.Second)
}

func TestSyncResponseDispatchesToolCalls(t *testing.T) {
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}, syncReplies: []agent.SyncResponse{
		{Content: "", ToolCalls: []agent.ToolCallPart{{Name: "echo", Arguments: map[string]any{}}}},
	}}
	adapter := newAdapter()
	adapter.UpdateCapabilities([]capability.Tool{{Name: "echo"}}, nil, nil)

	mcp := &fakeMCP{}
	cbs := scheduler.Callbacks{}
	sess := scheduler.NewSession("s1", "u1", "c1", ag, adapter, mcp, cbs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.SendUserMessage("do the thing")

	require.Eventually(t, func() bool {
		mcp.mu.Lock()
		defer mcp.mu.Unlock()
		return len(mcp.calls) == 1
	}, time.Second, 5*time.Millisecond)

	sess.Stop()
	waitDone(t, sess, 4*time.Second)
}

func TestNotifyCapabilitiesChangedFoldsIntoNextTurn(t *testing.T) {
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}, syncReplies: []agent.SyncResponse{
		{Content: "ack"},
	}}
	adapter := newAdapter()

	mcp := &fakeMCP{}
	var toolResponses []string
	cbs := scheduler.Callbacks{
		OnToolResponse: func(userID, chatID, content string) { toolResponses = append(toolResponses, content) },
	}
	sess := scheduler.NewSession("s1", "u1", "c1", ag, adapter, mcp, cbs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.NotifyCapabilitiesChanged("Tools changed: +echo")
	sess.SendUserMessage("hi")

	require.Eventually(t, func() bool { return len(toolResponses) > 0 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, toolResponses[0], "Tools changed")

	sess.Stop()
	waitDone(t, sess, 4*time.Second)
}

func TestStreamingResponseEmitsDeltaAndCompletion(t *testing.T) {
	ag := &fakeAgent{
		cfg: config.AgentConfig{Model: "m", StreamEnabled: true},
		streamReplies: [][]agent.StreamChunk{
			{
				{ContentDelta: "Hel"},
				{ContentDelta: "lo"},
			},
		},
	}
	adapter := newAdapter()

	var deltas []string
	var completed bool
	cbs := scheduler.Callbacks{
		OnAgentResponse: func(userID, chatID, content string) { deltas = append(deltas, content) },
		OnAgentCompletion: func(userID, chatID string, thinking, content *string, last []calltranslate.Request) {
			completed = true
		},
	}
	mcp := &fakeMCP{}
	sess := scheduler.NewSession("s1", "u1", "c1", ag, adapter, mcp, cbs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.SendUserMessage("hi")

	require.Eventually(t, func() bool { return completed }, time.Second, 5*time.Millisecond)
	require.Len(t, deltas, 2)
	assert.Equal(t, "Hel", deltas[0])
	assert.Equal(t, "Hello", deltas[1])

	sess.Stop()
	waitDone(t, sess, 4*time.Second)
}

func TestBlobArtifactIsRenderedThroughFileHandler(t *testing.T) {
	md := base64.StdEncoding.EncodeToString([]byte("# report"))
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}, syncReplies: []agent.SyncResponse{
		{ToolCalls: []agent.ToolCallPart{{Name: "echo", Arguments: map[string]any{}}}},
	}}
	adapter := newAdapter()
	adapter.UpdateCapabilities([]capability.Tool{{Name: "echo"}}, nil, nil)

	mcp := &fakeMCP{result: mcpresult.CallToolResult{Content: []mcpresult.Block{mcpresult.EmbeddedResourceBlock{
		URI: "file://report.md", MimeType: "text/markdown", BlobB64: md,
	}}}}

	var responses []string
	cbs := scheduler.Callbacks{
		OnAgentResponse: func(userID, chatID, content string) { responses = append(responses, content) },
	}
	sess := scheduler.NewSession("s1", "u1", "c1", ag, adapter, mcp, cbs, scheduler.WithFileHandler(filehandler.New()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.SendUserMessage("summarize the report")

	require.Eventually(t, func() bool {
		for _, r := range responses {
			if strings.Contains(r, "# report") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	sess.Stop()
	waitDone(t, sess, 4*time.Second)
}

func TestStopDrainsCurrentTurnBeforeExiting(t *testing.T) {
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}, syncReplies: []agent.SyncResponse{{Content: "done"}}}
	adapter := newAdapter()
	mcp := &fakeMCP{}
	sess := scheduler.NewSession("s1", "u1", "c1", ag, adapter, mcp, scheduler.Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.SendUserMessage("hi")
	sess.Stop()

	waitDone(t, sess, 2*time.Second)
}
