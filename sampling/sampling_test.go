package sampling_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/quaylabs/agentbridge/agent"
	"github.com/quaylabs/agentbridge/config"
	"github.com/quaylabs/agentbridge/sampling"
)

// fakeAgent is a minimal agent.Agent that answers GenerateResponseSync
// synchronously, with an optional artificial delay to exercise the
// Gateway's concurrency semaphore.
type fakeAgent struct {
	agent.History
	cfg     config.AgentConfig
	delay   time.Duration
	reply   string
	failErr error
	onEnter func()
	onExit  func()
}

func (f *fakeAgent) Config() config.AgentConfig            { return f.cfg }
func (f *fakeAgent) AddMessage(m agent.Message)             { f.Add(m) }
func (f *fakeAgent) SetActiveTools(tools []map[string]any) {}
func (f *fakeAgent) ActiveTools() []map[string]any          { return nil }
func (f *fakeAgent) SetSystemPrompt(template string)       {}
func (f *fakeAgent) GenerateResponse(ctx context.Context, newMessages []agent.Message) (<-chan agent.StreamChunk, <-chan error) {
	return nil, nil
}
func (f *fakeAgent) GenerateResponseSync(ctx context.Context, newMessages []agent.Message) (agent.SyncResponse, error) {
	if f.failErr != nil {
		return agent.SyncResponse{}, f.failErr
	}
	if f.onEnter != nil {
		f.onEnter()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return agent.SyncResponse{}, ctx.Err()
		}
	}
	if f.onExit != nil {
		f.onExit()
	}
	return agent.SyncResponse{Content: f.reply}, nil
}
func (f *fakeAgent) MakeToolMessage(text string, images []string) agent.Message {
	return agent.Message{Role: agent.RoleTool, Parts: []agent.Part{agent.TextPart{Text: text}}}
}
func (f *fakeAgent) MakeUserMessage(text string) agent.Message {
	return agent.Message{Role: agent.RoleUser, Parts: []agent.Part{agent.TextPart{Text: text}}}
}

type fakeSession struct {
	active   bool
	provider string
	agent    agent.Agent
}

func (s *fakeSession) Active() bool        { return s.active }
func (s *fakeSession) Provider() string    { return s.provider }
func (s *fakeSession) Agent() agent.Agent  { return s.agent }

type fakeResolver struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{sessions: map[string]*fakeSession{}}
}

func (r *fakeResolver) put(key string, s *fakeSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[key] = s
}

func (r *fakeResolver) Session(key string) (sampling.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return nil, false
	}
	return s, true
}

func TestSampleSuccess(t *testing.T) {
	resolver := newFakeResolver()
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "llama3.2:3b"}, reply: "  hello there  "}
	resolver.put("sess-1", &fakeSession{active: true, provider: "ollama", agent: ag})

	gw := sampling.New(resolver)
	result, err := gw.Sample(context.Background(), "sess-1", sampling.Params{
		Messages: []sampling.Message{{Role: "user", Text: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Content)
	assert.Equal(t, "assistant", result.Role)
	assert.Equal(t, "llama3.2:3b", result.Model)

	inflight, completed, rejected := gw.Counts()
	assert.Equal(t, 0, inflight)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, rejected)
}

func TestSampleUnknownSessionRejected(t *testing.T) {
	resolver := newFakeResolver()
	gw := sampling.New(resolver)

	_, err := gw.Sample(context.Background(), "missing", sampling.Params{
		Messages: []sampling.Message{{Role: "user", Text: "hi"}},
	})
	require.Error(t, err)

	_, _, rejected := gw.Counts()
	assert.Equal(t, 1, rejected)
}

func TestSampleInactiveSessionRejected(t *testing.T) {
	resolver := newFakeResolver()
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}}
	resolver.put("sess-1", &fakeSession{active: false, provider: "ollama", agent: ag})

	gw := sampling.New(resolver)
	_, err := gw.Sample(context.Background(), "sess-1", sampling.Params{
		Messages: []sampling.Message{{Role: "user", Text: "hi"}},
	})
	require.Error(t, err)
}

func TestSampleRequiresAtLeastOneMessage(t *testing.T) {
	resolver := newFakeResolver()
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}}
	resolver.put("sess-1", &fakeSession{active: true, provider: "ollama", agent: ag})

	gw := sampling.New(resolver)
	_, err := gw.Sample(context.Background(), "sess-1", sampling.Params{})
	require.Error(t, err)

	_, _, rejected := gw.Counts()
	assert.Equal(t, 1, rejected)
}

func TestSampleTimesOut(t *testing.T) {
	resolver := newFakeResolver()
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}, delay: 50 * time.Millisecond}
	resolver.put("sess-1", &fakeSession{active: true, provider: "ollama", agent: ag})

	gw := sampling.New(resolver, sampling.WithRequestTimeout(5*time.Millisecond))
	_, err := gw.Sample(context.Background(), "sess-1", sampling.Params{
		Messages: []sampling.Message{{Role: "user", Text: "hi"}},
	})
	require.Error(t, err)

	// Timeouts happen after admission, so completed (not rejected) is bumped,
	// mirroring the Python finally block that always increments completed.
	_, completed, _ := gw.Counts()
	assert.Equal(t, 1, completed)
}

func TestSampleRejectedWhenRateLimited(t *testing.T) {
	resolver := newFakeResolver()
	ag := &fakeAgent{cfg: config.AgentConfig{Model: "m"}, reply: "ok"}
	resolver.put("sess-1", &fakeSession{active: true, provider: "ollama", agent: ag})

	limiter := rate.NewLimiter(rate.Limit(0), 1)
	limiter.Allow() // consume the single burst token up front

	gw := sampling.New(resolver, sampling.WithRateLimit(limiter))
	_, err := gw.Sample(context.Background(), "sess-1", sampling.Params{
		Messages: []sampling.Message{{Role: "user", Text: "hi"}},
	})
	require.Error(t, err)

	// A rate-limit rejection happens before semaphore admission, so it counts
	// as rejected, not completed.
	_, completed, rejected := gw.Counts()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 1, rejected)
}

func TestMaxConcurrencyLimitsInflight(t *testing.T) {
	resolver := newFakeResolver()
	const sessions = 5
	var current int64
	var maxObserved int64

	enter := func() {
		n := atomic.AddInt64(&current, 1)
		for {
			m := atomic.LoadInt64(&maxObserved)
			if n <= m {
				break
			}
			if atomic.CompareAndSwapInt64(&maxObserved, m, n) {
				break
			}
		}
	}
	exit := func() { atomic.AddInt64(&current, -1) }

	for i := 0; i < sessions; i++ {
		ag := &fakeAgent{
			cfg: config.AgentConfig{Model: "m"}, delay: 30 * time.Millisecond, reply: "ok",
			onEnter: enter, onExit: exit,
		}
		resolver.put(string(rune('a'+i)), &fakeSession{active: true, provider: "ollama", agent: ag})
	}

	gw := sampling.New(resolver, sampling.WithMaxConcurrency(2))

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		key := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_, _ = gw.Sample(context.Background(), key, sampling.Params{
				Messages: []sampling.Message{{Role: "user", Text: "hi"}},
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&maxObserved), int64(2))
	_, completed, _ := gw.Counts()
	assert.Equal(t, sessions, completed)
}
