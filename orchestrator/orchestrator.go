// Package orchestrator implements the Agent Manager (spec §4.9, C10): the
// top-level session table, provider registry, and five-callback fan-out
// sitting above the Session Scheduler. Grounded on
// original_source/src/agent/manager.py's AgentManager (get_session_key,
// create_session, send_message, end_session, shutdown) and
// original_source/src/adapters/provider_registry.py's
// create_provider_bundle pattern, generalized per spec §4.9 to an injected
// provider registry instead of a process-global one.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/quaylabs/agentbridge/agent"
	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/config"
	"github.com/quaylabs/agentbridge/filehandler"
	"github.com/quaylabs/agentbridge/mcpadapter"
	"github.com/quaylabs/agentbridge/mcpclient"
	"github.com/quaylabs/agentbridge/orcherr"
	"github.com/quaylabs/agentbridge/sampling"
	"github.com/quaylabs/agentbridge/scheduler"
	"github.com/quaylabs/agentbridge/telemetry"
	"github.com/quaylabs/agentbridge/toolmap"
)

// ProviderFactory constructs an (Agent, Adapter) bundle for one provider
// name, given an agent config and a merged options map (provider defaults
// overridden by request-level options), mirroring create_provider_bundle.
type ProviderFactory func(cfg config.AgentConfig, options map[string]any) (agent.Agent, *mcpadapter.Adapter, error)

// Callbacks is the five external callbacks the Manager fans every session's
// scheduler events out to, per spec §4.9/§6.
type Callbacks = scheduler.Callbacks

// Session is the externally visible handle to one managed conversation.
type Session struct {
	ID       string
	UserID   string
	ChatID   string
	Provider string
}

// entry is the Manager's internal session record: the scheduler.Session
// worker plus the MCP Client it owns, mirroring AgentSession.
type entry struct {
	mu       sync.Mutex
	id       string
	userID   string
	chatID   string
	provider string
	active   bool

	ag      agent.Agent
	adapter *mcpadapter.Adapter
	mcp     *mcpclient.Client
	sched   *scheduler.Session

	cancel context.CancelFunc
}

// Active, Provider and Agent satisfy sampling.Session, letting the Manager
// serve as a sampling.SessionResolver without creating an import cycle
// (package sampling never imports orchestrator).
func (e *entry) Active() bool       { e.mu.Lock(); defer e.mu.Unlock(); return e.active }
func (e *entry) Provider() string   { return e.provider }
func (e *entry) Agent() agent.Agent { return e.ag }

// Manager owns the session table exclusively; each Session exclusively
// owns its Agent, Adapter, and MCP Client (spec §3's Ownership note).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	providers        map[string]ProviderFactory
	defaultProvider  string
	defaultModel     string
	providerDefaults config.ProviderDefaults
	systemPrompt     string

	logger      telemetry.Logger
	callbacks   Callbacks
	fileHandler scheduler.FileHandler

	dial         func(ctx context.Context, cfg config.MCPClientConfig) (mcpclient.Transport, error)
	samplingOpts []sampling.Option

	Sampling *sampling.Gateway
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the no-op default logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCallbacks registers the five session event callbacks fanned out to
// every managed session.
func WithCallbacks(cbs Callbacks) Option {
	return func(m *Manager) { m.callbacks = cbs }
}

// WithDialer overrides the MCP Client transport dialer (tests inject a
// fake; production wires mcpclient/sse.New adapted to the DialFunc shape).
func WithDialer(dial func(ctx context.Context, cfg config.MCPClientConfig) (mcpclient.Transport, error)) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithSamplingOptions forwards construction options to the embedded
// Sampling Gateway (SPEC_FULL.md §4.8 addition: rate limiting, metrics).
func WithSamplingOptions(opts ...sampling.Option) Option {
	return func(m *Manager) { m.samplingOpts = append(m.samplingOpts, opts...) }
}

// WithFileHandler overrides the default markdown-only FileHandler every
// session is constructed with, mirroring attach_file_handler. Passing nil
// disables blob-artifact rendering entirely.
func WithFileHandler(fh scheduler.FileHandler) Option {
	return func(m *Manager) { m.fileHandler = fh }
}

// New constructs a Manager from a provider registry and a manager
// configuration document, mirroring AgentManager.__init__. The Sampling
// Gateway is constructed last so it can resolve sessions back through m.
func New(cfg config.ManagerConfig, providers map[string]ProviderFactory, opts ...Option) *Manager {
	h := filehandler.New()
	m := &Manager{
		sessions:         make(map[string]*entry),
		providers:        providers,
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		providerDefaults: cfg.ProviderDefaults,
		logger:           telemetry.NoopLogger{},
		fileHandler:      h,
	}
	if m.providerDefaults == nil {
		m.providerDefaults = config.ProviderDefaults{}
	}
	if cfg.SystemPromptPath != "" {
		if raw, err := os.ReadFile(cfg.SystemPromptPath); err == nil {
			m.systemPrompt = string(raw)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Sampling = sampling.New(m, m.samplingOpts...)
	return m
}

// sessionKey mirrors get_session_key.
func sessionKey(userID, chatID string) string {
	return userID + ":" + chatID
}

// CreateSessionOptions carries the per-request overrides create_session
// accepts beyond the required identity/transport arguments.
type CreateSessionOptions struct {
	Provider        string
	AgentConfig     *config.AgentConfig
	ProviderOptions map[string]any
}

// CreateSession constructs a new managed session: resolves the provider
// bundle, sets the system prompt, wires MCP capability-change notifications
// into the scheduler, performs the MCP Client handshake, and starts the
// session's worker goroutine. If a session already exists for this
// user/chat pair it is returned unchanged, mirroring create_session's
// idempotent re-entry.
func (m *Manager) CreateSession(ctx context.Context, userID, chatID string, mcpCfg config.MCPClientConfig, opts CreateSessionOptions) (*Session, error) {
	key := sessionKey(userID, chatID)

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return &Session{ID: existing.id, UserID: userID, ChatID: chatID, Provider: existing.provider}, nil
	}
	m.mu.Unlock()

	if err := mcpCfg.Validate(); err != nil {
		return nil, err
	}

	providerName := strings.ToLower(opts.Provider)
	if providerName == "" {
		providerName = strings.ToLower(m.defaultProvider)
	}
	factory, ok := m.providers[providerName]
	if !ok {
		available := make([]string, 0, len(m.providers))
		for name := range m.providers {
			available = append(available, name)
		}
		return nil, orcherr.NewConfigError("provider", fmt.Sprintf("unknown provider %q; available: %s", providerName, strings.Join(available, ", ")))
	}

	agentCfg := config.AgentConfig{Model: m.defaultModel}
	if opts.AgentConfig != nil {
		agentCfg = *opts.AgentConfig
	}

	options := map[string]any{}
	for k, v := range m.providerDefaults[providerName] {
		options[k] = v
	}
	for k, v := range opts.ProviderOptions {
		options[k] = v
	}

	ag, adapter, err := factory(agentCfg, options)
	if err != nil {
		return nil, fmt.Errorf("constructing provider %q bundle: %w", providerName, err)
	}
	ag.SetSystemPrompt(m.systemPrompt)

	id := uuid.NewString()
	e := &entry{id: id, userID: userID, chatID: chatID, provider: providerName, active: true, ag: ag, adapter: adapter}

	mcp := mcpclient.New(key, mcpCfg, m.dial, m.logger)
	e.mcp = mcp

	sched := scheduler.NewSession(id, userID, chatID, ag, adapter, mcp, m.callbacks, scheduler.WithLogger(m.logger), scheduler.WithFileHandler(m.fileHandler))
	e.sched = sched

	mcp.OnCapabilitiesChanged(func(tools []capability.Tool, prompts []capability.Prompt, resources []capability.Resource) {
		summary := adapter.UpdateCapabilities(tools, prompts, resources)
		ag.SetActiveTools(toBackendToolMaps(adapter.ToBackendTools()))
		if summary != "" {
			sched.NotifyCapabilitiesChanged(summary)
			m.logger.Debug(ctx, "capabilities updated", "session", key, "summary", summary)
		}
	})

	if err := mcp.Initialize(ctx); err != nil {
		return nil, orcherr.NewTransportError(fmt.Sprintf("initializing MCP client for session %s", key), err)
	}
	ag.SetActiveTools(toBackendToolMaps(adapter.ToBackendTools()))

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go sched.Run(runCtx)

	m.mu.Lock()
	m.sessions[key] = e
	m.mu.Unlock()

	m.logger.Debug(ctx, "created session", "session", id, "key", key)
	return &Session{ID: id, UserID: userID, ChatID: chatID, Provider: providerName}, nil
}

// SendMessage enqueues a user utterance onto an existing session, mirroring
// AgentManager.send_message.
func (m *Manager) SendMessage(userID, chatID, message string) error {
	key := sessionKey(userID, chatID)
	m.mu.Lock()
	e, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active session for %s", key)
	}
	e.sched.SendUserMessage(message)
	return nil
}

// EndSession deactivates a session's worker, waits for it to drain its
// current turn, tears down its MCP Client, and removes it from the table,
// mirroring AgentManager.end_session.
func (m *Manager) EndSession(ctx context.Context, userID, chatID string) error {
	key := sessionKey(userID, chatID)
	m.mu.Lock()
	e, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
	e.sched.Stop()

	select {
	case <-e.sched.Done():
	case <-ctx.Done():
	}
	if e.cancel != nil {
		e.cancel()
	}

	err := e.mcp.Teardown()

	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()

	m.logger.Debug(ctx, "ended session", "session", e.id, "key", key)
	return err
}

// Shutdown ends every session in parallel, aggregating (but never raising
// past) individual teardown errors, mirroring AgentManager.shutdown's
// asyncio.gather(..., return_exceptions=True).
func (m *Manager) Shutdown(ctx context.Context) []error {
	m.mu.Lock()
	keys := make([]struct{ userID, chatID string }, 0, len(m.sessions))
	for _, e := range m.sessions {
		keys = append(keys, struct{ userID, chatID string }{e.userID, e.chatID})
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(keys))
	for i, k := range keys {
		wg.Add(1)
		go func(i int, userID, chatID string) {
			defer wg.Done()
			errs[i] = m.EndSession(ctx, userID, chatID)
		}(i, k.userID, k.chatID)
	}
	wg.Wait()

	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// Session implements sampling.SessionResolver so the embedded Sampling
// Gateway can resolve a session_key ("user:chat") to its owning session's
// agent without the sampling package depending on orchestrator.
func (m *Manager) Session(key string) (sampling.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	return e, true
}

// toBackendToolMaps renders the tool mapper's provider-native tool specs as
// the untyped map shape agent.SetActiveTools expects, matching the chat
// providers' {"type":"function","function":{...}} tool-spec envelope.
func toBackendToolMaps(tools []toolmap.ProviderTool) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": t.Type,
			"function": map[string]any{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  t.Function.Parameters,
			},
		})
	}
	return out
}

