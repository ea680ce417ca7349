// Package sampling implements the Sampling Gateway (spec §4.8, C8): a
// process-wide throttled entry point that lets the MCP server request a
// model sampling from the same agent that owns its session. Grounded on
// original_source/src/mcp/sampling.py's SessionAwareSamplingHandler: the
// global semaphore, the inflight/completed/rejected counters, the timeout
// mapping (a call exceeding the timeout returns an orcherr.TimeoutError),
// and the provider-support check.
package sampling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/quaylabs/agentbridge/agent"
	"github.com/quaylabs/agentbridge/orcherr"
	"github.com/quaylabs/agentbridge/telemetry"
)

// Message is one text-only sampling message (spec §4.8's ordered list of
// role+text pairs), the Go counterpart of mcp.types.SamplingMessage
// restricted to TextContent.
type Message struct {
	Role string
	Text string
}

// Params is the request payload passed to Sample, the Go counterpart of
// mcp.types.CreateMessageRequestParams.
type Params struct {
	SystemPrompt string
	Messages     []Message
}

// Result is CreateMessageResult: the model's single-shot text reply.
type Result struct {
	Role       string
	Content    string
	Model      string
	StopReason *string
}

// Session is the narrow view of an active agent session the gateway needs
// to resolve a sampling request, satisfied by the Agent Manager's session
// type without creating an import cycle (the gateway holds a non-owning
// reference to session state, per spec §3's Ownership note).
type Session interface {
	Active() bool
	Provider() string
	Agent() agent.Agent
}

// SessionResolver looks a session up by its key. The Agent Manager's
// session table implements this.
type SessionResolver interface {
	Session(sessionKey string) (Session, bool)
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithMaxConcurrency overrides the default global permit count (10).
func WithMaxConcurrency(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.sem = make(chan struct{}, n)
		}
	}
}

// WithRequestTimeout overrides the default per-call timeout (60s).
func WithRequestTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit adds an optional token-bucket throttle on top of the
// concurrency semaphore (SPEC_FULL.md §4.8 addition; the Python source has
// no analogue — a bursty MCP server can otherwise saturate the semaphore
// instantly). Nil (the default) disables it.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(g *Gateway) { g.limiter = limiter }
}

// WithLogger overrides the no-op default logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics overrides the no-op default metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithMeter wires an OTEL meter for the gateway's own "sampling_inflight"
// up-down counter, in addition to the generic telemetry.Metrics recorder;
// completed/rejected counts are recorded only through telemetry.Metrics.
// SPEC_FULL.md §4.8 addition.
func WithMeter(meter metric.Meter) Option {
	return func(g *Gateway) { g.meter = meter }
}

// Gateway is SessionAwareSamplingHandler: a global throttle sitting in
// front of every MCP Client's sampling callback.
type Gateway struct {
	resolver SessionResolver

	sem     chan struct{}
	limiter *rate.Limiter
	timeout time.Duration

	logger  telemetry.Logger
	metrics telemetry.Metrics
	meter   metric.Meter

	inflightGauge metric.Int64UpDownCounter

	mu        sync.Mutex
	inflight  int
	completed int
	rejected  int
}

// New constructs a Gateway resolving sessions through resolver, with a
// default max_concurrency of 10 and request_timeout_s of 60 seconds,
// matching SessionAwareSamplingHandler's defaults.
func New(resolver SessionResolver, opts ...Option) *Gateway {
	g := &Gateway{
		resolver: resolver,
		sem:      make(chan struct{}, 10),
		timeout:  60 * time.Second,
		logger:   telemetry.NoopLogger{},
		metrics:  telemetry.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.meter != nil {
		if ctr, err := g.meter.Int64UpDownCounter("sampling_inflight"); err == nil {
			g.inflightGauge = ctr
		}
	}
	return g
}

// Counts returns the current inflight/completed/rejected counters, mirroring
// the debug log line original_source/src/mcp/sampling.py emits after every
// sample call.
func (g *Gateway) Counts() (inflight, completed, rejected int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight, g.completed, g.rejected
}

func (g *Gateway) reject(ctx context.Context, sessionKey string, err error) (Result, error) {
	g.mu.Lock()
	g.rejected++
	inflight := g.inflight
	g.mu.Unlock()
	g.metrics.RecordGauge("sampling.inflight", float64(inflight))
	g.metrics.IncCounter("sampling.rejected", 1, "session", sessionKey)
	g.logger.Warn(ctx, "sampling rejected", "session", sessionKey, "error", err.Error())
	return Result{}, err
}

// Sample resolves session_key to its owning session's agent, converts
// params into provider-native messages, admits the call through the global
// semaphore (and optional rate limiter), and runs a synchronous model call
// bounded by the configured timeout. Mirrors SessionAwareSamplingHandler.sample.
func (g *Gateway) Sample(ctx context.Context, sessionKey string, params Params) (Result, error) {
	session, ok := g.resolver.Session(sessionKey)
	if !ok || !session.Active() {
		return g.reject(ctx, sessionKey, orcherr.NewUnknownSessionError(sessionKey))
	}

	ag := session.Agent()
	if ag == nil {
		return g.reject(ctx, sessionKey, orcherr.NewUnsupportedProviderError(session.Provider()))
	}

	messages, err := toProviderMessages(ag, params)
	if err != nil {
		return g.reject(ctx, sessionKey, err)
	}

	if g.limiter != nil && !g.limiter.Allow() {
		return g.reject(ctx, sessionKey, errors.New("sampling rate limit exceeded"))
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return g.reject(ctx, sessionKey, ctx.Err())
	}
	defer func() { <-g.sem }()

	g.mu.Lock()
	g.inflight++
	inflight := g.inflight
	g.mu.Unlock()
	g.metrics.RecordGauge("sampling.inflight", float64(inflight))
	g.bumpInflightInstrument(ctx, 1)

	start := time.Now()
	defer func() {
		g.mu.Lock()
		g.inflight--
		g.completed++
		inflight, completed, rejected := g.inflight, g.completed, g.rejected
		g.mu.Unlock()
		g.metrics.RecordGauge("sampling.inflight", float64(inflight))
		g.bumpInflightInstrument(ctx, -1)
		g.metrics.IncCounter("sampling.completed", 1, "session", sessionKey)
		g.metrics.RecordTimer("sampling.duration", time.Since(start), "session", sessionKey)
		g.logger.Debug(ctx, "sampling done",
			"session", sessionKey, "inflight", inflight, "completed", completed,
			"rejected", rejected, "ms", time.Since(start).Milliseconds())
	}()

	sampleCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.logger.Debug(ctx, "sampling start", "session", sessionKey)
	resp, err := ag.GenerateResponseSync(sampleCtx, messages)
	if err != nil {
		if sampleCtx.Err() != nil {
			return Result{}, orcherr.NewTimeoutError("sampling")
		}
		return Result{}, err
	}

	return Result{
		Role:    "assistant",
		Content: strings.TrimSpace(resp.Content),
		Model:   ag.Config().Model,
	}, nil
}

func (g *Gateway) bumpInflightInstrument(ctx context.Context, delta int64) {
	if g.inflightGauge == nil {
		return
	}
	g.inflightGauge.Add(ctx, delta)
}

// toProviderMessages builds the provider-native message list: an optional
// system message first, then one message per sampling message in order.
// Every sampling message must be text-only, mirroring
// SessionAwareSamplingHandler._to_ollama_messages.
func toProviderMessages(ag agent.Agent, params Params) ([]agent.Message, error) {
	var messages []agent.Message

	if strings.TrimSpace(params.SystemPrompt) != "" {
		messages = append(messages, agent.Message{
			Role:  agent.RoleSystem,
			Parts: []agent.Part{agent.TextPart{Text: params.SystemPrompt}},
		})
	}

	if len(params.Messages) == 0 {
		return nil, orcherr.NewInvalidRequestError("sampling expects at least one message")
	}

	for _, m := range params.Messages {
		role := roleFromString(m.Role)
		messages = append(messages, ag.MakeUserMessage(m.Text))
		messages[len(messages)-1].Role = role
	}

	return messages, nil
}

func roleFromString(s string) agent.Role {
	switch strings.ToLower(s) {
	case "system":
		return agent.RoleSystem
	case "tool":
		return agent.RoleTool
	case "assistant":
		return agent.RoleAssistant
	default:
		return agent.RoleUser
	}
}
