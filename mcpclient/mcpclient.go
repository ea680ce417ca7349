// Package mcpclient implements the MCP Client (spec §4.6, C6): a thin
// stateful wrapper around one MCP server connection, holding a dirty-flag
// capability cache and routing every JSON-RPC call (including list_*
// capability access) through one refresh path. Grounded on
// original_source/src/mcp/client.py's MCPClient: the
// connected/done/closed event triple, the
// _tool_list_changed/_prompt_list_changed/_resource_list_changed dirty
// flags, and execute_json_rpc's method dispatch table.
//
// SPEC_FULL.md §9 flags the Python source's list_tools/list_prompts/
// list_resources as bypassing the dirty-flag cache (they always call the
// session directly). This port closes that gap: there are no direct list
// methods, every list_* request goes through refreshCapabilities, and
// Capabilities() only reads the cache, so the dirty flags are the only way
// any caller ever forces a re-fetch.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/quaylabs/agentbridge/capability"
	"github.com/quaylabs/agentbridge/config"
	"github.com/quaylabs/agentbridge/orcherr"
	"github.com/quaylabs/agentbridge/telemetry"
)

// Transport abstracts the wire protocol a Client speaks to its MCP server.
// package mcpclient/sse provides the SSE implementation; tests supply a
// fake.
type Transport interface {
	Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
	Close() error
}

// CapabilitiesChangedFunc is invoked after a successful capability refresh
// with the current full snapshot (spec §4.6's on_capabilities_changed
// hook).
type CapabilitiesChangedFunc func(tools []capability.Tool, prompts []capability.Prompt, resources []capability.Resource)

// event is a one-shot, idempotent, broadcast-once signal — the Go
// equivalent of asyncio.Event, grounded on the teacher's
// runtime/mcp/broadcast.go close-channel-to-notify idiom.
type event struct {
	once sync.Once
	ch   chan struct{}
}

func newEvent() *event { return &event{ch: make(chan struct{})} }

func (e *event) Set()            { e.once.Do(func() { close(e.ch) }) }
func (e *event) Done() <-chan struct{} { return e.ch }
func (e *event) IsSet() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Client wraps one MCP server connection, mirroring MCPClient.
type Client struct {
	SessionKey string
	Name       string

	cfg    config.MCPClientConfig
	logger telemetry.Logger
	dial   func(ctx context.Context, cfg config.MCPClientConfig) (Transport, error)

	Connected *event
	Done      *event
	Closed    *event

	transport Transport

	onCapabilitiesChanged CapabilitiesChangedFunc

	mu                   sync.Mutex
	toolsCache           []capability.Tool
	promptsCache         []capability.Prompt
	resourcesCache       []capability.Resource
	toolListChanged      bool
	promptListChanged    bool
	resourceListChanged  bool
}

// DialFunc constructs a Transport for a given config; package mcpclient/sse
// provides one real implementation, injected by the caller so this package
// stays transport-agnostic and testable.
type DialFunc func(ctx context.Context, cfg config.MCPClientConfig) (Transport, error)

// New constructs a Client in its pre-connection state. All three dirty
// flags start true, matching the Python original: the first refresh always
// does a full fetch of every capability kind.
func New(sessionKey string, cfg config.MCPClientConfig, dial DialFunc, logger telemetry.Logger) *Client {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Client{
		SessionKey:          sessionKey,
		Name:                "mcp_" + sessionKey,
		cfg:                 cfg,
		logger:              logger,
		dial:                dial,
		Connected:           newEvent(),
		Done:                newEvent(),
		Closed:              newEvent(),
		toolListChanged:     true,
		promptListChanged:   true,
		resourceListChanged: true,
	}
}

// OnCapabilitiesChanged registers the callback invoked after every
// successful capability refresh.
func (c *Client) OnCapabilitiesChanged(fn CapabilitiesChangedFunc) {
	c.onCapabilitiesChanged = fn
}

// Initialize validates the configured transport kind, dials it, and
// performs the first capability refresh, mirroring MCPClient.initialize.
func (c *Client) Initialize(ctx context.Context) error {
	switch c.cfg.Transport {
	case config.TransportStdio, config.TransportStreamableHTTP:
		return orcherr.NewConfigError("transport", fmt.Sprintf("%s transport is not supported; use sse", c.cfg.Transport))
	case config.TransportSSE:
		// supported
	default:
		return orcherr.NewConfigError("transport", fmt.Sprintf("unknown MCP transport: %s", c.cfg.Transport))
	}

	transport, err := c.dial(ctx, c.cfg)
	if err != nil {
		return orcherr.NewTransportError(fmt.Sprintf("dialing MCP client %s", c.Name), err)
	}
	c.transport = transport
	c.Connected.Set()

	if err := c.refreshCapabilities(ctx); err != nil {
		c.logger.Error(ctx, "initial capability refresh failed", "client", c.Name, "error", err.Error())
	}
	return nil
}

// Teardown signals Done, closes the transport, and signals Closed.
func (c *Client) Teardown() error {
	c.Done.Set()
	var err error
	if c.transport != nil {
		err = c.transport.Close()
	}
	c.Closed.Set()
	return err
}

// refreshCapabilities re-fetches only the capability kinds whose dirty flag
// is set, merges them into the cache, and invokes the changed callback.
// This is the ONLY path by which toolsCache/promptsCache/resourcesCache are
// ever mutated (spec.md §9 fix).
func (c *Client) refreshCapabilities(ctx context.Context) error {
	if c.transport == nil {
		return nil
	}

	c.mu.Lock()
	needTools, needPrompts, needResources := c.toolListChanged, c.promptListChanged, c.resourceListChanged
	c.mu.Unlock()

	if needTools {
		raw, err := c.transport.Call(ctx, "tools/list", nil)
		if err != nil {
			return fmt.Errorf("refreshing tools: %w", err)
		}
		tools, err := decodeTools(raw)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.toolsCache = tools
		c.toolListChanged = false
		c.mu.Unlock()
	}

	if needResources {
		raw, err := c.transport.Call(ctx, "resources/list", nil)
		if err != nil {
			return fmt.Errorf("refreshing resources: %w", err)
		}
		resources, err := decodeResources(raw)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.resourcesCache = resources
		c.resourceListChanged = false
		c.mu.Unlock()
	}

	if needPrompts {
		raw, err := c.transport.Call(ctx, "prompts/list", nil)
		if err != nil {
			return fmt.Errorf("refreshing prompts: %w", err)
		}
		prompts, err := decodePrompts(raw)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.promptsCache = prompts
		c.promptListChanged = false
		c.mu.Unlock()
	}

	if c.onCapabilitiesChanged != nil {
		tools, prompts, resources := c.Capabilities()
		c.onCapabilitiesChanged(tools, prompts, resources)
	}
	return nil
}

// Capabilities returns a defensive copy of the current cached snapshot.
func (c *Client) Capabilities() ([]capability.Tool, []capability.Prompt, []capability.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capability.Tool(nil), c.toolsCache...),
		append([]capability.Prompt(nil), c.promptsCache...),
		append([]capability.Resource(nil), c.resourcesCache...)
}

// MarkToolListChanged, MarkPromptListChanged and MarkResourceListChanged
// record that a ToolListChangedNotification (etc.) was received from the
// server, so the next refresh re-fetches that capability kind.
func (c *Client) MarkToolListChanged() {
	c.mu.Lock()
	c.toolListChanged = true
	c.mu.Unlock()
}

func (c *Client) MarkPromptListChanged() {
	c.mu.Lock()
	c.promptListChanged = true
	c.mu.Unlock()
}

func (c *Client) MarkResourceListChanged() {
	c.mu.Lock()
	c.resourceListChanged = true
	c.mu.Unlock()
}

// ExecuteJSONRPC dispatches one JSON-RPC request to the right MCP
// operation, mirroring execute_json_rpc's method table, and refreshes
// capabilities after every successful dispatch (including list_* methods,
// which this port routes through the same dirty-flag path instead of
// bypassing it).
func (c *Client) ExecuteJSONRPC(ctx context.Context, method string, params map[string]any) (any, error) {
	if c.transport == nil {
		return nil, orcherr.NewUnknownSessionError(fmt.Sprintf("client %s not initialized", c.Name))
	}
	if method == "" {
		return nil, errors.New("missing 'method' in JSON-RPC request")
	}

	var result any
	var err error

	switch method {
	case "tools/call":
		result, err = c.callTool(ctx, params)
	case "prompts/get":
		result, err = c.getPrompt(ctx, params)
	case "resources/read":
		result, err = c.readResource(ctx, params)
	case "tools/list", "prompts/list", "resources/list":
		// No direct fetch here: refreshCapabilities below re-fetches this
		// kind only if its dirty flag is set, then the switch below returns
		// the (possibly just-refreshed) cache. This is the fix for
		// SPEC_FULL.md §9's flagged bypass — list_* access never forces a
		// fetch on its own, it goes through the same dirty-flag gate every
		// other caller does.
		result, err = nil, nil
	default:
		return nil, fmt.Errorf("unknown MCP method: %s", method)
	}
	if err != nil {
		return nil, err
	}

	if refreshErr := c.refreshCapabilities(ctx); refreshErr != nil {
		c.logger.Error(ctx, "capability refresh after dispatch failed", "client", c.Name, "error", refreshErr.Error())
	}

	switch method {
	case "tools/list":
		tools, _, _ := c.Capabilities()
		return tools, nil
	case "prompts/list":
		_, prompts, _ := c.Capabilities()
		return prompts, nil
	case "resources/list":
		_, _, resources := c.Capabilities()
		return resources, nil
	default:
		return result, nil
	}
}

func (c *Client) callTool(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, errors.New("missing parameter 'name' for tools/call")
	}
	arguments, _ := params["arguments"].(map[string]any)
	if arguments == nil {
		arguments = map[string]any{}
	}
	raw, err := c.transport.Call(ctx, "tools/call", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, fmt.Errorf("tool error %s: %w", name, err)
	}
	return decodeCallToolResult(raw)
}

func (c *Client) getPrompt(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, errors.New("missing parameter 'name' for prompts/get")
	}
	arguments, _ := params["arguments"].(map[string]any)
	if arguments == nil {
		arguments = map[string]any{}
	}
	raw, err := c.transport.Call(ctx, "prompts/get", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, fmt.Errorf("prompt error %s: %w", name, err)
	}
	return decodeGetPromptResult(raw)
}

func (c *Client) readResource(ctx context.Context, params map[string]any) (any, error) {
	uri, _ := params["uri"].(string)
	if uri == "" {
		return nil, errors.New("missing parameter 'uri' for resources/read")
	}
	raw, err := c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, fmt.Errorf("read error %s: %w", uri, err)
	}
	return decodeReadResourceResult(raw)
}
