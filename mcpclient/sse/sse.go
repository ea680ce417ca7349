// Package sse implements an MCP JSON-RPC transport over HTTP Server-Sent
// Events: one POST per call, a single "response"/"error" SSE frame read back
// from the body. Grounded on the teacher's
// runtime/mcp/ssecaller.go (SSE POST + read-one-frame protocol,
// readSSEEvent's event:/data: line scanner) and
// features/mcp/runtime/httpcaller.go + features/mcp/runtime/rpc.go
// (httpTransport's id counter and initialize handshake, rpcRequest/
// rpcResponse/rpcError shapes), generalized from tools/call-only to every
// MCP method the Go MCP Client (package mcpclient) dispatches.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Options configures the SSE transport, mirroring
// config.MCPClientConfig's transport-relevant fields.
type Options struct {
	URL            string
	AuthToken      string
	Timeout        time.Duration
	SSEReadTimeout time.Duration
	HTTPClient     *http.Client
	ClientName     string
	ClientVersion  string
}

const defaultProtocolVersion = "2024-11-05"

// Transport is an MCP JSON-RPC client bound to one SSE endpoint.
type Transport struct {
	endpoint  string
	authToken string
	client    *http.Client
	id        uint64
}

// New dials the endpoint and performs the MCP "initialize" handshake.
func New(ctx context.Context, opts Options) (*Transport, error) {
	if opts.URL == "" {
		return nil, errors.New("sse: URL is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	t := &Transport{endpoint: opts.URL, authToken: opts.AuthToken, client: httpClient}

	clientName := opts.ClientName
	if clientName == "" {
		clientName = "agentbridge"
	}
	clientVersion := opts.ClientVersion
	if clientVersion == "" {
		clientVersion = "dev"
	}
	initParams := map[string]any{
		"protocolVersion": defaultProtocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}
	if _, err := t.Call(ctx, "initialize", initParams); err != nil {
		return nil, fmt.Errorf("sse: initialize handshake failed: %w", err)
	}
	return t, nil
}

// Close releases the underlying HTTP client's idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *Transport) nextID() uint64 {
	return atomic.AddUint64(&t.id, 1)
}

// Call issues one JSON-RPC request over SSE and returns the decoded
// "result" field of the single response frame.
func (t *Transport) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	addTraceMeta(ctx, params)

	reqBody := rpcRequest{JSONRPC: "2.0", Method: method, ID: t.nextID(), Params: params}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if t.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.authToken)
	}
	injectTraceHeaders(ctx, httpReq.Header)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mcp rpc status %d: %s", resp.StatusCode, string(raw))
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected content type %q: %s", resp.Header.Get("Content-Type"), string(raw))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		event, data, err := readSSEEvent(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("sse: stream closed before response")
			}
			return nil, err
		}

		switch event {
		case "response", "error":
			var rpcResp rpcResponse
			if err := json.Unmarshal(data, &rpcResp); err != nil {
				return nil, fmt.Errorf("sse: decoding %s frame: %w", event, err)
			}
			if rpcResp.Error != nil {
				return nil, rpcResp.Error
			}
			return rpcResp.Result, nil
		case "", "notification":
			continue
		case "close":
			return nil, errors.New("sse: stream closed without response")
		default:
			continue
		}
	}
}

func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			chunk := after
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
			continue
		}
	}
}

func injectTraceHeaders(ctx context.Context, header http.Header) {
	if ctx == nil || header == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

func addTraceMeta(ctx context.Context, params map[string]any) {
	if ctx == nil || params == nil {
		return
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return
	}
	meta := make(map[string]string, len(carrier))
	for k, v := range carrier {
		meta[k] = v
	}
	params["_meta"] = meta
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      uint64          `json:"id"`
}

// RPCError is a JSON-RPC error object returned by the MCP server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}
