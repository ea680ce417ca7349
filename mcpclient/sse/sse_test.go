package sse_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaylabs/agentbridge/mcpclient/sse"
)

// sseServer writes one SSE "response" frame per request whose data is what
// handler returns for the request's method; the returned status code is
// ignored.
func sseServer(t *testing.T, handler func(method string) (string, int)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			Method string `json:"method"`
			ID     uint64 `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		data, code := handler(req.Method)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: response\ndata: %s\n\n", data)
		_ = code
	}))
}

func TestNewPerformsInitializeHandshake(t *testing.T) {
	var gotMethod string
	srv := sseServer(t, func(method string) (string, int) {
		gotMethod = method
		return `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}`, http.StatusOK
	})
	defer srv.Close()

	transport, err := sse.New(context.Background(), sse.Options{URL: srv.URL})
	require.NoError(t, err)
	defer transport.Close()

	assert.Equal(t, "initialize", gotMethod)
}

func TestCallReturnsDecodedResult(t *testing.T) {
	calls := 0
	srv := sseServer(t, func(method string) (string, int) {
		calls++
		if method == "initialize" {
			return `{"jsonrpc":"2.0","id":1,"result":{}}`, http.StatusOK
		}
		return `{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"echo"}]}}`, http.StatusOK
	})
	defer srv.Close()

	transport, err := sse.New(context.Background(), sse.Options{URL: srv.URL})
	require.NoError(t, err)
	defer transport.Close()

	raw, err := transport.Call(context.Background(), "tools/list", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tools":[{"name":"echo"}]}`, string(raw))
}

func TestCallSurfacesRPCError(t *testing.T) {
	srv := sseServer(t, func(method string) (string, int) {
		if method == "initialize" {
			return `{"jsonrpc":"2.0","id":1,"result":{}}`, http.StatusOK
		}
		return `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"method not found"}}`, http.StatusOK
	})
	defer srv.Close()

	transport, err := sse.New(context.Background(), sse.Options{URL: srv.URL})
	require.NoError(t, err)
	defer transport.Close()

	_, err = transport.Call(context.Background(), "tools/call", map[string]any{"name": "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestNewRejectsEmptyURL(t *testing.T) {
	_, err := sse.New(context.Background(), sse.Options{})
	require.Error(t, err)
}

func TestNewSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := sse.New(context.Background(), sse.Options{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
