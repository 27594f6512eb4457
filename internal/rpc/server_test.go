// ABOUTME: Tests for the JSON-RPC dispatcher including the auth pipeline.
// ABOUTME: Validates error codes, id preservation, and result mapping end to end.

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/registry"
	"github.com/calder-labs/opsgate/internal/store"
	"github.com/calder-labs/opsgate/internal/tool"
)

// mockVerifier implements auth.Verifier for testing.
type mockVerifier struct {
	principal *auth.Principal
	err       error
}

func (m *mockVerifier) Verify(token string) (*auth.Principal, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.principal, nil
}

// memAudit is an in-memory store.AuditStore for testing.
type memAudit struct {
	entries []*store.Invocation
}

func (m *memAudit) AppendInvocation(_ context.Context, inv *store.Invocation) error {
	m.entries = append(m.entries, inv)
	return nil
}

func (m *memAudit) ListInvocations(context.Context, store.InvocationFilter) ([]*store.Invocation, error) {
	return m.entries, nil
}

func (m *memAudit) Close() error { return nil }

// setupTestRegistry creates a registry with test tools.
func setupTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(slog.Default())

	reg.Register(tool.Definition{
		Name:        "echo",
		Description: "echoes its message argument",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}}}`),
	}, func(ctx context.Context, args json.RawMessage) *tool.Result {
		var a struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return tool.Errorf("invalid arguments: %s", err)
		}
		return tool.Text(a.Message)
	})

	reg.Register(tool.Definition{
		Name:        "always-fails",
		Description: "returns an error result",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}, func(ctx context.Context, args json.RawMessage) *tool.Result {
		return tool.Errorf("deliberate failure")
	})

	return reg
}

func setupTestAuthorizer() *auth.Authorizer {
	a := auth.NewAuthorizer("admin:*")
	a.Require("echo", "tools:echo")
	a.Require("always-fails", "tools:echo")
	return a
}

// newTestServer builds a dispatcher with a pass-through caller holding the
// given scopes.
func newTestServer(t *testing.T, scopes []string, audit store.AuditStore) *Server {
	t.Helper()
	srv, err := NewServer(Config{
		Registry:   setupTestRegistry(t),
		Verifier:   &mockVerifier{principal: &auth.Principal{Subject: "tester", Scopes: scopes}},
		Authorizer: setupTestAuthorizer(),
		Audit:      audit,
		Logger:     slog.Default(),
		ServerName: "opsgate-test",
		Version:    "0.0.1",
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// post sends a raw body to the dispatcher and decodes the JSON-RPC response.
func post(t *testing.T, srv *Server, body string) (*httptest.ResponseRecorder, *Response) {
	t.Helper()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Body.Len() == 0 {
		return rec, nil
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return rec, &resp
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	info, _ := result["serverInfo"].(map[string]any)
	if info["name"] != "opsgate-test" {
		t.Fatalf("serverInfo = %v", info)
	}
}

func TestToolsList(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	raw, _ := json.Marshal(resp.Result)
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result.Tools))
	}
	// Sorted snapshot.
	if result.Tools[0].Name != "always-fails" || result.Tools[1].Name != "echo" {
		t.Fatalf("unexpected order: %v", result.Tools)
	}
}

func TestToolsCallSuccess(t *testing.T) {
	srv := newTestServer(t, []string{"tools:echo"}, nil)

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hello"}}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	raw, _ := json.Marshal(resp.Result)
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatal("expected success result")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello" {
		t.Fatalf("unexpected content: %+v", result.Content)
	}
}

func TestToolsCallErrorResultMapsToAppError(t *testing.T) {
	srv := newTestServer(t, []string{"tools:echo"}, nil)

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"always-fails","arguments":{}}}`)
	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != CodeToolError {
		t.Fatalf("code = %d, want %d", resp.Error.Code, CodeToolError)
	}
	if resp.Error.Message != "deliberate failure" {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	// Admin scope must not rescue a tool that does not exist.
	srv := newTestServer(t, []string{"admin:*"}, nil)

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"no-such-tool","arguments":{}}}`)
	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != CodeToolError {
		t.Fatalf("code = %d, want %d", resp.Error.Code, CodeToolError)
	}
	if !strings.Contains(resp.Error.Message, "Tool not found") {
		t.Fatalf("message = %q, want Tool not found", resp.Error.Message)
	}
	if string(resp.ID) != "7" {
		t.Fatalf("id = %s, want 7", resp.ID)
	}
}

func TestToolsCallInsufficientScope(t *testing.T) {
	srv := newTestServer(t, []string{"read:filesystem"}, nil)

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	if resp.Error == nil || resp.Error.Code != CodeToolError {
		t.Fatalf("expected tool error, got %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "insufficient scope") {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestToolsCallAuthenticationFailure(t *testing.T) {
	srv, err := NewServer(Config{
		Registry:   setupTestRegistry(t),
		Verifier:   &mockVerifier{err: errors.New("invalid token")},
		Authorizer: setupTestAuthorizer(),
		Logger:     slog.Default(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	if resp.Error == nil || resp.Error.Code != CodeToolError {
		t.Fatalf("expected tool error, got %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "authentication failed") {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestToolsCallInvalidParams(t *testing.T) {
	srv := newTestServer(t, []string{"tools:echo"}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`},
		{"params not object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"bad"}`},
		{"arguments not object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":[1,2]}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp := post(t, srv, tc.body)
			if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
				t.Fatalf("expected invalid params, got %+v", resp.Error)
			}
		})
	}
}

func TestMethodNotFound(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestInvalidJSONRPCVersion(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, resp := post(t, srv, `{"jsonrpc":"1.0","id":1,"method":"initialize"}`)
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
}

func TestMalformedBodyPreservesID(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	// Broken JSON, but the top-level id is still recoverable.
	_, resp := post(t, srv, `{"id": 7, "jsonrpc": "2.0", "method": "tools/call", "params": {broken`)
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error, got %+v", resp.Error)
	}
	if string(resp.ID) != "7" {
		t.Fatalf("id = %s, want 7", resp.ID)
	}
}

func TestMalformedBodyWithoutID(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, resp := post(t, srv, `this is not json at all`)
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error, got %+v", resp.Error)
	}
	if len(resp.ID) != 0 && string(resp.ID) != "null" {
		t.Fatalf("id = %s, want null", resp.ID)
	}
}

func TestNotificationAccepted(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec, _ := post(t, srv, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("notification must not be answered, got %q", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestAuditRecordsAppended(t *testing.T) {
	audit := &memAudit{}
	srv := newTestServer(t, []string{"tools:echo"}, audit)

	post(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	post(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"always-fails","arguments":{}}}`)

	if len(audit.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(audit.entries))
	}
	if audit.entries[0].Outcome != store.OutcomeOK || audit.entries[0].Subject != "tester" {
		t.Fatalf("unexpected first entry: %+v", audit.entries[0])
	}
	if audit.entries[1].Outcome != store.OutcomeError || audit.entries[1].Reason != "deliberate failure" {
		t.Fatalf("unexpected second entry: %+v", audit.entries[1])
	}
}

func TestResponseCarriesExactlyOneOfResultOrError(t *testing.T) {
	srv := newTestServer(t, []string{"tools:echo"}, nil)

	bodies := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"always-fails","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"nope"}`,
	}
	for _, body := range bodies {
		_, resp := post(t, srv, body)
		hasResult := resp.Result != nil
		hasError := resp.Error != nil
		if hasResult == hasError {
			t.Fatalf("body %s: result=%v error=%v, want exactly one", body, hasResult, hasError)
		}
	}
}
