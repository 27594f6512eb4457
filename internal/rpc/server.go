// ABOUTME: JSON-RPC 2.0 HTTP dispatcher for the gateway tool surface.
// ABOUTME: Decodes, authenticates, authorizes, invokes, and encodes uniformly.

package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/registry"
	"github.com/calder-labs/opsgate/internal/store"
)

// protocolVersion is advertised in initialize responses.
const protocolVersion = "2025-03-26"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response. It carries exactly one of
// Result or Error, never both.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes, plus the application-level code reserved
// for tool execution failures.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeToolError      = -32000
)

// ToolInfo is a tool definition as exposed through tools/list.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem represents content in a tool result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Config holds configuration for the dispatcher.
type Config struct {
	Registry   *registry.Registry
	Verifier   auth.Verifier
	Authorizer *auth.Authorizer
	Audit      store.AuditStore // optional; nil disables audit records
	Logger     *slog.Logger
	ServerName string
	Version    string
}

// Server dispatches JSON-RPC requests to registered tools behind the
// authentication and authorization pipeline.
type Server struct {
	registry   *registry.Registry
	verifier   auth.Verifier
	authorizer *auth.Authorizer
	audit      store.AuditStore
	logger     *slog.Logger
	serverName string
	version    string
}

// NewServer creates a new dispatcher with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name := cfg.ServerName
	if name == "" {
		name = "opsgate"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		registry:   cfg.Registry,
		verifier:   cfg.Verifier,
		authorizer: cfg.Authorizer,
		audit:      cfg.Audit,
		logger:     logger,
		serverName: name,
		version:    version,
	}, nil
}

// RegisterRoutes registers the RPC endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/rpc", s.handleRPC)
}

// handleRPC is the single JSON-RPC endpoint. Only POST is supported.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handlePost(w, r)
}

// handlePost processes one JSON-RPC message. Any panic escaping the
// dispatch machinery itself becomes a generic internal-error response with
// the original id preserved when it was already parsed.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var reqID json.RawMessage

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("dispatcher panic", "panic", rec)
			s.sendError(w, reqID, CodeInternalError, "internal error", nil)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendError(w, nil, CodeParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendError(w, nil, CodeInvalidRequest, "request body too large", nil)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		// Strict decoding failed inside the dispatcher. Shallow-extract the
		// id from the raw payload first so the broken request still gets a
		// compliant error response with the correct id when recoverable.
		reqID = bestEffortID(body)
		s.logger.Debug("request decode failed", "error", err, "id_recovered", reqID != nil)
		s.sendError(w, reqID, CodeInternalError, "internal error: malformed request", nil)
		return
	}
	reqID = req.ID

	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, CodeInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	// Notifications are accepted and never answered.
	if len(req.ID) == 0 || string(req.ID) == "null" {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	s.logger.Debug("rpc request", "method", req.Method)

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req)
	default:
		s.sendError(w, req.ID, CodeMethodNotFound, "method not found", nil)
	}
}

// handleInitialize returns the capabilities and identity descriptor. No
// side effects.
func (s *Server) handleInitialize(w http.ResponseWriter, req Request) {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.serverName,
			"version": s.version,
		},
	}
	s.sendResult(w, req.ID, result)
}

// handleToolsList returns the registry snapshot.
func (s *Server) handleToolsList(w http.ResponseWriter, req Request) {
	defs := s.registry.List()
	result := ListToolsResult{Tools: make([]ToolInfo, len(defs))}
	for i, def := range defs {
		result.Tools[i] = ToolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}
	}

	s.logger.Debug("tools/list", "count", len(defs))
	s.sendResult(w, req.ID, result)
}

// handleToolsCall authenticates and authorizes the caller, then invokes the
// tool through the registry and maps its result onto the response.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req Request) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, req.ID, CodeInvalidParams, "invalid params", nil)
			return
		}
	}

	if params.Name == "" {
		s.sendError(w, req.ID, CodeInvalidParams, "tool name is required", nil)
		return
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	} else {
		// Arguments must be a JSON object; anything else is invalid params
		// and nothing gets invoked.
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(args, &obj); err != nil {
			s.sendError(w, req.ID, CodeInvalidParams, "arguments must be an object", nil)
			return
		}
	}

	// Authenticate. The verifier strategy was fixed at startup, so this
	// path is identical whether auth is enforced or pass-through.
	principal, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		s.logger.Warn("authentication failed", "tool_name", params.Name, "error", err)
		s.sendError(w, req.ID, CodeToolError, "authentication failed: "+err.Error(), nil)
		return
	}

	// Unknown tools are reported as such before any scope comparison; no
	// scope, elevated or not, can rescue a tool that does not exist.
	if !s.registry.Has(params.Name) {
		s.recordInvocation(r, principal, params.Name, true, "Tool not found: "+params.Name)
		s.sendError(w, req.ID, CodeToolError, "Tool not found: "+params.Name, nil)
		return
	}

	// Authorize before touching the registry.
	if !s.authorizer.IsAuthorized(params.Name, principal.Scopes) {
		s.logger.Warn("authorization denied",
			"tool_name", params.Name,
			"subject", principal.Subject,
		)
		s.recordInvocation(r, principal, params.Name, true, "insufficient scope")
		s.sendError(w, req.ID, CodeToolError, "insufficient scope for tool: "+params.Name, nil)
		return
	}

	ctx := auth.WithPrincipal(r.Context(), principal)
	res := s.registry.Invoke(ctx, params.Name, args)

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"subject", principal.Subject,
		"is_error", res.IsError,
	)
	s.recordInvocation(r, principal, params.Name, res.IsError, res.Reason())

	if res.IsError {
		s.sendError(w, req.ID, CodeToolError, res.Reason(), nil)
		return
	}

	result := CallToolResult{Content: make([]ContentItem, len(res.Content))}
	for i, c := range res.Content {
		result.Content[i] = ContentItem{Type: c.Type, Text: c.Text}
	}
	s.sendResult(w, req.ID, result)
}

// recordInvocation appends an audit record when a store is configured.
// Audit failures are logged, never surfaced to the caller.
func (s *Server) recordInvocation(r *http.Request, p *auth.Principal, toolName string, isError bool, reason string) {
	if s.audit == nil {
		return
	}
	outcome := store.OutcomeOK
	if isError {
		outcome = store.OutcomeError
	}
	inv := &store.Invocation{
		Subject: p.Subject,
		Tool:    toolName,
		Outcome: outcome,
		Reason:  reason,
	}
	if err := s.audit.AppendInvocation(r.Context(), inv); err != nil {
		s.logger.Warn("failed to append audit record", "tool_name", toolName, "error", err)
	}
}

// bearerToken extracts the bearer token from the Authorization header,
// returning "" when absent or not bearer-shaped. The verifier decides what
// an empty token means under the active strategy.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// bestEffortID shallow-extracts the top-level id field from a raw payload
// that failed strict decoding. gjson tolerates trailing garbage, so a
// syntactically broken body can still yield a usable id.
func bestEffortID(body []byte) json.RawMessage {
	res := gjson.GetBytes(body, "id")
	if !res.Exists() {
		return nil
	}
	raw := strings.TrimSpace(res.Raw)
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil
	}
	return json.RawMessage(raw)
}

// sendResult sends a successful JSON-RPC response.
func (s *Server) sendResult(w http.ResponseWriter, id json.RawMessage, result any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// sendError sends a JSON-RPC error response.
func (s *Server) sendError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode error response", "error", err)
	}
}
