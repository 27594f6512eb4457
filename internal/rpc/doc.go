// ABOUTME: Package documentation for the JSON-RPC dispatcher.
// ABOUTME: Describes the request pipeline and the error taxonomy.

// Package rpc implements the gateway's JSON-RPC 2.0 surface.
//
// A single HTTP POST endpoint accepts requests for three methods:
// initialize (capabilities/identity descriptor), tools/list (registry
// snapshot), and tools/call. A tools/call runs the full pipeline:
// decode params, authenticate the bearer token, authorize the tool against
// the caller's scopes, invoke through the registry, and map the tool result
// onto the response.
//
// # Error taxonomy
//
// Protocol failures (malformed envelope, unknown method, bad params) use
// the reserved JSON-RPC codes. Tool failures of every kind — security
// rejections and execution errors alike — arrive as error results and map
// to the application-level code -32000, with the failure reason as the
// message. A panic inside the dispatcher itself maps to -32603, preserving
// the request id when it was recoverable; ids are shallow-extracted from
// payloads that fail strict decoding so even a broken request can be
// answered with the id it sent.
package rpc
